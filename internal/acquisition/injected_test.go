package acquisition

import (
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shiwa/motorctl/internal/frame"
	pkgconfig "github.com/shiwa/motorctl/pkg/config"
)

func TestParseSampleLine(t *testing.T) {
	tests := []struct {
		line           string
		current, speed float64
		ok             bool
	}{
		{"1.5,300", 1.5, 300, true},
		{" -0.25 ; 12\r", -0.25, 12, true},
		{"3 4", 3, 4, true},
		{"", 0, 0, false},
		{"# comment", 0, 0, false},
		{"1,2,3", 0, 0, false},
		{"abc,1", 0, 0, false},
	}
	for _, tt := range tests {
		c, s, ok := ParseSampleLine(tt.line)
		if ok != tt.ok || (ok && (c != tt.current || s != tt.speed)) {
			t.Errorf("ParseSampleLine(%q) = %v, %v, %v; ожидали %v, %v, %v",
				tt.line, c, s, ok, tt.current, tt.speed, tt.ok)
		}
	}

	c, _, ok := ParseSampleLine("NaN,1")
	if !ok || !math.IsNaN(c) {
		t.Errorf("NaN должен передаваться в цикл как есть: %v %v", c, ok)
	}
}

// waitSamples ждёт, пока источник примет n записей.
func waitSamples(t *testing.T, in *Injected, n uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := in.Stats(); got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	got, bad := in.Stats()
	t.Fatalf("за 2с принято %d записей (отброшено %d), ожидали %d", got, bad, n)
}

func TestInjected_Text(t *testing.T) {
	pr, pw := io.Pipe()
	in, err := NewInjected("pipe", pr, InjectedOptions{Format: pkgconfig.FormatText})
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()

	if _, err := in.ReadCurrent(); !errors.Is(err, ErrNoSample) {
		t.Errorf("до первой пары ожидали ErrNoSample, получили %v", err)
	}
	if _, err := io.WriteString(pw, "garbage\n0.5,120\n0.75,130\n"); err != nil {
		t.Fatal(err)
	}
	waitSamples(t, in, 2)

	c, err := in.ReadCurrent()
	if err != nil || c != 0.75 {
		t.Errorf("ReadCurrent = %v, %v; ожидали 0.75", c, err)
	}
	s, err := in.ReadSpeed()
	if err != nil || s != 130 {
		t.Errorf("ReadSpeed = %v, %v; ожидали 130", s, err)
	}
	if _, bad := in.Stats(); bad != 1 {
		t.Errorf("отброшено %d строк, ожидали 1", bad)
	}
	// Повторное чтение без новых данных возвращает последнюю пару.
	if s2, _ := in.ReadSpeed(); s2 != 130 {
		t.Errorf("повторное чтение: %v", s2)
	}
}

func TestInjected_Frame(t *testing.T) {
	pr, pw := io.Pipe()
	in, err := NewInjected("pipe", pr, InjectedOptions{Format: pkgconfig.FormatFrame})
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()

	go func() {
		bad := frame.EncodeSample(frame.Sample{Current: 9, Speed: 9})
		bad[len(bad)-1] ^= 0xFF
		_, _ = pw.Write([]byte{0x00, 0x13})
		_, _ = pw.Write(bad)
		_, _ = pw.Write(frame.Encode(frame.ClassTelemetry, frame.IDCycle, make([]byte, frame.CycleSize)))
		_, _ = pw.Write(frame.EncodeSample(frame.Sample{Current: -1.25, Speed: 42}))
	}()
	waitSamples(t, in, 1)

	c, _ := in.ReadCurrent()
	s, _ := in.ReadSpeed()
	if c != -1.25 || s != 42 {
		t.Errorf("получили (%v, %v), ожидали (-1.25, 42)", c, s)
	}
	if _, bad := in.Stats(); bad != 1 {
		t.Errorf("кадр с неверной суммой должен быть отброшен: bad=%d", bad)
	}
}

func TestInjected_StreamEnd(t *testing.T) {
	pr, pw := io.Pipe()
	in, err := NewInjected("pipe", pr, InjectedOptions{})
	if err != nil {
		t.Fatal(err)
	}
	_ = pw.CloseWithError(errors.New("port gone"))
	select {
	case <-in.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("чтение не завершилось после ошибки потока")
	}
	_, err = in.ReadSpeed()
	if !errors.Is(err, ErrNoSample) {
		t.Errorf("ожидали ErrNoSample, получили %v", err)
	}
	_ = in.Close()
}

func TestNewInjected_UnknownFormat(t *testing.T) {
	pr, _ := io.Pipe()
	if _, err := NewInjected("pipe", pr, InjectedOptions{Format: "json"}); err == nil {
		t.Error("ожидали ошибку для неизвестного формата")
	}
}

// ttyReader ведёт себя как tarm/serial с таймаутом чтения: между данными
// Read возвращает (0, io.EOF).
type ttyReader struct {
	mu     sync.Mutex
	chunks []string // "" — пустой опрос
	once   sync.Once
	closed chan struct{}
}

func newTTYReader(chunks ...string) *ttyReader {
	return &ttyReader{chunks: chunks, closed: make(chan struct{})}
}

func (r *ttyReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	if len(r.chunks) == 0 {
		r.mu.Unlock()
		select {
		case <-r.closed:
		case <-time.After(time.Millisecond):
		}
		return 0, io.EOF
	}
	c := r.chunks[0]
	r.chunks = r.chunks[1:]
	r.mu.Unlock()
	if c == "" {
		return 0, io.EOF
	}
	return copy(p, c), nil
}

func (r *ttyReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func TestInjected_IdleTimeoutKeepsReading(t *testing.T) {
	for _, format := range []string{pkgconfig.FormatText, pkgconfig.FormatFrame} {
		t.Run(format, func(t *testing.T) {
			first, second := "0.5,100\n", "0.7,200\n"
			if format == pkgconfig.FormatFrame {
				first = string(frame.EncodeSample(frame.Sample{Current: 0.5, Speed: 100}))
				second = string(frame.EncodeSample(frame.Sample{Current: 0.7, Speed: 200}))
			}
			r := newTTYReader(first, "", "", second)
			in, err := NewInjected("tty", r, InjectedOptions{Format: format, IdleEOF: true})
			if err != nil {
				t.Fatal(err)
			}
			waitSamples(t, in, 2)

			select {
			case <-in.Done():
				t.Fatal("чтение остановилось на пустом опросе порта")
			default:
			}
			c, s, err := in.ReadPair()
			if err != nil || c != 0.7 || s != 200 {
				t.Errorf("ReadPair = %v, %v, %v; ожидали 0.7, 200", c, s, err)
			}
			if err := in.Close(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestInjected_EndedStreamIsFault(t *testing.T) {
	pr, pw := io.Pipe()
	in, err := NewInjected("pipe", pr, InjectedOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	if _, err := io.WriteString(pw, "1.5,300\n"); err != nil {
		t.Fatal(err)
	}
	waitSamples(t, in, 1)
	if _, err := in.ReadSpeed(); err != nil {
		t.Fatalf("ReadSpeed до конца потока: %v", err)
	}

	_ = pw.Close()
	select {
	case <-in.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("чтение не завершилось после конца потока")
	}
	// Последняя пара не выдаётся за свежую после конца потока.
	if v, err := in.ReadSpeed(); !errors.Is(err, ErrNoSample) {
		t.Errorf("ReadSpeed = %v, %v; ожидали ErrNoSample", v, err)
	}
	if _, err := in.ReadCurrent(); !errors.Is(err, ErrNoSample) {
		t.Errorf("ReadCurrent: ожидали ErrNoSample, получили %v", err)
	}
}

func TestInjected_StaleSample(t *testing.T) {
	r := newTTYReader("0.25,50\n")
	in, err := NewInjected("tty", r, InjectedOptions{MaxAge: 200 * time.Millisecond, IdleEOF: true})
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	waitSamples(t, in, 1)
	if _, _, err := in.ReadPair(); err != nil {
		t.Fatalf("свежая пара: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	_, _, err = in.ReadPair()
	if !errors.Is(err, ErrStale) || !errors.Is(err, ErrNoSample) {
		t.Errorf("ожидали ErrStale (и ErrNoSample), получили %v", err)
	}
}

func TestNewInjected_NegativeMaxAge(t *testing.T) {
	pr, _ := io.Pipe()
	if _, err := NewInjected("pipe", pr, InjectedOptions{MaxAge: -time.Second}); err == nil {
		t.Error("ожидали ошибку для отрицательного возраста")
	}
}

type pairSource struct {
	pairs, singles int
}

func (p *pairSource) Name() string { return "pair" }

func (p *pairSource) ReadPair() (float64, float64, error) {
	p.pairs++
	return 0.3, 120, nil
}

func (p *pairSource) ReadCurrent() (float64, error) {
	p.singles++
	return 0, nil
}

func (p *pairSource) ReadSpeed() (float64, error) {
	p.singles++
	return 0, nil
}

func (p *pairSource) Close() error { return nil }

func TestRead(t *testing.T) {
	ps := &pairSource{}
	speed, current, se, ce := Read(ps)
	if speed != 120 || current != 0.3 || se != nil || ce != nil {
		t.Errorf("Read = %v, %v, %v, %v", speed, current, se, ce)
	}
	if ps.pairs != 1 || ps.singles != 0 {
		t.Errorf("пара должна читаться одним вызовом: ReadPair %d, отдельных %d", ps.pairs, ps.singles)
	}

	var _ PairReader = (*Injected)(nil)
}
