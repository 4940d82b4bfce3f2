package acquisition

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shiwa/motorctl/internal/frame"
	"github.com/shiwa/motorctl/internal/logger"
	pkgconfig "github.com/shiwa/motorctl/pkg/config"
)

// Injected — подстановка измерений из последовательного порта (стенд без датчиков).
// Фоновая горутина читает поток пар «ток, скорость»; цикл забирает последнюю пару
// без ожидания. До первой пары, после конца потока и для устаревшей пары чтение
// возвращает ошибку, оборачивающую ErrNoSample.
type Injected struct {
	name    string
	rc      io.ReadCloser
	format  string
	maxAge  time.Duration
	idleEOF bool

	last    atomic.Pointer[pair]
	samples atomic.Uint64
	bad     atomic.Uint64
	closing atomic.Bool

	done chan struct{}
	err  error
}

// InjectedOptions — параметры подстановки.
type InjectedOptions struct {
	Format string // text ("ток,скорость\n") или frame
	// MaxAge — предельный возраст последней пары; 0 — без проверки.
	MaxAge time.Duration
	// IdleEOF: (0, io.EOF) — пустой опрос порта по таймауту чтения, а не конец потока.
	// Так ведёт себя tarm/serial при VMIN=0.
	IdleEOF bool
}

type pair struct {
	current, speed float64
	at             time.Time
}

// idlePause — пауза после пустого опроса, чтобы закрытый tty не крутил цикл.
const idlePause = 10 * time.Millisecond

// NewInjected запускает чтение пар из rc. Close закрывает rc.
func NewInjected(name string, rc io.ReadCloser, o InjectedOptions) (*Injected, error) {
	format := o.Format
	switch format {
	case "", pkgconfig.FormatText:
		format = pkgconfig.FormatText
	case pkgconfig.FormatFrame:
	default:
		return nil, fmt.Errorf("injected: unknown format %q", format)
	}
	if o.MaxAge < 0 {
		return nil, fmt.Errorf("injected: negative max sample age %v", o.MaxAge)
	}
	in := &Injected{
		name:    name,
		rc:      rc,
		format:  format,
		maxAge:  o.MaxAge,
		idleEOF: o.IdleEOF,
		done:    make(chan struct{}),
	}
	go in.readLoop()
	return in, nil
}

// Name возвращает имя источника
func (in *Injected) Name() string {
	return fmt.Sprintf("injected:%s", in.name)
}

// ReadPair возвращает ток и скорость одной подставленной пары.
func (in *Injected) ReadPair() (current, speed float64, err error) {
	p, err := in.load()
	if err != nil {
		return 0, 0, err
	}
	return p.current, p.speed, nil
}

// ReadCurrent возвращает последний подставленный ток
func (in *Injected) ReadCurrent() (float64, error) {
	c, _, err := in.ReadPair()
	return c, err
}

// ReadSpeed возвращает последнюю подставленную скорость
func (in *Injected) ReadSpeed() (float64, error) {
	_, s, err := in.ReadPair()
	return s, err
}

// Stats — число принятых и отброшенных записей.
func (in *Injected) Stats() (samples, bad uint64) {
	return in.samples.Load(), in.bad.Load()
}

// Done закрывается, когда поток закончился или порт закрыт.
func (in *Injected) Done() <-chan struct{} {
	return in.done
}

// Close закрывает порт и дожидается завершения чтения.
func (in *Injected) Close() error {
	in.closing.Store(true)
	err := in.rc.Close()
	<-in.done
	return err
}

func (in *Injected) load() (*pair, error) {
	select {
	case <-in.done:
		if in.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoSample, in.err)
		}
		return nil, fmt.Errorf("%w: stream ended", ErrNoSample)
	default:
	}
	p := in.last.Load()
	if p == nil {
		return nil, ErrNoSample
	}
	if in.maxAge > 0 {
		if age := time.Since(p.at); age > in.maxAge {
			return nil, fmt.Errorf("%w: last sample %v ago", ErrStale, age.Round(time.Millisecond))
		}
	}
	return p, nil
}

func (in *Injected) store(current, speed float64) {
	in.last.Store(&pair{current: current, speed: speed, at: time.Now()})
	in.samples.Add(1)
}

func (in *Injected) readLoop() {
	defer close(in.done)
	var err error
	if in.format == pkgconfig.FormatFrame {
		err = in.readFrames()
	} else {
		err = in.readLines()
	}
	if in.closing.Load() {
		return
	}
	if err != nil && !errors.Is(err, io.EOF) {
		in.err = err
		logger.Warn("%s: read stopped: %v", in.Name(), err)
		return
	}
	logger.Warn("%s: stream ended, measurements unavailable", in.Name())
}

// pollReader пропускает пустые чтения по таймауту порта, пока источник не закрывается.
type pollReader struct{ in *Injected }

func (r pollReader) Read(p []byte) (int, error) {
	for {
		n, err := r.in.rc.Read(p)
		if n > 0 {
			return n, err
		}
		if r.in.closing.Load() {
			return 0, io.EOF
		}
		switch {
		case err == nil:
		case r.in.idleEOF && errors.Is(err, io.EOF):
			time.Sleep(idlePause)
		default:
			return 0, err
		}
	}
}

func (in *Injected) readLines() error {
	sc := bufio.NewScanner(pollReader{in})
	for sc.Scan() {
		current, speed, ok := ParseSampleLine(sc.Text())
		if !ok {
			in.bad.Add(1)
			continue
		}
		in.store(current, speed)
	}
	return sc.Err()
}

func (in *Injected) readFrames() error {
	rd := bufio.NewReader(pollReader{in})
	for {
		pkt, err := frame.Read(rd)
		if err != nil {
			if errors.Is(err, frame.ErrChecksum) || errors.Is(err, frame.ErrTooLong) {
				in.bad.Add(1)
				continue
			}
			return err
		}
		if !frame.IsSamplePacket(pkt) {
			continue
		}
		s, ok := frame.ParseSample(frame.Payload(pkt))
		if !ok {
			in.bad.Add(1)
			continue
		}
		in.store(float64(s.Current), float64(s.Speed))
	}
}

// ParseSampleLine разбирает строку "ток,скорость" (допускаются пробелы и ';').
// NaN и Inf принимаются как есть: неисправность измерения определяет цикл.
func ParseSampleLine(line string) (current, speed float64, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return 0, 0, false
	}
	parts := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	if len(parts) != 2 {
		return 0, 0, false
	}
	c, err1 := strconv.ParseFloat(parts[0], 64)
	s, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return c, s, true
}
