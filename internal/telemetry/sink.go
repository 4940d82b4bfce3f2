package telemetry

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shiwa/motorctl/internal/logger"
	"go.uber.org/multierr"
)

// Sink принимает записи циклов. Emit не блокирует цикл: при переполнении
// запись отбрасывается и возвращается false.
type Sink interface {
	Emit(r Record) bool
	Close() error
}

// Stats — счётчики канала.
type Stats struct {
	Sent    uint64
	Dropped uint64
	Skipped uint64 // пропущено прореживанием
	Errors  uint64
}

// Async передаёт записи из отдельной горутины через ограниченную очередь.
type Async struct {
	name       string
	write      func(Record) error
	c          io.Closer
	every      int
	keepFaults bool
	n          int

	mu     sync.Mutex
	closed bool
	ch     chan Record
	done   chan struct{}

	sent, dropped, skipped, errs atomic.Uint64
}

// AsyncOptions — очередь и прореживание канала.
type AsyncOptions struct {
	Queue int
	Every int // передавать каждую Every-ю запись (<1 — каждую)
	// KeepFaults: записи с неисправностью не прореживаются.
	KeepFaults bool
}

// NewAsync запускает запись в w кодеком codec. Если w реализует io.Closer,
// Close закрывает и его.
func NewAsync(name string, w io.Writer, codec Codec, queue, every int) *Async {
	buf := make([]byte, 0, 128)
	write := func(r Record) error {
		buf = codec.Append(buf[:0], r)
		_, err := w.Write(buf)
		return err
	}
	c, _ := w.(io.Closer)
	return newAsync(name, write, c, AsyncOptions{Queue: queue, Every: every})
}

// NewAsyncFunc запускает канал, передающий записи в write. write вызывается
// из одной горутины.
func NewAsyncFunc(name string, write func(Record) error, o AsyncOptions) *Async {
	return newAsync(name, write, nil, o)
}

func newAsync(name string, write func(Record) error, c io.Closer, o AsyncOptions) *Async {
	if o.Queue < 1 {
		o.Queue = 1
	}
	if o.Every < 1 {
		o.Every = 1
	}
	a := &Async{
		name:       name,
		write:      write,
		c:          c,
		every:      o.Every,
		keepFaults: o.KeepFaults,
		ch:         make(chan Record, o.Queue),
		done:       make(chan struct{}),
	}
	go a.writeLoop()
	return a
}

// Emit ставит запись в очередь.
func (a *Async) Emit(r Record) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	a.n++
	if (a.n-1)%a.every != 0 && !(a.keepFaults && r.Fault()) {
		a.skipped.Add(1)
		return true
	}
	select {
	case a.ch <- r:
		return true
	default:
		a.dropped.Add(1)
		return false
	}
}

// Stats возвращает счётчики.
func (a *Async) Stats() Stats {
	return Stats{
		Sent:    a.sent.Load(),
		Dropped: a.dropped.Load(),
		Skipped: a.skipped.Load(),
		Errors:  a.errs.Load(),
	}
}

// Close дописывает очередь и закрывает writer.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()
	<-a.done
	if a.c != nil {
		return a.c.Close()
	}
	return nil
}

func (a *Async) writeLoop() {
	defer close(a.done)
	lim := logger.Limiter{Every: 5 * time.Second}
	for r := range a.ch {
		if err := a.write(r); err != nil {
			a.errs.Add(1)
			if ok, suppressed := lim.Allow(time.Now()); ok {
				logger.Warn("telemetry %s: write: %v (suppressed %d)", a.name, err, suppressed)
			}
			continue
		}
		a.sent.Add(1)
	}
}

// Multi рассылает запись в несколько каналов.
type Multi []Sink

// Emit возвращает true, если запись принял хотя бы один канал.
func (m Multi) Emit(r Record) bool {
	ok := false
	for _, s := range m {
		if s.Emit(r) {
			ok = true
		}
	}
	return ok
}

// Close закрывает все каналы.
func (m Multi) Close() error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Close())
	}
	return err
}
