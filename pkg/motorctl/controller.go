// Package motorctl предоставляет цикл каскадного регулятора двигателя для встраивания
// в CLI и Beat: опрос измерений, регуляторы скорости и тока, вывод команды, телеметрия.
package motorctl

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shiwa/motorctl/internal/acquisition"
	"github.com/shiwa/motorctl/internal/actuation"
	"github.com/shiwa/motorctl/internal/cascade"
	"github.com/shiwa/motorctl/internal/config"
	"github.com/shiwa/motorctl/internal/logger"
	"github.com/shiwa/motorctl/internal/serialport"
	"github.com/shiwa/motorctl/internal/telemetry"
	pkgconfig "github.com/shiwa/motorctl/pkg/config"
	"go.uber.org/multierr"
)

// Типы для внешних потребителей (motorbeat).
type (
	Record   = telemetry.Record
	Sink     = telemetry.Sink
	Source   = acquisition.Source
	Actuator = actuation.Actuator
)

// Флаги записи цикла.
const (
	FlagSpeedFault       = telemetry.FlagSpeedFault
	FlagCurrentFault     = telemetry.FlagCurrentFault
	FlagReferenceFault   = telemetry.FlagReferenceFault
	FlagHeld             = telemetry.FlagHeld
	FlagSpeedSaturated   = telemetry.FlagSpeedSaturated
	FlagCurrentSaturated = telemetry.FlagCurrentSaturated
)

// Асинхронный канал для внешних потребителей (публикация событий Beat).
type (
	AsyncSink    = telemetry.Async
	AsyncOptions = telemetry.AsyncOptions
	SinkStats    = telemetry.Stats
)

// NewFuncSink создаёт канал, передающий записи в publish из отдельной горутины.
func NewFuncSink(name string, publish func(Record) error, o AsyncOptions) *AsyncSink {
	return telemetry.NewAsyncFunc(name, publish, o)
}

// FlagNames возвращает имена установленных флагов записи.
func FlagNames(f uint8) []string {
	return telemetry.FlagNames(f)
}

// Snapshot — состояние регулятора для консоли и Beat.
type Snapshot struct {
	Started     time.Time
	Cycles      uint64
	Faults      uint64
	WriteErrors uint64
	Overruns    uint64
	Dropped     uint64 // записи, не принятые телеметрией
	Last        Record
	SpeedOutput float64
	LastError   string
}

// Option настраивает Controller.
type Option func(*options)

type options struct {
	source   Source
	actuator Actuator
	sinks    []Sink
}

// WithSource подставляет источник измерений вместо создаваемого по конфигу.
func WithSource(s Source) Option {
	return func(o *options) { o.source = s }
}

// WithActuator подставляет привод вместо создаваемого по конфигу.
func WithActuator(a Actuator) Option {
	return func(o *options) { o.actuator = a }
}

// WithSinks добавляет каналы записей к телеметрии из конфига.
func WithSinks(s ...Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s...) }
}

// Controller — цикл регулятора. Step вызывается из одной горутины (Run);
// Snapshot и Status безопасны из других горутин.
type Controller struct {
	cfg pkgconfig.Config
	ts  time.Duration
	ref float64

	loop  *cascade.Loop
	src   Source
	act   Actuator
	sinks telemetry.Multi

	maxSpeed, maxCurrent float64
	start                time.Time
	faultLim, writeLim   logger.Limiter
	overrunLim           logger.Limiter

	mu   sync.RWMutex
	snap Snapshot
}

// New создаёт регулятор по конфигу; cfg дополняется значениями по умолчанию и проверяется.
func New(ctx context.Context, cfg *pkgconfig.Config, opts ...Option) (c *Controller, err error) {
	if cfg == nil {
		cfg = pkgconfig.Default()
	}
	cc := *cfg
	config.ApplyDefaults(&cc)
	if err := config.Validate(&cc); err != nil {
		return nil, err
	}
	ts, err := config.SamplePeriod(&cc)
	if err != nil {
		return nil, err
	}
	loop, err := cascade.NewFromParams(
		config.LoopParams(cc.Controller.Speed, ts),
		config.LoopParams(cc.Controller.Current, ts),
	)
	if err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c = &Controller{
		cfg:        cc,
		ts:         ts,
		ref:        cc.Controller.ReferenceSpeed,
		loop:       loop,
		src:        o.source,
		act:        o.actuator,
		maxSpeed:   cc.Controller.MaxAbsSpeed,
		maxCurrent: cc.Controller.MaxAbsCurrent,
		faultLim:   logger.Limiter{Every: time.Second},
		writeLim:   logger.Limiter{Every: time.Second},
		overrunLim: logger.Limiter{Every: 5 * time.Second},
	}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	if err := c.openPorts(o); err != nil {
		return c, err
	}
	if c.act == nil {
		lim := cc.Controller.Current
		act, err := actuation.Open(ctx, cc.Actuation, lim.OutputMin, lim.OutputMax)
		if err != nil {
			return c, err
		}
		c.act = act
	}
	c.sinks = append(c.sinks, o.sinks...)

	c.start = time.Now()
	c.snap.Started = c.start
	logger.Info("motorctl: Ts=%v ref=%g source=%s actuator=%s sinks=%d",
		ts, c.ref, c.src.Name(), c.act.Name(), len(c.sinks))
	logger.Debug("motorctl: speed %s, current %s", loop.Speed(), loop.Current())
	return c, nil
}

// openPorts открывает источник и телеметрию. Если подстановка и телеметрия
// настроены на одно устройство, порт открывается один раз.
func (c *Controller) openPorts(o options) error {
	a, t := c.cfg.Acquisition, c.cfg.Telemetry
	var shared serialport.Port
	if o.source == nil && a.Source == pkgconfig.SourceInjected && t.Enabled && t.Device == a.Device {
		p, err := serialport.Open(serialport.Options{
			Driver:      a.Driver,
			Device:      a.Device,
			Baud:        a.Baud,
			ReadTimeout: 100 * time.Millisecond,
		})
		if err != nil {
			return err
		}
		shared = p
	}
	if c.src == nil {
		src, err := acquisition.Open(a, shared)
		if err != nil {
			if shared != nil {
				_ = shared.Close()
			}
			return err
		}
		c.src = src
	}
	if !t.Enabled {
		return nil
	}
	codec, err := telemetry.NewCodec(t.Format)
	if err != nil {
		return err
	}
	var w io.Writer
	if shared != nil {
		// Порт закрывает источник.
		w = struct{ io.Writer }{shared}
	} else {
		p, err := serialport.Open(serialport.Options{Driver: t.Driver, Device: t.Device, Baud: t.Baud})
		if err != nil {
			return err
		}
		w = p
	}
	c.sinks = append(c.sinks, telemetry.NewAsync(t.Device, w, codec, t.QueueSize, t.Every))
	return nil
}

// SamplePeriod возвращает период цикла.
func (c *Controller) SamplePeriod() time.Duration {
	return c.ts
}

// Step выполняет один цикл: измерения, каскад, вывод команды, запись телеметрии.
// При неисправности измерения команда удерживается, привод не перезаписывается,
// возвращается ошибка, оборачивающая cascade.ErrMeasurementFault.
func (c *Controller) Step(now time.Time) (Record, error) {
	var flags uint8
	var reasons []string

	speed, current, speedErr, currentErr := acquisition.Read(c.src)
	speedIn := speed
	if reason := c.checkMeasurement("speed", speed, speedErr, c.maxSpeed); reason != "" {
		flags |= telemetry.FlagSpeedFault
		reasons = append(reasons, reason)
		speedIn = math.NaN()
	}
	currentIn := current
	if reason := c.checkMeasurement("current", current, currentErr, c.maxCurrent); reason != "" {
		flags |= telemetry.FlagCurrentFault
		reasons = append(reasons, reason)
		currentIn = math.NaN()
	}
	if math.IsNaN(c.ref) || math.IsInf(c.ref, 0) {
		flags |= telemetry.FlagReferenceFault
		reasons = append(reasons, fmt.Sprintf("reference %v", c.ref))
	}

	res, cycleErr := c.loop.RunCycle(c.ref, speedIn, currentIn)
	if cycleErr != nil && len(reasons) > 0 {
		cycleErr = fmt.Errorf("%w: %s", cycleErr, strings.Join(reasons, "; "))
	}
	if res.Held {
		flags |= telemetry.FlagHeld
	}
	if res.SpeedSaturated {
		flags |= telemetry.FlagSpeedSaturated
	}
	if res.CurrentSaturated {
		flags |= telemetry.FlagCurrentSaturated
	}

	var writeErr error
	if !res.Held {
		writeErr = c.act.Write(res.Command)
		if writeErr != nil {
			if ok, n := c.writeLim.Allow(now); ok {
				logger.Error("motorctl: %s write: %v (suppressed %d)", c.act.Name(), writeErr, n)
			}
		}
	}
	if cycleErr != nil {
		if ok, n := c.faultLim.Allow(now); ok {
			logger.Warn("motorctl: %v; command held at %g (suppressed %d)", cycleErr, res.Command, n)
		}
	}

	rec := Record{
		TimestampMs: uint32(now.Sub(c.start) / time.Millisecond),
		Reference:   c.ref,
		Speed:       speed,
		Current:     current,
		Command:     res.Command,
		Flags:       flags,
	}
	dropped := !c.sinks.Emit(rec) && len(c.sinks) > 0

	c.mu.Lock()
	c.snap.Cycles++
	c.snap.Last = rec
	c.snap.SpeedOutput = res.SpeedOutput
	if cycleErr != nil {
		c.snap.Faults++
		c.snap.LastError = cycleErr.Error()
	}
	if writeErr != nil {
		c.snap.WriteErrors++
		c.snap.LastError = writeErr.Error()
	}
	if dropped {
		c.snap.Dropped++
	}
	c.mu.Unlock()

	if cycleErr != nil {
		return rec, cycleErr
	}
	if writeErr != nil {
		return rec, fmt.Errorf("actuator: %w", writeErr)
	}
	return rec, nil
}

// checkMeasurement возвращает причину неисправности или пустую строку.
func (c *Controller) checkMeasurement(name string, v float64, err error, limit float64) string {
	switch {
	case err != nil:
		return fmt.Sprintf("%s: %v", name, err)
	case math.IsNaN(v) || math.IsInf(v, 0):
		return fmt.Sprintf("%s: non-finite %v", name, v)
	case limit > 0 && math.Abs(v) > limit:
		return fmt.Sprintf("%s: %g out of range ±%g", name, v, limit)
	}
	return ""
}

// Run выполняет цикл с периодом Ts до отмены ctx. Цикл, не уложившийся в период,
// считается переполнением; пропущенные тики не догоняются.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.ts)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			_, _ = c.Step(now)
			if elapsed := time.Since(now); elapsed > c.ts {
				c.mu.Lock()
				c.snap.Overruns++
				c.mu.Unlock()
				if ok, n := c.overrunLim.Allow(now); ok {
					logger.Warn("motorctl: cycle overrun %v > %v (suppressed %d)", elapsed, c.ts, n)
				}
			}
		}
	}
}

// Snapshot возвращает копию текущего состояния.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Status форматирует состояние для консоли.
func (c *Controller) Status() string {
	s := c.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "motorctl  up %v  Ts=%v\n", time.Since(s.Started).Truncate(time.Second), c.ts)
	fmt.Fprintf(&b, "source    %s\nactuator  %s\n", c.src.Name(), c.act.Name())
	fmt.Fprintf(&b, "cycles %d  faults %d  write_errors %d  overruns %d  dropped %d\n",
		s.Cycles, s.Faults, s.WriteErrors, s.Overruns, s.Dropped)
	r := s.Last
	fmt.Fprintf(&b, "t=%dms  ref=%g  speed=%g  current=%g  speed_out=%g  command=%g\n",
		r.TimestampMs, r.Reference, r.Speed, r.Current, s.SpeedOutput, r.Command)
	if names := telemetry.FlagNames(r.Flags); len(names) > 0 {
		fmt.Fprintf(&b, "flags     %s\n", strings.Join(names, ","))
	}
	if s.LastError != "" {
		fmt.Fprintf(&b, "last error: %s\n", s.LastError)
	}
	return b.String()
}

// Close переводит привод в безопасное состояние, дописывает телеметрию и закрывает источник.
func (c *Controller) Close() error {
	var err error
	if c.act != nil {
		err = multierr.Append(err, c.act.Close())
	}
	err = multierr.Append(err, c.sinks.Close())
	if c.src != nil {
		err = multierr.Append(err, c.src.Close())
	}
	return err
}
