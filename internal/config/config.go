package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shiwa/motorctl/internal/regulator"
	pkgconfig "github.com/shiwa/motorctl/pkg/config"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// ErrInvalid — конфиг не прошёл проверку.
var ErrInvalid = errors.New("config: invalid")

// Load читает конфиг из YAML, подставляет значения по умолчанию и проверяет его.
func Load(path string) (*pkgconfig.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse разбирает YAML конфиг поверх Default(): поле, не указанное в файле,
// сохраняет значение по умолчанию (в том числе булевы флаги).
func Parse(data []byte) (*pkgconfig.Config, error) {
	c := pkgconfig.Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	ApplyDefaults(c)
	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyDefaults заполняет незаданные поля значениями по умолчанию.
// Контур, не указанный в файле целиком, берётся из Default().
func ApplyDefaults(c *pkgconfig.Config) {
	d := pkgconfig.Default()

	ctl := &c.Controller
	if ctl.SamplePeriod == "" {
		ctl.SamplePeriod = d.Controller.SamplePeriod
	}
	if ctl.Speed.IsZero() {
		ctl.Speed = d.Controller.Speed
	}
	if ctl.Current.IsZero() {
		ctl.Current = d.Controller.Current
	}

	a := &c.Acquisition
	setString(&a.Source, d.Acquisition.Source)
	setString(&a.EncoderMode, d.Acquisition.EncoderMode)
	setString(&a.Device, d.Acquisition.Device)
	setString(&a.Driver, d.Acquisition.Driver)
	setString(&a.Format, d.Acquisition.Format)
	setString(&a.MaxSampleAge, d.Acquisition.MaxSampleAge)
	if a.EncoderAddr == 0 {
		a.EncoderAddr = d.Acquisition.EncoderAddr
	}
	if a.ADCAddr == 0 {
		a.ADCAddr = d.Acquisition.ADCAddr
	}
	if a.EncoderScale == 0 {
		a.EncoderScale = d.Acquisition.EncoderScale
	}
	if a.CurrentScale == 0 {
		a.CurrentScale = d.Acquisition.CurrentScale
	}
	if a.EstimatorSize == 0 {
		a.EstimatorSize = d.Acquisition.EstimatorSize
	}
	if a.Baud == 0 {
		a.Baud = d.Acquisition.Baud
	}

	act := &c.Actuation
	setString(&act.Driver, d.Actuation.Driver)
	setString(&act.Mapping, d.Actuation.Mapping)
	setString(&act.PWM1Pin, d.Actuation.PWM1Pin)
	setString(&act.PWM2Pin, d.Actuation.PWM2Pin)
	setString(&act.CANInterface, d.Actuation.CANInterface)
	if act.FrequencyHz == 0 {
		act.FrequencyHz = d.Actuation.FrequencyHz
	}
	if act.SupplyVoltage == 0 {
		act.SupplyVoltage = d.Actuation.SupplyVoltage
	}
	if act.CANID == 0 {
		act.CANID = d.Actuation.CANID
	}

	t := &c.Telemetry
	setString(&t.Device, d.Telemetry.Device)
	setString(&t.Driver, d.Telemetry.Driver)
	setString(&t.Format, d.Telemetry.Format)
	if t.Baud == 0 {
		t.Baud = d.Telemetry.Baud
	}
	if t.QueueSize == 0 {
		t.QueueSize = d.Telemetry.QueueSize
	}
	if t.Every == 0 {
		t.Every = d.Telemetry.Every
	}

	setString(&c.Console.ListenAddr, d.Console.ListenAddr)

	l := &c.Logging
	setString(&l.Level, d.Logging.Level)
	if l.MaxSizeMB == 0 {
		l.MaxSizeMB = d.Logging.MaxSizeMB
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = d.Logging.MaxBackups
	}
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

// SamplePeriod разбирает период дискретизации (Ts).
func SamplePeriod(c *pkgconfig.Config) (time.Duration, error) {
	ts, err := time.ParseDuration(c.Controller.SamplePeriod)
	if err != nil {
		return 0, fmt.Errorf("%w: sample_period %q: %v", ErrInvalid, c.Controller.SamplePeriod, err)
	}
	return ts, nil
}

// LoopParams переводит параметры контура в параметры регулятора.
func LoopParams(l pkgconfig.LoopConfig, ts time.Duration) regulator.Params {
	return regulator.Params{
		SamplePeriod: ts,
		Gain:         l.Gain,
		IntegralTime: l.IntegralTime,
		OutputMax:    l.OutputMax,
		OutputMin:    l.OutputMin,
	}
}

// Validate проверяет конфиг целиком и возвращает все найденные ошибки.
func Validate(c *pkgconfig.Config) error {
	var errs error
	add := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalid}, args...)...))
	}

	ts, err := SamplePeriod(c)
	if err != nil {
		errs = multierr.Append(errs, err)
	} else if ts <= 0 {
		// Ts == 0 допустим для регулятора, но не для периодического цикла.
		add("sample_period must be positive, got %v", ts)
	}
	if err := LoopParams(c.Controller.Speed, ts).Validate(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("controller.speed: %w", err))
	}
	if err := LoopParams(c.Controller.Current, ts).Validate(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("controller.current: %w", err))
	}
	if c.Controller.MaxAbsSpeed < 0 || c.Controller.MaxAbsCurrent < 0 {
		add("max_abs_speed/max_abs_current must not be negative")
	}

	a := c.Acquisition
	switch a.Source {
	case pkgconfig.SourceSensor:
		switch a.EncoderMode {
		case pkgconfig.EncoderSpeed:
		case pkgconfig.EncoderPosition:
			if a.CountsPerRev <= 0 {
				add("acquisition.counts_per_rev must be positive in position mode")
			}
			if a.EstimatorSize < 2 {
				add("acquisition.estimator_window must be >= 2")
			}
		default:
			add("acquisition.encoder_mode %q", a.EncoderMode)
		}
	case pkgconfig.SourceInjected:
		if err := checkFormat(a.Format); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("acquisition: %w", err))
		}
		if a.MaxSampleAge != "" {
			if d, err := time.ParseDuration(a.MaxSampleAge); err != nil || d < 0 {
				add("acquisition.max_sample_age %q", a.MaxSampleAge)
			}
		}
	default:
		add("acquisition.source %q (sensor, injected)", a.Source)
	}

	act := c.Actuation
	switch act.Driver {
	case pkgconfig.ActuatorPWM, pkgconfig.ActuatorCAN, pkgconfig.ActuatorNone:
	default:
		add("actuation.driver %q (pwm, can, none)", act.Driver)
	}
	switch act.Mapping {
	case pkgconfig.MappingSplit, pkgconfig.MappingDuty:
	case pkgconfig.MappingVoltage:
		if act.SupplyVoltage <= 0 {
			add("actuation.supply_voltage must be positive")
		}
	default:
		add("actuation.mapping %q (split, duty, voltage)", act.Mapping)
	}
	if act.FullScale < 0 {
		add("actuation.full_scale must not be negative")
	}
	if act.Driver == pkgconfig.ActuatorPWM && act.FrequencyHz <= 0 {
		add("actuation.pwm_frequency_hz must be positive")
	}

	if c.Telemetry.Enabled {
		if err := checkFormat(c.Telemetry.Format); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("telemetry: %w", err))
		}
		if c.Telemetry.QueueSize < 1 || c.Telemetry.Every < 1 {
			add("telemetry.queue_size and telemetry.every must be >= 1")
		}
	}

	if c.Realtime.Priority < 0 || c.Realtime.Priority > 99 {
		add("realtime.priority %d (0..99)", c.Realtime.Priority)
	}
	if c.Console.Enabled && c.Console.AuthorizedKeys == "" {
		add("console.authorized_keys required when console is enabled")
	}
	return errs
}

func checkFormat(f string) error {
	switch f {
	case pkgconfig.FormatText, pkgconfig.FormatFrame:
		return nil
	}
	return fmt.Errorf("%w: format %q (text, frame)", ErrInvalid, f)
}
