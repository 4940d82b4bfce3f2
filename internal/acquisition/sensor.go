package acquisition

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/shiwa/motorctl/internal/estimator"
	pkgconfig "github.com/shiwa/motorctl/pkg/config"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Регистры ADS1115
const (
	adsRegConversion = 0x00
	adsRegConfig     = 0x01
	// AIN0-GND, PGA ±4.096 В, непрерывное преобразование, 860 SPS, компаратор выключен
	adsConfigHi  = 0x42
	adsConfigLo  = 0xE3
	adsFullScale = 4.096
)

// Sensor — измерения с датчиков по I2C: энкодер (ведомый контроллер, 4 байта)
// и АЦП ADS1115 на шунте тока.
type Sensor struct {
	bus     i2c.Bus
	closer  func() error
	encoder i2c.Dev
	adc     i2c.Dev

	mode         string
	encoderScale float64
	est          *estimator.LinReg
	lastRead     time.Time
	now          func() time.Time

	currentScale  float64
	currentOffset float64
}

// SensorOptions — параметры датчиков.
type SensorOptions struct {
	EncoderAddr   uint16
	EncoderMode   string // speed | position
	EncoderScale  float64
	CountsPerRev  float64
	EstimatorSize int
	ADCAddr       uint16
	CurrentScale  float64 // А/В
	CurrentOffset float64 // В
}

// OpenSensor инициализирует periph и открывает шину I2C (пусто — первая доступная).
func OpenSensor(busName string, o SensorOptions) (*Sensor, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	b, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("i2c open %q: %w", busName, err)
	}
	s, err := NewSensor(b, o)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	s.closer = b.Close
	return s, nil
}

// NewSensor создаёт источник на уже открытой шине и настраивает АЦП.
func NewSensor(bus i2c.Bus, o SensorOptions) (*Sensor, error) {
	s := &Sensor{
		bus:           bus,
		encoder:       i2c.Dev{Bus: bus, Addr: o.EncoderAddr},
		adc:           i2c.Dev{Bus: bus, Addr: o.ADCAddr},
		mode:          o.EncoderMode,
		encoderScale:  o.EncoderScale,
		currentScale:  o.CurrentScale,
		currentOffset: o.CurrentOffset,
		now:           time.Now,
	}
	if s.encoderScale == 0 {
		s.encoderScale = 1
	}
	if s.currentScale == 0 {
		s.currentScale = 1
	}
	switch s.mode {
	case "", pkgconfig.EncoderSpeed:
		s.mode = pkgconfig.EncoderSpeed
	case pkgconfig.EncoderPosition:
		if o.CountsPerRev <= 0 {
			return nil, fmt.Errorf("sensor: counts_per_rev required in position mode")
		}
		s.est = estimator.NewLinReg(o.EstimatorSize, o.CountsPerRev)
	default:
		return nil, fmt.Errorf("sensor: unknown encoder mode %q", s.mode)
	}
	if err := s.adc.Tx([]byte{adsRegConfig, adsConfigHi, adsConfigLo}, nil); err != nil {
		return nil, fmt.Errorf("ads1115 config: %w", err)
	}
	return s, nil
}

// Name возвращает имя источника
func (s *Sensor) Name() string {
	return fmt.Sprintf("sensor:%s", s.bus)
}

// ReadCurrent читает регистр преобразования АЦП и переводит напряжение шунта в ток.
func (s *Sensor) ReadCurrent() (float64, error) {
	var buf [2]byte
	if err := s.adc.Tx([]byte{adsRegConversion}, buf[:]); err != nil {
		return 0, fmt.Errorf("ads1115 read: %w", err)
	}
	raw := int16(binary.BigEndian.Uint16(buf[:]))
	volts := float64(raw) * adsFullScale / 32768
	return (volts - s.currentOffset) * s.currentScale, nil
}

// ReadSpeed читает 4 байта (int32 LE) с энкодера. В режиме position значение —
// накопленные отсчёты, скорость оценивается линейной регрессией по окну.
func (s *Sensor) ReadSpeed() (float64, error) {
	var buf [4]byte
	if err := s.encoder.Tx(nil, buf[:]); err != nil {
		return 0, fmt.Errorf("encoder read: %w", err)
	}
	v := float64(int32(binary.LittleEndian.Uint32(buf[:]))) * s.encoderScale
	if s.est == nil {
		return v, nil
	}
	now := s.now()
	var dt time.Duration
	if !s.lastRead.IsZero() {
		dt = now.Sub(s.lastRead)
	}
	s.lastRead = now
	speed, ok := s.est.Update(v, dt)
	if !ok {
		return 0, ErrNoSample
	}
	return speed, nil
}

// Close закрывает шину, если она открыта через OpenSensor.
func (s *Sensor) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
