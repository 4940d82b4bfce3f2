// Package actuation передаёт команду регулятора тока на привод двигателя.
package actuation

import (
	"errors"
	"fmt"
	"math"

	pkgconfig "github.com/shiwa/motorctl/pkg/config"
)

// ErrInvalidCommand — нечисловая команда не передаётся на привод.
var ErrInvalidCommand = errors.New("actuation: non-finite command")

// Actuator — исполнительное устройство.
type Actuator interface {
	Name() string
	// Write применяет команду регулятора тока
	Write(cmd float64) error
	// Close переводит привод в безопасное состояние (нулевое заполнение) и освобождает ресурсы
	Close() error
}

// Drive — заполнение двух каналов, 0..1. В режиме duty используется только A.
type Drive struct {
	A, B float64
}

// Mapping — отображение команды в заполнение каналов.
type Mapping struct {
	Mode      string
	Min, Max  float64 // диапазон выхода регулятора тока
	FullScale float64 // |команда|, соответствующая 100%; 0 — max(|Min|, |Max|)
	Supply    float64 // напряжение питания для режима voltage
}

// NewMapping создаёт отображение по конфигу и диапазону выхода регулятора тока.
func NewMapping(c pkgconfig.ActuationConfig, min, max float64) (Mapping, error) {
	m := Mapping{
		Mode:      c.Mapping,
		Min:       min,
		Max:       max,
		FullScale: c.FullScale,
		Supply:    c.SupplyVoltage,
	}
	if m.Mode == "" {
		m.Mode = pkgconfig.MappingSplit
	}
	if m.FullScale == 0 {
		m.FullScale = math.Max(math.Abs(min), math.Abs(max))
	}
	switch m.Mode {
	case pkgconfig.MappingSplit:
		if m.FullScale <= 0 {
			return m, fmt.Errorf("actuation: zero full scale for split mapping")
		}
	case pkgconfig.MappingDuty:
		if max <= min {
			return m, fmt.Errorf("actuation: empty output range [%v, %v] for duty mapping", min, max)
		}
	case pkgconfig.MappingVoltage:
		if m.Supply <= 0 {
			return m, fmt.Errorf("actuation: supply voltage must be positive")
		}
	default:
		return m, fmt.Errorf("actuation: unknown mapping %q", m.Mode)
	}
	return m, nil
}

// Apply переводит команду в заполнение каналов. Положительная команда идёт в канал A,
// отрицательная в канал B (PWM1 = y, PWM2 = -y с отсечкой отрицательной части).
func (m Mapping) Apply(cmd float64) (Drive, error) {
	if math.IsNaN(cmd) || math.IsInf(cmd, 0) {
		return Drive{}, ErrInvalidCommand
	}
	switch m.Mode {
	case pkgconfig.MappingDuty:
		return Drive{A: unit((cmd - m.Min) / (m.Max - m.Min))}, nil
	case pkgconfig.MappingVoltage:
		return split(cmd / m.Supply), nil
	default:
		return split(cmd / m.FullScale), nil
	}
}

func split(v float64) Drive {
	if v >= 0 {
		return Drive{A: unit(v)}
	}
	return Drive{B: unit(-v)}
}

func unit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
