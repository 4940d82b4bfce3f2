package regulator

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrConfig — неверные параметры регулятора (границы, Tr, нечисловые значения).
var ErrConfig = errors.New("regulator: invalid configuration")

// Regulator — общий интерфейс дискретного регулятора (один шаг за период дискретизации).
type Regulator interface {
	Update(e float64) float64
	Output() float64
	Reset()
}

// Params — параметры PI регулятора; задаются один раз при создании.
type Params struct {
	SamplePeriod time.Duration // Ts
	Gain         float64       // Kr, знак зависит от полярности привода
	IntegralTime float64       // Tr, секунды
	OutputMax    float64
	OutputMin    float64
}

// Validate проверяет параметры; ошибка оборачивает ErrConfig.
func (p Params) Validate() error {
	switch {
	case !finite(p.Gain):
		return fmt.Errorf("%w: gain %v", ErrConfig, p.Gain)
	case !finite(p.IntegralTime):
		return fmt.Errorf("%w: integral time %v", ErrConfig, p.IntegralTime)
	case p.IntegralTime == 0:
		return fmt.Errorf("%w: integral time must be non-zero", ErrConfig)
	case p.SamplePeriod < 0:
		return fmt.Errorf("%w: negative sample period %v", ErrConfig, p.SamplePeriod)
	case !finite(p.OutputMin) || !finite(p.OutputMax):
		return fmt.Errorf("%w: output limits [%v, %v]", ErrConfig, p.OutputMin, p.OutputMax)
	case p.OutputMin > p.OutputMax:
		return fmt.Errorf("%w: output min %v > max %v", ErrConfig, p.OutputMin, p.OutputMax)
	}
	return nil
}

// PI — инкрементальный (рекуррентный) PI регулятор с ограничением выхода.
//
//	y[k] = clamp(y[k-1] + Kr*(e[k]-e[k-1]) + Kr*Ts/Tr*e[k], min, max)
//
// В y[k-1] хранится уже ограниченное значение, поэтому интегральная часть
// не накапливается за границей насыщения (anti-windup).
// При Ts == 0 интегральный шаг равен нулю.
type PI struct {
	params    Params
	ki        float64 // Kr*Ts/Tr
	prevError float64
	output    float64
	saturated bool
}

// NewPI создаёт регулятор с нулевыми выходом и предыдущей ошибкой.
func NewPI(p Params) (*PI, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &PI{
		params: p,
		ki:     p.Gain * p.SamplePeriod.Seconds() / p.IntegralTime,
	}, nil
}

// Update выполняет один шаг регулятора и возвращает новый выход.
// Нечисловая ошибка (NaN/Inf) в состояние не попадает: возвращается прежний выход,
// о неисправности сообщает вызывающий код.
func (pi *PI) Update(e float64) float64 {
	if !finite(e) {
		return pi.output
	}
	raw := pi.output + pi.params.Gain*(e-pi.prevError) + pi.ki*e
	pi.output = clamp(raw, pi.params.OutputMin, pi.params.OutputMax)
	pi.saturated = pi.output != raw
	pi.prevError = e
	return pi.output
}

// Output возвращает последний (ограниченный) выход y.
func (pi *PI) Output() float64 {
	return pi.output
}

// PreviousError возвращает ошибку предыдущего шага.
func (pi *PI) PreviousError() float64 {
	return pi.prevError
}

// Saturated — true, если последний шаг был ограничен границей.
func (pi *PI) Saturated() bool {
	return pi.saturated
}

// Params возвращает параметры регулятора.
func (pi *PI) Params() Params {
	return pi.params
}

// Reset обнуляет выход и предыдущую ошибку; параметры не меняются.
func (pi *PI) Reset() {
	pi.output = 0
	pi.prevError = 0
	pi.saturated = false
}

func (pi *PI) String() string {
	return fmt.Sprintf("PI(Kr=%g Tr=%g Ts=%v out=[%g, %g])",
		pi.params.Gain, pi.params.IntegralTime, pi.params.SamplePeriod, pi.params.OutputMin, pi.params.OutputMax)
}

func clamp(v, lo, hi float64) float64 {
	if v > hi {
		return hi
	}
	if v < lo {
		return lo
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

var _ Regulator = (*PI)(nil)
