// Package cascade — каскадный регулятор: внешний контур скорости задаёт
// уставку внутреннему контуру тока в пределах одного цикла.
package cascade

import (
	"errors"
	"fmt"
	"math"

	"github.com/shiwa/motorctl/internal/regulator"
)

// ErrMeasurementFault — нечисловое задание или измерение; команда цикла удерживается.
var ErrMeasurementFault = errors.New("cascade: measurement fault")

// Result — значения одного цикла (для телеметрии и диагностики).
type Result struct {
	SpeedError       float64
	SpeedOutput      float64 // уставка контура тока
	CurrentError     float64
	Command          float64
	SpeedSaturated   bool
	CurrentSaturated bool
	Held             bool // команда удержана с предыдущего цикла
}

// Loop владеет двумя регуляторами; использовать только из одного потока.
type Loop struct {
	speed   *regulator.PI
	current *regulator.PI
	command float64
}

// New собирает каскад из готовых регуляторов.
func New(speed, current *regulator.PI) (*Loop, error) {
	if speed == nil || current == nil {
		return nil, fmt.Errorf("%w: cascade needs both speed and current regulators", regulator.ErrConfig)
	}
	return &Loop{speed: speed, current: current}, nil
}

// NewFromParams создаёт оба регулятора; любая ошибка конфигурации фатальна.
func NewFromParams(speed, current regulator.Params) (*Loop, error) {
	sp, err := regulator.NewPI(speed)
	if err != nil {
		return nil, fmt.Errorf("speed loop: %w", err)
	}
	cur, err := regulator.NewPI(current)
	if err != nil {
		return nil, fmt.Errorf("current loop: %w", err)
	}
	return New(sp, cur)
}

// RunCycle выполняет один цикл: сначала контур скорости, затем контур тока
// с уставкой, равной выходу контура скорости этого же цикла.
// При нечисловом входе регуляторы не обновляются, возвращается прежняя команда.
func (l *Loop) RunCycle(reference, measuredSpeed, measuredCurrent float64) (Result, error) {
	if err := checkInputs(reference, measuredSpeed, measuredCurrent); err != nil {
		return Result{
			SpeedOutput: l.speed.Output(),
			Command:     l.command,
			Held:        true,
		}, err
	}

	var r Result
	r.SpeedError = reference - measuredSpeed
	r.SpeedOutput = l.speed.Update(r.SpeedError)
	r.SpeedSaturated = l.speed.Saturated()

	r.CurrentError = r.SpeedOutput - measuredCurrent
	r.Command = l.current.Update(r.CurrentError)
	r.CurrentSaturated = l.current.Saturated()

	l.command = r.Command
	return r, nil
}

// Command возвращает последнюю выданную команду.
func (l *Loop) Command() float64 {
	return l.command
}

// Speed возвращает регулятор скорости.
func (l *Loop) Speed() *regulator.PI {
	return l.speed
}

// Current возвращает регулятор тока.
func (l *Loop) Current() *regulator.PI {
	return l.current
}

// Reset обнуляет состояние обоих регуляторов и команду.
func (l *Loop) Reset() {
	l.speed.Reset()
	l.current.Reset()
	l.command = 0
}

func checkInputs(reference, speed, current float64) error {
	switch {
	case !finite(reference):
		return fmt.Errorf("%w: reference %v", ErrMeasurementFault, reference)
	case !finite(speed):
		return fmt.Errorf("%w: speed %v", ErrMeasurementFault, speed)
	case !finite(current):
		return fmt.Errorf("%w: current %v", ErrMeasurementFault, current)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
