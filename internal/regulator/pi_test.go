package regulator

import (
	"errors"
	"math"
	"testing"
	"time"

	"go.einride.tech/pid"
)

func testParams() Params {
	return Params{
		SamplePeriod: time.Second,
		Gain:         2.0,
		IntegralTime: 1.0,
		OutputMax:    10,
		OutputMin:    -10,
	}
}

func mustPI(t *testing.T, p Params) *PI {
	t.Helper()
	pi, err := NewPI(p)
	if err != nil {
		t.Fatalf("NewPI(%+v): %v", p, err)
	}
	return pi
}

func TestNewPI_Validation(t *testing.T) {
	base := testParams()
	tests := []struct {
		name   string
		mutate func(p *Params)
	}{
		{"min > max", func(p *Params) { p.OutputMin, p.OutputMax = 5, -5 }},
		{"zero integral time", func(p *Params) { p.IntegralTime = 0 }},
		{"NaN gain", func(p *Params) { p.Gain = math.NaN() }},
		{"Inf gain", func(p *Params) { p.Gain = math.Inf(1) }},
		{"Inf integral time", func(p *Params) { p.IntegralTime = math.Inf(-1) }},
		{"NaN limit", func(p *Params) { p.OutputMax = math.NaN() }},
		{"negative sample period", func(p *Params) { p.SamplePeriod = -time.Millisecond }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			pi, err := NewPI(p)
			if err == nil {
				t.Fatalf("ожидали ошибку конфигурации, получили %v", pi)
			}
			if !errors.Is(err, ErrConfig) {
				t.Errorf("ошибка должна оборачивать ErrConfig: %v", err)
			}
		})
	}

	t.Run("zero sample period is legal", func(t *testing.T) {
		p := base
		p.SamplePeriod = 0
		if _, err := NewPI(p); err != nil {
			t.Errorf("Ts=0 допустим, получили %v", err)
		}
	})

	t.Run("equal bounds are legal", func(t *testing.T) {
		p := base
		p.OutputMin, p.OutputMax = 3, 3
		pi := mustPI(t, p)
		if got := pi.Update(100); got != 3 {
			t.Errorf("Update при min==max: получили %v, ожидали 3", got)
		}
	})
}

func TestPI_ConstantErrorSequence(t *testing.T) {
	pi := mustPI(t, testParams())
	want := []float64{4, 6, 8}
	for i, w := range want {
		if got := pi.Update(1); got != w {
			t.Errorf("шаг %d: получили %v, ожидали %v", i+1, got, w)
		}
		if pi.Saturated() {
			t.Errorf("шаг %d: не ожидали насыщения", i+1)
		}
	}
	if pi.PreviousError() != 1 {
		t.Errorf("PreviousError = %v, ожидали 1", pi.PreviousError())
	}
}

func TestPI_Saturation(t *testing.T) {
	pi := mustPI(t, testParams())
	for i := 0; i < 2; i++ {
		if got := pi.Update(10); got != 10 {
			t.Errorf("шаг %d: получили %v, ожидали 10", i+1, got)
		}
		if !pi.Saturated() {
			t.Errorf("шаг %d: ожидали насыщение", i+1)
		}
		if pi.PreviousError() != 10 {
			t.Errorf("шаг %d: PreviousError = %v, ожидали 10", i+1, pi.PreviousError())
		}
	}
}

func TestPI_OutputWithinBounds(t *testing.T) {
	p := testParams()
	p.OutputMin, p.OutputMax = -1.5, 2.5
	pi := mustPI(t, p)
	errs := []float64{0, 100, -100, 3, -0.1, 1e9, -1e9, 0.5, 0, 42, -7}
	for i := 0; i < 200; i++ {
		e := errs[i%len(errs)] * float64(i%7-3)
		out := pi.Update(e)
		if out < p.OutputMin || out > p.OutputMax {
			t.Fatalf("шаг %d: выход %v вне [%v, %v]", i, out, p.OutputMin, p.OutputMax)
		}
		if out != pi.Output() {
			t.Fatalf("шаг %d: Update вернул %v, Output() = %v", i, out, pi.Output())
		}
	}
}

func TestPI_Equilibrium(t *testing.T) {
	pi := mustPI(t, testParams())
	for i := 0; i < 50; i++ {
		if got := pi.Update(0); got != 0 {
			t.Fatalf("шаг %d: при нулевой ошибке выход должен оставаться 0, получили %v", i, got)
		}
	}
}

func TestPI_MonotonicApproachToSaturation(t *testing.T) {
	p := testParams()
	p.Gain = 0.5
	pi := mustPI(t, p)
	prev := pi.Output()
	reached := false
	for i := 0; i < 100; i++ {
		out := pi.Update(1)
		if out < prev {
			t.Fatalf("шаг %d: выход уменьшился %v -> %v при постоянной ошибке", i, prev, out)
		}
		if reached && out != p.OutputMax {
			t.Fatalf("шаг %d: после насыщения выход ушёл с границы: %v", i, out)
		}
		if out == p.OutputMax {
			reached = true
		}
		prev = out
	}
	if !reached {
		t.Errorf("выход не достиг OutputMax=%v, последний %v", p.OutputMax, prev)
	}
}

func TestPI_AntiWindupRecovery(t *testing.T) {
	pi := mustPI(t, testParams())
	for i := 0; i < 20; i++ {
		pi.Update(10)
	}
	if pi.Output() != 10 {
		t.Fatalf("ожидали насыщение на 10, получили %v", pi.Output())
	}
	// Смена знака ошибки: выход должен уйти с границы на первом же шаге.
	out := pi.Update(-1)
	if out >= 10 {
		t.Errorf("после смены знака ошибки выход не уменьшился: %v", out)
	}
}

func TestPI_NonFiniteErrorIgnored(t *testing.T) {
	pi := mustPI(t, testParams())
	pi.Update(1)
	before, prevErr := pi.Output(), pi.PreviousError()
	for _, e := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if got := pi.Update(e); got != before {
			t.Errorf("Update(%v): получили %v, ожидали удержание %v", e, got, before)
		}
	}
	if pi.PreviousError() != prevErr {
		t.Errorf("PreviousError изменился: %v -> %v", prevErr, pi.PreviousError())
	}
}

func TestPI_ZeroSamplePeriod(t *testing.T) {
	p := testParams()
	p.SamplePeriod = 0
	pi := mustPI(t, p)
	// Без интегральной части: y = Kr*e при старте из нуля, далее не растёт.
	for i := 0; i < 5; i++ {
		if got := pi.Update(1); got != 2 {
			t.Errorf("шаг %d: получили %v, ожидали 2", i+1, got)
		}
	}
}

func TestPI_Reset(t *testing.T) {
	pi := mustPI(t, testParams())
	pi.Update(10)
	pi.Reset()
	if pi.Output() != 0 || pi.PreviousError() != 0 || pi.Saturated() {
		t.Errorf("после Reset состояние не обнулено: out=%v prev=%v sat=%v",
			pi.Output(), pi.PreviousError(), pi.Saturated())
	}
	if got := pi.Update(1); got != 4 {
		t.Errorf("после Reset Update(1): получили %v, ожидали 4", got)
	}
}

// Без насыщения рекуррентная форма совпадает с позиционной PI:
// y[k] = Kr*e[k] + Kr/Tr * sum(e*Ts).
func TestPI_MatchesPositionalForm(t *testing.T) {
	p := Params{
		SamplePeriod: 10 * time.Millisecond,
		Gain:         3.2593,
		IntegralTime: 4.6136,
		OutputMax:    1e6,
		OutputMin:    -1e6,
	}
	pi := mustPI(t, p)
	ref := pid.Controller{
		Config: pid.ControllerConfig{
			ProportionalGain: p.Gain,
			IntegralGain:     p.Gain / p.IntegralTime,
		},
	}
	errs := []float64{1, 0.5, -0.2, 3, 3, -7, 0, 0.01, 12.5, -4}
	for i, e := range errs {
		got := pi.Update(e)
		ref.Update(pid.ControllerInput{
			ReferenceSignal:  e,
			ActualSignal:     0,
			SamplingInterval: p.SamplePeriod,
		})
		if want := ref.State.ControlSignal; math.Abs(got-want) > 1e-9 {
			t.Errorf("шаг %d: рекуррентная форма %v, позиционная %v", i+1, got, want)
		}
	}
}
