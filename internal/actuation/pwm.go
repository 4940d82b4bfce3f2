package actuation

import (
	"fmt"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// PWM — привод через два аппаратных канала ШИМ (мост H).
type PWM struct {
	pin1, pin2 gpio.PinOut
	freq       physic.Frequency
	mapping    Mapping
	last       Drive
}

// OpenPWM инициализирует periph и находит пины по имени (например "GPIO12").
// pin2 пустой — один канал (режим duty).
func OpenPWM(pin1, pin2 string, freqHz int, m Mapping) (*PWM, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	p1 := gpioreg.ByName(pin1)
	if p1 == nil {
		return nil, fmt.Errorf("pwm: pin %q not found", pin1)
	}
	var p2 gpio.PinOut
	if pin2 != "" {
		p := gpioreg.ByName(pin2)
		if p == nil {
			return nil, fmt.Errorf("pwm: pin %q not found", pin2)
		}
		p2 = p
	}
	return NewPWM(p1, p2, physic.Frequency(freqHz)*physic.Hertz, m)
}

// NewPWM создаёт привод на заданных пинах и выставляет нулевое заполнение.
func NewPWM(pin1, pin2 gpio.PinOut, freq physic.Frequency, m Mapping) (*PWM, error) {
	p := &PWM{pin1: pin1, pin2: pin2, freq: freq, mapping: m}
	if err := p.set(Drive{}); err != nil {
		return nil, err
	}
	return p, nil
}

// Name возвращает имя привода
func (p *PWM) Name() string {
	if p.pin2 == nil {
		return fmt.Sprintf("pwm:%s", p.pin1)
	}
	return fmt.Sprintf("pwm:%s,%s", p.pin1, p.pin2)
}

// Write применяет команду регулятора тока
func (p *PWM) Write(cmd float64) error {
	d, err := p.mapping.Apply(cmd)
	if err != nil {
		return err
	}
	return p.set(d)
}

// Last возвращает последнее выставленное заполнение.
func (p *PWM) Last() Drive {
	return p.last
}

func (p *PWM) set(d Drive) error {
	err := p.pin1.PWM(toDuty(d.A), p.freq)
	if p.pin2 != nil {
		err = multierr.Append(err, p.pin2.PWM(toDuty(d.B), p.freq))
	}
	if err != nil {
		return fmt.Errorf("pwm write: %w", err)
	}
	p.last = d
	return nil
}

// Close выставляет нулевое заполнение и останавливает пины.
func (p *PWM) Close() error {
	err := p.set(Drive{})
	err = multierr.Append(err, p.pin1.Halt())
	if p.pin2 != nil {
		err = multierr.Append(err, p.pin2.Halt())
	}
	return err
}

func toDuty(v float64) gpio.Duty {
	return gpio.Duty(unit(v)*float64(gpio.DutyMax) + 0.5)
}
