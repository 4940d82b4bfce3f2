package actuation

import (
	"context"
	"fmt"

	pkgconfig "github.com/shiwa/motorctl/pkg/config"
)

// Open создаёт привод из конфига; min/max — диапазон выхода регулятора тока.
func Open(ctx context.Context, c pkgconfig.ActuationConfig, min, max float64) (Actuator, error) {
	m, err := NewMapping(c, min, max)
	if err != nil {
		return nil, err
	}
	switch c.Driver {
	case "", pkgconfig.ActuatorPWM:
		pin2 := c.PWM2Pin
		if m.Mode == pkgconfig.MappingDuty {
			pin2 = ""
		}
		p, err := OpenPWM(c.PWM1Pin, pin2, c.FrequencyHz, m)
		if err != nil {
			return nil, err
		}
		return p, nil
	case pkgconfig.ActuatorCAN:
		cn, err := OpenCAN(ctx, c.CANInterface, c.CANID, m)
		if err != nil {
			return nil, err
		}
		return cn, nil
	case pkgconfig.ActuatorNone:
		return NewDry(m), nil
	default:
		return nil, fmt.Errorf("unknown actuation driver: %s", c.Driver)
	}
}
