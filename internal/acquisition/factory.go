package acquisition

import (
	"fmt"
	"time"

	"github.com/shiwa/motorctl/internal/serialport"
	pkgconfig "github.com/shiwa/motorctl/pkg/config"
)

// injectedReadTimeout — таймаут чтения порта подстановки, чтобы Close не зависал на Read.
const injectedReadTimeout = 100 * time.Millisecond

// Open создаёт источник измерений из конфига. Для injected можно передать уже
// открытый порт (общий с телеметрией); nil — порт открывается здесь.
func Open(c pkgconfig.AcquisitionConfig, port serialport.Port) (Source, error) {
	switch c.Source {
	case pkgconfig.SourceSensor:
		return OpenSensor(c.I2CBus, SensorOptions{
			EncoderAddr:   c.EncoderAddr,
			EncoderMode:   c.EncoderMode,
			EncoderScale:  c.EncoderScale,
			CountsPerRev:  c.CountsPerRev,
			EstimatorSize: c.EstimatorSize,
			ADCAddr:       c.ADCAddr,
			CurrentScale:  c.CurrentScale,
			CurrentOffset: c.CurrentOffset,
		})
	case "", pkgconfig.SourceInjected:
		if port == nil {
			p, err := serialport.Open(serialport.Options{
				Driver:      c.Driver,
				Device:      c.Device,
				Baud:        c.Baud,
				ReadTimeout: injectedReadTimeout,
			})
			if err != nil {
				return nil, err
			}
			port = p
		}
		maxAge, err := sampleAge(c.MaxSampleAge)
		if err != nil {
			_ = port.Close()
			return nil, err
		}
		in, err := NewInjected(port.Name(), port, InjectedOptions{
			Format:  c.Format,
			MaxAge:  maxAge,
			IdleEOF: true,
		})
		if err != nil {
			_ = port.Close()
			return nil, err
		}
		return in, nil
	default:
		return nil, fmt.Errorf("unknown acquisition source: %s", c.Source)
	}
}

func sampleAge(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("acquisition: bad max_sample_age %q", s)
	}
	return d, nil
}
