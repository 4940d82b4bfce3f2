// Package serialport открывает последовательный порт телеметрии и подстановки значений.
// Драйверы: tarm (github.com/tarm/serial, по умолчанию) и bugst (go.bug.st/serial).
package serialport

import (
	"fmt"
	"io"
	"time"

	tarm "github.com/tarm/serial"
	bugst "go.bug.st/serial"
)

// Драйверы
const (
	DriverTarm  = "tarm"
	DriverBugst = "bugst"
)

// DefaultBaud — как BAUD в прошивке
const DefaultBaud = 115200

// Options — параметры открытия порта
type Options struct {
	Driver      string
	Device      string
	Baud        int
	ReadTimeout time.Duration // 0 — блокирующее чтение
}

// Port — открытый порт
type Port interface {
	io.ReadWriteCloser
	Name() string
}

type port struct {
	io.ReadWriteCloser
	name string
}

func (p *port) Name() string { return p.name }

// Open открывает последовательный порт выбранным драйвером
func Open(o Options) (Port, error) {
	if o.Device == "" {
		return nil, fmt.Errorf("serial: device required")
	}
	if o.Baud == 0 {
		o.Baud = DefaultBaud
	}
	switch o.Driver {
	case "", DriverTarm:
		c := &tarm.Config{
			Name:        o.Device,
			Baud:        o.Baud,
			ReadTimeout: o.ReadTimeout,
		}
		p, err := tarm.OpenPort(c)
		if err != nil {
			return nil, fmt.Errorf("serial open %s: %w", o.Device, err)
		}
		return &port{ReadWriteCloser: p, name: o.Device}, nil
	case DriverBugst:
		p, err := bugst.Open(o.Device, &bugst.Mode{BaudRate: o.Baud})
		if err != nil {
			return nil, fmt.Errorf("serial open %s: %w", o.Device, err)
		}
		if o.ReadTimeout > 0 {
			if err := p.SetReadTimeout(o.ReadTimeout); err != nil {
				_ = p.Close()
				return nil, fmt.Errorf("serial %s read timeout: %w", o.Device, err)
			}
		}
		return &port{ReadWriteCloser: p, name: o.Device}, nil
	default:
		return nil, fmt.Errorf("serial: unknown driver %q", o.Driver)
	}
}

// List возвращает список доступных последовательных портов.
func List() ([]string, error) {
	return bugst.GetPortsList()
}
