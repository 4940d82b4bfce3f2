//go:build linux

package actuation

import (
	"context"
	"fmt"
	"net"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// CAN — привод с драйвером на шине CAN (SocketCAN).
type CAN struct {
	iface   string
	id      uint32
	mapping Mapping
	conn    net.Conn
	tx      *socketcan.Transmitter
}

// OpenCAN подключается к интерфейсу SocketCAN (например "can0").
func OpenCAN(ctx context.Context, iface string, id uint32, m Mapping) (*CAN, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("can dial %s: %w", iface, err)
	}
	return &CAN{
		iface:   iface,
		id:      id,
		mapping: m,
		conn:    conn,
		tx:      socketcan.NewTransmitter(conn),
	}, nil
}

// Name возвращает имя привода
func (c *CAN) Name() string {
	return fmt.Sprintf("can:%s#%03X", c.iface, c.id)
}

// Write отправляет кадр команды
func (c *CAN) Write(cmd float64) error {
	d, err := c.mapping.Apply(cmd)
	if err != nil {
		return err
	}
	return c.send(CommandFrame(c.id, cmd, d))
}

func (c *CAN) send(f can.Frame) error {
	ctx, cancel := context.WithTimeout(context.Background(), canWriteTimeout)
	defer cancel()
	if err := c.tx.TransmitFrame(ctx, f); err != nil {
		return fmt.Errorf("can write %s: %w", c.iface, err)
	}
	return nil
}

// Close отправляет нулевую команду и закрывает сокет.
func (c *CAN) Close() error {
	err := c.send(CommandFrame(c.id, 0, Drive{}))
	if cerr := c.tx.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
