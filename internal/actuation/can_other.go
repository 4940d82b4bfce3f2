//go:build !linux

package actuation

import (
	"context"
	"errors"
)

// CAN на этой платформе недоступен (нужен SocketCAN).
type CAN struct{}

// OpenCAN возвращает ошибку: SocketCAN есть только в Linux.
func OpenCAN(ctx context.Context, iface string, id uint32, m Mapping) (*CAN, error) {
	return nil, errors.New("can: SocketCAN is supported only on Linux")
}

func (c *CAN) Name() string            { return "can" }
func (c *CAN) Write(cmd float64) error { return errors.New("can: unsupported") }
func (c *CAN) Close() error            { return nil }
