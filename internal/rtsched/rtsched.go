// Package rtsched — настройки процесса для периодического цикла регулятора:
// фиксация памяти и приоритет реального времени.
package rtsched

import (
	"errors"
	"fmt"
)

// ErrUnsupported — платформа не поддерживает настройку.
var ErrUnsupported = errors.New("rtsched: unsupported on this platform")

// MinPriority и MaxPriority — допустимый диапазон SCHED_FIFO.
const (
	MinPriority = 1
	MaxPriority = 99
)

func checkPriority(p int) error {
	if p < MinPriority || p > MaxPriority {
		return fmt.Errorf("rtsched: priority %d out of range %d..%d", p, MinPriority, MaxPriority)
	}
	return nil
}
