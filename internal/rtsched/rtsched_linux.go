//go:build linux

package rtsched

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// LockMemory фиксирует текущие и будущие страницы процесса в памяти (mlockall).
// Требует CAP_IPC_LOCK или достаточного RLIMIT_MEMLOCK.
func LockMemory() error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return fmt.Errorf("mlockall: %w", err)
	}
	return nil
}

// SetRealtime закрепляет вызывающую горутину за потоком ОС и переводит поток
// в SCHED_FIFO с заданным приоритетом. Требует CAP_SYS_NICE или root.
// Поток остаётся закреплённым до завершения горутины.
func SetRealtime(priority int) error {
	if err := checkPriority(priority); err != nil {
		return err
	}
	runtime.LockOSThread()
	attr := &unix.SchedAttr{
		Size:     uint32(unsafe.Sizeof(unix.SchedAttr{})),
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(unix.Gettid(), attr, 0); err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("sched_setattr SCHED_FIFO %d: %w", priority, err)
	}
	return nil
}
