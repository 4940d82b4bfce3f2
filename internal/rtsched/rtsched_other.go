//go:build !linux

package rtsched

// LockMemory — на не-Linux не поддерживается.
func LockMemory() error {
	return ErrUnsupported
}

// SetRealtime — на не-Linux не поддерживается.
func SetRealtime(priority int) error {
	if err := checkPriority(priority); err != nil {
		return err
	}
	return ErrUnsupported
}
