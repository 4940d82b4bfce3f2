package serialport

import (
	"path/filepath"
	"testing"
)

func TestOpen_Errors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "ttyNONE")
	tests := []struct {
		name string
		o    Options
	}{
		{"no device", Options{}},
		{"unknown driver", Options{Driver: "ftdi", Device: missing}},
		{"tarm missing device", Options{Driver: DriverTarm, Device: missing}},
		{"bugst missing device", Options{Driver: DriverBugst, Device: missing}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Open(tt.o)
			if err == nil {
				p.Close()
				t.Fatalf("Open(%+v): ожидали ошибку", tt.o)
			}
		})
	}
}
