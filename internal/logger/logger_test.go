package logger

import (
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLimiter(t *testing.T) {
	l := Limiter{Every: time.Second}
	t0 := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	if ok, n := l.Allow(t0); !ok || n != 0 {
		t.Fatalf("первое сообщение: ok=%v n=%d", ok, n)
	}
	for i := 1; i <= 3; i++ {
		if ok, _ := l.Allow(t0.Add(time.Duration(i) * 100 * time.Millisecond)); ok {
			t.Fatalf("сообщение %d внутри интервала не должно проходить", i)
		}
	}
	ok, n := l.Allow(t0.Add(time.Second))
	if !ok || n != 3 {
		t.Errorf("после интервала: ok=%v подавлено=%d, ожидали true и 3", ok, n)
	}
}

func TestInit_BadLevel(t *testing.T) {
	if err := Init(Options{Level: "loud"}); err == nil {
		t.Error("ожидали ошибку для неизвестного уровня")
	}
	if err := Init(Options{Level: "debug"}); err != nil {
		t.Errorf("Init(debug): %v", err)
	}
}
