// Package logger — единый вывод логов motorctl с префиксом и учётом quiet.
// Бэкенд — zap; при заданном файле вывод дублируется в файл с ротацией (lumberjack).
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Quiet при true отключает информационные сообщения (Info, Debug); Warn и Error выводятся всегда.
var Quiet bool

// Options — параметры вывода логов
type Options struct {
	Level      string // debug, info, warn, error
	File       string // пусто — только stderr
	MaxSizeMB  int
	MaxBackups int
}

var (
	mu    sync.RWMutex
	sugar = newSugar(zapcore.InfoLevel, zapcore.AddSync(os.Stderr))
)

// Init перенастраивает логгер; вызывается один раз при старте.
func Init(o Options) error {
	level, err := ParseLevel(o.Level)
	if err != nil {
		return err
	}
	ws := zapcore.AddSync(os.Stderr)
	if o.File != "" {
		ws = zapcore.NewMultiWriteSyncer(ws, zapcore.AddSync(&lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    o.MaxSizeMB,
			MaxBackups: o.MaxBackups,
		}))
	}
	mu.Lock()
	sugar = newSugar(level, ws)
	mu.Unlock()
	return nil
}

// ParseLevel разбирает уровень логирования; пусто — info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

func newSugar(level zapcore.Level, ws zapcore.WriteSyncer) *zap.SugaredLogger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), ws, level)
	return zap.New(core).Named("motorctl").Sugar()
}

// L возвращает текущий zap логгер (для компонентов со структурными полями).
func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Debug выводит отладочное сообщение, если Quiet == false.
func Debug(format string, args ...interface{}) {
	if Quiet {
		return
	}
	L().Debugf(format, args...)
}

// Info выводит сообщение, если Quiet == false.
func Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	L().Infof(format, args...)
}

// Warn выводит предупреждение всегда.
func Warn(format string, args ...interface{}) {
	L().Warnf(format, args...)
}

// Error выводит сообщение об ошибке всегда.
func Error(format string, args ...interface{}) {
	L().Errorf(format, args...)
}

// Sync сбрасывает буферы логгера.
func Sync() {
	_ = L().Sync()
}

// Limiter ограничивает частоту повторяющихся сообщений (ошибки каждого цикла).
type Limiter struct {
	Every      time.Duration
	last       time.Time
	suppressed int
}

// Allow возвращает true, если сообщение можно вывести сейчас, и число
// подавленных с прошлого вывода сообщений.
func (l *Limiter) Allow(now time.Time) (bool, int) {
	if !l.last.IsZero() && now.Sub(l.last) < l.Every {
		l.suppressed++
		return false, 0
	}
	n := l.suppressed
	l.last = now
	l.suppressed = 0
	return true, n
}
