package motorctl

import (
	"context"
	"errors"

	"github.com/shiwa/motorctl/internal/console"
	"github.com/shiwa/motorctl/internal/logger"
	"github.com/shiwa/motorctl/internal/rtsched"
	pkgconfig "github.com/shiwa/motorctl/pkg/config"
)

// RunDaemon создаёт регулятор по cfg и выполняет цикл до отмены ctx.
// Используется из cmd/motorctl и из Beat (libbeat). Отмена ctx — штатное завершение.
func RunDaemon(ctx context.Context, cfg *pkgconfig.Config, quiet bool, opts ...Option) error {
	logger.Quiet = quiet
	if cfg == nil {
		cfg = pkgconfig.Default()
	}
	if cfg.Realtime.LockMemory {
		if err := rtsched.LockMemory(); err != nil {
			logger.Warn("motorctl: %v", err)
		}
	}

	ctl, err := New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := ctl.Close(); err != nil {
			logger.Error("motorctl: close: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.Console.Enabled {
		srv, err := console.NewServer(cfg.Console.HostKey, cfg.Console.AuthorizedKeys, ctl.Status)
		if err != nil {
			return err
		}
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Console.ListenAddr); err != nil {
				logger.Error("%v", err)
			}
		}()
	}

	done := make(chan error, 1)
	go func() {
		// Приоритет выставляется потоку, на котором выполняется цикл.
		if p := cfg.Realtime.Priority; p > 0 {
			if err := rtsched.SetRealtime(p); err != nil {
				logger.Warn("motorctl: %v", err)
			}
		}
		done <- ctl.Run(ctx)
	}()
	err = <-done

	s := ctl.Snapshot()
	logger.Info("motorctl: stopped after %d cycles (faults %d, write errors %d, overruns %d, dropped %d)",
		s.Cycles, s.Faults, s.WriteErrors, s.Overruns, s.Dropped)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
