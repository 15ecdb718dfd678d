package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Run is the process entrypoint: load config, wire, serve, exit clean on
// SIGINT/SIGTERM.
func Run() error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}

	return a.Run(ctx)
}
