// Package app is helper for simple cli apps.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Run calls run with logger and context that is canceled on interrupt,
// exiting with non-zero code on error.
func Run(debug bool, run func(ctx context.Context, lg *zap.Logger) error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level.SetLevel(zapcore.InfoLevel)
	if debug {
		cfg.Level.SetLevel(zapcore.DebugLevel)
	}
	lg, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		cancel()
		_ = lg.Sync()
		os.Exit(2)
	}
}
