// Package bootstrap initializes shared infrastructure before the bot starts.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/markerbot/core/config"
	"github.com/m3rciful/markerbot/core/logger"
)

// Options control the bootstrap pipeline.
type Options struct {
	Config     *coreconfig.Config
	LoggerInit func(*coreconfig.Config) error
	Modules    Modules
}

// Run initializes the logger, then runs every seeder in order.
func Run(ctx context.Context, opts Options) error {
	if opts.Config == nil {
		return fmt.Errorf("bootstrap: nil config provided")
	}
	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	for _, s := range opts.Modules.Seeders {
		start := time.Now()
		err := s.Seed(ctx)
		logger.Info(ctx, "app", "bootstrap.seed",
			slog.String("status", logger.StatusOf(err)),
			slog.String("seeder", s.Name()),
			slog.Duration("duration", logger.Took(start)),
		)
		if err != nil {
			return fmt.Errorf("bootstrap: seeder %s: %w", s.Name(), err)
		}
	}
	return nil
}
