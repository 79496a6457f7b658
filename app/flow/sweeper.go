package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/m3rciful/markerbot/core/logger"
)

// DefaultSweepInterval is how often idle sessions are reclaimed.
const DefaultSweepInterval = 60 * time.Second

// Sweeper drops expired sessions on a fixed schedule. It never talks to owners.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
}

// NewSweeper builds a sweeper for e. A non-positive interval falls back to the default.
func NewSweeper(e *Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{engine: e, interval: interval}
}

// Run schedules the sweep and blocks until ctx is done. A tick already running is
// allowed to finish before Run returns.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	schedule := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(schedule, func() { s.engine.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", schedule, err)
	}

	logger.Info(ctx, "sweeper", "sweep.start",
		slog.String("status", "ok"),
		slog.Duration("interval", s.interval),
		slog.Duration("timeout", s.engine.sessions.Timeout()),
	)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info(ctx, "sweeper", "sweep.stop", slog.String("status", "ok"))
	return nil
}
