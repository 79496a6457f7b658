package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/m3rciful/markerbot/app/store"
	"github.com/m3rciful/markerbot/core/logger"
)

type logStateFile struct {
	Enabled bool `json:"enabled"`
}

// LogState is the persisted switch for activity reports to administrators.
type LogState struct {
	path string

	mu      sync.RWMutex
	enabled bool
}

// LoadLogState reads path. A missing file means reports are on.
func LoadLogState(ctx context.Context, path string) (*LogState, error) {
	ls := &LogState{path: path, enabled: true}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info(ctx, "admin", "admin.logstate.load",
			slog.String("status", "skip"),
			slog.String("path", path),
			slog.Bool("enabled", ls.enabled),
		)
		return ls, nil
	}
	if err != nil {
		return nil, fmt.Errorf("admin: read log state: %w", err)
	}
	var f logStateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("admin: decode log state %s: %w", path, err)
	}
	ls.enabled = f.Enabled
	logger.Info(ctx, "admin", "admin.logstate.load",
		slog.String("status", "ok"),
		slog.String("path", path),
		slog.Bool("enabled", ls.enabled),
	)
	return ls, nil
}

// Enabled reports whether activity reports are sent.
func (l *LogState) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}

// Toggle flips the switch, persists it and returns the new value. On a write failure the
// switch keeps its previous value.
func (l *LogState) Toggle(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := !l.enabled
	data, err := json.Marshal(logStateFile{Enabled: next})
	if err != nil {
		return l.enabled, fmt.Errorf("admin: encode log state: %w", err)
	}
	if err := store.WriteFileAtomic(l.path, data, 0o644); err != nil {
		return l.enabled, fmt.Errorf("admin: write log state: %w", err)
	}
	l.enabled = next
	logger.Info(ctx, "admin", "admin.logstate.toggle",
		slog.String("status", "ok"),
		slog.Bool("enabled", next),
	)
	return next, nil
}

// Label is the status line shown in the admin menu.
func (l *LogState) Label() string {
	if l.Enabled() {
		return "🔔 Log attivi"
	}
	return "🔕 Log disattivati"
}
