// Package store persists markers in a single CSV table. Every mutation rewrites the whole
// table through WriteFileAtomic under one mutex; plain reads take no lock.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/m3rciful/markerbot/app/marker"
	"github.com/m3rciful/markerbot/core/logger"
)

// ErrNotFound is returned when an ordinal does not resolve to one of the owner's markers.
var ErrNotFound = errors.New("store: marker not found")

// Observer receives timing for every table operation.
type Observer interface {
	ObserveStore(op string, took time.Duration, err error)
}

// Options configures a Store.
type Options struct {
	Path     string
	Now      func() time.Time
	Observer Observer
}

// Store is the marker table.
type Store struct {
	path string
	now  func() time.Time
	obs  Observer

	mu sync.Mutex
}

// New prepares a store for path. The file itself is created on first write.
func New(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("store: empty table path")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure table dir: %w", err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{path: opts.Path, now: now, obs: opts.Observer}, nil
}

// Path returns the canonical table location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) observe(op string, start time.Time, err error) {
	if s.obs != nil {
		s.obs.ObserveStore(op, time.Since(start), err)
	}
}

// ReadAll loads every well-formed row. A missing table reads as empty.
func (s *Store) ReadAll(ctx context.Context) (out []marker.Marker, err error) {
	start := time.Now()
	defer func() { s.observe("read", start, err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read table: %w", err)
	}
	markers, skipped, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("store: decode table: %w", err)
	}
	if skipped > 0 {
		logger.Debug(ctx, "store", "store.read.skipped",
			slog.Int("count", skipped),
			slog.String("path", s.path),
		)
	}
	return markers, nil
}

// ForOwner returns the owner's markers in table order.
func (s *Store) ForOwner(ctx context.Context, owner string) ([]marker.Marker, error) {
	all, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return marker.OwnedBy(all, owner), nil
}

// ReplaceAll rewrites the table with markers.
func (s *Store) ReplaceAll(ctx context.Context, markers []marker.Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceAll(ctx, markers)
}

func (s *Store) replaceAll(ctx context.Context, markers []marker.Marker) (err error) {
	start := time.Now()
	defer func() { s.observe("write", start, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(markers)
	if err != nil {
		return fmt.Errorf("store: encode table: %w", err)
	}
	if err := WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("store: replace table: %w", err)
	}
	logger.Debug(ctx, "store", "store.replace",
		slog.String("status", "ok"),
		slog.Int("markers", len(markers)),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// Mutate runs a read-modify-write cycle under the table lock. fn receives a private copy
// of the current rows and returns the rows to persist; an error from fn aborts the write.
func (s *Store) Mutate(ctx context.Context, fn func([]marker.Marker) ([]marker.Marker, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.ReadAll(ctx)
	if err != nil {
		return err
	}
	next, err := fn(slices.Clone(current))
	if err != nil {
		return err
	}
	return s.replaceAll(ctx, next)
}

// Append stamps the creation time and adds m at the end of the table.
func (s *Store) Append(ctx context.Context, m marker.Marker) (marker.Marker, error) {
	err := s.Mutate(ctx, func(all []marker.Marker) ([]marker.Marker, error) {
		m.Timestamp = s.now().Unix()
		if m.User == "" {
			m.User = marker.Anonymous
		}
		return append(all, m), nil
	})
	return m, err
}

// RenameNth renames the owner's n-th marker (zero-based) and returns the previous name.
func (s *Store) RenameNth(ctx context.Context, owner string, n int, name string) (string, error) {
	var old string
	err := s.Mutate(ctx, func(all []marker.Marker) ([]marker.Marker, error) {
		i := marker.NthIndex(all, owner, n)
		if i < 0 {
			return nil, ErrNotFound
		}
		old = all[i].Name
		all[i].Name = name
		return all, nil
	})
	return old, err
}

// DeleteNth removes the owner's n-th marker (zero-based) and returns it.
func (s *Store) DeleteNth(ctx context.Context, owner string, n int) (marker.Marker, error) {
	var removed marker.Marker
	err := s.Mutate(ctx, func(all []marker.Marker) ([]marker.Marker, error) {
		i := marker.NthIndex(all, owner, n)
		if i < 0 {
			return nil, ErrNotFound
		}
		removed = all[i]
		return slices.Delete(all, i, i+1), nil
	})
	return removed, err
}

// Raw returns the table bytes as stored, or an empty table when the file is missing.
func (s *Store) Raw(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return encode(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("store: read table: %w", err)
	}
	return data, nil
}

// EnsureExists writes an empty table if none exists yet, so exports always have a file.
func (s *Store) EnsureExists(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("store: stat table: %w", err)
	}
	return s.replaceAll(ctx, nil)
}
