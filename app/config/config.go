// Package config loads the bot configuration: the shared core settings plus the marker
// table, quotas, session timing and the map feed.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/m3rciful/markerbot/app/marker"
	coreconfig "github.com/m3rciful/markerbot/core/config"
	"github.com/m3rciful/markerbot/core/telegram/state"
)

// MarkersConfig describes the marker table and the flow limits.
type MarkersConfig struct {
	TablePath    string   `yaml:"table_path" envconfig:"MARKERS_TABLE_PATH"`
	LogStatePath string   `yaml:"log_state_path" envconfig:"MARKERS_LOG_STATE_PATH"`
	SpecialIDs   []string `yaml:"special_ids" envconfig:"MARKERS_SPECIAL_IDS"`
	Quota        int      `yaml:"quota" envconfig:"MARKERS_QUOTA"`
	SpecialQuota int      `yaml:"special_quota" envconfig:"MARKERS_SPECIAL_QUOTA"`
	// SessionTimeoutSeconds bounds idle time inside a flow; 0 -> 300.
	SessionTimeoutSeconds int `yaml:"session_timeout_seconds" envconfig:"MARKERS_SESSION_TIMEOUT_SECONDS"`
	// SweepIntervalSeconds is the sweeper period; 0 -> 60.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" envconfig:"MARKERS_SWEEP_INTERVAL_SECONDS"`
}

// FeedConfig configures the read-only HTTP feed. An empty Listen disables it.
type FeedConfig struct {
	Listen string `yaml:"listen" envconfig:"FEED_LISTEN"`
}

// Config is the full bot configuration.
type Config struct {
	Core    coreconfig.Config `yaml:",inline"`
	Markers MarkersConfig     `yaml:"markers"`
	Feed    FeedConfig        `yaml:"feed"`
}

// CoreConfig exposes the embedded core settings to the shared runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Core
}

// Quota returns the marker cap policy.
func (c *Config) Quota() marker.Quota {
	return marker.Quota{
		Normal:     c.Markers.Quota,
		Special:    c.Markers.SpecialQuota,
		SpecialIDs: slices.Clone(c.Markers.SpecialIDs),
	}
}

// SessionTimeout returns the idle timeout for flows.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Markers.SessionTimeoutSeconds) * time.Second
}

// SweepInterval returns the sweeper period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Markers.SweepIntervalSeconds) * time.Second
}

// Load reads the YAML file at path, applies environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the marker settings and applies the compiled-in defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if len(cfg.Core.Telegram.AdminIDs) == 0 {
		cfg.Core.Telegram.AdminIDs = slices.Clone(marker.DefaultAdminIDs)
	}

	m := &cfg.Markers
	m.TablePath = strings.TrimSpace(m.TablePath)
	if m.TablePath == "" {
		m.TablePath = filepath.Join("shared", "dati.csv")
	}
	m.LogStatePath = strings.TrimSpace(m.LogStatePath)
	if m.LogStatePath == "" {
		m.LogStatePath = filepath.Join(filepath.Dir(m.TablePath), "log_state.json")
	}
	if m.SpecialIDs == nil {
		m.SpecialIDs = slices.Clone(marker.DefaultSpecialIDs)
	}
	for i, id := range m.SpecialIDs {
		id = strings.TrimSpace(id)
		if !marker.CanonicalID(id) {
			return fmt.Errorf("markers.special_ids contains invalid id %q", id)
		}
		m.SpecialIDs[i] = id
	}

	if m.Quota == 0 {
		m.Quota = marker.DefaultQuota
	}
	if m.SpecialQuota == 0 {
		m.SpecialQuota = marker.DefaultSpecialQuota
	}
	if m.Quota < 0 || m.SpecialQuota < 0 {
		return fmt.Errorf("markers quotas must be >= 0")
	}
	if m.SpecialQuota < m.Quota {
		return fmt.Errorf("markers.special_quota (%d) must be >= markers.quota (%d)", m.SpecialQuota, m.Quota)
	}

	if m.SessionTimeoutSeconds < 0 || m.SweepIntervalSeconds < 0 {
		return fmt.Errorf("markers session timing must be >= 0")
	}
	if m.SessionTimeoutSeconds == 0 {
		m.SessionTimeoutSeconds = int(state.DefaultTimeout / time.Second)
	}
	if m.SweepIntervalSeconds == 0 {
		m.SweepIntervalSeconds = 60
	}

	cfg.Feed.Listen = strings.TrimSpace(cfg.Feed.Listen)
	return nil
}
