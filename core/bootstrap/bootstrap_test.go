package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/markerbot/core/config"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunSeedsInOrder(t *testing.T) {
	var order []string
	seed := func(name string) Seeder {
		return SeederFunc{Label: name, Fn: func(context.Context) error {
			order = append(order, name)
			return nil
		}}
	}
	err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noLogger,
		Modules:    Modules{Seeders: []Seeder{seed("table"), seed("log_state")}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"table", "log_state"}, order)
}

func TestRunStopsOnSeederError(t *testing.T) {
	boom := errors.New("read-only fs")
	ran := false
	err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noLogger,
		Modules: Modules{Seeders: []Seeder{
			SeederFunc{Label: "table", Fn: func(context.Context) error { return boom }},
			SeederFunc{Label: "next", Fn: func(context.Context) error { ran = true; return nil }},
		}},
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, ran)
}

func TestRunRequiresConfig(t *testing.T) {
	require.Error(t, Run(context.Background(), Options{}))
}

func TestRunReportsLoggerFailure(t *testing.T) {
	err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return errors.New("bad level") },
	})
	require.ErrorContains(t, err, "logger init failed")
}
