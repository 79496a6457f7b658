package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	coreconfig "github.com/m3rciful/markerbot/core/config"
	coretelegram "github.com/m3rciful/markerbot/core/telegram"
)

type carrier struct{ cfg coreconfig.Config }

func (c *carrier) CoreConfig() *coreconfig.Config { return &c.cfg }

type fakeApp struct{ services []Service }

func (a fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{}, nil
}

func (a fakeApp) Services() []Service { return a.services }

func baseOptions(app fakeApp, run func(ctx context.Context, opts coretelegram.RunOptions) error) Options {
	return Options{
		ConfigPath:     "config.yaml",
		LoadConfig:     func(string) (ConfigCarrier, error) { return &carrier{}, nil },
		Bootstrap:      func(context.Context, ConfigCarrier) (TelegramApp, error) { return app, nil },
		ShutdownLogger: func() error { return nil },
		RunTelegram:    run,
	}
}

func TestRunStopsServicesWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	stopped := make(chan string, 1)
	app := fakeApp{services: []Service{{Name: "sweeper", Run: func(ctx context.Context) error {
		<-ctx.Done()
		stopped <- "sweeper"
		return nil
	}}}}
	started := make(chan struct{})
	opts := baseOptions(app, func(ctx context.Context, o coretelegram.RunOptions) error {
		assert.NoError(t, o.OnStart(ctx, coretelegram.Runtime{}))
		close(started)
		<-ctx.Done()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, opts) }()
	<-started
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
	assert.Equal(t, "sweeper", <-stopped)
}

func TestRunPropagatesServiceFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("listen: address in use")
	app := fakeApp{services: []Service{{Name: "feed", Run: func(context.Context) error { return boom }}}}
	opts := baseOptions(app, func(ctx context.Context, _ coretelegram.RunOptions) error {
		<-ctx.Done()
		return nil
	})

	err := Run(context.Background(), opts)
	require.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "service feed")
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	_, err := Options{}.ResolveConfigPath()
	require.Error(t, err)

	p, err := Options{DefaultConfigPath: "shared/config.yaml"}.ResolveConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "shared/config.yaml", p)

	envPath := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(envPath, nil, 0o600))
	t.Setenv("CONFIG_PATH", envPath)
	p, err = Options{DefaultConfigPath: "shared/config.yaml"}.ResolveConfigPath()
	require.NoError(t, err)
	assert.Equal(t, envPath, p)

	p, err = Options{ConfigPath: "flag.yaml"}.ResolveConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "flag.yaml", p)
}
