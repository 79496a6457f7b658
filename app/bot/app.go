// Package bot wires the marker flows, the admin panel and the map feed onto Telegram.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/markerbot/app/admin"
	"github.com/m3rciful/markerbot/app/config"
	"github.com/m3rciful/markerbot/app/feed"
	"github.com/m3rciful/markerbot/app/flow"
	"github.com/m3rciful/markerbot/app/metrics"
	"github.com/m3rciful/markerbot/app/store"
	"github.com/m3rciful/markerbot/core/bootstrap"
	corecmd "github.com/m3rciful/markerbot/core/cmd"
	"github.com/m3rciful/markerbot/core/logger"
	coretelegram "github.com/m3rciful/markerbot/core/telegram"
	"github.com/m3rciful/markerbot/core/telegram/middleware"
	"github.com/m3rciful/markerbot/core/telegram/router"
	tgsender "github.com/m3rciful/markerbot/core/telegram/sender"
	"github.com/m3rciful/markerbot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// App holds every long-lived component of the bot.
type App struct {
	cfg      *config.Config
	store    *store.Store
	sessions *state.Registry[flow.Session]
	engine   *flow.Engine
	sweeper  *flow.Sweeper
	logState *admin.LogState
	metrics  *metrics.Metrics
	notifier *adminNotifier
	feed     *feed.Server
	registry *coretelegram.Registry
}

// New builds the components from cfg. It touches the disk only to read the logging
// state; the table itself is prepared by Seeders.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	m := metrics.New()
	st, err := store.New(store.Options{Path: cfg.Markers.TablePath, Observer: m})
	if err != nil {
		return nil, err
	}
	ls, err := admin.LoadLogState(ctx, cfg.Markers.LogStatePath)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		store:    st,
		sessions: state.NewRegistry[flow.Session](state.Options{Timeout: cfg.SessionTimeout()}),
		logState: ls,
		metrics:  m,
		notifier: newAdminNotifier(cfg.Core.Telegram.AdminIDs, m),
	}
	a.engine, err = flow.New(flow.Options{
		Store:    st,
		Sessions: a.sessions,
		Quota:    cfg.Quota(),
		Notifier: a.notifier,
		Gate:     ls,
		Observer: m,
	})
	if err != nil {
		return nil, err
	}
	a.sweeper = flow.NewSweeper(a.engine, cfg.SweepInterval())
	if cfg.Feed.Listen != "" {
		a.feed = feed.New(feed.Options{Listen: cfg.Feed.Listen, Source: st, Metrics: m.Handler()})
	}
	a.registry = a.buildRegistry()
	return a, nil
}

// Seeders prepares the files the bot needs before it starts serving.
func Seeders(cfg *config.Config) []bootstrap.Seeder {
	return []bootstrap.Seeder{
		bootstrap.SeederFunc{Label: "marker_table", Fn: func(ctx context.Context) error {
			st, err := store.New(store.Options{Path: cfg.Markers.TablePath})
			if err != nil {
				return err
			}
			return st.EnsureExists(ctx)
		}},
	}
}

// Bootstrap is the runner hook: logger and seeders, then the App.
func Bootstrap(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*config.Config)
	if !ok {
		return nil, fmt.Errorf("bot: unexpected config type %T", carrier)
	}
	err := bootstrap.Run(ctx, bootstrap.Options{
		Config:  &cfg.Core,
		Modules: bootstrap.Modules{Seeders: Seeders(cfg)},
	})
	if err != nil {
		return nil, err
	}
	a, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "app", "app.built",
		slog.String("status", "ok"),
		slog.String("table", cfg.Markers.TablePath),
		slog.Bool("admin_logs", a.logState.Enabled()),
		slog.Bool("feed", a.feed != nil),
	)
	return a, nil
}

// Services lists the background components run next to the bot.
func (a *App) Services() []corecmd.Service {
	svcs := []corecmd.Service{{Name: "sweeper", Run: a.sweeper.Run}}
	if a.feed != nil {
		svcs = append(svcs,
			corecmd.Service{Name: "feed", Run: a.feed.Run},
			corecmd.Service{Name: "table_watch", Run: store.NewWatcher(a.store, 0, a.feed.Invalidate).Run},
		)
	}
	return svcs
}

// TelegramRunOptions describes the bot for the shared runtime.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()
	return coretelegram.RunOptions{
		Config:   core,
		Registry: a.registry,
		DispatcherOptions: tgsender.Options{
			MaxRetries: 2,
			OnResult:   a.notifier.result,
		},
		Middlewares: coretelegram.DefaultMiddlewares(core, nil, a.metrics),
		Routes: func(tele.API) []coretelegram.Route {
			routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
				IsAdmin:       core.IsAdmin,
				OnAdminReject: a.denyAccess,
			})
			routes = append(routes, router.MessageRoutes(a, a.registry)...)
			return append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))
		},
		OnError: a.onError,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.notifier.bind(rt.Bot)
			return nil
		},
		OnStop: func(context.Context, coretelegram.Runtime) error {
			a.notifier.bind(nil)
			return nil
		},
	}, nil
}

// adminOnly guards callback handlers, which bypass the command router's admin check.
func (a *App) adminOnly(h tele.HandlerFunc) tele.HandlerFunc {
	return middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		IsAdmin:  a.cfg.Core.IsAdmin,
		OnReject: a.denyAccess,
	})(h)
}
