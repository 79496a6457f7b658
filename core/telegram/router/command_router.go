package router

import (
	"context"
	"log/slog"

	"github.com/m3rciful/markerbot/core/logger"
	tg "github.com/m3rciful/markerbot/core/telegram"
	"github.com/m3rciful/markerbot/core/telegram/commands"
	"github.com/m3rciful/markerbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures command wrapping.
type CommandRouteOptions struct {
	IsAdmin       func(userID int64) bool
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes binds every registered command, and its aliases, to a wrapped handler.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	routes := make([]tg.Route, 0, len(reg.Commands()))
	for name, def := range reg.Commands() {
		h := wrapCommand(name, def, opts)
		routes = append(routes, tg.Route{Endpoint: name, Handler: h})
		for _, alias := range def.Aliases {
			if alias != "" && alias[0] == '/' {
				routes = append(routes, tg.Route{Endpoint: alias, Handler: h})
			}
		}
	}

	logger.Info(context.Background(), "tg.wire", "complete",
		slog.String("status", "ok"),
		slog.Int("commands", len(reg.Commands())),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}

func wrapCommand(name string, def commands.Command, opts CommandRouteOptions) tele.HandlerFunc {
	handlerName := "cmd." + normalizeHandlerName(name)
	inner := def.Handler
	if def.AdminOnly {
		inner = middleware.AdminOnlyMiddleware(middleware.AdminOptions{
			IsAdmin:  opts.IsAdmin,
			OnReject: opts.OnAdminReject,
		})(inner)
	}
	h := func(c tele.Context) error {
		return handleWithSummary(c, handlerName, timeNow(), func() error { return inner(c) })
	}
	return middleware.LoggerMiddleware(middleware.RecoverMiddleware(h))
}
