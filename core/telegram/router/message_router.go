package router

import (
	"strings"
	"time"

	tg "github.com/m3rciful/markerbot/core/telegram"
	tghelpers "github.com/m3rciful/markerbot/core/telegram/helpers"
	"github.com/m3rciful/markerbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

var timeNow = time.Now

// Conversation consumes free input for multi-step flows. Converse reports false when
// the sender has no conversation, so the input falls through to the registry fallback.
type Conversation interface {
	Converse(c tele.Context) (bool, error)
}

// MessageRoutes builds the text and location handlers. Text starting with "/" that
// reaches here matched no command route, so aliases are resolved first, then the
// unknown-command handler runs.
func MessageRoutes(conv Conversation, reg *tg.Registry) []tg.Route {
	textHandler := func(c tele.Context) error {
		start := timeNow()
		text := strings.TrimSpace(c.Text())

		if strings.HasPrefix(text, "/") && reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil && !cmd.AdminOnly {
				return handleWithSummary(c, "cmd."+normalizeHandlerName(key), start, func() error {
					return cmd.Handler(c)
				})
			}
			if h := reg.UnknownCommand(); h != nil {
				return handleWithSummary(c, "unknown_command", start, func() error { return h(c) })
			}
		}
		return converse(c, conv, reg, "text", start)
	}

	locationHandler := func(c tele.Context) error {
		return converse(c, conv, reg, "location", timeNow())
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.LoggerMiddleware(middleware.RecoverMiddleware(textHandler)),
		},
		{
			Endpoint: tele.OnLocation,
			Handler:  middleware.LoggerMiddleware(middleware.RecoverMiddleware(locationHandler)),
		},
	}
}

func converse(c tele.Context, conv Conversation, reg *tg.Registry, kind string, start time.Time) error {
	if conv != nil {
		name := "flow." + kind
		tghelpers.WithHandler(c, name)
		handled, err := conv.Converse(c)
		if handled || err != nil {
			logHandlerSummary(c, name, start, "", err)
			return err
		}
	}
	if reg != nil {
		if fb := reg.TextFallback(); fb != nil {
			return handleWithSummary(c, "fallback."+kind, start, func() error { return fb(c) })
		}
	}
	logHandlerSummary(c, "unhandled."+kind, start, "skip", nil)
	return nil
}
