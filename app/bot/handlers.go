package bot

import (
	"context"
	"log/slog"
	"math"
	"strconv"

	"github.com/m3rciful/markerbot/app/flow"
	"github.com/m3rciful/markerbot/core/logger"
	coretelegram "github.com/m3rciful/markerbot/core/telegram"
	"github.com/m3rciful/markerbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/markerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// flowHandler is an engine entry point keyed by owner.
type flowHandler func(ctx context.Context, ch flow.Channel, owner string) error

func (a *App) entry(fn flowHandler) tele.HandlerFunc {
	return func(c tele.Context) error {
		owner := tghelpers.OwnerID(c)
		if owner == "" {
			return nil
		}
		return fn(tghelpers.BuildContext(c), teleChannel{c: c}, owner)
	}
}

func (a *App) buildRegistry() *coretelegram.Registry {
	reg := coretelegram.NewRegistry()
	user := []struct {
		name, desc string
		h          flowHandler
		aliases    []string
	}{
		{"/start", "Avvia il bot", a.engine.Start, nil},
		{"/add", "Aggiungi un marker", a.engine.BeginAdd, []string{"/aggiungi"}},
		{"/rename", "Rinomina un marker", a.engine.BeginRename, []string{"/rinomina"}},
		{"/delete", "Elimina un marker", a.engine.BeginDelete, []string{"/elimina"}},
		{"/list", "Elenca i tuoi marker", a.engine.List, []string{"/lista"}},
		{"/cancel", "Annulla l'operazione in corso", a.engine.Cancel, []string{"/annulla"}},
		{"/help", "Mostra i comandi", a.engine.Start, nil},
	}
	for i, cmd := range user {
		reg.RegisterCommand(cmd.name, commands.Command{
			Handler:     a.entry(cmd.h),
			Description: cmd.desc,
			Aliases:     cmd.aliases,
			Order:       i,
		})
	}

	reg.RegisterCommand("/stats", commands.Command{Handler: a.handleStats, Description: "Statistiche", AdminOnly: true})
	reg.RegisterCommand("/admin", commands.Command{Handler: a.handleAdminMenu, Description: "Pannello admin", AdminOnly: true})
	reg.RegisterCommand("/export", commands.Command{Handler: a.handleExport, Description: "Esporta la tabella", AdminOnly: true})

	_ = reg.RegisterCallback(KeyCancel, a.entry(a.engine.Cancel))
	a.registerAdminCallbacks(reg)

	reg.SetUnknownCommand(func(c tele.Context) error {
		return tghelpers.SendText(c, flow.MsgUnknownCommand)
	})
	reg.SetTextFallback(func(c tele.Context) error {
		return tghelpers.SendText(c, flow.MsgIdleHint)
	})
	return reg
}

// Converse feeds text and locations to the owner's flow.
func (a *App) Converse(c tele.Context) (bool, error) {
	owner := tghelpers.OwnerID(c)
	if owner == "" {
		return false, nil
	}
	ev := flow.Event{Owner: owner, Handle: tghelpers.Handle(c), Kind: flow.KindText, Text: c.Text()}
	if msg := c.Message(); msg != nil && msg.Location != nil {
		ev.Kind = flow.KindLocation
		ev.Lat = locationDegrees(msg.Location.Lat)
		ev.Lon = locationDegrees(msg.Location.Lng)
	}
	return a.engine.Handle(tghelpers.BuildContext(c), teleChannel{c: c}, ev)
}

// locationDegrees widens a shared location's float32 coordinate through its shortest
// decimal form, so 45.4642 stays 45.4642, and caps it at six decimals (about 10 cm).
func locationDegrees(v float32) float64 {
	d, err := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'g', -1, 32), 64)
	if err != nil {
		d = float64(v)
	}
	return math.Round(d*1e6) / 1e6
}

func (a *App) denyAccess(c tele.Context) error {
	logger.Warn(tghelpers.BuildContext(c), "admin", "admin.denied", slog.String("status", "rejected"))
	return tghelpers.SendText(c, adminDenied)
}

// onError answers errors no handler replied to. Errors raised by the flow engine were
// already reported to the user.
func (a *App) onError(err error, c tele.Context) {
	if c == nil {
		logger.Error(context.Background(), "tg", "bot.error",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return
	}
	if flow.Reported(err) {
		return
	}
	if sendErr := tghelpers.SendText(c, flow.MsgGenericError); sendErr != nil {
		logger.Warn(tghelpers.BuildContext(c), "tg", "bot.error.reply",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(sendErr.Error(), 256)),
		)
	}
}
