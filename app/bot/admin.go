package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/m3rciful/markerbot/app/admin"
	"github.com/m3rciful/markerbot/app/flow"
	"github.com/m3rciful/markerbot/app/metrics"
	"github.com/m3rciful/markerbot/core/logger"
	coretelegram "github.com/m3rciful/markerbot/core/telegram"
	tghelpers "github.com/m3rciful/markerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const (
	adminDenied = admin.MsgAccessDenied

	actionNotify = "notify.admin"
)

func (a *App) registerAdminCallbacks(reg *coretelegram.Registry) {
	_ = reg.RegisterCallback(admin.KeyStats, a.adminOnly(a.handleStats))
	_ = reg.RegisterCallback(admin.KeyExport, a.adminOnly(a.handleExport))
	_ = reg.RegisterCallback(admin.KeyToggle, a.adminOnly(a.handleToggle))
}

func (a *App) menuReply() flow.Reply {
	return flow.Reply{
		Text: admin.MenuText(a.logState),
		HTML: true,
		Buttons: []flow.Button{
			{Text: "📊 Statistiche", Key: admin.KeyStats},
			{Text: "📤 Esporta CSV", Key: admin.KeyExport},
			{Text: admin.ToggleButtonText(a.logState), Key: admin.KeyToggle},
		},
	}
}

func (a *App) handleAdminMenu(c tele.Context) error {
	return teleChannel{c: c}.Send(tghelpers.BuildContext(c), a.menuReply())
}

func (a *App) handleStats(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	all, err := a.store.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	st := admin.Compute(all, a.cfg.Quota())
	logger.Info(ctx, "admin", "admin.stats",
		slog.String("status", "ok"),
		slog.Int("total", st.Total),
		slog.Int("owners", st.Owners),
	)
	return teleChannel{c: c}.Send(ctx, flow.Reply{Text: st.HTML(), HTML: true})
}

func (a *App) handleExport(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if err := a.store.EnsureExists(ctx); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	err := teleChannel{c: c}.SendDocument(ctx, flow.Document{
		Path:     a.store.Path(),
		FileName: admin.ExportFileName,
		Caption:  admin.MsgExportCaption,
	})
	logger.Info(ctx, "admin", "admin.export", slog.String("status", logger.StatusOf(err)))
	return err
}

// handleToggle flips the activity reports and redraws the menu in place.
func (a *App) handleToggle(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	enabled, err := a.logState.Toggle(ctx)
	if err != nil {
		logger.Error(ctx, "admin", "admin.logs.toggle",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return c.Send(admin.MsgToggleFailed)
	}
	logger.Info(ctx, "admin", "admin.logs.toggle",
		slog.String("status", "ok"),
		slog.Bool("enabled", enabled),
	)
	return teleChannel{c: c}.Edit(ctx, a.menuReply())
}

// adminNotifier fans activity reports out to every administrator through the
// asynchronous dispatcher. Reports are dropped until the bot is bound.
type adminNotifier struct {
	admins  []int64
	metrics *metrics.Metrics

	mu  sync.RWMutex
	bot tele.API
}

func newAdminNotifier(admins []int64, m *metrics.Metrics) *adminNotifier {
	return &adminNotifier{admins: admins, metrics: m}
}

func (n *adminNotifier) bind(bot tele.API) {
	n.mu.Lock()
	n.bot = bot
	n.mu.Unlock()
}

// Notify implements flow.Notifier. Failures never reach the flow that reported.
func (n *adminNotifier) Notify(ctx context.Context, text string) {
	n.mu.RLock()
	bot := n.bot
	n.mu.RUnlock()
	if bot == nil {
		logger.Warn(ctx, "admin", "admin.notify", slog.String("status", "skip"), slog.String("reason", "not_bound"))
		return
	}
	for _, id := range n.admins {
		if err := tghelpers.SendTo(ctx, bot, id, actionNotify, text); err != nil {
			n.result(actionNotify, err)
		}
	}
}

// result is the dispatcher's completion hook.
func (n *adminNotifier) result(action string, err error) {
	if action == actionNotify && n.metrics != nil {
		n.metrics.ObserveNotification(err)
	}
}
