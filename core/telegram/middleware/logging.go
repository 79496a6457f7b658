package middleware

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/m3rciful/markerbot/core/logger"
	"github.com/m3rciful/markerbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/markerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const seenTTL = 10 * time.Second

// seen remembers recently logged update ids; the logger wraps both the bot and each route.
var seen = struct {
	sync.Mutex
	at map[int]time.Time
}{at: make(map[int]time.Time)}

func firstSight(updateID int) bool {
	now := time.Now()
	seen.Lock()
	defer seen.Unlock()
	for id, ts := range seen.at {
		if now.Sub(ts) > seenTTL {
			delete(seen.at, id)
		}
	}
	if _, ok := seen.at[updateID]; ok {
		return false
	}
	seen.at[updateID] = now
	return true
}

// LoggerMiddleware stores the update's logging context on c and writes one
// update.received line per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		var chatID int64
		if chat := c.Chat(); chat != nil {
			chatID = chat.ID
		}
		owner := tghelpers.OwnerID(c)

		rid, _ := c.Get("rid").(string)
		if rid == "" {
			rid = logger.BuildRID(upd.ID, chatID, owner)
			c.Set("rid", rid)
			c.Set("update_start", time.Now())
		}
		ctx := tghelpers.BuildContext(c)

		if logger.ShouldSampleDebug() && firstSight(upd.ID) {
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.Int("update_id", upd.ID),
				slog.String("kind", UpdateKind(upd)),
			}
			if chat := c.Chat(); chat != nil {
				attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			}
			if u := c.Sender(); u != nil {
				if u.Username != "" {
					attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Username, 64)))
				}
				if u.LanguageCode != "" {
					attrs = append(attrs, slog.String("lang", u.LanguageCode))
				}
			}
			switch {
			case upd.Callback != nil:
				key, payload := callbacks.ParseCallbackData(upd.Callback)
				attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
				if payload != "" {
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
				}
			case upd.Message != nil && upd.Message.Location != nil:
				loc := upd.Message.Location
				attrs = append(attrs, slog.String("payload",
					strconv.FormatFloat(float64(loc.Lat), 'f', 5, 32)+","+strconv.FormatFloat(float64(loc.Lng), 'f', 5, 32)))
			case upd.Message != nil:
				if t := c.Text(); t != "" {
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
				}
			}
			logger.Debug(ctx, "tg", "update.received", attrs...)
		}

		return next(c)
	}
}

// UpdateKind names the update for rate limit exclusions and metrics.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}
