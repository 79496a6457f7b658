package bot

import (
	"context"

	"github.com/m3rciful/markerbot/app/flow"
	"github.com/m3rciful/markerbot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

// KeyCancel is the callback key of the inline cancel button.
const KeyCancel = "cancel"

// teleChannel speaks flow.Channel over the chat of one update. Replies go out
// synchronously so a flow's messages keep their order.
type teleChannel struct {
	c tele.Context
}

func (ch teleChannel) Send(_ context.Context, r flow.Reply) error {
	return ch.c.Send(r.Text, sendOptions(r))
}

func (ch teleChannel) Edit(_ context.Context, r flow.Reply) error {
	if ch.c.Callback() == nil {
		return ch.c.Send(r.Text, sendOptions(r))
	}
	return ch.c.Edit(r.Text, sendOptions(r))
}

func (ch teleChannel) SendDocument(_ context.Context, d flow.Document) error {
	return ch.c.Send(&tele.Document{
		File:     tele.FromDisk(d.Path),
		FileName: d.FileName,
		Caption:  d.Caption,
	})
}

func sendOptions(r flow.Reply) *tele.SendOptions {
	opts := &tele.SendOptions{ReplyMarkup: markup(r)}
	if r.HTML {
		opts.ParseMode = tele.ModeHTML
	}
	return opts
}

// markup picks the single keyboard a message can carry: a reply keyboard first, then
// inline buttons, then keyboard removal.
func markup(r flow.Reply) *tele.ReplyMarkup {
	switch {
	case len(r.Choices) > 0:
		return keyboard.ReplyButtons(keyboard.ReplyOptions{OneTime: true, Placeholder: r.Placeholder}, r.Choices...)
	case r.Cancel || len(r.Buttons) > 0:
		btns := make([]keyboard.InlineBtn, 0, len(r.Buttons)+1)
		for _, b := range r.Buttons {
			btns = append(btns, keyboard.InlineBtn{Text: b.Text, Unique: b.Key})
		}
		if r.Cancel {
			btns = append(btns, keyboard.CancelButton(KeyCancel))
		}
		return keyboard.InlineButtons(btns)
	case r.RemoveKeyboard:
		return keyboard.RemoveKeyboard()
	}
	return nil
}
