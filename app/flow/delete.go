package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/markerbot/app/store"
	"github.com/m3rciful/markerbot/app/validate"
	"github.com/m3rciful/markerbot/core/logger"
)

// BeginDelete shows the owner's markers as a numbered menu and waits for a choice.
func (e *Engine) BeginDelete(ctx context.Context, ch Channel, owner string) error {
	unlock := e.locks.Lock(owner)
	defer unlock()
	ctx = logger.WithOwner(ctx, owner)

	if e.refuseBusy(ctx, ch, owner, string(FlowDelete)) {
		return nil
	}
	mine, err := e.store.ForOwner(ctx, owner)
	if err != nil {
		return e.entryFailed(ctx, ch, string(FlowDelete), &StorageError{Op: "read", Err: err})
	}
	if len(mine) == 0 {
		e.say(ctx, ch, Reply{Text: MsgNoMarkersToDelete})
		return nil
	}
	s := DeleteSession{ID: e.newID(), At: StepSelectTarget, Snapshot: mine}
	ctx, ok := e.open(ctx, ch, owner, s)
	if !ok {
		return nil
	}
	e.say(ctx, ch, Reply{Text: numberedMenu(MsgDeleteSelect, mine), Cancel: true})
	return nil
}

func (e *Engine) stepDelete(ctx context.Context, ch Channel, ev Event, s DeleteSession) error {
	if s.At != StepSelectTarget {
		return &StateError{Op: "delete", Err: fmt.Errorf("unexpected step %q", s.At)}
	}
	idx, ok := validate.ParseOrdinal(ev.Text, len(s.Snapshot))
	if !ok {
		e.reprompt(ctx, ch, s, &ValidationError{Field: "selection", Reason: "out of range"}, Reply{Text: MsgInvalidSelection})
		return nil
	}
	return e.commitDelete(ctx, ch, ev, s, idx)
}

// commitDelete removes the owner's idx-th marker from the live table and lists what is left.
func (e *Engine) commitDelete(ctx context.Context, ch Channel, ev Event, s DeleteSession, idx int) error {
	defer e.sessions.Discard(ev.Owner)

	removed, err := e.store.DeleteNth(ctx, ev.Owner, idx)
	if errors.Is(err, store.ErrNotFound) {
		return &StateError{Op: "delete", Err: err}
	}
	if err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	e.finish(ctx, s, slog.String("marker", removed.Name))
	e.say(ctx, ch, Reply{Text: MsgMarkerDeleted})
	e.notify(ctx, deletedLog(ev.Handle, ev.Owner, removed))

	remaining, err := e.store.ForOwner(ctx, ev.Owner)
	if err != nil {
		logger.Warn(ctx, "flow", "flow.delete.relist",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
			slog.String("err_code", CodeStorage),
		)
		return nil
	}
	if len(remaining) == 0 {
		e.say(ctx, ch, Reply{Text: MsgNoMarkersLeft})
		return nil
	}
	e.say(ctx, ch, Reply{Text: ListText(remaining)})
	return nil
}
