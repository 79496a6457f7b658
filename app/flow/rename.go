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

// BeginRename shows the owner's markers as a numbered menu and waits for a choice.
func (e *Engine) BeginRename(ctx context.Context, ch Channel, owner string) error {
	unlock := e.locks.Lock(owner)
	defer unlock()
	ctx = logger.WithOwner(ctx, owner)

	if e.refuseBusy(ctx, ch, owner, string(FlowRename)) {
		return nil
	}
	mine, err := e.store.ForOwner(ctx, owner)
	if err != nil {
		return e.entryFailed(ctx, ch, string(FlowRename), &StorageError{Op: "read", Err: err})
	}
	if len(mine) == 0 {
		e.say(ctx, ch, Reply{Text: MsgNoMarkersToRename})
		return nil
	}
	s := RenameSession{ID: e.newID(), At: StepSelectTarget, Snapshot: mine}
	ctx, ok := e.open(ctx, ch, owner, s)
	if !ok {
		return nil
	}
	e.say(ctx, ch, Reply{Text: numberedMenu(MsgRenameSelect, mine), Cancel: true})
	return nil
}

func (e *Engine) stepRename(ctx context.Context, ch Channel, ev Event, s RenameSession) error {
	switch s.At {
	case StepSelectTarget:
		idx, ok := validate.ParseOrdinal(ev.Text, len(s.Snapshot))
		if !ok {
			e.reprompt(ctx, ch, s, &ValidationError{Field: "selection", Reason: "out of range"}, Reply{Text: MsgInvalidSelection})
			return nil
		}
		s.Selected = idx
		s.At = StepAwaitNewName
		return e.advance(ctx, ch, ev.Owner, s, Reply{Text: MsgRenameNewName})

	case StepAwaitNewName:
		name := validate.StripQuotes(ev.Text)
		if name == "" {
			e.reprompt(ctx, ch, s, &ValidationError{Field: "name", Reason: "empty"}, Reply{Text: MsgInvalidName})
			return nil
		}
		if !validate.NameFits(name) {
			e.reprompt(ctx, ch, s, &ValidationError{Field: "name", Reason: "too long"}, Reply{Text: MsgNameTooLong})
			return nil
		}
		live, err := e.store.ForOwner(ctx, ev.Owner)
		if err != nil {
			return &StorageError{Op: "read", Err: err}
		}
		if validate.HasDuplicateName(live, ev.Owner, name) {
			e.abort(ctx, ch, ev.Owner, s, &ValidationError{Field: "name", Reason: "duplicate", Abort: true}, MsgDuplicateName)
			return nil
		}
		return e.commitRename(ctx, ch, ev, s, name)
	}
	return &StateError{Op: "rename", Err: fmt.Errorf("unexpected step %q", s.At)}
}

// commitRename renames the owner's selected marker in the live table. The previous name
// is taken from the row actually changed.
func (e *Engine) commitRename(ctx context.Context, ch Channel, ev Event, s RenameSession, name string) error {
	defer e.sessions.Discard(ev.Owner)

	old, err := e.store.RenameNth(ctx, ev.Owner, s.Selected, name)
	if errors.Is(err, store.ErrNotFound) {
		return &StateError{Op: "rename", Err: err}
	}
	if err != nil {
		return &StorageError{Op: "rename", Err: err}
	}
	e.finish(ctx, s, slog.String("marker", name))
	e.say(ctx, ch, Reply{Text: MsgNameUpdated})
	e.notify(ctx, renamedLog(ev.Handle, ev.Owner, old, name))
	return nil
}
