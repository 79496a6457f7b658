// Package flow runs the guided Add, Rename and Delete conversations on top of the
// session registry and the marker store.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"

	"github.com/m3rciful/markerbot/app/marker"
	"github.com/m3rciful/markerbot/core/logger"
	"github.com/m3rciful/markerbot/core/telegram/state"
)

// Store is the part of the marker table the engine needs.
type Store interface {
	ForOwner(ctx context.Context, owner string) ([]marker.Marker, error)
	Append(ctx context.Context, m marker.Marker) (marker.Marker, error)
	RenameNth(ctx context.Context, owner string, n int, name string) (string, error)
	DeleteNth(ctx context.Context, owner string, n int) (marker.Marker, error)
}

// Options wires an Engine.
type Options struct {
	Store    Store
	Sessions *state.Registry[Session]
	Quota    marker.Quota
	Notifier Notifier
	Gate     Gate
	Observer Observer
	NewID    func() string
}

// Engine routes owner input to the flow the owner is in.
type Engine struct {
	store    Store
	sessions *state.Registry[Session]
	quota    marker.Quota
	notifier Notifier
	gate     Gate
	obs      Observer
	newID    func() string
	locks    *keyedMutex
}

// New validates opts and builds an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("flow: nil store")
	}
	if opts.Sessions == nil {
		return nil, errors.New("flow: nil session registry")
	}
	if opts.Quota.Normal <= 0 {
		opts.Quota = marker.DefaultQuotas()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Engine{
		store:    opts.Store,
		sessions: opts.Sessions,
		quota:    opts.Quota,
		notifier: opts.Notifier,
		gate:     opts.Gate,
		obs:      opts.Observer,
		newID:    opts.NewID,
		locks:    newKeyedMutex(),
	}, nil
}

// Active reports whether owner is inside a live flow.
func (e *Engine) Active(owner string) bool {
	return e.sessions.Active(owner)
}

// Start answers /start and /help with the command menu.
func (e *Engine) Start(ctx context.Context, ch Channel, owner string) error {
	unlock := e.locks.Lock(owner)
	defer unlock()
	ctx = logger.WithOwner(ctx, owner)

	if e.refuseBusy(ctx, ch, owner, "start") {
		return nil
	}
	e.say(ctx, ch, Reply{Text: MsgStart, HTML: true})
	return nil
}

// List shows the owner's markers.
func (e *Engine) List(ctx context.Context, ch Channel, owner string) error {
	unlock := e.locks.Lock(owner)
	defer unlock()
	ctx = logger.WithOwner(ctx, owner)

	if e.refuseBusy(ctx, ch, owner, "list") {
		return nil
	}
	mine, err := e.store.ForOwner(ctx, owner)
	if err != nil {
		return e.entryFailed(ctx, ch, "list", &StorageError{Op: "read", Err: err})
	}
	e.say(ctx, ch, Reply{Text: ListText(mine)})
	return nil
}

// Cancel discards whatever flow the owner is in.
func (e *Engine) Cancel(ctx context.Context, ch Channel, owner string) error {
	unlock := e.locks.Lock(owner)
	defer unlock()
	e.cancelLocked(logger.WithOwner(ctx, owner), ch, owner)
	return nil
}

func (e *Engine) cancelLocked(ctx context.Context, ch Channel, owner string) {
	sess, st := e.sessions.Lookup(owner)
	switch st {
	case state.StatusExpired:
		e.expired(ctx, ch, sess.Value)
		return
	case state.StatusNone:
		e.say(ctx, ch, Reply{Text: MsgNothingToEnd, RemoveKeyboard: true})
		return
	}
	e.sessions.Discard(owner)
	s := sess.Value
	ctx = logger.WithFlowID(ctx, s.FlowID())
	logger.Info(ctx, "flow", "flow."+string(s.Flow())+".cancel",
		slog.String("status", "cancelled"),
		slog.String("outcome", "cancelled"),
		slog.String("flow", string(s.Flow())),
		slog.String("step", string(s.Step())),
	)
	e.event(s.Flow(), "cancelled")
	e.say(ctx, ch, Reply{Text: MsgCancelled, RemoveKeyboard: true})
}

// Handle feeds ev into the owner's flow. It reports false when the owner has no session
// at all, so the caller can answer with a hint instead.
func (e *Engine) Handle(ctx context.Context, ch Channel, ev Event) (bool, error) {
	unlock := e.locks.Lock(ev.Owner)
	defer unlock()
	ctx = logger.WithOwner(ctx, ev.Owner)

	if ev.Kind == KindText && strings.EqualFold(strings.TrimSpace(ev.Text), CancelText) {
		e.cancelLocked(ctx, ch, ev.Owner)
		return true, nil
	}

	sess, st := e.sessions.Lookup(ev.Owner)
	switch st {
	case state.StatusNone:
		return false, nil
	case state.StatusExpired:
		e.expired(ctx, ch, sess.Value)
		return true, nil
	}

	s := sess.Value
	ctx = logger.WithFlowID(ctx, s.FlowID())
	return true, e.run(ctx, ch, ev.Owner, s, func() error {
		if ev.Kind == KindLocation && s.Step() != StepAwaitCoordinates {
			e.reprompt(ctx, ch, s, &ValidationError{Field: "input", Reason: "location not expected"}, prompt(s, MsgInvalidValue))
			return nil
		}
		switch v := s.(type) {
		case AddSession:
			return e.stepAdd(ctx, ch, ev, v)
		case RenameSession:
			return e.stepRename(ctx, ch, ev, v)
		case DeleteSession:
			return e.stepDelete(ctx, ch, ev, v)
		}
		return &StateError{Op: "dispatch", Err: fmt.Errorf("unknown session %T", s)}
	})
}

// expired tells the owner their idle session, already dropped by Lookup, is gone.
func (e *Engine) expired(ctx context.Context, ch Channel, s Session) {
	ctx = logger.WithFlowID(ctx, s.FlowID())
	logger.Info(ctx, "flow", "flow."+string(s.Flow())+".expired",
		slog.String("status", "expired"),
		slog.String("outcome", "expired"),
		slog.String("flow", string(s.Flow())),
		slog.String("step", string(s.Step())),
		slog.Duration("timeout", e.sessions.Timeout()),
	)
	e.event(s.Flow(), "expired")
	e.say(ctx, ch, Reply{Text: MsgExpired, RemoveKeyboard: true})
}

// Sweep reclaims expired sessions silently and returns how many were dropped.
func (e *Engine) Sweep(ctx context.Context) int {
	n := 0
	for _, owner := range e.sessions.Expired() {
		unlock := e.locks.Lock(owner)
		if sess, st := e.sessions.Lookup(owner); st == state.StatusExpired {
			n++
			e.event(sess.Value.Flow(), "swept")
			logger.Debug(logger.WithFlowID(logger.WithOwner(ctx, owner), sess.Value.FlowID()), "sweeper", "sweep.session",
				slog.String("flow", string(sess.Value.Flow())),
				slog.String("step", string(sess.Value.Step())),
			)
		}
		unlock()
	}
	if e.obs != nil {
		e.obs.SessionsSwept(n)
	}
	if n > 0 {
		logger.Info(ctx, "sweeper", "sweep.done",
			slog.String("status", "ok"),
			slog.Int("count", n),
			slog.Int("remaining", e.sessions.Len()),
		)
	}
	return n
}

// run executes one step of an active session. An error or panic discards the session
// and answers with a failure text; the error is returned for the router's summary.
func (e *Engine) run(ctx context.Context, ch Channel, owner string, s Session, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StateError{Op: string(s.Step()), Err: fmt.Errorf("%w: %v", errPanic, r)}
			logger.Error(ctx, "flow", "flow.panic",
				slog.String("flow", string(s.Flow())),
				slog.String("step", string(s.Step())),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
		if err != nil {
			e.fail(ctx, ch, owner, s, err)
		}
	}()
	return fn()
}

func (e *Engine) fail(ctx context.Context, ch Channel, owner string, s Session, err error) {
	e.sessions.Discard(owner)
	logger.Error(ctx, "flow", "flow."+string(s.Flow())+".fail",
		slog.String("status", "fail"),
		slog.String("outcome", "fail"),
		slog.String("flow", string(s.Flow())),
		slog.String("step", string(s.Step())),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		slog.String("err_code", codeOf(err)),
	)
	e.event(s.Flow(), "failed")
	e.say(ctx, ch, Reply{Text: failureText(s, err), RemoveKeyboard: true})
}

func failureText(s Session, err error) string {
	var (
		se *StateError
		st *StorageError
	)
	switch {
	case s.Flow() == FlowDelete && errors.As(err, &se):
		return MsgDeletionError
	case s.Flow() == FlowAdd && errors.As(err, &st) && st.Op == "append":
		return MsgSaveFailed
	}
	return MsgOperationFailed
}

func (e *Engine) entryFailed(ctx context.Context, ch Channel, what string, err error) error {
	logger.Error(ctx, "flow", "flow."+what+".fail",
		slog.String("status", "fail"),
		slog.String("flow", what),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		slog.String("err_code", codeOf(err)),
	)
	e.say(ctx, ch, Reply{Text: MsgOperationFailed})
	return err
}

// refuseBusy answers "operation in progress" when the owner has a live session.
func (e *Engine) refuseBusy(ctx context.Context, ch Channel, owner, what string) bool {
	if !e.sessions.Active(owner) {
		return false
	}
	logger.Info(ctx, "flow", "flow."+what+".refused",
		slog.String("status", "rejected"),
		slog.String("flow", what),
	)
	e.say(ctx, ch, Reply{Text: MsgInProgress})
	return true
}

// open registers a fresh session; a concurrent winner makes it answer "in progress".
func (e *Engine) open(ctx context.Context, ch Channel, owner string, s Session) (context.Context, bool) {
	ctx = logger.WithFlowID(ctx, s.FlowID())
	if err := e.sessions.Begin(owner, s); err != nil {
		e.say(ctx, ch, Reply{Text: MsgInProgress})
		return ctx, false
	}
	logger.Info(ctx, "flow", "flow."+string(s.Flow())+".start",
		slog.String("status", "ok"),
		slog.String("flow", string(s.Flow())),
		slog.String("step", string(s.Step())),
	)
	e.event(s.Flow(), "started")
	return ctx, true
}

// advance stores the next session value, refreshing its activity time, and prompts.
func (e *Engine) advance(ctx context.Context, ch Channel, owner string, s Session, r Reply) error {
	if err := e.sessions.Update(owner, s); err != nil {
		return &StateError{Op: "advance", Err: err}
	}
	logger.Debug(ctx, "flow", "flow."+string(s.Flow())+".step",
		slog.String("status", "ok"),
		slog.String("flow", string(s.Flow())),
		slog.String("step", string(s.Step())),
	)
	e.say(ctx, ch, r)
	return nil
}

// reprompt keeps the session at its step without refreshing activity.
func (e *Engine) reprompt(ctx context.Context, ch Channel, s Session, verr *ValidationError, r Reply) {
	logger.Debug(ctx, "flow", "flow."+string(s.Flow())+".reprompt",
		slog.String("status", "rejected"),
		slog.String("outcome", "reprompt"),
		slog.String("flow", string(s.Flow())),
		slog.String("step", string(s.Step())),
		slog.String("err", verr.Error()),
		slog.String("err_code", verr.Code()),
	)
	e.event(s.Flow(), "reprompt")
	e.say(ctx, ch, r)
}

// abort ends the flow because of input that cannot be corrected in place.
func (e *Engine) abort(ctx context.Context, ch Channel, owner string, s Session, verr *ValidationError, text string) {
	e.sessions.Discard(owner)
	logger.Info(ctx, "flow", "flow."+string(s.Flow())+".abort",
		slog.String("status", "rejected"),
		slog.String("outcome", "aborted"),
		slog.String("flow", string(s.Flow())),
		slog.String("step", string(s.Step())),
		slog.String("err", verr.Error()),
		slog.String("err_code", verr.Code()),
	)
	e.event(s.Flow(), "aborted")
	e.say(ctx, ch, Reply{Text: text, RemoveKeyboard: true})
}

func (e *Engine) finish(ctx context.Context, s Session, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("outcome", "ok"),
		slog.String("flow", string(s.Flow())),
	}
	logger.Info(ctx, "flow", "flow."+string(s.Flow())+".commit", append(base, attrs...)...)
	e.event(s.Flow(), "completed")
}

func (e *Engine) say(ctx context.Context, ch Channel, r Reply) {
	if err := ch.Send(ctx, r); err != nil {
		terr := &TransportError{Op: "send", Err: err}
		logger.Warn(ctx, "flow", "flow.reply.fail",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(terr.Error(), 256)),
			slog.String("err_code", terr.Code()),
		)
	}
}

func (e *Engine) notify(ctx context.Context, text string) {
	if e.notifier == nil {
		return
	}
	if e.gate != nil && !e.gate.Enabled() {
		return
	}
	e.notifier.Notify(ctx, text)
}

func (e *Engine) event(flow Name, ev string) {
	if e.obs != nil {
		e.obs.FlowEvent(string(flow), ev)
	}
}

func column(items []string) [][]string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{it})
	}
	return rows
}

func nodeTypeReply(text string) Reply {
	return Reply{Text: text, Choices: column(marker.NodeTypes), Placeholder: nodeTypePlaceholder}
}

func frequencyReply(text string) Reply {
	return Reply{Text: text, Choices: column(marker.Frequencies)}
}

func linkChoiceReply() Reply {
	return Reply{Text: MsgLinkAsk, Choices: [][]string{{"Si", "No"}}, Placeholder: linkPlaceholder}
}

// prompt rebuilds the question for the session's current step.
func prompt(s Session, prefix string) Reply {
	switch v := s.(type) {
	case AddSession:
		switch v.At {
		case StepAwaitCoordinates:
			return Reply{Text: prefix + MsgAddLat}
		case StepAwaitLongitude:
			return Reply{Text: prefix + MsgAddLon}
		case StepAwaitName:
			return Reply{Text: prefix + MsgAddName}
		case StepAwaitNodeType:
			return nodeTypeReply(prefix + MsgSelectNodeType)
		case StepAwaitFrequency:
			return frequencyReply(prefix + MsgSelectFreq)
		case StepAwaitDescription:
			return Reply{Text: prefix + MsgEnterDesc}
		case StepAwaitLinkChoice:
			r := linkChoiceReply()
			r.Text = prefix + r.Text
			return r
		case StepAwaitLink:
			return Reply{Text: prefix + MsgAddLink}
		}
	case RenameSession:
		if v.At == StepAwaitNewName {
			return Reply{Text: prefix + MsgRenameNewName}
		}
		return Reply{Text: prefix + numberedMenu(MsgRenameSelect, v.Snapshot)}
	case DeleteSession:
		return Reply{Text: prefix + numberedMenu(MsgDeleteSelect, v.Snapshot)}
	}
	return Reply{Text: prefix + MsgIdleHint}
}
