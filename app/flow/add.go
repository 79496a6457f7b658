package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/markerbot/app/marker"
	"github.com/m3rciful/markerbot/app/validate"
	"github.com/m3rciful/markerbot/core/logger"
)

// BeginAdd opens the Add flow when the owner is idle and under quota.
func (e *Engine) BeginAdd(ctx context.Context, ch Channel, owner string) error {
	unlock := e.locks.Lock(owner)
	defer unlock()
	ctx = logger.WithOwner(ctx, owner)

	if e.refuseBusy(ctx, ch, owner, string(FlowAdd)) {
		return nil
	}
	mine, err := e.store.ForOwner(ctx, owner)
	if err != nil {
		return e.entryFailed(ctx, ch, string(FlowAdd), &StorageError{Op: "read", Err: err})
	}
	if limit := e.quota.MaxFor(owner); len(mine) >= limit {
		logger.Info(ctx, "flow", "flow.add.quota",
			slog.String("status", "rejected"),
			slog.String("flow", string(FlowAdd)),
			slog.Int("markers", len(mine)),
			slog.Int("count", limit),
		)
		e.event(FlowAdd, "rejected")
		e.say(ctx, ch, Reply{Text: quotaReached(limit)})
		return nil
	}

	ctx, ok := e.open(ctx, ch, owner, AddSession{ID: e.newID(), At: StepAwaitCoordinates})
	if !ok {
		return nil
	}
	e.say(ctx, ch, Reply{Text: MsgAddLat, Cancel: true})
	return nil
}

func (e *Engine) stepAdd(ctx context.Context, ch Channel, ev Event, s AddSession) error {
	text := strings.TrimSpace(ev.Text)

	switch s.At {
	case StepAwaitCoordinates:
		if ev.Kind == KindLocation {
			s.Lat, s.Lon, s.HasLat, s.HasLon = ev.Lat, ev.Lon, true, true
			s.At = StepAwaitName
			return e.advance(ctx, ch, ev.Owner, s, Reply{Text: MsgAddName})
		}
		lat, ok := validate.ParseCoordinate(text)
		if !ok {
			e.reprompt(ctx, ch, s, &ValidationError{Field: "lat", Reason: "not a number"}, prompt(s, MsgInvalidValue))
			return nil
		}
		s.Lat, s.HasLat = lat, true
		s.At = StepAwaitLongitude
		return e.advance(ctx, ch, ev.Owner, s, Reply{Text: MsgAddLon})

	case StepAwaitLongitude:
		lon, ok := validate.ParseCoordinate(text)
		if !ok {
			e.reprompt(ctx, ch, s, &ValidationError{Field: "lon", Reason: "not a number"}, prompt(s, MsgInvalidValue))
			return nil
		}
		s.Lon, s.HasLon = lon, true
		s.At = StepAwaitName
		return e.advance(ctx, ch, ev.Owner, s, Reply{Text: MsgAddName})

	case StepAwaitName:
		name := validate.CleanText(ev.Text)
		if name == "" {
			e.reprompt(ctx, ch, s, &ValidationError{Field: "name", Reason: "empty"}, Reply{Text: MsgInvalidName})
			return nil
		}
		if !validate.NameFits(name) {
			e.reprompt(ctx, ch, s, &ValidationError{Field: "name", Reason: "too long"}, Reply{Text: MsgNameTooLong})
			return nil
		}
		mine, err := e.store.ForOwner(ctx, ev.Owner)
		if err != nil {
			return &StorageError{Op: "read", Err: err}
		}
		if validate.HasDuplicateName(mine, ev.Owner, name) {
			e.abort(ctx, ch, ev.Owner, s, &ValidationError{Field: "name", Reason: "duplicate", Abort: true}, MsgDuplicateName)
			return nil
		}
		s.Name = name
		s.At = StepAwaitNodeType
		return e.advance(ctx, ch, ev.Owner, s, nodeTypeReply(MsgSelectNodeType))

	case StepAwaitNodeType:
		if !validate.IsNodeType(text) {
			e.reprompt(ctx, ch, s, &ValidationError{Field: "node_type", Reason: "not in list"}, nodeTypeReply(MsgPickNodeType))
			return nil
		}
		s.NodeType = text
		s.At = StepAwaitFrequency
		return e.advance(ctx, ch, ev.Owner, s, frequencyReply(MsgSelectFreq))

	case StepAwaitFrequency:
		if !validate.IsFrequency(text) {
			e.reprompt(ctx, ch, s, &ValidationError{Field: "frequency", Reason: "not in list"}, frequencyReply(MsgPickFrequency))
			return nil
		}
		s.Frequency = text
		s.At = StepAwaitDescription
		return e.advance(ctx, ch, ev.Owner, s, Reply{Text: MsgEnterDesc, RemoveKeyboard: true})

	case StepAwaitDescription:
		desc := validate.CleanText(ev.Text)
		if !validate.DescFits(desc) {
			e.abort(ctx, ch, ev.Owner, s, &ValidationError{Field: "desc", Reason: "too long", Abort: true}, MsgDescTooLong)
			return nil
		}
		s.Desc = desc
		s.At = StepAwaitLinkChoice
		return e.advance(ctx, ch, ev.Owner, s, linkChoiceReply())

	case StepAwaitLinkChoice:
		if validate.IsYes(text) {
			s.At = StepAwaitLink
			return e.advance(ctx, ch, ev.Owner, s, Reply{Text: MsgAddLink, RemoveKeyboard: true})
		}
		s.Link = ""
		return e.commitAdd(ctx, ch, ev, s)

	case StepAwaitLink:
		if !validate.LinkFits(text) {
			e.reprompt(ctx, ch, s, &ValidationError{Field: "link", Reason: "too long"}, Reply{Text: MsgLinkTooLong})
			return nil
		}
		if !validate.IsValidURL(text) {
			e.reprompt(ctx, ch, s, &ValidationError{Field: "link", Reason: "not a url"}, Reply{Text: MsgInvalidLink})
			return nil
		}
		s.Link = text
		return e.commitAdd(ctx, ch, ev, s)
	}
	return &StateError{Op: "add", Err: fmt.Errorf("unexpected step %q", s.At)}
}

// missing names the first required field the session lacks.
func (s AddSession) missing() string {
	switch {
	case !s.HasLat:
		return "lat"
	case !s.HasLon:
		return "lon"
	case s.Name == "":
		return "name"
	case s.NodeType == "":
		return "node_type"
	case s.Frequency == "":
		return "frequency"
	}
	return ""
}

// commitAdd persists the collected marker. The session is gone afterwards whatever happens.
func (e *Engine) commitAdd(ctx context.Context, ch Channel, ev Event, s AddSession) error {
	defer e.sessions.Discard(ev.Owner)

	if field := s.missing(); field != "" {
		return &StateError{Op: "commit", Err: fmt.Errorf("missing field %s", field)}
	}
	m, err := e.store.Append(ctx, marker.Marker{
		ID:        ev.Owner,
		Name:      s.Name,
		Lat:       s.Lat,
		Lon:       s.Lon,
		Desc:      s.Desc,
		NodeType:  s.NodeType,
		Frequency: s.Frequency,
		Link:      s.Link,
		User:      handleOrAnon(ev.Handle),
	})
	if err != nil {
		return &StorageError{Op: "append", Err: err}
	}
	e.finish(ctx, s, slog.String("marker", m.Name))
	e.say(ctx, ch, Reply{Text: MsgMarkerAdded, RemoveKeyboard: true})
	e.notify(ctx, addedLog(m))
	return nil
}
