package flow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/markerbot/app/marker"
	"github.com/m3rciful/markerbot/app/store"
	"github.com/m3rciful/markerbot/core/telegram/state"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingChannel struct {
	mu      sync.Mutex
	replies []Reply
	failing bool
}

func (c *recordingChannel) Send(_ context.Context, r Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, r)
	if c.failing {
		return errors.New("chat unreachable")
	}
	return nil
}

func (c *recordingChannel) SendDocument(context.Context, Document) error { return nil }
func (c *recordingChannel) Edit(context.Context, Reply) error            { return nil }

func (c *recordingChannel) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.replies))
	for i, r := range c.replies {
		out[i] = r.Text
	}
	return out
}

func (c *recordingChannel) last() Reply {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return Reply{}
	}
	return c.replies[len(c.replies)-1]
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) {
	n.mu.Lock()
	n.texts = append(n.texts, text)
	n.mu.Unlock()
}

type gate bool

func (g gate) Enabled() bool { return bool(g) }

// brokenStore fails or panics on demand and otherwise delegates to a real store.
type brokenStore struct {
	*store.Store
	appendErr error
	panicOn   string
}

func (b *brokenStore) Append(ctx context.Context, m marker.Marker) (marker.Marker, error) {
	if b.panicOn == "append" {
		panic("boom")
	}
	if b.appendErr != nil {
		return marker.Marker{}, b.appendErr
	}
	return b.Store.Append(ctx, m)
}

type harness struct {
	engine   *Engine
	store    *store.Store
	clock    *fakeClock
	ch       *recordingChannel
	notifier *recordingNotifier
	sessions *state.Registry[Session]
}

func newHarness(t *testing.T, wrap func(*store.Store) Store) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	st, err := store.New(store.Options{
		Path: filepath.Join(t.TempDir(), "dati.csv"),
		Now:  clock.Now,
	})
	require.NoError(t, err)
	sessions := state.NewRegistry[Session](state.Options{Timeout: 300 * time.Second, Now: clock.Now})

	var backend Store = st
	if wrap != nil {
		backend = wrap(st)
	}
	notifier := &recordingNotifier{}
	n := 0
	e, err := New(Options{
		Store:    backend,
		Sessions: sessions,
		Quota:    marker.Quota{Normal: 3, Special: 6, SpecialIDs: []string{"777"}},
		Notifier: notifier,
		Gate:     gate(true),
		NewID: func() string {
			n++
			return "flow-" + strconv.Itoa(n)
		},
	})
	require.NoError(t, err)
	return &harness{engine: e, store: st, clock: clock, ch: &recordingChannel{}, notifier: notifier, sessions: sessions}
}

func (h *harness) text(t *testing.T, owner, text string) {
	t.Helper()
	handled, err := h.engine.Handle(context.Background(), h.ch, Event{Owner: owner, Handle: "@tester", Kind: KindText, Text: text})
	require.NoError(t, err)
	require.True(t, handled, "no session for %q", text)
}

func (h *harness) seed(t *testing.T, markers ...marker.Marker) {
	t.Helper()
	require.NoError(t, h.store.ReplaceAll(context.Background(), markers))
}

func (h *harness) markers(t *testing.T) []marker.Marker {
	t.Helper()
	all, err := h.store.ReadAll(context.Background())
	require.NoError(t, err)
	return all
}

func TestAddFlowPersistsMarker(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.engine.BeginAdd(ctx, h.ch, "42"))
	assert.Equal(t, MsgAddLat, h.ch.last().Text)
	assert.True(t, h.ch.last().Cancel)

	h.text(t, "42", "45.0")
	h.text(t, "42", "9.0")
	h.text(t, "42", "Test")
	assert.Equal(t, MsgSelectNodeType, h.ch.last().Text)
	h.text(t, "42", marker.NodeTypes[0])
	h.text(t, "42", marker.Frequencies[0])
	h.text(t, "42", "hello")
	assert.Equal(t, MsgLinkAsk, h.ch.last().Text)
	h.text(t, "42", "No")
	assert.Equal(t, MsgMarkerAdded, h.ch.last().Text)

	want := []marker.Marker{{
		ID: "42", Name: "Test", Lat: 45, Lon: 9, Desc: "hello",
		NodeType: marker.NodeTypes[0], Frequency: marker.Frequencies[0],
		User: "@tester", Timestamp: 1_700_000_000,
	}}
	if diff := cmp.Diff(want, h.markers(t)); diff != "" {
		t.Fatalf("markers mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, h.engine.Active("42"))
	require.Len(t, h.notifier.texts, 1)
	assert.Contains(t, h.notifier.texts[0], "Test")

	require.NoError(t, h.engine.List(ctx, h.ch, "42"))
	first := h.ch.last().Text
	require.NoError(t, h.engine.List(ctx, h.ch, "42"))
	assert.Equal(t, first, h.ch.last().Text)
	assert.Contains(t, first, "• Test")
}

func TestAddFlowLocationSkipsLongitude(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.engine.BeginAdd(context.Background(), h.ch, "42"))

	handled, err := h.engine.Handle(context.Background(), h.ch, Event{Owner: "42", Kind: KindLocation, Lat: 44.5, Lon: 11.25})
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, MsgAddName, h.ch.last().Text)

	sess, st := h.sessions.Lookup("42")
	require.Equal(t, state.StatusActive, st)
	add := sess.Value.(AddSession)
	assert.Equal(t, StepAwaitName, add.At)
	assert.InDelta(t, 44.5, add.Lat, 1e-9)
	assert.InDelta(t, 11.25, add.Lon, 1e-9)
}

func TestAddFlowRepromptsOnBadInput(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.engine.BeginAdd(context.Background(), h.ch, "42"))

	h.text(t, "42", "north")
	assert.Equal(t, MsgInvalidValue+MsgAddLat, h.ch.last().Text)
	h.text(t, "42", "45")
	h.text(t, "42", "east")
	assert.Equal(t, MsgInvalidValue+MsgAddLon, h.ch.last().Text)
	h.text(t, "42", "9")
	h.text(t, "42", "A very long marker name")
	assert.Equal(t, MsgNameTooLong, h.ch.last().Text)
	h.text(t, "42", "Ok")
	h.text(t, "42", "LoRa")
	assert.Equal(t, MsgPickNodeType, h.ch.last().Text)
	h.text(t, "42", "MeshCore")
	h.text(t, "42", "915 MHz")
	assert.Equal(t, MsgPickFrequency, h.ch.last().Text)

	sess, st := h.sessions.Lookup("42")
	require.Equal(t, state.StatusActive, st)
	assert.Equal(t, StepAwaitFrequency, sess.Value.Step())
}

func TestAddRejectedAtQuota(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t,
		marker.Marker{ID: "42", Name: "a", Lat: 1, Lon: 1},
		marker.Marker{ID: "42", Name: "b", Lat: 1, Lon: 1},
		marker.Marker{ID: "42", Name: "c", Lat: 1, Lon: 1},
	)

	require.NoError(t, h.engine.BeginAdd(context.Background(), h.ch, "42"))
	assert.Equal(t, []string{quotaReached(3)}, h.ch.texts())
	assert.False(t, h.engine.Active("42"))
}

func TestSpecialOwnerHasLargerQuota(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t,
		marker.Marker{ID: "777", Name: "a", Lat: 1, Lon: 1},
		marker.Marker{ID: "777", Name: "b", Lat: 1, Lon: 1},
		marker.Marker{ID: "777", Name: "c", Lat: 1, Lon: 1},
	)

	require.NoError(t, h.engine.BeginAdd(context.Background(), h.ch, "777"))
	assert.Equal(t, MsgAddLat, h.ch.last().Text)
	assert.True(t, h.engine.Active("777"))
}

func TestAddDuplicateNameAborts(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, marker.Marker{ID: "42", Name: "Foo", Lat: 1, Lon: 1})

	require.NoError(t, h.engine.BeginAdd(context.Background(), h.ch, "42"))
	h.text(t, "42", "45")
	h.text(t, "42", "9")
	h.text(t, "42", "foo")

	assert.Equal(t, MsgDuplicateName, h.ch.last().Text)
	assert.False(t, h.engine.Active("42"))
	assert.Len(t, h.markers(t), 1)
}

func TestAddLongDescriptionAborts(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.engine.BeginAdd(context.Background(), h.ch, "42"))
	for _, in := range []string{"45", "9", "Desc", "Altro", "433 MHz"} {
		h.text(t, "42", in)
	}
	h.text(t, "42", "this description is clearly longer than fifty characters")

	assert.Equal(t, MsgDescTooLong, h.ch.last().Text)
	assert.False(t, h.engine.Active("42"))
	assert.Empty(t, h.markers(t))
}

func TestExpiredSessionRejectsInput(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.engine.BeginAdd(context.Background(), h.ch, "42"))
	h.text(t, "42", "45")
	h.text(t, "42", "9")

	h.clock.Advance(301 * time.Second)
	h.text(t, "42", "Late")

	assert.Equal(t, MsgExpired, h.ch.last().Text)
	assert.False(t, h.engine.Active("42"))
	assert.Empty(t, h.markers(t))

	handled, err := h.engine.Handle(context.Background(), h.ch, Event{Owner: "42", Kind: KindText, Text: "again"})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestCancelOnExpiredSessionReportsExpiry(t *testing.T) {
	tests := []struct {
		name   string
		cancel func(h *harness) error
	}{
		{name: "typed", cancel: func(h *harness) error {
			_, err := h.engine.Handle(context.Background(), h.ch, Event{Owner: "42", Kind: KindText, Text: "Annulla"})
			return err
		}},
		{name: "command", cancel: func(h *harness) error {
			return h.engine.Cancel(context.Background(), h.ch, "42")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			require.NoError(t, h.engine.BeginAdd(context.Background(), h.ch, "42"))
			h.clock.Advance(301 * time.Second)

			require.NoError(t, tt.cancel(h))
			assert.Equal(t, MsgExpired, h.ch.last().Text)
			assert.False(t, h.engine.Active("42"))

			require.NoError(t, tt.cancel(h))
			assert.Equal(t, MsgNothingToEnd, h.ch.last().Text)
		})
	}
}

func TestInvalidInputDoesNotRefreshActivity(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.engine.BeginAdd(context.Background(), h.ch, "42"))

	h.clock.Advance(200 * time.Second)
	h.text(t, "42", "north")
	h.clock.Advance(101 * time.Second)
	h.text(t, "42", "45")

	assert.Equal(t, MsgExpired, h.ch.last().Text)
}

func TestLinkTooLongReprompts(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.engine.BeginAdd(context.Background(), h.ch, "42"))
	for _, in := range []string{"45", "9", "Linked", "Mehstastic", "868 MHz", "", "Sì"} {
		h.text(t, "42", in)
	}
	assert.Equal(t, MsgAddLink, h.ch.last().Text)

	h.text(t, "42", "https://example.com/a/very/long/path/to/somewhere")
	assert.Equal(t, MsgLinkTooLong, h.ch.last().Text)
	sess, st := h.sessions.Lookup("42")
	require.Equal(t, state.StatusActive, st)
	assert.Equal(t, StepAwaitLink, sess.Value.Step())

	h.text(t, "42", "ftp://x.io")
	assert.Equal(t, MsgInvalidLink, h.ch.last().Text)

	h.text(t, "42", "https://x.io")
	assert.Equal(t, MsgMarkerAdded, h.ch.last().Text)
	all := h.markers(t)
	require.Len(t, all, 1)
	assert.Equal(t, "https://x.io", all[0].Link)
	assert.Empty(t, all[0].Desc)
}

func TestEntryRefusedWhileFlowActive(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, marker.Marker{ID: "42", Name: "Foo", Lat: 1, Lon: 1})
	ctx := context.Background()

	require.NoError(t, h.engine.BeginAdd(ctx, h.ch, "42"))
	require.NoError(t, h.engine.BeginRename(ctx, h.ch, "42"))
	assert.Equal(t, MsgInProgress, h.ch.last().Text)
	require.NoError(t, h.engine.BeginDelete(ctx, h.ch, "42"))
	assert.Equal(t, MsgInProgress, h.ch.last().Text)
	require.NoError(t, h.engine.List(ctx, h.ch, "42"))
	assert.Equal(t, MsgInProgress, h.ch.last().Text)

	sess, _ := h.sessions.Lookup("42")
	assert.Equal(t, FlowAdd, sess.Value.Flow())
}

func TestCancelDiscardsSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.engine.Cancel(ctx, h.ch, "42"))
	assert.Equal(t, MsgNothingToEnd, h.ch.last().Text)

	require.NoError(t, h.engine.BeginAdd(ctx, h.ch, "42"))
	h.text(t, "42", "45")
	h.text(t, "42", "annulla")
	assert.Equal(t, MsgCancelled, h.ch.last().Text)
	assert.False(t, h.engine.Active("42"))

	require.NoError(t, h.engine.BeginAdd(ctx, h.ch, "42"))
	require.NoError(t, h.engine.Cancel(ctx, h.ch, "42"))
	assert.Equal(t, MsgCancelled, h.ch.last().Text)
	assert.False(t, h.engine.Active("42"))
}

func TestRenameFlow(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t,
		marker.Marker{ID: "42", Name: "One", Lat: 1, Lon: 1},
		marker.Marker{ID: "7", Name: "Other", Lat: 2, Lon: 2},
		marker.Marker{ID: "42", Name: "Two", Lat: 3, Lon: 3},
	)
	ctx := context.Background()

	require.NoError(t, h.engine.BeginRename(ctx, h.ch, "42"))
	assert.Equal(t, MsgRenameSelect+"1. One\n2. Two", h.ch.last().Text)

	h.text(t, "42", "3")
	assert.Equal(t, MsgInvalidSelection, h.ch.last().Text)
	h.text(t, "42", "2")
	assert.Equal(t, MsgRenameNewName, h.ch.last().Text)
	h.text(t, "42", `"one"`)
	assert.Equal(t, MsgDuplicateName, h.ch.last().Text)
	assert.False(t, h.engine.Active("42"))

	require.NoError(t, h.engine.BeginRename(ctx, h.ch, "42"))
	h.text(t, "42", "2")
	h.text(t, "42", "  'Deux'  ")
	assert.Equal(t, MsgNameUpdated, h.ch.last().Text)

	assert.Equal(t, []string{"One", "Other", "Deux"}, names(h.markers(t)))
	require.Len(t, h.notifier.texts, 1)
	assert.Contains(t, h.notifier.texts[0], "Vecchio nome: Two")
	assert.Contains(t, h.notifier.texts[0], "Nuovo nome: Deux")
}

func TestNameStepReprompts(t *testing.T) {
	tests := []struct {
		name  string
		flow  Name
		input string
		want  string
		step  Step
	}{
		{name: "add empty", flow: FlowAdd, input: "", want: MsgInvalidName, step: StepAwaitName},
		{name: "add only quotes", flow: FlowAdd, input: `""`, want: MsgInvalidName, step: StepAwaitName},
		{name: "rename empty", flow: FlowRename, input: "   ", want: MsgInvalidName, step: StepAwaitNewName},
		{name: "rename only quotes", flow: FlowRename, input: "''", want: MsgInvalidName, step: StepAwaitNewName},
		{name: "rename too long", flow: FlowRename, input: "Fifteen chars!!", want: MsgNameTooLong, step: StepAwaitNewName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.seed(t, marker.Marker{ID: "42", Name: "One", Lat: 1, Lon: 1})
			ctx := context.Background()
			if tt.flow == FlowAdd {
				require.NoError(t, h.engine.BeginAdd(ctx, h.ch, "42"))
				h.text(t, "42", "45")
				h.text(t, "42", "9")
			} else {
				require.NoError(t, h.engine.BeginRename(ctx, h.ch, "42"))
				h.text(t, "42", "1")
			}

			h.text(t, "42", tt.input)
			assert.Equal(t, tt.want, h.ch.last().Text)
			sess, st := h.sessions.Lookup("42")
			require.Equal(t, state.StatusActive, st)
			assert.Equal(t, tt.step, sess.Value.Step())
			assert.Equal(t, []string{"One"}, names(h.markers(t)))
		})
	}
}

func TestRenameStaleOrdinalFails(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t,
		marker.Marker{ID: "42", Name: "A", Lat: 1, Lon: 1},
		marker.Marker{ID: "42", Name: "B", Lat: 2, Lon: 2},
	)
	ctx := context.Background()
	require.NoError(t, h.engine.BeginRename(ctx, h.ch, "42"))
	h.text(t, "42", "2")
	h.seed(t, marker.Marker{ID: "42", Name: "A", Lat: 1, Lon: 1})

	_, err := h.engine.Handle(ctx, h.ch, Event{Owner: "42", Kind: KindText, Text: "Bee"})
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeState, se.Code())
	assert.True(t, Reported(err))
	assert.Equal(t, MsgOperationFailed, h.ch.last().Text)
	assert.False(t, h.engine.Active("42"))
	assert.Equal(t, []string{"A"}, names(h.markers(t)))
	assert.Empty(t, h.notifier.texts)
}

func names(all []marker.Marker) []string {
	out := make([]string, 0, len(all))
	for _, m := range all {
		out = append(out, m.Name)
	}
	return out
}

func TestRenameWithoutMarkers(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.engine.BeginRename(context.Background(), h.ch, "42"))
	assert.Equal(t, MsgNoMarkersToRename, h.ch.last().Text)
	assert.False(t, h.engine.Active("42"))
}

func TestDeleteSecondOfThree(t *testing.T) {
	h := newHarness(t, nil)
	seed := []marker.Marker{
		{ID: "42", Name: "A", Lat: 1, Lon: 1, Desc: "first", User: "@tester"},
		{ID: "9", Name: "X", Lat: 5, Lon: 5, User: "bob"},
		{ID: "42", Name: "B", Lat: 2, Lon: 2, Link: "https://b.io", User: "@tester"},
		{ID: "42", Name: "C", Lat: 3, Lon: 3, User: "@tester"},
	}
	h.seed(t, seed...)

	require.NoError(t, h.engine.BeginDelete(context.Background(), h.ch, "42"))
	h.text(t, "42", "2")

	texts := h.ch.texts()
	require.GreaterOrEqual(t, len(texts), 2)
	assert.Equal(t, MsgMarkerDeleted, texts[len(texts)-2])
	assert.Equal(t, ListText([]marker.Marker{seed[0], seed[3]}), h.ch.last().Text)

	want := []marker.Marker{seed[0], seed[1], seed[3]}
	if diff := cmp.Diff(want, h.markers(t)); diff != "" {
		t.Fatalf("markers mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, h.notifier.texts, 1)
	assert.Contains(t, h.notifier.texts[0], "https://b.io")
	assert.False(t, h.engine.Active("42"))
}

func TestDeleteLastMarker(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, marker.Marker{ID: "42", Name: "Only", Lat: 1, Lon: 1})

	require.NoError(t, h.engine.BeginDelete(context.Background(), h.ch, "42"))
	h.text(t, "42", "1")
	assert.Equal(t, MsgNoMarkersLeft, h.ch.last().Text)
	assert.Empty(t, h.markers(t))
}

func TestDeleteStaleOrdinalFails(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t,
		marker.Marker{ID: "42", Name: "A", Lat: 1, Lon: 1},
		marker.Marker{ID: "42", Name: "B", Lat: 2, Lon: 2},
	)
	require.NoError(t, h.engine.BeginDelete(context.Background(), h.ch, "42"))
	h.seed(t, marker.Marker{ID: "42", Name: "A", Lat: 1, Lon: 1})

	_, err := h.engine.Handle(context.Background(), h.ch, Event{Owner: "42", Kind: KindText, Text: "2"})
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.True(t, Reported(err))
	assert.Equal(t, MsgDeletionError, h.ch.last().Text)
	assert.False(t, h.engine.Active("42"))
	assert.Len(t, h.markers(t), 1)
}

func TestStorageFailureDiscardsSession(t *testing.T) {
	h := newHarness(t, func(s *store.Store) Store {
		return &brokenStore{Store: s, appendErr: errors.New("disk full")}
	})
	require.NoError(t, h.engine.BeginAdd(context.Background(), h.ch, "42"))
	for _, in := range []string{"45", "9", "Name", "Altro", "433 MHz", "d"} {
		h.text(t, "42", in)
	}

	_, err := h.engine.Handle(context.Background(), h.ch, Event{Owner: "42", Kind: KindText, Text: "no"})
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeStorage, se.Code())
	assert.Equal(t, MsgSaveFailed, h.ch.last().Text)
	assert.False(t, h.engine.Active("42"))
	assert.Empty(t, h.notifier.texts)
}

func TestPanicInStepDiscardsSession(t *testing.T) {
	h := newHarness(t, func(s *store.Store) Store {
		return &brokenStore{Store: s, panicOn: "append"}
	})
	require.NoError(t, h.engine.BeginAdd(context.Background(), h.ch, "42"))
	for _, in := range []string{"45", "9", "Name", "Altro", "433 MHz", "d"} {
		h.text(t, "42", in)
	}

	_, err := h.engine.Handle(context.Background(), h.ch, Event{Owner: "42", Kind: KindText, Text: "no"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errPanic)
	assert.Equal(t, MsgOperationFailed, h.ch.last().Text)
	assert.False(t, h.engine.Active("42"))
}

func TestTransportFailureDoesNotAbortFlow(t *testing.T) {
	h := newHarness(t, nil)
	h.ch.failing = true
	require.NoError(t, h.engine.BeginAdd(context.Background(), h.ch, "42"))
	h.text(t, "42", "45")

	sess, st := h.sessions.Lookup("42")
	require.Equal(t, state.StatusActive, st)
	assert.Equal(t, StepAwaitLongitude, sess.Value.Step())
}

func TestLoggingGateSuppressesNotifications(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.gate = gate(false)
	h.seed(t, marker.Marker{ID: "42", Name: "Only", Lat: 1, Lon: 1})

	require.NoError(t, h.engine.BeginDelete(context.Background(), h.ch, "42"))
	h.text(t, "42", "1")
	assert.Empty(t, h.notifier.texts)
}

func TestConcurrentEntrySingleSession(t *testing.T) {
	h := newHarness(t, nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.engine.BeginAdd(context.Background(), h.ch, "42"))
		}()
	}
	wg.Wait()

	prompts := 0
	for _, text := range h.ch.texts() {
		if text == MsgAddLat {
			prompts++
		}
	}
	assert.Equal(t, 1, prompts)
	assert.Equal(t, 1, h.sessions.Len())
}

func TestConcurrentOwnersCommitWithoutLosingRows(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	const owners = 8
	var wg sync.WaitGroup
	for i := 0; i < owners; i++ {
		owner := strconv.Itoa(100 + i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := &recordingChannel{}
			assert.NoError(t, h.engine.BeginAdd(ctx, ch, owner))
			for _, in := range []string{"45", "9", "N" + owner, "Altro", "433 MHz", "d", "no"} {
				_, err := h.engine.Handle(ctx, ch, Event{Owner: owner, Kind: KindText, Text: in})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, h.markers(t), owners)
}

func TestSweepReclaimsIdleSessions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.engine.BeginAdd(ctx, h.ch, "1"))
	h.clock.Advance(200 * time.Second)
	require.NoError(t, h.engine.BeginAdd(ctx, h.ch, "2"))
	sent := len(h.ch.texts())

	h.clock.Advance(150 * time.Second)
	assert.Equal(t, 1, h.engine.Sweep(ctx))
	assert.False(t, h.engine.Active("1"))
	assert.True(t, h.engine.Active("2"))
	assert.Len(t, h.ch.texts(), sent, "sweeper must stay silent")

	handled, err := h.engine.Handle(ctx, h.ch, Event{Owner: "1", Kind: KindText, Text: "45"})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestStrayTextWithoutSession(t *testing.T) {
	h := newHarness(t, nil)
	handled, err := h.engine.Handle(context.Background(), h.ch, Event{Owner: "42", Kind: KindText, Text: "ciao"})
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, h.ch.texts())
}

func TestLocationOutsideCoordinateStepReprompts(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.engine.BeginAdd(context.Background(), h.ch, "42"))
	h.text(t, "42", "45")

	_, err := h.engine.Handle(context.Background(), h.ch, Event{Owner: "42", Kind: KindLocation, Lat: 1, Lon: 2})
	require.NoError(t, err)
	assert.Equal(t, MsgInvalidValue+MsgAddLon, h.ch.last().Text)
}

func ExampleListText() {
	fmt.Print(ListText([]marker.Marker{{Name: "Duomo", Link: "https://x.io"}, {Name: "Navigli"}}))
	// Output:
	// I tuoi marker:
	//
	// • Duomo → https://x.io
	// • Navigli
}
