package admin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/markerbot/app/marker"
)

func TestComputeEmptyTable(t *testing.T) {
	st := Compute(nil, marker.DefaultQuotas())
	assert.Zero(t, st.Total)
	assert.Zero(t, st.LinkShare())
	assert.Empty(t, st.Top)
	assert.Contains(t, st.HTML(), "<b>Marker con link:</b> 0 (0.0%)")
}

func TestComputeRanksOwners(t *testing.T) {
	q := marker.Quota{Normal: 3, Special: 6, SpecialIDs: []string{"20"}}
	all := []marker.Marker{
		{ID: "10", User: "alice", Link: "https://a.io"},
		{ID: "20", User: marker.Anonymous},
		{ID: "20", User: marker.Anonymous, Link: "https://b.io"},
		{ID: "30", User: "carol"},
		{ID: "40", User: "dave"},
		{ID: "50", User: "erin"},
		{ID: "60", User: "frank"},
		{ID: "10", User: "alice"},
	}

	st := Compute(all, q)
	assert.Equal(t, 8, st.Total)
	assert.Equal(t, 6, st.Owners)
	assert.Equal(t, 2, st.WithLink)
	assert.Equal(t, 1, st.SpecialOwners)
	assert.InDelta(t, 0.25, st.LinkShare(), 1e-9)

	want := []Contributor{
		{Owner: "10", Handle: "alice", Count: 2},
		{Owner: "20", Handle: marker.Anonymous, Count: 2},
		{Owner: "30", Handle: "carol", Count: 1},
		{Owner: "40", Handle: "dave", Count: 1},
		{Owner: "50", Handle: "erin", Count: 1},
	}
	if diff := cmp.Diff(want, st.Top); diff != "" {
		t.Fatalf("top mismatch (-want +got):\n%s", diff)
	}

	out := st.HTML()
	assert.Contains(t, out, "1. @alice: 2 marker\n")
	assert.Contains(t, out, "2. Utente #20: 2 marker\n")
	assert.Contains(t, out, "(25.0%)")
	assert.Contains(t, out, "3 (normali), 6 (speciali)")
	assert.NotContains(t, out, "frank")
}

func TestLogStateDefaultsToEnabled(t *testing.T) {
	ls, err := LoadLogState(context.Background(), filepath.Join(t.TempDir(), "log_state.json"))
	require.NoError(t, err)
	assert.True(t, ls.Enabled())
}

func TestLogStateTogglePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "log_state.json")
	ctx := context.Background()

	ls, err := LoadLogState(ctx, path)
	require.NoError(t, err)
	got, err := ls.Toggle(ctx)
	require.NoError(t, err)
	assert.False(t, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"enabled": false}`, string(data))

	reloaded, err := LoadLogState(ctx, path)
	require.NoError(t, err)
	assert.False(t, reloaded.Enabled())
	assert.Equal(t, "🔔 Attiva log", ToggleButtonText(reloaded))

	got, err = reloaded.Toggle(ctx)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestLogStateRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log_state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	_, err := LoadLogState(context.Background(), path)
	require.Error(t, err)
}
