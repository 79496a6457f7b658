package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/markerbot/app/marker"
	"github.com/m3rciful/markerbot/app/store"
	"github.com/m3rciful/markerbot/core/buildinfo"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	assert.Equal(t, "markerbot "+buildinfo.String()+"\n", execute(t, "version"))
}

func TestStatsCommandReadsTable(t *testing.T) {
	dir := t.TempDir()
	table := filepath.Join(dir, "dati.csv")
	st, err := store.New(store.Options{Path: table})
	require.NoError(t, err)
	require.NoError(t, st.ReplaceAll(context.Background(), []marker.Marker{
		{ID: "9", Name: "Torre", User: "gigi", Lat: 1, Lon: 2, NodeType: "Altro", Frequency: "868 MHz"},
	}))

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("telegram:\n  token: \"1:x\"\nmarkers:\n  table_path: "+table+"\n"), 0o600))

	out := execute(t, "stats", "--config", cfgPath)
	assert.Contains(t, out, "markers")
	assert.Contains(t, out, "@gigi")
	assert.Regexp(t, `owners\s+1`, out)
}
