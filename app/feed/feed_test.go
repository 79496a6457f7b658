package feed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/markerbot/app/marker"
	"github.com/m3rciful/markerbot/app/store"
)

func newFeed(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.New(store.Options{Path: filepath.Join(t.TempDir(), "dati.csv")})
	require.NoError(t, err)
	require.NoError(t, st.ReplaceAll(context.Background(), []marker.Marker{
		{ID: "1", Name: "Duomo", Lat: 45.4642, Lon: 9.19, NodeType: "MeshCore", Frequency: "868 MHz", User: "alice", Timestamp: 1_700_000_000},
		{ID: "2", Name: "Garda", Lat: 45.6, Lon: 10.6, NodeType: "Altro", Frequency: "433 MHz", Link: "https://g.io", User: "bob"},
	}))
	return New(Options{Source: st, Metrics: http.NotFoundHandler()}), st
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		Geometry struct {
			Type        string    `json:"type"`
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

func TestGeoJSONRendersPoints(t *testing.T) {
	srv, _ := newFeed(t)
	rec := get(t, srv.Handler(), "/markers.geojson")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	var fc featureCollection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "Point", fc.Features[0].Geometry.Type)
	assert.Equal(t, []float64{9.19, 45.4642}, fc.Features[0].Geometry.Coordinates)
	assert.Equal(t, "Duomo", fc.Features[0].Properties["name"])
	assert.Equal(t, "https://g.io", fc.Features[1].Properties["link"])
	assert.NotContains(t, fc.Features[1].Properties, "timestamp")
}

type stubSource []marker.Marker

func (s stubSource) ReadAll(context.Context) ([]marker.Marker, error) { return s, nil }
func (s stubSource) Raw(context.Context) ([]byte, error)              { return nil, nil }

func TestGeoJSONSkipsUnplaceableMarkers(t *testing.T) {
	srv := New(Options{Source: stubSource{
		{ID: "1", Name: "Nan", Lat: math.NaN(), Lon: 9},
		{ID: "2", Name: "Handwritten", Raw: marker.Raw{Lat: "n/d", Lon: "9.2", BadCoordinates: true}},
		{ID: "3", Name: "Garda", Lat: 45.6, Lon: 10.6},
	}})
	rec := get(t, srv.Handler(), "/markers.geojson")
	require.Equal(t, http.StatusOK, rec.Code)

	var fc featureCollection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "Garda", fc.Features[0].Properties["name"])
}

func TestGeoJSONFilters(t *testing.T) {
	srv, _ := newFeed(t)
	rec := get(t, srv.Handler(), "/markers.geojson?frequency=433+MHz")
	require.Equal(t, http.StatusOK, rec.Code)

	var fc featureCollection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "Garda", fc.Features[0].Properties["name"])
}

func TestCacheInvalidation(t *testing.T) {
	srv, st := newFeed(t)
	h := srv.Handler()
	first := get(t, h, "/summary.json").Body.String()
	assert.JSONEq(t, `{"total":2,"owners":2,"last_update":1700000000}`, first)

	require.NoError(t, st.ReplaceAll(context.Background(), nil))
	assert.Equal(t, first, get(t, h, "/summary.json").Body.String())

	srv.Invalidate()
	assert.JSONEq(t, `{"total":0,"owners":0}`, get(t, h, "/summary.json").Body.String())
}

func TestCSVIsNeverCached(t *testing.T) {
	srv, st := newFeed(t)
	h := srv.Handler()
	rec := get(t, h, "/markers.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "Duomo")

	require.NoError(t, st.ReplaceAll(context.Background(), nil))
	body := get(t, h, "/markers.csv").Body.String()
	assert.NotContains(t, body, "Duomo")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "timestamp"))
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	srv, _ := newFeed(t)
	h := srv.Handler()
	assert.Equal(t, "ok", get(t, h, "/healthz").Body.String())
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/nope").Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv, _ := newFeed(t)
	srv.listen = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop")
	}
}
