// Package feed serves the marker table read-only over HTTP for the public map.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/peterstace/simplefeatures/geom"

	"github.com/m3rciful/markerbot/app/marker"
	"github.com/m3rciful/markerbot/core/logger"
)

// Source is the part of the store the feed reads.
type Source interface {
	ReadAll(ctx context.Context) ([]marker.Marker, error)
	Raw(ctx context.Context) ([]byte, error)
}

// Options configures a Server.
type Options struct {
	Listen  string
	Source  Source
	Metrics http.Handler
}

// Server is the map feed.
type Server struct {
	listen  string
	src     Source
	metrics http.Handler

	mu      sync.Mutex
	geojson []byte
	summary []byte
}

// New builds the feed. It does not listen until Run.
func New(opts Options) *Server {
	return &Server{listen: opts.Listen, src: opts.Source, metrics: opts.Metrics}
}

// Invalidate drops the cached renderings; the table changed.
func (s *Server) Invalidate() {
	s.mu.Lock()
	s.geojson = nil
	s.summary = nil
	s.mu.Unlock()
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/markers.csv", s.serveCSV)
	r.Get("/markers.geojson", s.serveGeoJSON)
	r.Get("/summary.json", s.serveSummary)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info(ctx, "feed", "feed.start", slog.String("status", "ok"), slog.String("listen", s.listen))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("feed: listen %s: %w", s.listen, err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	logger.Info(ctx, "feed", "feed.stop", slog.String("status", logger.StatusOf(err)))
	return err
}

func (s *Server) serveCSV(w http.ResponseWriter, r *http.Request) {
	data, err := s.src.Raw(r.Context())
	if err != nil {
		s.fail(w, r, "csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func (s *Server) serveGeoJSON(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	nodeType, freq := q.Get("node_type"), q.Get("frequency")

	var (
		body []byte
		err  error
	)
	if nodeType == "" && freq == "" {
		body, err = s.cached(r.Context(), &s.geojson, func(all []marker.Marker) ([]byte, error) {
			return renderGeoJSON(r.Context(), all)
		})
	} else {
		var all []marker.Marker
		if all, err = s.src.ReadAll(r.Context()); err == nil {
			body, err = renderGeoJSON(r.Context(), filter(all, nodeType, freq))
		}
	}
	if err != nil {
		s.fail(w, r, "geojson", err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(body)
}

func (s *Server) serveSummary(w http.ResponseWriter, r *http.Request) {
	body, err := s.cached(r.Context(), &s.summary, renderSummary)
	if err != nil {
		s.fail(w, r, "summary", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// cached returns *slot, rendering it from a fresh read when empty.
func (s *Server) cached(ctx context.Context, slot *[]byte, render func([]marker.Marker) ([]byte, error)) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *slot != nil {
		return *slot, nil
	}
	all, err := s.src.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	body, err := render(all)
	if err != nil {
		return nil, err
	}
	*slot = body
	return body, nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, what string, err error) {
	logger.Error(r.Context(), "feed", "feed."+what+".fail",
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func filter(all []marker.Marker, nodeType, freq string) []marker.Marker {
	var out []marker.Marker
	for _, m := range all {
		if nodeType != "" && m.NodeType != nodeType {
			continue
		}
		if freq != "" && m.Frequency != freq {
			continue
		}
		out = append(out, m)
	}
	return out
}

// renderGeoJSON drops rows without a usable position; feature ids stay the table order.
func renderGeoJSON(ctx context.Context, all []marker.Marker) ([]byte, error) {
	fc := geom.GeoJSONFeatureCollection{}
	for i, m := range all {
		if !m.Located() {
			continue
		}
		pt, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: m.Lon, Y: m.Lat}})
		if err != nil {
			logger.Warn(ctx, "feed", "feed.geojson.skip",
				slog.String("status", "skipped"),
				slog.String("marker", m.Name),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
			continue
		}
		props := map[string]interface{}{
			"name":      m.Name,
			"desc":      m.Desc,
			"node_type": m.NodeType,
			"frequency": m.Frequency,
			"link":      m.Link,
			"user":      m.User,
		}
		if m.Timestamp > 0 {
			props["timestamp"] = m.Timestamp
		}
		fc = append(fc, geom.GeoJSONFeature{
			Geometry:   pt.AsGeometry(),
			ID:         strconv.Itoa(i + 1),
			Properties: props,
		})
	}
	return json.Marshal(fc)
}

type summary struct {
	Total      int   `json:"total"`
	Owners     int   `json:"owners"`
	LastUpdate int64 `json:"last_update,omitempty"`
}

func renderSummary(all []marker.Marker) ([]byte, error) {
	owners := map[string]struct{}{}
	var sum summary
	for _, m := range all {
		owners[m.ID] = struct{}{}
		sum.LastUpdate = max(sum.LastUpdate, m.Timestamp)
	}
	sum.Total = len(all)
	sum.Owners = len(owners)
	return json.Marshal(sum)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug(r.Context(), "feed", "feed.request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("code", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", logger.Took(start)),
		)
	})
}
