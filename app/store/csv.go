package store

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/m3rciful/markerbot/app/marker"
)

// Columns is the fixed header of the table, in write order.
var Columns = []string{"lat", "lon", "name", "desc", "node_type", "frequency", "link", "ID", "user", "timestamp"}

const bom = "\ufeff"

// decode parses a table. Columns are located by header name so hand-edited files with a
// different order still load. Rows without lat, lon or ID are skipped. Values that do not
// re-format to the same text are kept in Marker.Raw.
func decode(r io.Reader) ([]marker.Marker, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, bom)
		}
		idx[strings.TrimSpace(h)] = i
	}
	field := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var (
		out     []marker.Marker
		skipped int
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				continue
			}
			return nil, skipped, fmt.Errorf("read row: %w", err)
		}
		rawLat, rawLon, id := field(row, "lat"), field(row, "lon"), field(row, "ID")
		if rawLat == "" || rawLon == "" || id == "" {
			skipped++
			continue
		}
		lat, okLat := parseCoordinate(rawLat)
		lon, okLon := parseCoordinate(rawLon)
		m := marker.Marker{
			ID:        id,
			Name:      field(row, "name"),
			Lat:       lat,
			Lon:       lon,
			Desc:      field(row, "desc"),
			NodeType:  field(row, "node_type"),
			Frequency: field(row, "frequency"),
			Link:      field(row, "link"),
			User:      field(row, "user"),
		}
		if m.User == "" {
			m.User = marker.Anonymous
		}
		if !okLat || !okLon {
			m.Lat, m.Lon = 0, 0
			m.Raw.BadCoordinates = true
		}
		if formatCoordinate(m.Lat) != rawLat || !okLat {
			m.Raw.Lat = rawLat
		}
		if formatCoordinate(m.Lon) != rawLon || !okLon {
			m.Raw.Lon = rawLon
		}
		if ts := field(row, "timestamp"); ts != "" {
			m.Timestamp = parseTimestamp(ts)
			if formatTimestamp(m.Timestamp) != ts {
				m.Raw.Timestamp = ts
			}
		}
		out = append(out, m)
	}
	return out, skipped, nil
}

// encode renders the full table, BOM and header included.
func encode(markers []marker.Marker) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(bom)
	w := csv.NewWriter(&buf)
	if err := w.Write(Columns); err != nil {
		return nil, err
	}
	for _, m := range markers {
		if err := w.Write(row(m)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// parseCoordinate accepts a decimal comma, as typed by hand in Italian locales.
func parseCoordinate(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseTimestamp reads unix seconds, truncating fractional values. Anything else is 0.
func parseTimestamp(raw string) int64 {
	s := strings.TrimSpace(raw)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int64(f)
	}
	return 0
}

func formatTimestamp(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}

// pick prefers the verbatim table text over the formatted value.
func pick(raw, formatted string) string {
	if raw != "" {
		return raw
	}
	return formatted
}

func row(m marker.Marker) []string {
	return []string{
		pick(m.Raw.Lat, formatCoordinate(m.Lat)),
		pick(m.Raw.Lon, formatCoordinate(m.Lon)),
		m.Name,
		m.Desc,
		m.NodeType,
		m.Frequency,
		m.Link,
		m.ID,
		m.User,
		pick(m.Raw.Timestamp, formatTimestamp(m.Timestamp)),
	}
}
