// Package validate holds the pure field checks used by the conversation flows.
package validate

import (
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/m3rciful/markerbot/app/marker"
)

var urlRe = regexp.MustCompile(`^https?://\S+$`)

const allowedPunct = "_-.,!?@#&%€:/"

// CleanText trims whitespace and one surrounding quote, then drops every rune outside
// the allow-list: letters, digits, whitespace, a fixed punctuation set and emoji.
// It never truncates.
func CleanText(raw string) string {
	s := StripQuotes(raw)
	return strings.Map(func(r rune) rune {
		if allowedRune(r) {
			return r
		}
		return -1
	}, s)
}

// StripQuotes trims surrounding whitespace and any leading or trailing quote characters.
func StripQuotes(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

func allowedRune(r rune) bool {
	switch {
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
		return true
	case strings.ContainsRune(allowedPunct, r):
		return true
	}
	return isEmoji(r)
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, transport, supplemental symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	case r == 0x200D || r == 0xFE0F:
		return true
	}
	return false
}

// Len counts runes, the unit all length limits use.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// NameFits reports whether a marker name is within the limit.
func NameFits(s string) bool { return Len(s) <= marker.MaxNameLen }

// DescFits reports whether a description is within the limit.
func DescFits(s string) bool { return Len(s) <= marker.MaxDescLen }

// LinkFits reports whether a link is within the limit.
func LinkFits(s string) bool { return Len(s) <= marker.MaxLinkLen }

// IsValidURL accepts http:// or https:// followed by at least one non-space rune.
func IsValidURL(s string) bool {
	return urlRe.MatchString(s)
}

// HasDuplicateName reports whether owner already has a marker called name, ignoring case.
func HasDuplicateName(all []marker.Marker, owner, name string) bool {
	for _, m := range all {
		if m.ID == owner && strings.EqualFold(m.Name, name) {
			return true
		}
	}
	return false
}

// IsNodeType reports membership in the fixed node type list.
func IsNodeType(s string) bool {
	return slices.Contains(marker.NodeTypes, s)
}

// IsFrequency reports membership in the fixed frequency list.
func IsFrequency(s string) bool {
	return slices.Contains(marker.Frequencies, s)
}

// ParseCoordinate parses a finite decimal number.
func ParseCoordinate(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseOrdinal converts a 1-based menu choice to a zero-based index below n.
func ParseOrdinal(s string, n int) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v - 1, true
}

// IsYes matches "si" or "yes" regardless of case and accents, so "Sì" counts.
func IsYes(s string) bool {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(fold, strings.TrimSpace(s))
	if err != nil {
		return false
	}
	switch strings.ToLower(plain) {
	case "si", "yes":
		return true
	}
	return false
}
