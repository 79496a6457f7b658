// Package marker holds the persisted record type and the fixed vocabularies shared by
// the store, the conversation engine and the reporting code.
package marker

import (
	"slices"
	"strconv"
	"strings"
)

// Anonymous is written in the user column when the owner had no Telegram handle.
const Anonymous = "anonimo"

// Field limits, counted in runes.
const (
	MaxNameLen = 14
	MaxDescLen = 50
	MaxLinkLen = 40
)

// Default quotas.
const (
	DefaultQuota        = 3
	DefaultSpecialQuota = 6
)

// DefaultAdminIDs and DefaultSpecialIDs apply when the config file does not override them.
// Admins are matched against the numeric Telegram sender id; special owners against the
// canonical textual owner id.
var (
	DefaultAdminIDs   = []int64{1608289624}
	DefaultSpecialIDs = []string{"1608289624"}
)

// NodeTypes lists the accepted node types in keyboard order. The first spelling matches
// the rows already present in the live table.
var NodeTypes = []string{"Mehstastic", "MeshCore", "Altro"}

// Frequencies lists the accepted frequency bands in keyboard order.
var Frequencies = []string{"433 MHz", "868 MHz"}

// Marker is one row of the table.
type Marker struct {
	ID        string
	Name      string
	Lat       float64
	Lon       float64
	Desc      string
	NodeType  string
	Frequency string
	Link      string
	User      string
	Timestamp int64
	// Raw holds table text that would not survive a parse and re-format.
	Raw Raw
}

// Raw keeps hand-edited table values verbatim so rewriting the table leaves them as
// they were. Empty fields are written from the parsed values.
type Raw struct {
	Lat       string
	Lon       string
	Timestamp string
	// BadCoordinates marks a row whose lat or lon is present but not a finite number.
	BadCoordinates bool
}

// Located reports whether Lat and Lon hold the row's real position.
func (m Marker) Located() bool {
	return !m.Raw.BadCoordinates
}

// HasLink reports whether the marker carries a link.
func (m Marker) HasLink() bool {
	return m.Link != ""
}

// OwnedBy returns the owner's markers in table order.
func OwnedBy(all []Marker, owner string) []Marker {
	var out []Marker
	for _, m := range all {
		if m.ID == owner {
			out = append(out, m)
		}
	}
	return out
}

// NthIndex maps the owner's zero-based ordinal to an index into all, or -1.
func NthIndex(all []Marker, owner string, n int) int {
	if n < 0 {
		return -1
	}
	seen := 0
	for i, m := range all {
		if m.ID != owner {
			continue
		}
		if seen == n {
			return i
		}
		seen++
	}
	return -1
}

// Quota decides how many markers an owner may hold.
type Quota struct {
	Normal     int
	Special    int
	SpecialIDs []string
}

// DefaultQuotas returns the compiled-in quota policy.
func DefaultQuotas() Quota {
	return Quota{
		Normal:     DefaultQuota,
		Special:    DefaultSpecialQuota,
		SpecialIDs: slices.Clone(DefaultSpecialIDs),
	}
}

// IsSpecial reports whether the textual owner id belongs to the special set. Ids are
// compared as text, so "0777" is not "777".
func (q Quota) IsSpecial(owner string) bool {
	return owner != "" && slices.Contains(q.SpecialIDs, owner)
}

// CanonicalID reports whether id is a positive decimal owner id in the form the bot
// derives from a Telegram sender: no sign, no padding, no spaces.
func CanonicalID(id string) bool {
	if id == "" || strings.TrimSpace(id) != id {
		return false
	}
	v, err := strconv.ParseInt(id, 10, 64)
	return err == nil && v > 0 && strconv.FormatInt(v, 10) == id
}

// MaxFor returns the marker cap for owner.
func (q Quota) MaxFor(owner string) int {
	if q.IsSpecial(owner) {
		return q.Special
	}
	return q.Normal
}
