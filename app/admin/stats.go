// Package admin holds the read-only reports and the activity-logging switch available to
// administrators.
package admin

import (
	"fmt"
	"html"
	"slices"
	"strings"

	"github.com/m3rciful/markerbot/app/marker"
)

// TopN is how many contributors the report lists.
const TopN = 5

// Contributor is one owner in the ranking.
type Contributor struct {
	Owner  string
	Handle string
	Count  int
}

// Stats aggregates the table at one instant.
type Stats struct {
	Total         int
	Owners        int
	WithLink      int
	Top           []Contributor
	SpecialOwners int
	Quota         marker.Quota
}

// LinkShare is the fraction of markers carrying a link, zero for an empty table.
func (s Stats) LinkShare() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.WithLink) / float64(s.Total)
}

// Compute builds the report from a snapshot of the table.
func Compute(all []marker.Marker, q marker.Quota) Stats {
	st := Stats{Total: len(all), Quota: q}

	counts := map[string]int{}
	handles := map[string]string{}
	var order []string
	for _, m := range all {
		if _, seen := counts[m.ID]; !seen {
			order = append(order, m.ID)
			handles[m.ID] = m.User
		}
		counts[m.ID]++
		if m.HasLink() {
			st.WithLink++
		}
	}
	st.Owners = len(counts)

	for _, owner := range order {
		if q.IsSpecial(owner) {
			st.SpecialOwners++
		}
	}

	// Stable so owners with equal counts keep first-seen order.
	slices.SortStableFunc(order, func(a, b string) int { return counts[b] - counts[a] })
	for _, owner := range order[:min(TopN, len(order))] {
		st.Top = append(st.Top, Contributor{Owner: owner, Handle: handles[owner], Count: counts[owner]})
	}
	return st
}

// HTML renders the report for a Telegram HTML message.
func (s Stats) HTML() string {
	var b strings.Builder
	b.WriteString("📊 <b>Statistiche Admin</b>\n\n")
	fmt.Fprintf(&b, "📍 <b>Marker totali:</b> %d\n", s.Total)
	fmt.Fprintf(&b, "👥 <b>Utenti unici:</b> %d\n", s.Owners)
	fmt.Fprintf(&b, "🔗 <b>Marker con link:</b> %d (%.1f%%)\n\n", s.WithLink, s.LinkShare()*100)
	b.WriteString("🏆 <b>Top contributor:</b>\n")
	for i, c := range s.Top {
		fmt.Fprintf(&b, "%d. %s: %d marker\n", i+1, html.EscapeString(c.Label()), c.Count)
	}
	fmt.Fprintf(&b, "\n⭐ <b>Utenti speciali:</b> %d\n", s.SpecialOwners)
	fmt.Fprintf(&b, "🔢 <b>Max marker per utente:</b> %d (normali), %d (speciali)", s.Quota.Normal, s.Quota.Special)
	return b.String()
}

// Label is the contributor as shown in reports: @handle, or the owner id when anonymous.
func (c Contributor) Label() string {
	if c.Handle == "" || c.Handle == marker.Anonymous {
		return "Utente #" + c.Owner
	}
	return "@" + c.Handle
}
