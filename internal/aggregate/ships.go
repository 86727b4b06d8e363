package aggregate

import (
	"maps"
	"sort"
	"strings"

	"econscour/internal/model"
	"econscour/internal/records"
)

// ShipState is the latest known state of a ship with item names resolved.
type ShipState struct {
	HexCode  string           `json:"hex_code"`
	Name     string           `json:"name"`
	Color    int              `json:"color"`
	Date     model.DateKey    `json:"date"`
	Items    map[string]int64 `json:"items"`
	ItemIDs  map[int]int64    `json:"-"`
	SeenDays int              `json:"seen_days"`
}

// HistoryEntry is one day of a ship's history with changes against the day before.
type HistoryEntry struct {
	model.ShipSnapshot
	NameChanged      bool `json:"name_changed"`
	InventoryChanged bool `json:"inventory_changed"`
}

// Ships collects snapshots into per-ship histories ordered by date.
// Not safe for concurrent use.
type Ships struct {
	byHex map[string][]model.ShipSnapshot
}

// NewShips creates an empty collection.
func NewShips() *Ships {
	return &Ships{byHex: make(map[string][]model.ShipSnapshot)}
}

// Add records a snapshot. A second snapshot for the same ship and day replaces
// the first.
func (s *Ships) Add(snap model.ShipSnapshot) {
	snap.HexCode = records.NormalizeHex(snap.HexCode)
	if snap.HexCode == "" {
		return
	}

	hist := s.byHex[snap.HexCode]
	i := sort.Search(len(hist), func(i int) bool { return !hist[i].Date.Before(snap.Date) })
	if i < len(hist) && hist[i].Date == snap.Date {
		hist[i] = snap
		return
	}
	hist = append(hist, model.ShipSnapshot{})
	copy(hist[i+1:], hist[i:])
	hist[i] = snap
	s.byHex[snap.HexCode] = hist
}

// Len returns the number of distinct ships.
func (s *Ships) Len() int {
	return len(s.byHex)
}

// HexCodes returns every ship id in ascending order.
func (s *Ships) HexCodes() []string {
	out := make([]string, 0, len(s.byHex))
	for hex := range s.byHex {
		out = append(out, hex)
	}
	sort.Strings(out)
	return out
}

// LatestName returns the most recent name of a ship. hex may carry braces.
func (s *Ships) LatestName(hex string) (string, bool) {
	if s == nil {
		return "", false
	}
	hist := s.byHex[records.NormalizeHex(hex)]
	if len(hist) == 0 {
		return "", false
	}
	return hist[len(hist)-1].Name, true
}

// Latest returns the most recent snapshot of every ship keyed by hex code.
func (s *Ships) Latest(schema *model.ItemSchema) map[string]ShipState {
	out := make(map[string]ShipState, len(s.byHex))
	for hex, hist := range s.byHex {
		last := hist[len(hist)-1]
		named := make(map[string]int64, len(last.Items))
		for id, n := range last.Items {
			named[schema.Name(id)] += n
		}
		out[hex] = ShipState{
			HexCode:  hex,
			Name:     last.Name,
			Color:    last.Color,
			Date:     last.Date,
			Items:    named,
			ItemIDs:  last.Items,
			SeenDays: len(hist),
		}
	}
	return out
}

// History returns the date-ordered history of one ship. The first entry never
// reports a change.
func (s *Ships) History(hex string) []HistoryEntry {
	hist := s.byHex[records.NormalizeHex(hex)]
	if len(hist) == 0 {
		return nil
	}

	out := make([]HistoryEntry, len(hist))
	for i, snap := range hist {
		out[i] = HistoryEntry{ShipSnapshot: snap}
		if i == 0 {
			continue
		}
		prev := hist[i-1]
		out[i].NameChanged = prev.Name != snap.Name
		out[i].InventoryChanged = !maps.Equal(prev.Items, snap.Items)
	}
	return out
}

// Names returns the distinct names a ship used, oldest first.
func (s *Ships) Names(hex string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, snap := range s.byHex[records.NormalizeHex(hex)] {
		if !seen[snap.Name] {
			seen[snap.Name] = true
			names = append(names, snap.Name)
		}
	}
	return names
}

// Search returns the hex codes of ships whose hex code or any past name matches
// pattern. Matching is case-insensitive; * matches any run of characters and a
// pattern without * matches as a substring.
func (s *Ships) Search(pattern string) []string {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return s.HexCodes()
	}
	if !strings.Contains(pattern, "*") {
		pattern = "*" + pattern + "*"
	}

	var out []string
	for _, hex := range s.HexCodes() {
		if glob(pattern, strings.ToLower(hex)) {
			out = append(out, hex)
			continue
		}
		for _, name := range s.Names(hex) {
			if glob(pattern, strings.ToLower(name)) {
				out = append(out, hex)
				break
			}
		}
	}
	return out
}

// glob matches s against a pattern where * is the only metacharacter.
func glob(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		i := strings.Index(s, part)
		if i < 0 {
			return false
		}
		s = s[i+len(part):]
	}
	return strings.HasSuffix(s, last)
}
