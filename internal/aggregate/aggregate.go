// Package aggregate folds daily summaries and ship snapshots into range-wide views.
package aggregate

import (
	"sort"

	"econscour/internal/model"
)

// Totals is the sum of a range of daily summaries.
type Totals struct {
	Days       int             `json:"days"`
	CountShips int64           `json:"count_ships"`
	CountLogs  int64           `json:"count_logs"`
	ItemsHeld  map[int]int64   `json:"items_held"`
	ItemsMoved map[int]int64   `json:"items_moved"`
	ItemsNew   []model.NewItem `json:"items_new"`
}

// Summaries sums counts per item id across days and concatenates new items in
// the order given.
func Summaries(days []model.DailySummary) Totals {
	t := Totals{
		ItemsHeld:  make(map[int]int64),
		ItemsMoved: make(map[int]int64),
		ItemsNew:   []model.NewItem{},
	}
	for _, d := range days {
		t.Days++
		t.CountShips += d.CountShips
		t.CountLogs += d.CountLogs
		for id, n := range d.ItemsHeld {
			t.ItemsHeld[id] += n
		}
		for id, n := range d.ItemsMoved {
			t.ItemsMoved[id] += n
		}
		t.ItemsNew = append(t.ItemsNew, d.ItemsNew...)
	}
	return t
}

// ItemCount is one row of a top-N listing.
type ItemCount struct {
	Item  int    `json:"item"`
	Name  string `json:"name,omitempty"`
	Count int64  `json:"count"`
}

// TopN returns the n largest counts, ties broken by ascending item id.
// n <= 0 returns every entry.
func TopN(counts map[int]int64, n int) []ItemCount {
	out := make([]ItemCount, 0, len(counts))
	for id, c := range counts {
		out = append(out, ItemCount{Item: id, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Item < out[j].Item
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Named fills in display names from schema.
func Named(items []ItemCount, schema *model.ItemSchema) []ItemCount {
	for i := range items {
		items[i].Name = schema.Name(items[i].Item)
	}
	return items
}
