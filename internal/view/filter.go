// Package view filters and windows loaded data for display.
package view

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"econscour/internal/aggregate"
	"econscour/internal/chunk"
	"econscour/internal/model"
	"econscour/internal/records"
)

// Query selects transaction records. Every non-empty field must match; all
// matching is case-insensitive substring matching.
type Query struct {
	// Text matches the item name, source, destination or zone.
	Text        string `json:"q"`
	Item        string `json:"item"`
	Source      string `json:"src"`
	Destination string `json:"dst"`
	HideBots    bool   `json:"hide_bots"`
	ShipsOnly   bool   `json:"ships_only"`

	// ShipNames, when set, lets source and destination filters match ship
	// names and adds names to the display columns.
	ShipNames NameFunc `json:"-"`
}

// Row is a record prepared for display.
type Row struct {
	model.TransactionRecord
	ItemName    string `json:"item_name"`
	ZoneName    string `json:"zone_name"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	When        string `json:"when"`
}

type terms struct {
	text, item, src, dst string
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Filter returns the records matching q as display rows, preserving order. The
// scan runs in batches of chunkSize and stops with ctx.Err() when ctx is done.
func Filter(ctx context.Context, recs []model.TransactionRecord, q Query, schema *model.ItemSchema, chunkSize int) ([]Row, error) {
	n := terms{text: lower(q.Text), item: lower(q.Item), src: lower(q.Source), dst: lower(q.Destination)}
	rows := make([]Row, 0)

	err := chunk.Each(ctx, len(recs), chunkSize, func(i int) {
		rec := recs[i]
		if q.ShipsOnly && !records.ShipTransaction(rec) {
			return
		}
		if q.HideBots && (IsBot(rec.Src) || IsBot(rec.Dst)) {
			return
		}

		itemName := schema.Name(rec.Item)
		if n.item != "" && !contains(itemName, n.item) && strconv.Itoa(rec.Item) != n.item {
			return
		}
		if n.src != "" && !matchEntity(rec.Src, n.src, q.ShipNames) {
			return
		}
		if n.dst != "" && !matchEntity(rec.Dst, n.dst, q.ShipNames) {
			return
		}
		if n.text != "" && !contains(itemName, n.text) && !contains(rec.Zone, n.text) &&
			!matchEntity(rec.Src, n.text, q.ShipNames) && !matchEntity(rec.Dst, n.text, q.ShipNames) {
			return
		}

		rows = append(rows, Row{
			TransactionRecord: rec,
			ItemName:          itemName,
			ZoneName:          FormatZone(rec.Zone),
			Source:            FormatEntity(rec.Src, q.ShipNames),
			Destination:       FormatEntity(rec.Dst, q.ShipNames),
			When:              FormatTimestamp(rec.Time),
		})
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// contains reports whether s contains the lower-cased needle, ignoring case.
func contains(s, needle string) bool {
	return strings.Contains(strings.ToLower(s), needle)
}

func matchEntity(entity, needle string, names NameFunc) bool {
	if contains(entity, needle) {
		return true
	}
	if names != nil && records.IsEntityID(entity) {
		if name, ok := names(entity); ok && contains(name, needle) {
			return true
		}
	}
	return false
}

// FilterShips returns the ships whose name, hex code or last seen date contains
// text, ordered by hex code.
func FilterShips(ships map[string]aggregate.ShipState, text string) []aggregate.ShipState {
	needle := lower(text)
	hexes := make([]string, 0, len(ships))
	for hex := range ships {
		hexes = append(hexes, hex)
	}
	slices.Sort(hexes)

	out := make([]aggregate.ShipState, 0)
	for _, hex := range hexes {
		s := ships[hex]
		if needle == "" || contains(s.Name, needle) || contains(s.HexCode, needle) || strings.Contains(s.Date.String(), needle) {
			out = append(out, s)
		}
	}
	return out
}

// FilterItems returns the schema entries whose name, id or type contains text.
func FilterItems(entries []model.ItemSchemaEntry, text string) []model.ItemSchemaEntry {
	needle := lower(text)
	out := make([]model.ItemSchemaEntry, 0)
	for _, e := range entries {
		if needle == "" || contains(e.Name, needle) || contains(e.Type, needle) ||
			strings.Contains(strconv.Itoa(e.ID), needle) {
			out = append(out, e)
		}
	}
	return out
}
