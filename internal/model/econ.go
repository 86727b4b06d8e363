package model

import "fmt"

// ResourceKind names one of the files the upstream publishes.
type ResourceKind string

const (
	ResourceLog        ResourceKind = "log"
	ResourceShips      ResourceKind = "ships"
	ResourceSummary    ResourceKind = "summary"
	ResourceItemSchema ResourceKind = "item_schema"
	ResourceBotDrops   ResourceKind = "bot_drops"
)

// DailyResources are fetched once per day of a range load.
var DailyResources = []ResourceKind{ResourceSummary, ResourceShips, ResourceLog}

// IsDaily reports whether the resource lives under a per-day directory.
func (k ResourceKind) IsDaily() bool {
	switch k {
	case ResourceLog, ResourceShips, ResourceSummary:
		return true
	}
	return false
}

// FileName returns the upstream file name of the resource.
func (k ResourceKind) FileName() string {
	switch k {
	case ResourceLog:
		return "log.json.gz"
	case ResourceShips:
		return "ships.json.gz"
	case ResourceSummary:
		return "summary.json"
	case ResourceItemSchema:
		return "item_schema.json"
	case ResourceBotDrops:
		return "bot_drops.txt"
	}
	return ""
}

// Valid reports whether k is a known resource kind.
func (k ResourceKind) Valid() bool {
	return k.FileName() != ""
}

// TransactionRecord is one item movement from a daily log.
type TransactionRecord struct {
	Time        int64   `json:"time" csv:"time"`
	Zone        string  `json:"zone" csv:"zone"`
	Src         string  `json:"src" csv:"src"`
	Dst         string  `json:"dst" csv:"dst"`
	Item        int     `json:"item" csv:"item"`
	Count       int64   `json:"count" csv:"count"`
	Repetitions int     `json:"repetitions" csv:"repetitions"`
	Date        DateKey `json:"date" csv:"date"`
}

// ShipSnapshot is the state of one ship on one day.
type ShipSnapshot struct {
	HexCode string        `json:"hex_code"`
	Name    string        `json:"name"`
	Color   int           `json:"color"`
	Items   map[int]int64 `json:"items"`
	Date    DateKey       `json:"date"`
}

// ItemSchemaEntry describes one item id.
type ItemSchemaEntry struct {
	ID   int    `json:"id" csv:"id"`
	Name string `json:"name" csv:"name"`
	Type string `json:"type" csv:"type"`
}

// NewItem is an item that entered the economy during a day.
type NewItem struct {
	Zone  string `json:"zone"`
	Item  int    `json:"item"`
	Total int64  `json:"total"`
	Src   string `json:"src"`
}

// DailySummary is the upstream summary.json of a day.
type DailySummary struct {
	Date       DateKey       `json:"date"`
	CountShips int64         `json:"count_ships"`
	CountLogs  int64         `json:"count_logs"`
	ItemsHeld  map[int]int64 `json:"items_held"`
	ItemsMoved map[int]int64 `json:"items_moved"`
	ItemsNew   []NewItem     `json:"items_new"`
}

// ItemSchema is the immutable id to item lookup loaded once per session.
type ItemSchema struct {
	entries []ItemSchemaEntry
	byID    map[int]ItemSchemaEntry
}

// NewItemSchema indexes entries by id; later duplicates win.
func NewItemSchema(entries []ItemSchemaEntry) *ItemSchema {
	s := &ItemSchema{
		entries: append([]ItemSchemaEntry(nil), entries...),
		byID:    make(map[int]ItemSchemaEntry, len(entries)),
	}
	for _, e := range entries {
		s.byID[e.ID] = e
	}
	return s
}

// Lookup returns the entry for id.
func (s *ItemSchema) Lookup(id int) (ItemSchemaEntry, bool) {
	if s == nil {
		return ItemSchemaEntry{}, false
	}
	e, ok := s.byID[id]
	return e, ok
}

// Name resolves id to a display name, falling back to "Item {id}".
func (s *ItemSchema) Name(id int) string {
	if e, ok := s.Lookup(id); ok && e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("Item %d", id)
}

// Entries returns the schema in upstream order.
func (s *ItemSchema) Entries() []ItemSchemaEntry {
	if s == nil {
		return nil
	}
	return append([]ItemSchemaEntry(nil), s.entries...)
}

// Len returns the number of entries.
func (s *ItemSchema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Settings is the viewer preference blob persisted per profile.
type Settings struct {
	FontSize     int            `json:"font_size"`
	WrapText     bool           `json:"wrap_text"`
	ShowBots     bool           `json:"show_bots"`
	UseShipNames bool           `json:"use_ship_names"`
	DarkMode     bool           `json:"dark_mode"`
	Filters      SettingsFilter `json:"filters"`
}

// SettingsFilter holds the last used record filters.
type SettingsFilter struct {
	Item        string `json:"item"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	ShipsOnly   bool   `json:"ships_only"`
}

// DefaultSettings mirrors the viewer's initial state.
func DefaultSettings() Settings {
	return Settings{
		FontSize: 12,
		ShowBots: true,
	}
}
