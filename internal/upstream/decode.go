package upstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"econscour/internal/model"
	"econscour/internal/records"
)

// DecodeLog parses a daily log. A well-formed array is decoded strictly; anything
// else (truncated streams, comma-joined arrays) falls back to scanning for balanced
// objects. Entries that cannot be parsed are dropped and counted, never fatal.
// Elements are returned as decoded, normalization happens in the records package.
func DecodeLog(data []byte) (entries []any, dropped int) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, 0
	}

	if err := decodeNumbers(data, &entries); err == nil {
		return entries, 0
	}

	entries, dropped = recoverObjects(data)
	log.Printf("[Upstream] Recovered %d log entries from malformed payload, dropped %d", len(entries), dropped)
	return entries, dropped
}

// recoverObjects walks data and decodes every balanced top-level {...} it finds.
// Braces inside strings are ignored. An object left open at the end of the input
// counts as one drop.
func recoverObjects(data []byte) ([]any, int) {
	var (
		out      []any
		dropped  int
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)

	for i, c := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				var obj map[string]any
				if err := decodeNumbers(data[start:i+1], &obj); err != nil {
					dropped++
					log.Printf("[Upstream] Dropped malformed log entry at offset %d: %v", start, err)
				} else {
					out = append(out, obj)
				}
				start = -1
			}
		}
	}

	if depth > 0 && start >= 0 {
		dropped++
		log.Printf("[Upstream] Dropped truncated log entry at offset %d", start)
	}
	return out, dropped
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

type rawShip struct {
	HexCode string                     `json:"hex_code"`
	Name    string                     `json:"name"`
	Color   json.Number                `json:"color"`
	Items   map[string]json.RawMessage `json:"items"`
}

// DecodeShips parses ships.json for date. Hex codes are normalized and ships
// without one are skipped.
func DecodeShips(data []byte, date model.DateKey) ([]model.ShipSnapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var raw []rawShip
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &MalformedPayloadError{Kind: model.ResourceShips, Err: err}
	}

	ships := make([]model.ShipSnapshot, 0, len(raw))
	for _, r := range raw {
		hex := records.NormalizeHex(r.HexCode)
		if hex == "" {
			continue
		}
		color, _ := strconv.Atoi(r.Color.String())
		ships = append(ships, model.ShipSnapshot{
			HexCode: hex,
			Name:    r.Name,
			Color:   color,
			Items:   itemCounts(r.Items),
			Date:    date,
		})
	}
	return ships, nil
}

func itemCounts(raw map[string]json.RawMessage) map[int]int64 {
	items := make(map[int]int64, len(raw))
	for k, v := range raw {
		id, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		n, ok := records.ToInt64(json.Number(strings.TrimSpace(string(v))))
		if !ok {
			continue
		}
		items[id] = n
	}
	return items
}

type rawSummary struct {
	CountShips int64                      `json:"count_ships"`
	CountLogs  int64                      `json:"count_logs"`
	ItemsHeld  map[string]json.RawMessage `json:"items_held"`
	ItemsMoved map[string]json.RawMessage `json:"items_moved"`
	ItemsNew   []model.NewItem            `json:"items_new"`
}

// DecodeSummary parses summary.json for date.
func DecodeSummary(data []byte, date model.DateKey) (*model.DailySummary, error) {
	var raw rawSummary
	if err := json.Unmarshal(bytes.TrimSpace(data), &raw); err != nil {
		return nil, &MalformedPayloadError{Kind: model.ResourceSummary, Err: err}
	}
	return &model.DailySummary{
		Date:       date,
		CountShips: raw.CountShips,
		CountLogs:  raw.CountLogs,
		ItemsHeld:  itemCounts(raw.ItemsHeld),
		ItemsMoved: itemCounts(raw.ItemsMoved),
		ItemsNew:   raw.ItemsNew,
	}, nil
}

// DecodeItemSchema parses item_schema.json.
func DecodeItemSchema(data []byte) (*model.ItemSchema, error) {
	var entries []model.ItemSchemaEntry
	if err := json.Unmarshal(bytes.TrimSpace(data), &entries); err != nil {
		return nil, &MalformedPayloadError{Kind: model.ResourceItemSchema, Err: fmt.Errorf("item schema: %w", err)}
	}
	return model.NewItemSchema(entries), nil
}

// DecodeBotDrops returns bot_drops.txt with normalized line endings.
func DecodeBotDrops(data []byte) string {
	return strings.ReplaceAll(string(data), "\r\n", "\n")
}
