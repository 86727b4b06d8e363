// Package records turns raw log entries into transaction records and merges
// duplicates.
package records

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"econscour/internal/model"
)

// Normalize coerces a decoded log entry into a record. Missing or invalid numbers
// become 0 and missing strings become "". ok is false when raw is not an object.
func Normalize(raw any) (rec model.TransactionRecord, ok bool) {
	obj, isObj := raw.(map[string]any)
	if !isObj {
		return model.TransactionRecord{}, false
	}

	rec.Time, _ = ToInt64(obj["time"])
	rec.Zone = toString(obj["zone"])
	rec.Src = toString(obj["src"])
	rec.Dst = toString(obj["dst"])
	item, _ := ToInt64(obj["item"])
	rec.Item = int(item)
	rec.Count, _ = ToInt64(obj["count"])
	if rec.Count < 0 {
		rec.Count = 0
	}
	rec.Repetitions = 1
	return rec, true
}

// ToInt64 converts JSON numbers in any of their decoded forms. Fractions are truncated.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return floatToInt(f)
		}
	case float64:
		return floatToInt(n)
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatToInt(f)
		}
	}
	return 0, false
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	}
	return ""
}

// IsEntityID reports whether s is a brace-delimited entity id like {1A2B}.
func IsEntityID(s string) bool {
	return len(s) > 2 && s[0] == '{' && s[len(s)-1] == '}'
}

// NormalizeHex strips braces and upper-cases a ship hex code.
func NormalizeHex(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	return strings.ToUpper(strings.TrimSpace(s))
}
