package view

import (
	"strings"
	"time"

	"econscour/internal/records"
)

var zoneNames = map[string]string{
	"Super Special Event Zone": "Mosaic",
	"Freeport I":               "FP I",
	"Freeport II":              "FP II",
	"Freeport III":             "FP III",
	"The Nest":                 "Freeport",
	"Hummingbird":              "Hummbird",
}

var botNames = map[string]string{
	"block - flux":         "Flux mine",
	"block - iron":         "Iron mine",
	"bot - zombie":         "Vult Bot",
	"bot - zombie tank":    "Vult Bot 2",
	"bot - zombie hunter":  "Vult Yank",
	"bot - zombie boss":    "Vult Boss",
	"bot - green roamer":   "Green bot",
	"bot - red hunter":     "Red Hunter",
	"bot - yellow rusher":  "YellowRush",
	"bot - blue melee":     "Blue Spike",
	"bot - red sentry":     "Red Sentry",
	"bot - orange fool":    "Orange Fool",
	"bot - yellow hunter":  "Hunter bot",
	"bot - red sniper":     "Red Sniper",
	"bot - aqua shielder":  "Shield bot",
	"Yellow Mine Bot":      "Mine bot",
	"The Coward":           "The Coward",
	"The Shield Master":    "ShieldBoss",
	"The Lazer Enthusiast": "LazerBoss",
}

// NameFunc resolves a ship hex code to its current name.
type NameFunc func(hex string) (string, bool)

// FormatZone shortens well-known zone names.
func FormatZone(zone string) string {
	if short, ok := zoneNames[zone]; ok {
		return short
	}
	return zone
}

// FormatEntity returns the display form of a transaction endpoint. Bots get
// their short name; ships are shown as "Name {HEX}" when names is set and
// knows the ship.
func FormatEntity(entity string, names NameFunc) string {
	if entity == "" {
		return "?"
	}
	if short, ok := botNames[entity]; ok {
		return short
	}
	if names != nil && records.IsEntityID(entity) {
		if name, ok := names(entity); ok && name != "" {
			return name + " " + entity
		}
	}
	return entity
}

// IsBot reports whether entity is a bot or a mine rather than a ship or the void.
func IsBot(entity string) bool {
	if entity == "" || records.IsEntityID(entity) {
		return false
	}
	if _, ok := botNames[entity]; ok {
		return true
	}
	return strings.HasPrefix(entity, "bot - ") || strings.HasPrefix(entity, "block - ")
}

// FormatTimestamp renders epoch seconds as "YYYY-MM-DD HH:MM:SS" in UTC.
func FormatTimestamp(ts int64) string {
	if ts == 0 {
		return "Unknown time"
	}
	return time.Unix(ts, 0).UTC().Format(time.DateTime)
}
