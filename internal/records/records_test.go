package records

import (
	"encoding/json"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"econscour/internal/model"
)

var day = model.DateKey{Year: 2022, Month: time.November, Day: 23}

func rec(t int64, zone, src, dst string, item int, count int64) model.TransactionRecord {
	return model.TransactionRecord{Time: t, Zone: zone, Src: src, Dst: dst, Item: item, Count: count, Repetitions: 1, Date: day}
}

func TestNormalize(t *testing.T) {
	got, ok := Normalize(map[string]any{
		"time":  json.Number("1669161600"),
		"zone":  "Freeport I",
		"src":   "{AB}",
		"dst":   "{CD}",
		"item":  float64(5),
		"count": "12",
	})
	require.True(t, ok)
	assert.Equal(t, int64(1669161600), got.Time)
	assert.Equal(t, "Freeport I", got.Zone)
	assert.Equal(t, 5, got.Item)
	assert.Equal(t, int64(12), got.Count)
	assert.Equal(t, 1, got.Repetitions)

	got, ok = Normalize(map[string]any{"time": "soon", "count": -4, "src": 17})
	require.True(t, ok)
	assert.Zero(t, got.Time)
	assert.Zero(t, got.Count)
	assert.Empty(t, got.Src)
	assert.Empty(t, got.Zone)

	for _, raw := range []any{nil, "x", float64(3), []any{}} {
		_, ok := Normalize(raw)
		assert.False(t, ok)
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("Aggregate")
	require.NoError(t, err)
	assert.Equal(t, PolicyAggregate, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyExact, p)

	_, err = ParsePolicy("sum")
	assert.Error(t, err)
}

func TestExact_StacksIdenticalRecords(t *testing.T) {
	d := New(PolicyExact, false)
	assert.Equal(t, PolicyExact, d.Policy())

	r := rec(100, "Z", "{A}", "{B}", 1, 3)
	d.Add(r)
	d.Add(r)

	require.Len(t, d.Records(), 1)
	assert.Equal(t, 2, d.Records()[0].Repetitions)
	assert.Equal(t, int64(3), d.Records()[0].Count)

	const n = 17
	d = New(PolicyExact, false)
	for i := 0; i < n; i++ {
		d.Add(r)
	}
	require.Len(t, d.Records(), 1)
	assert.Equal(t, n, d.Records()[0].Repetitions)
}

func TestExact_DistinctFieldsStaySeparate(t *testing.T) {
	d := New(PolicyExact, false)
	d.Add(rec(100, "Z", "{A}", "{B}", 1, 3))
	d.Add(rec(101, "Z", "{A}", "{B}", 1, 3))
	d.Add(rec(100, "Z", "{A}", "{B}", 1, 4))

	assert.Len(t, d.Records(), 3)
}

func TestExact_CompositeKeyHasNoSeparatorCollisions(t *testing.T) {
	d := New(PolicyExact, false)
	d.Add(rec(1, "a|b", "c", "", 1, 1))
	d.Add(rec(1, "a", "b|c", "", 1, 1))

	assert.Len(t, d.Records(), 2)
}

func canonical(rs []model.TransactionRecord) []model.TransactionRecord {
	out := append([]model.TransactionRecord(nil), rs...)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		if a.Src != b.Src {
			return a.Src < b.Src
		}
		if a.Item != b.Item {
			return a.Item < b.Item
		}
		return a.Count < b.Count
	})
	return out
}

func TestDedup_OrderIndependent(t *testing.T) {
	input := []model.TransactionRecord{
		rec(1, "Z", "{A}", "{B}", 1, 3),
		rec(1, "Z", "{A}", "{B}", 1, 3),
		rec(2, "Z", "{A}", "{B}", 1, 3),
		rec(1, "Z", "{C}", "{B}", 2, 5),
		rec(1, "Z", "{A}", "{B}", 1, 3),
		rec(9, "Z", "{C}", "{B}", 2, 1),
	}

	for _, policy := range []Policy{PolicyExact, PolicyAggregate} {
		base := New(policy, false)
		for _, r := range input {
			base.Add(r)
		}
		want := canonical(base.Records())

		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 20; i++ {
			shuffled := append([]model.TransactionRecord(nil), input...)
			rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

			d := New(policy, false)
			for _, r := range shuffled {
				d.Add(r)
			}
			assert.Equal(t, want, canonical(d.Records()), "policy %s", policy)
		}
	}
}

func TestAggregate_SumsCountKeepsEarliestTime(t *testing.T) {
	d := New(PolicyAggregate, false)
	assert.Equal(t, PolicyAggregate, d.Policy())

	d.Add(rec(500, "Z", "{A}", "{B}", 7, 10))
	d.Add(rec(200, "Z", "{A}", "{B}", 7, 4))

	require.Len(t, d.Records(), 1)
	merged := d.Records()[0]
	assert.Equal(t, int64(14), merged.Count)
	assert.Equal(t, int64(200), merged.Time)
	assert.Equal(t, 2, merged.Repetitions)

	d.Add(rec(200, "Z", "{A}", "{B}", 8, 4))
	assert.Len(t, d.Records(), 2)
}

func TestAddRaw_CountsDrops(t *testing.T) {
	d := New(PolicyExact, false)
	assert.True(t, d.AddRaw(map[string]any{"time": float64(1), "item": float64(2)}, day))
	assert.False(t, d.AddRaw("garbage", day))
	assert.False(t, d.AddRaw(nil, day))

	assert.Equal(t, 2, d.Dropped())
	require.Len(t, d.Records(), 1)
	assert.Equal(t, day, d.Records()[0].Date)
}

func TestShipsOnly(t *testing.T) {
	d := New(PolicyExact, true)
	assert.True(t, d.Add(rec(1, "Z", "{A}", "{B}", 1, 1)))
	assert.True(t, d.Add(rec(1, "Z", "{A}", "", 1, 1)))
	assert.True(t, d.Add(rec(1, "Z", "", "{B}", 1, 1)))
	assert.True(t, d.Add(rec(1, "Z", "{A}", "killed", 1, 1)))
	assert.True(t, d.Add(rec(1, "Z", "{A}", "despawn", 1, 1)))
	assert.False(t, d.Add(rec(1, "Z", "bot", "{B}", 1, 1)))
	assert.False(t, d.Add(rec(1, "Z", "{A}", "hatch", 1, 1)))
	assert.False(t, d.Add(rec(1, "Z", "", "", 1, 1)))
	assert.False(t, d.Add(rec(1, "Z", "killed", "", 1, 1)))

	assert.Len(t, d.Records(), 5)
	assert.Equal(t, 4, d.Filtered())
}

func TestNormalizeHex(t *testing.T) {
	assert.Equal(t, "AB12", NormalizeHex(" {ab12} "))
	assert.Equal(t, "AB12", NormalizeHex("ab12"))
	assert.True(t, IsEntityID("{AB}"))
	assert.False(t, IsEntityID("{}"))
	assert.False(t, IsEntityID("Bot"))
}
