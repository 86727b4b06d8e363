package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateKey(t *testing.T) {
	want := DateKey{Year: 2022, Month: time.November, Day: 3}

	for _, in := range []string{"2022-11-03", "2022_11_3", "2022_11_03", " 2022-11-3 "} {
		got, err := ParseDateKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "2022-11", "2022/11/03", "2023-02-30", "2022-13-01", "abcd-11-03"} {
		_, err := ParseDateKey(in)
		assert.Error(t, err, in)
	}
}

func TestDateKey_Paths(t *testing.T) {
	d := DateKey{Year: 2023, Month: time.January, Day: 5}
	assert.Equal(t, "2023_1_5", d.Path())
	assert.Equal(t, "2023_01_05", d.PaddedPath())
	assert.Equal(t, "2023-01-05", d.String())
}

func TestDateKey_Arithmetic(t *testing.T) {
	d := DateKey{Year: 2022, Month: time.December, Day: 31}
	next := d.AddDays(1)
	assert.Equal(t, DateKey{Year: 2023, Month: time.January, Day: 1}, next)
	assert.True(t, d.Before(next))
	assert.True(t, next.After(d))
	assert.Equal(t, 0, d.Compare(d))
	assert.Equal(t, 1, d.DaysUntil(next))
	assert.Equal(t, -1, next.DaysUntil(d))
}

func TestNewDateKey_UsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	local := time.Date(2023, time.March, 2, 5, 0, 0, 0, loc) // still March 1st in UTC
	assert.Equal(t, DateKey{Year: 2023, Month: time.March, Day: 1}, NewDateKey(local))
}

func TestDateKey_JSON(t *testing.T) {
	type wrapper struct {
		Date DateKey `json:"date"`
	}

	data, err := json.Marshal(wrapper{Date: DateKey{Year: 2022, Month: time.November, Day: 23}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2022-11-23"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2022_11_24"}`), &w))
	assert.Equal(t, DateKey{Year: 2022, Month: time.November, Day: 24}, w.Date)
}

func TestItemSchema_Name(t *testing.T) {
	s := NewItemSchema([]ItemSchemaEntry{{ID: 1, Name: "Iron", Type: "resource"}})
	assert.Equal(t, "Iron", s.Name(1))
	assert.Equal(t, "Item 42", s.Name(42))

	var nilSchema *ItemSchema
	assert.Equal(t, "Item 7", nilSchema.Name(7))
	assert.Equal(t, 0, nilSchema.Len())
}
