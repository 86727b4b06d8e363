package records

import (
	"fmt"
	"strings"

	"econscour/internal/model"
)

// Policy selects how duplicate records are merged.
type Policy string

const (
	// PolicyExact stacks records identical in every field into one entry
	// with a repetition counter.
	PolicyExact Policy = "exact"
	// PolicyAggregate merges records on (zone, src, dst, item), summing counts
	// and keeping the earliest time.
	PolicyAggregate Policy = "aggregate"
)

// ParsePolicy parses a policy name, case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyExact, PolicyAggregate:
		return p, nil
	case "":
		return PolicyExact, nil
	default:
		return "", fmt.Errorf("unknown dedup policy %q", s)
	}
}

type exactKey struct {
	time  int64
	zone  string
	src   string
	dst   string
	item  int
	count int64
}

type aggregateKey struct {
	zone string
	src  string
	dst  string
	item int
}

// Deduplicator accumulates records under a policy. Output keeps the order in
// which each key was first seen. Not safe for concurrent use.
type Deduplicator struct {
	policy    Policy
	shipsOnly bool

	exact     map[exactKey]int
	aggregate map[aggregateKey]int
	out       []model.TransactionRecord

	dropped  int
	filtered int
}

// New creates a deduplicator. With shipsOnly set, records touching bots or
// structures are filtered out.
func New(policy Policy, shipsOnly bool) *Deduplicator {
	if policy == "" {
		policy = PolicyExact
	}
	return &Deduplicator{
		policy:    policy,
		shipsOnly: shipsOnly,
		exact:     make(map[exactKey]int),
		aggregate: make(map[aggregateKey]int),
	}
}

// Policy returns the active policy.
func (d *Deduplicator) Policy() Policy { return d.policy }

// ShipsOnly reports whether the ship filter is active.
func (d *Deduplicator) ShipsOnly() bool { return d.shipsOnly }

// Dropped counts raw entries rejected by Normalize.
func (d *Deduplicator) Dropped() int { return d.dropped }

// Filtered counts records removed by the ship filter.
func (d *Deduplicator) Filtered() int { return d.filtered }

// Len returns the number of merged records.
func (d *Deduplicator) Len() int { return len(d.out) }

// AddRaw normalizes raw and adds it, stamping date.
func (d *Deduplicator) AddRaw(raw any, date model.DateKey) bool {
	rec, ok := Normalize(raw)
	if !ok {
		d.dropped++
		return false
	}
	rec.Date = date
	return d.Add(rec)
}

// Add merges rec into the set. It returns false when the ship filter rejected it.
func (d *Deduplicator) Add(rec model.TransactionRecord) bool {
	if d.shipsOnly && !ShipTransaction(rec) {
		d.filtered++
		return false
	}
	if rec.Repetitions < 1 {
		rec.Repetitions = 1
	}

	switch d.policy {
	case PolicyAggregate:
		k := aggregateKey{zone: rec.Zone, src: rec.Src, dst: rec.Dst, item: rec.Item}
		if i, ok := d.aggregate[k]; ok {
			merged := &d.out[i]
			merged.Count += rec.Count
			merged.Repetitions += rec.Repetitions
			if rec.Time < merged.Time {
				merged.Time = rec.Time
				merged.Date = rec.Date
			}
			return true
		}
		d.aggregate[k] = len(d.out)
	default:
		k := exactKey{time: rec.Time, zone: rec.Zone, src: rec.Src, dst: rec.Dst, item: rec.Item, count: rec.Count}
		if i, ok := d.exact[k]; ok {
			d.out[i].Repetitions += rec.Repetitions
			return true
		}
		d.exact[k] = len(d.out)
	}

	d.out = append(d.out, rec)
	return true
}

// Records returns the merged records. The slice is shared with the deduplicator
// until the next Add.
func (d *Deduplicator) Records() []model.TransactionRecord {
	return d.out
}

// ShipTransaction reports whether rec moves items between ships, or between a
// ship and the void (empty side, killed or despawn).
func ShipTransaction(rec model.TransactionRecord) bool {
	src, dst := IsEntityID(rec.Src), IsEntityID(rec.Dst)
	switch {
	case src && dst:
		return true
	case src:
		return isVoid(rec.Dst)
	case dst:
		return isVoid(rec.Src)
	}
	return false
}

func isVoid(entity string) bool {
	switch strings.ToLower(strings.TrimSpace(entity)) {
	case "", "killed", "despawn":
		return true
	}
	return false
}
