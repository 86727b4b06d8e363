package pipeline

import (
	"fmt"
	"strings"
	"time"

	"econscour/internal/aggregate"
	"econscour/internal/model"
	"econscour/internal/records"
)

// ReasonNoData marks a day for which the upstream has none of the daily files.
const ReasonNoData = "no data"

// DateFailure is one entry of the failed-dates report. Resource is empty when
// the whole day failed.
type DateFailure struct {
	Date     model.DateKey      `json:"date"`
	Resource model.ResourceKind `json:"resource,omitempty"`
	Reason   string             `json:"reason"`
}

// Result is a merged range load. Partial results are normal: Days lists the
// days that produced data and Failed lists what went wrong.
type Result struct {
	Start     model.DateKey             `json:"start"`
	End       model.DateKey             `json:"end"`
	Days      []model.DateKey           `json:"days"`
	Summaries []model.DailySummary      `json:"summaries"`
	Totals    aggregate.Totals          `json:"totals"`
	Records   []model.TransactionRecord `json:"-"`
	Ships     *aggregate.Ships          `json:"-"`
	Schema    *model.ItemSchema         `json:"-"`
	Policy    records.Policy            `json:"policy"`
	Failed    []DateFailure             `json:"failed"`
	Dropped   int                       `json:"dropped"`
	Filtered  int                       `json:"filtered"`
	Warnings  []string                  `json:"warnings"`
	Elapsed   time.Duration             `json:"elapsed"`
}

// FailedDates returns the distinct dates present in the failure report.
func (r *Result) FailedDates() []model.DateKey {
	var out []model.DateKey
	seen := make(map[model.DateKey]bool)
	for _, f := range r.Failed {
		if !seen[f.Date] {
			seen[f.Date] = true
			out = append(out, f.Date)
		}
	}
	return out
}

// NoDataError means not a single day of the range produced data.
type NoDataError struct {
	Start  model.DateKey
	End    model.DateKey
	Failed []DateFailure
}

// Error implements the error interface.
func (e *NoDataError) Error() string {
	dates := make([]string, 0, len(e.Failed))
	seen := make(map[model.DateKey]bool)
	for _, f := range e.Failed {
		if !seen[f.Date] {
			seen[f.Date] = true
			dates = append(dates, f.Date.String())
		}
	}
	return fmt.Sprintf("no data available for %s..%s (failed: %s)", e.Start, e.End, strings.Join(dates, ", "))
}
