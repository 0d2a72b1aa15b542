package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	BucketDay   Bucket = "day"
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
)

// Bucket is the granularity of the spending-over-time series.
type Bucket string

func (b Bucket) IsValid() bool {
	return b == BucketDay || b == BucketWeek || b == BucketMonth
}

// ParseBucket returns the bucket for s, or false when s is not a bucket name.
func ParseBucket(s string) (Bucket, bool) {
	b := Bucket(s)
	return b, b.IsValid()
}

// AutoBucket picks a granularity that keeps the series readable for the range.
func AutoBucket(rangeToken string) Bucket {
	switch rangeToken {
	case Range7Days, Range30Days:
		return BucketDay
	case Range90Days:
		return BucketWeek
	default:
		return BucketMonth
	}
}

// Start truncates t (in UTC) to the beginning of its bucket. Weeks start on Monday.
func (b Bucket) Start(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch b {
	case BucketWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case BucketMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// Label formats a bucket start for chart axes and tables.
func (b Bucket) Label(start time.Time) string {
	switch b {
	case BucketWeek:
		return "Wk " + start.Format("02 Jan")
	case BucketMonth:
		return start.Format("Jan 2006")
	default:
		return start.Format("02 Jan")
	}
}

// CategoryTotal is the summed amount of one category.
type CategoryTotal struct {
	Category Category `json:"category"`
	Total    Money    `json:"total"`
}

// BucketTotal is the summed amount of one time bucket.
type BucketTotal struct {
	Start time.Time `json:"start"`
	Total Money     `json:"total"`
}

// Totals summarises a filtered set of expenses.
type Totals struct {
	Count   int64 `json:"count"`
	Total   Money `json:"total"`
	Average Money `json:"average"`
}

// NewTotals computes the average as total/count rounded to two places,
// or zero when there are no expenses.
func NewTotals(count int64, total Money) Totals {
	t := Totals{Count: count, Total: total}
	if count > 0 {
		avg := total.Decimal().Div(decimal.NewFromInt(count)).Round(2)
		t.Average = Money{Cents: avg.Shift(2).IntPart()}
	}
	return t
}

// SumCategories adds up a category breakdown.
func SumCategories(rows []CategoryTotal) Money {
	var sum Money
	for _, r := range rows {
		sum = sum.Add(r.Total)
	}
	return sum
}
