package core

import (
	"testing"
	"time"
)

func TestNewTotals(t *testing.T) {
	cases := []struct {
		name    string
		count   int64
		total   int64
		average int64
	}{
		{"empty", 0, 0, 0},
		{"two expenses", 2, 170000, 85000},
		{"rounds down", 3, 100, 33},
		{"rounds up", 3, 200, 67},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NewTotals(tc.count, Money{Cents: tc.total})
			if got.Average.Cents != tc.average {
				t.Fatalf("expected average %d, got %d", tc.average, got.Average.Cents)
			}
			if got.Count != tc.count || got.Total.Cents != tc.total {
				t.Fatalf("count/total not carried: %+v", got)
			}
		})
	}
}

func TestBucketStart(t *testing.T) {
	// Wednesday
	ts := time.Date(2025, 3, 12, 18, 30, 0, 0, time.UTC)
	cases := map[Bucket]time.Time{
		BucketDay:   time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		BucketWeek:  time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		BucketMonth: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	for b, want := range cases {
		if got := b.Start(ts); !got.Equal(want) {
			t.Fatalf("%s: expected %v, got %v", b, want, got)
		}
	}

	sunday := time.Date(2025, 3, 16, 23, 0, 0, 0, time.UTC)
	if got := BucketWeek.Start(sunday); !got.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("sunday belongs to the week starting monday, got %v", got)
	}
}

func TestAutoBucket(t *testing.T) {
	cases := map[string]Bucket{
		"7d":  BucketDay,
		"30d": BucketDay,
		"90d": BucketWeek,
		"1y":  BucketMonth,
		"all": BucketMonth,
		"":    BucketMonth,
	}
	for token, want := range cases {
		if got := AutoBucket(token); got != want {
			t.Fatalf("%q: expected %s, got %s", token, want, got)
		}
	}
}

func TestParseBucket(t *testing.T) {
	if b, ok := ParseBucket("week"); !ok || b != BucketWeek {
		t.Fatalf("expected week")
	}
	if _, ok := ParseBucket("hour"); ok {
		t.Fatalf("hour is not a bucket")
	}
}

func TestSumCategories(t *testing.T) {
	rows := []CategoryTotal{
		{Category: CategoryShopping, Total: Money{Cents: 120000}},
		{Category: CategoryFood, Total: Money{Cents: 50000}},
	}
	if got := SumCategories(rows); got.Cents != 170000 {
		t.Fatalf("expected 170000, got %d", got.Cents)
	}
}
