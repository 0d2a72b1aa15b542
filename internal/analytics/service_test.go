package analytics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cashly/internal/cache"
	"cashly/internal/core"
)

type fakeReader struct {
	categories []core.CategoryTotal
	timeline   []core.BucketTotal
	totals     core.Totals
	failTotals error

	// barrier, when set, makes every query wait until all three have started.
	barrier *sync.WaitGroup
	calls   atomic.Int32

	mu         sync.Mutex
	lastRange  *core.DateRange
	lastBucket core.Bucket
}

func (f *fakeReader) enter(ctx context.Context) error {
	f.calls.Add(1)
	if f.barrier == nil {
		return nil
	}
	f.barrier.Done()
	done := make(chan struct{})
	go func() {
		f.barrier.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
		return errors.New("queries did not run concurrently")
	}
}

func (f *fakeReader) SpendingByCategory(ctx context.Context, r *core.DateRange) ([]core.CategoryTotal, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.lastRange = r
	f.mu.Unlock()
	return f.categories, nil
}

func (f *fakeReader) SpendingOverTime(ctx context.Context, r *core.DateRange, b core.Bucket) ([]core.BucketTotal, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.lastBucket = b
	f.mu.Unlock()
	return f.timeline, nil
}

func (f *fakeReader) TotalSpending(ctx context.Context, r *core.DateRange) (core.Totals, error) {
	if err := f.enter(ctx); err != nil {
		return core.Totals{}, err
	}
	if f.failTotals != nil {
		return core.Totals{}, f.failTotals
	}
	return f.totals, nil
}

type countingObserver struct{ hits, misses int }

func (o *countingObserver) AnalyticsCache(hit bool) {
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

func sampleReader() *fakeReader {
	return &fakeReader{
		categories: []core.CategoryTotal{
			{Category: core.CategoryShopping, Total: core.Money{Cents: 120000}},
			{Category: core.CategoryFood, Total: core.Money{Cents: 50000}},
		},
		timeline: []core.BucketTotal{
			{Start: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Total: core.Money{Cents: 170000}},
		},
		totals: core.NewTotals(2, core.Money{Cents: 170000}),
	}
}

func TestSnapshotRunsQueriesConcurrently(t *testing.T) {
	r := sampleReader()
	r.barrier = &sync.WaitGroup{}
	r.barrier.Add(3)

	snap, err := NewService(r).Snapshot(context.Background(), "30d", "")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Totals.Count != 2 || snap.Totals.Average.Cents != 85000 {
		t.Fatalf("unexpected totals %+v", snap.Totals)
	}
	if core.SumCategories(snap.Categories) != snap.Totals.Total {
		t.Fatalf("category breakdown does not reconcile")
	}
	if snap.Bucket != core.BucketDay {
		t.Fatalf("expected day bucket for 30d, got %s", snap.Bucket)
	}
	if snap.From == nil || snap.To == nil || !snap.From.Before(*snap.To) {
		t.Fatalf("expected resolved bounds, got %v..%v", snap.From, snap.To)
	}
}

func TestSnapshotResolvesRange(t *testing.T) {
	now := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		token     string
		wantRange string
		bounded   bool
		bucket    core.Bucket
	}{
		{"7d", "7d", true, core.BucketDay},
		{"90d", "90d", true, core.BucketWeek},
		{"all", "all", false, core.BucketMonth},
		{"", "all", false, core.BucketMonth},
		{"forever", "all", false, core.BucketMonth},
	}
	for _, tc := range cases {
		t.Run(tc.token, func(t *testing.T) {
			r := sampleReader()
			snap, err := NewService(r, WithClock(func() time.Time { return now })).Snapshot(context.Background(), tc.token, "")
			if err != nil {
				t.Fatalf("Snapshot failed: %v", err)
			}
			if snap.Range != tc.wantRange || snap.Bucket != tc.bucket {
				t.Fatalf("expected %s/%s, got %s/%s", tc.wantRange, tc.bucket, snap.Range, snap.Bucket)
			}
			if (r.lastRange != nil) != tc.bounded {
				t.Fatalf("expected bounded=%v, got %+v", tc.bounded, r.lastRange)
			}
			if tc.bounded && !r.lastRange.To.Equal(now) {
				t.Fatalf("expected range to end now")
			}
		})
	}
}

func TestSnapshotBucketOverride(t *testing.T) {
	r := sampleReader()
	snap, err := NewService(r).Snapshot(context.Background(), "1y", core.BucketWeek)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Bucket != core.BucketWeek || r.lastBucket != core.BucketWeek {
		t.Fatalf("expected explicit week bucket, got %s", snap.Bucket)
	}
}

func TestSnapshotPropagatesErrors(t *testing.T) {
	r := sampleReader()
	boom := errors.New("database is locked")
	r.failTotals = boom

	snap, err := NewService(r).Snapshot(context.Background(), "all", "")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if snap.Categories != nil || snap.Totals.Count != 0 {
		t.Fatalf("expected no partial snapshot, got %+v", snap)
	}
}

func TestSnapshotEmptyStore(t *testing.T) {
	snap, err := NewService(&fakeReader{totals: core.NewTotals(0, core.Money{})}).Snapshot(context.Background(), "7d", "")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.HasData() {
		t.Fatalf("expected no data")
	}
	if snap.Categories == nil || snap.Timeline == nil {
		t.Fatalf("expected empty, non-nil series")
	}
	if snap.Totals.Average.Cents != 0 {
		t.Fatalf("expected zero average")
	}
}

func TestSnapshotCache(t *testing.T) {
	r := sampleReader()
	obs := &countingObserver{}
	svc := NewService(r, WithCache(cache.NewLRUCache[Snapshot](8, time.Minute)), WithObserver(obs))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Snapshot(ctx, "30d", ""); err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
	}
	if got := r.calls.Load(); got != 3 {
		t.Fatalf("expected one round of 3 queries, got %d", got)
	}
	if obs.hits != 2 || obs.misses != 1 {
		t.Fatalf("unexpected cache stats hits=%d misses=%d", obs.hits, obs.misses)
	}

	svc.Invalidate()
	if _, err := svc.Snapshot(ctx, "30d", ""); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if got := r.calls.Load(); got != 6 {
		t.Fatalf("expected queries to rerun after invalidation, got %d", got)
	}
}

// gatedReader blocks TotalSpending until release is closed.
type gatedReader struct {
	*fakeReader
	entered chan struct{}
	release chan struct{}
	count   atomic.Int64
}

func (g *gatedReader) TotalSpending(ctx context.Context, r *core.DateRange) (core.Totals, error) {
	n := g.count.Load()
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return core.Totals{}, ctx.Err()
	}
	return core.NewTotals(n, core.Money{Cents: n * 100}), nil
}

func TestSnapshotNotCachedAcrossInvalidate(t *testing.T) {
	r := &gatedReader{
		fakeReader: &fakeReader{},
		entered:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
	svc := NewService(r, WithCache(cache.NewLRUCache[Snapshot](8, time.Minute)))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Snapshot(ctx, "all", "")
		done <- err
	}()

	select {
	case <-r.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot never reached TotalSpending")
	}
	r.count.Store(1)
	svc.Invalidate()
	close(r.release)
	if err := <-done; err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	snap, err := svc.Snapshot(ctx, "all", "")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Totals.Count != 1 {
		t.Fatalf("expected fresh totals after invalidate, got count %d", snap.Totals.Count)
	}
}
