// Package analytics joins the three spending aggregations into one snapshot.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cashly/internal/cache"
	"cashly/internal/core"
	applog "cashly/internal/log"
)

// Reader is the read side of the expense store.
type Reader interface {
	SpendingByCategory(ctx context.Context, r *core.DateRange) ([]core.CategoryTotal, error)
	SpendingOverTime(ctx context.Context, r *core.DateRange, b core.Bucket) ([]core.BucketTotal, error)
	TotalSpending(ctx context.Context, r *core.DateRange) (core.Totals, error)
}

// CacheObserver is notified of snapshot cache hits and misses.
type CacheObserver interface {
	AnalyticsCache(hit bool)
}

// Snapshot is the result of one analysis request.
type Snapshot struct {
	Range      string               `json:"range"`
	From       *time.Time           `json:"from,omitempty"`
	To         *time.Time           `json:"to,omitempty"`
	Bucket     core.Bucket          `json:"bucket"`
	Categories []core.CategoryTotal `json:"categories"`
	Timeline   []core.BucketTotal   `json:"timeline"`
	Totals     core.Totals          `json:"totals"`
}

// HasData reports whether any expense fell inside the range.
func (s Snapshot) HasData() bool {
	return s.Totals.Count > 0
}

type Service struct {
	reader   Reader
	cache    cache.Cache[Snapshot]
	observer CacheObserver
	now      func() time.Time

	// gen is bumped by Invalidate; a snapshot is cached only if gen did not
	// move while its queries ran.
	mu  sync.Mutex
	gen uint64
}

type Option func(*Service)

// WithCache memoises snapshots per range and bucket.
func WithCache(c cache.Cache[Snapshot]) Option {
	return func(s *Service) { s.cache = c }
}

func WithObserver(o CacheObserver) Option {
	return func(s *Service) { s.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(reader Reader, opts ...Option) *Service {
	s := &Service{reader: reader, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot resolves rangeToken and runs the three aggregations concurrently.
// An unknown token is treated as "all". A zero bucket picks one from the range.
// The first failing query cancels the others and its error is returned.
func (s *Service) Snapshot(ctx context.Context, rangeToken string, bucket core.Bucket) (Snapshot, error) {
	dr, known := core.ResolveRange(rangeToken, s.now())
	if !known {
		rangeToken = core.RangeAll
	}
	if !bucket.IsValid() {
		bucket = core.AutoBucket(rangeToken)
	}

	key := rangeToken + "|" + string(bucket)
	gen := s.generation()
	if s.cache != nil {
		snap, ok := s.cache.Get(key)
		s.observe(ok)
		if ok {
			return snap, nil
		}
	}

	snap := Snapshot{Range: rangeToken, Bucket: bucket}
	if dr != nil {
		snap.From, snap.To = &dr.From, &dr.To
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.reader.SpendingByCategory(gctx, dr)
		if err != nil {
			return fmt.Errorf("spending by category: %w", err)
		}
		snap.Categories = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.reader.SpendingOverTime(gctx, dr, bucket)
		if err != nil {
			return fmt.Errorf("spending over time: %w", err)
		}
		snap.Timeline = rows
		return nil
	})
	g.Go(func() error {
		totals, err := s.reader.TotalSpending(gctx, dr)
		if err != nil {
			return fmt.Errorf("total spending: %w", err)
		}
		snap.Totals = totals
		return nil
	})
	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "Analytics snapshot failed", applog.FieldComponent, applog.ComponentAnalytics, "range", rangeToken, applog.FieldError, err)
		return Snapshot{}, err
	}

	if snap.Categories == nil {
		snap.Categories = []core.CategoryTotal{}
	}
	if snap.Timeline == nil {
		snap.Timeline = []core.BucketTotal{}
	}

	s.store(key, gen, snap)
	return snap, nil
}

func (s *Service) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Service) store(key string, gen uint64, snap Snapshot) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.cache.Set(key, snap)
}

// Invalidate drops every cached snapshot. Called after any write.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cache != nil {
		s.cache.Clear()
	}
}

func (s *Service) observe(hit bool) {
	if s.observer != nil {
		s.observer.AnalyticsCache(hit)
	}
}
