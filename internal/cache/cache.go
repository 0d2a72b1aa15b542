// Package cache provides an in-process TTL cache used for analytics snapshots.
package cache

import (
	"context"
	"log/slog"
	"time"

	applog "cashly/internal/log"
)

// Cache is the subset of LRUCache behaviour consumers depend on.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	// Clear drops every entry, used when the underlying data changes.
	Clear()
	Size() int
}

// Cleaner is implemented by caches whose expired entries can be swept.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically sweeps expired entries out of registered caches.
type Janitor struct {
	caches []Cleaner
	done   chan struct{}
}

func NewJanitor(caches ...Cleaner) *Janitor {
	return &Janitor{caches: caches, done: make(chan struct{})}
}

// Run sweeps every interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	defer close(j.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cleaned := 0
			for _, c := range j.caches {
				cleaned += c.CleanExpired()
			}
			if cleaned > 0 {
				slog.DebugContext(ctx, "Expired cache entries removed", applog.FieldComponent, applog.ComponentCache, "count", cleaned)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Done is closed once Run returns.
func (j *Janitor) Done() <-chan struct{} {
	return j.done
}
