// Package memory keeps exported expense rows in process. It stands in for the
// Google Sheets exporter in development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"cashly/internal/core"
)

type Exporter struct {
	mu   sync.Mutex
	rows map[int64][]core.Expense
	next int
	err  error
}

func New() *Exporter {
	return &Exporter{rows: make(map[int64][]core.Expense)}
}

// FailWith makes every later Export return err.
func (e *Exporter) FailWith(err error) *Exporter {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
	return e
}

// Export records the receipt's expenses and returns a synthetic A1 range.
// A repeated export replaces the receipt's previous rows.
func (e *Exporter) Export(_ context.Context, receiptID int64, expenses []core.Expense) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	if len(expenses) == 0 {
		return "", nil
	}
	cp := make([]core.Expense, len(expenses))
	copy(cp, expenses)
	e.rows[receiptID] = cp

	first := e.next + 2
	e.next += len(cp)
	return fmt.Sprintf("mem!A%d:H%d", first, first+len(cp)-1), nil
}

// Rows returns a copy of what was exported for the receipt.
func (e *Exporter) Rows(receiptID int64) []core.Expense {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]core.Expense, len(e.rows[receiptID]))
	copy(out, e.rows[receiptID])
	return out
}

// Len is the number of receipts exported.
func (e *Exporter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rows)
}
