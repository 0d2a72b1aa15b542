package storage

import (
	"fmt"

	"cashly/internal/core"
)

const (
	insertReceipt = `INSERT INTO receipts (image_url, uploaded_at, status) VALUES (?, ?, 'pending')`

	selectReceiptColumns = `SELECT id, image_url, uploaded_at, processed_at, status, failure_reason FROM receipts`

	selectExpenseColumns = `SELECT id, receipt_id, merchant_name, amount_cents, currency, category, date, description, confidence, created_at FROM expenses`

	markProcessed = `UPDATE receipts SET status = 'processed', processed_at = ?, failure_reason = NULL
		WHERE id = ? AND status = 'pending'`

	markFailed = `UPDATE receipts SET status = 'failed', processed_at = ?, failure_reason = ?
		WHERE id = ? AND status = 'pending'`

	insertExpense = `INSERT INTO expenses
		(receipt_id, merchant_name, amount_cents, currency, category, date, description, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	deleteReceipt = `DELETE FROM receipts WHERE id = ?`

	// effectiveDate is the column expression used for range filtering and bucketing.
	effectiveDate = `COALESCE(date, created_at)`
)

// rangeFilter returns a WHERE clause restricting expenses to r, inclusive on both ends.
func rangeFilter(r *core.DateRange) (string, []any) {
	if r == nil {
		return "", nil
	}
	// Stored instants are whole seconds: round from up and to down.
	from := r.From.Unix()
	if r.From.Nanosecond() > 0 {
		from++
	}
	return " WHERE " + effectiveDate + " BETWEEN ? AND ?", []any{from, r.To.Unix()}
}

// bucketExpr maps a bucket to a SQLite expression yielding the bucket start as YYYY-MM-DD.
func bucketExpr(b core.Bucket) (string, error) {
	switch b {
	case core.BucketDay:
		return "date(" + effectiveDate + ", 'unixepoch')", nil
	case core.BucketWeek:
		// next-or-same Sunday minus six days is the Monday starting the week
		return "date(" + effectiveDate + ", 'unixepoch', 'weekday 0', '-6 days')", nil
	case core.BucketMonth:
		return "strftime('%Y-%m-01', " + effectiveDate + ", 'unixepoch')", nil
	default:
		return "", fmt.Errorf("unsupported bucket %q", b)
	}
}
