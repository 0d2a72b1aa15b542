package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cashly/internal/core"
	applog "cashly/internal/log"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

// DSN builds a modernc connection string enabling foreign keys and a busy timeout
// on every pooled connection.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateReceipt stores a new pending receipt.
func (r *SQLiteRepository) CreateReceipt(ctx context.Context, imageURL string, uploadedAt time.Time) (core.Receipt, error) {
	res, err := r.db.ExecContext(ctx, insertReceipt, nullString(imageURL), uploadedAt.Unix())
	if err != nil {
		return core.Receipt{}, fmt.Errorf("insert receipt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Receipt{}, fmt.Errorf("read receipt id: %w", err)
	}

	slog.InfoContext(ctx, "Receipt created", applog.FieldComponent, applog.ComponentStorage, applog.FieldReceiptID, id, "image_url", imageURL)

	return core.Receipt{
		ID:         id,
		ImageURL:   imageURL,
		UploadedAt: time.Unix(uploadedAt.Unix(), 0).UTC(),
		Status:     core.StatusPending,
	}, nil
}

// GetReceipt loads a receipt together with its expenses.
func (r *SQLiteRepository) GetReceipt(ctx context.Context, id int64) (core.Receipt, error) {
	row := r.db.QueryRowContext(ctx, selectReceiptColumns+" WHERE id = ?", id)
	rec, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Receipt{}, fmt.Errorf("get receipt %d: %w", id, core.ErrReceiptNotFound)
	}
	if err != nil {
		return core.Receipt{}, fmt.Errorf("get receipt %d: %w", id, err)
	}

	byReceipt, err := r.expensesFor(ctx, []int64{id})
	if err != nil {
		return core.Receipt{}, err
	}
	rec.Expenses = byReceipt[id]
	return rec, nil
}

// ListReceipts returns up to limit receipts, newest first, with their expenses.
// A limit <= 0 returns every receipt.
func (r *SQLiteRepository) ListReceipts(ctx context.Context, limit int) ([]core.Receipt, error) {
	query := selectReceiptColumns + " ORDER BY uploaded_at DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.listReceipts(ctx, query, args...)
}

// ListStalePending returns pending receipts uploaded before cutoff, oldest first.
func (r *SQLiteRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]core.Receipt, error) {
	query := selectReceiptColumns + " WHERE status = 'pending' AND uploaded_at < ? ORDER BY uploaded_at ASC LIMIT ?"
	return r.listReceipts(ctx, query, cutoff.Unix(), limit)
}

func (r *SQLiteRepository) listReceipts(ctx context.Context, query string, args ...any) ([]core.Receipt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []core.Receipt
	var ids []int64
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		receipts = append(receipts, rec)
		ids = append(ids, rec.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}

	byReceipt, err := r.expensesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range receipts {
		receipts[i].Expenses = byReceipt[receipts[i].ID]
	}
	return receipts, nil
}

func (r *SQLiteRepository) expensesFor(ctx context.Context, receiptIDs []int64) (map[int64][]core.Expense, error) {
	out := make(map[int64][]core.Expense, len(receiptIDs))
	if len(receiptIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(receiptIDs)), ",")
	args := make([]any, len(receiptIDs))
	for i, id := range receiptIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		selectExpenseColumns+" WHERE receipt_id IN ("+placeholders+") ORDER BY receipt_id, id", args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out[e.ReceiptID] = append(out[e.ReceiptID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

// CompleteReceipt atomically moves a pending receipt to processed and inserts
// its expenses. Either every expense is written or none is.
func (r *SQLiteRepository) CompleteReceipt(ctx context.Context, id int64, expenses []core.Expense, at time.Time) ([]core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := transition(ctx, tx, id, markProcessed, at.Unix(), id); err != nil {
		return nil, err
	}

	stored := make([]core.Expense, len(expenses))
	for i, e := range expenses {
		e.ReceiptID = id
		if e.CreatedAt.IsZero() {
			e.CreatedAt = at
		}
		e.CreatedAt = time.Unix(e.CreatedAt.Unix(), 0).UTC()

		res, err := tx.ExecContext(ctx, insertExpense,
			id,
			nullString(e.MerchantName),
			e.Amount.Cents,
			e.Currency,
			string(e.Category),
			nullTime(e.Date),
			nullString(e.Description),
			nullDecimal(e.Confidence),
			e.CreatedAt.Unix(),
		)
		if err != nil {
			return nil, fmt.Errorf("insert expense %d of %d: %w", i+1, len(expenses), err)
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("read expense id: %w", err)
		}
		stored[i] = e
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Receipt processed", applog.FieldComponent, applog.ComponentStorage, applog.FieldReceiptID, id, applog.FieldExpenseCount, len(stored))
	return stored, nil
}

// FailReceipt moves a pending receipt to failed, recording reason.
func (r *SQLiteRepository) FailReceipt(ctx context.Context, id int64, reason string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := transition(ctx, tx, id, markFailed, at.Unix(), nullString(reason), id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.WarnContext(ctx, "Receipt marked failed", applog.FieldComponent, applog.ComponentStorage, applog.FieldReceiptID, id, "reason", reason)
	return nil
}

// transition runs a conditional status update and explains a no-op.
func transition(ctx context.Context, tx *sql.Tx, id int64, stmt string, args ...any) error {
	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update receipt %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update receipt %d: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	var status string
	err = tx.QueryRowContext(ctx, "SELECT status FROM receipts WHERE id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update receipt %d: %w", id, core.ErrReceiptNotFound)
	}
	if err != nil {
		return fmt.Errorf("update receipt %d: %w", id, err)
	}
	return fmt.Errorf("update receipt %d (%s): %w", id, status, core.ErrReceiptNotPending)
}

// DeleteReceipt removes a receipt and, through the foreign key, its expenses.
// The deleted receipt is returned so callers can clean up its image.
func (r *SQLiteRepository) DeleteReceipt(ctx context.Context, id int64) (core.Receipt, error) {
	rec, err := r.GetReceipt(ctx, id)
	if err != nil {
		return core.Receipt{}, err
	}
	if _, err := r.db.ExecContext(ctx, deleteReceipt, id); err != nil {
		return core.Receipt{}, fmt.Errorf("delete receipt %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Receipt deleted", applog.FieldComponent, applog.ComponentStorage, applog.FieldReceiptID, id, applog.FieldExpenseCount, len(rec.Expenses))
	return rec, nil
}

// SpendingByCategory sums expenses per category, largest first.
func (r *SQLiteRepository) SpendingByCategory(ctx context.Context, dr *core.DateRange) ([]core.CategoryTotal, error) {
	where, args := rangeFilter(dr)
	query := "SELECT category, SUM(amount_cents) AS total FROM expenses" + where +
		" GROUP BY category ORDER BY total DESC, category ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query spending by category: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryTotal
	for rows.Next() {
		var category string
		var cents int64
		if err := rows.Scan(&category, &cents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		out = append(out, core.CategoryTotal{Category: core.Category(category), Total: core.Money{Cents: cents}})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category totals: %w", err)
	}
	return out, nil
}

// SpendingOverTime sums expenses per bucket in chronological order.
func (r *SQLiteRepository) SpendingOverTime(ctx context.Context, dr *core.DateRange, bucket core.Bucket) ([]core.BucketTotal, error) {
	expr, err := bucketExpr(bucket)
	if err != nil {
		return nil, err
	}
	where, args := rangeFilter(dr)
	query := "SELECT " + expr + " AS bucket, SUM(amount_cents) FROM expenses" + where +
		" GROUP BY bucket ORDER BY bucket ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query spending over time: %w", err)
	}
	defer rows.Close()

	var out []core.BucketTotal
	for rows.Next() {
		var label string
		var cents int64
		if err := rows.Scan(&label, &cents); err != nil {
			return nil, fmt.Errorf("scan bucket total: %w", err)
		}
		start, err := time.Parse(time.DateOnly, label)
		if err != nil {
			return nil, fmt.Errorf("parse bucket %q: %w", label, err)
		}
		out = append(out, core.BucketTotal{Start: start, Total: core.Money{Cents: cents}})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bucket totals: %w", err)
	}
	return out, nil
}

// TotalSpending returns count, sum and average of the filtered expenses.
func (r *SQLiteRepository) TotalSpending(ctx context.Context, dr *core.DateRange) (core.Totals, error) {
	where, args := rangeFilter(dr)
	var count, cents int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(amount_cents), 0) FROM expenses"+where, args...).Scan(&count, &cents)
	if err != nil {
		return core.Totals{}, fmt.Errorf("query total spending: %w", err)
	}
	return core.NewTotals(count, core.Money{Cents: cents}), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(s scanner) (core.Receipt, error) {
	var (
		rec         core.Receipt
		imageURL    sql.NullString
		uploadedAt  int64
		processedAt sql.NullInt64
		status      string
		reason      sql.NullString
	)
	if err := s.Scan(&rec.ID, &imageURL, &uploadedAt, &processedAt, &status, &reason); err != nil {
		return core.Receipt{}, err
	}
	rec.ImageURL = imageURL.String
	rec.UploadedAt = time.Unix(uploadedAt, 0).UTC()
	rec.ProcessedAt = timePtr(processedAt)
	rec.Status = core.ReceiptStatus(status)
	rec.FailureReason = reason.String
	return rec, nil
}

func scanExpense(s scanner) (core.Expense, error) {
	var (
		e           core.Expense
		merchant    sql.NullString
		category    string
		date        sql.NullInt64
		description sql.NullString
		confidence  sql.NullString
		createdAt   int64
	)
	if err := s.Scan(&e.ID, &e.ReceiptID, &merchant, &e.Amount.Cents, &e.Currency, &category,
		&date, &description, &confidence, &createdAt); err != nil {
		return core.Expense{}, err
	}
	e.MerchantName = merchant.String
	e.Category = core.Category(category)
	e.Date = timePtr(date)
	e.Description = description.String
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	if confidence.Valid {
		d, err := decimal.NewFromString(confidence.String)
		if err != nil {
			return core.Expense{}, fmt.Errorf("parse confidence %q: %w", confidence.String, err)
		}
		e.Confidence = decimal.NewNullDecimal(d)
	}
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
