package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cashly/internal/core"
	applog "cashly/internal/log"
	ports "cashly/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Header is the first row written to an empty expenses sheet.
var Header = []any{"Receipt", "Date", "Merchant", "Category", "Amount", "Currency", "Description", "Confidence"}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.ExpenseExporter = (*Client)(nil)

// Config selects the target spreadsheet and service account credentials.
// CredentialsJSON wins over CredentialsFile; with neither, Application
// Default Credentials are used.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

func New(ctx context.Context, cfg Config, extra ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Expenses"
	}

	opts, err := credentialOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets exporter ready", applog.FieldComponent, applog.ComponentSheets, "sheet", cfg.SheetName)
	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheetName: cfg.SheetName}, nil
}

func credentialOptions(ctx context.Context, cfg Config) ([]goption.ClientOption, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		slog.InfoContext(ctx, "Using inline JSON credentials", applog.FieldComponent, applog.ComponentSheets)
		return []goption.ClientOption{
			goption.WithCredentialsJSON([]byte(cfg.CredentialsJSON)),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}, nil
	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return []goption.ClientOption{
			goption.WithCredentialsJSON(data),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}, nil
	default:
		return []goption.ClientOption{goption.WithScopes(gsheet.SpreadsheetsScope)}, nil
	}
}

// Export appends the expenses as rows after the last filled row of the sheet.
func (c *Client) Export(ctx context.Context, receiptID int64, expenses []core.Expense) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if len(expenses) == 0 {
		return "", nil
	}

	vr := &gsheet.ValueRange{Values: Rows(receiptID, expenses)}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.sheetName+"!A:H", vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := ""
	if resp.Updates != nil {
		ref = resp.Updates.UpdatedRange
	}
	slog.InfoContext(ctx, "Expenses exported", applog.FieldComponent, applog.ComponentSheets, applog.FieldReceiptID, receiptID, "rows", len(expenses), "sheets_ref", ref)
	return ref, nil
}

// Rows formats expenses the way they are written to the sheet.
func Rows(receiptID int64, expenses []core.Expense) [][]any {
	rows := make([][]any, 0, len(expenses))
	for _, e := range expenses {
		date := ""
		if d := e.EffectiveDate(); !d.IsZero() {
			date = d.Format(time.DateOnly)
		}
		confidence := ""
		if e.Confidence.Valid {
			confidence = e.Confidence.Decimal.String()
		}
		rows = append(rows, []any{
			receiptID,
			date,
			e.MerchantName,
			string(e.Category),
			e.Amount.String(),
			e.Currency,
			e.Description,
			confidence,
		})
	}
	return rows
}
