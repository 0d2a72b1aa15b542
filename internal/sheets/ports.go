// Package sheets defines the spreadsheet export port; the google subpackage
// implements it on the Sheets API.
package sheets

import (
	"context"

	"cashly/internal/core"
)

// ExpenseExporter mirrors a processed receipt's expenses to an external sheet.
type ExpenseExporter interface {
	// Export appends one row per expense and returns the updated range.
	Export(ctx context.Context, receiptID int64, expenses []core.Expense) (rowRef string, err error)
}
