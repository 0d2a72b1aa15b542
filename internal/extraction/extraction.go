// Package extraction talks to the external receipt analysis service.
//
// Two backends are provided: an HTTP endpoint accepting a multipart upload
// and a Gemini model called through google.golang.org/genai. Both return
// the same Result shape.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cashly/internal/core"
)

// ErrExtraction wraps every failure reported by an extractor backend.
var ErrExtraction = errors.New("receipt extraction failed")

// Image is the receipt payload handed to an extractor.
type Image struct {
	Data     []byte
	MIMEType string
	Filename string
}

// ExtractedExpense is one line item as returned by the analysis service.
type ExtractedExpense struct {
	MerchantName string              `json:"merchant_name"`
	Amount       decimal.NullDecimal `json:"amount"`
	Currency     string              `json:"currency"`
	Category     string              `json:"category"`
	Date         string              `json:"date"`
	Description  string              `json:"description"`
	Confidence   decimal.NullDecimal `json:"confidence"`
}

// Result is the analysis of one receipt; it may hold zero expenses.
type Result struct {
	Expenses []ExtractedExpense `json:"expenses"`
}

type Extractor interface {
	Extract(ctx context.Context, img Image) (Result, error)
}

// response mirrors the service's wire envelope.
type response struct {
	Analysis *Result `json:"analysis"`
	Error    string  `json:"error"`
}

func decodeResponse(body []byte) (Result, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrExtraction, err)
	}
	if resp.Error != "" {
		return Result{}, fmt.Errorf("%w: %s", ErrExtraction, resp.Error)
	}
	if resp.Analysis == nil {
		return Result{}, fmt.Errorf("%w: response has no analysis", ErrExtraction)
	}
	return *resp.Analysis, nil
}

var dateLayouts = []string{time.DateOnly, time.RFC3339, "2006-01-02 15:04:05", "02/01/2006"}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised date %q", s)
}

// ToExpenses converts an analysis into validated expenses ready to persist.
// Any invalid item rejects the whole result.
func ToExpenses(res Result, defaultCurrency string) ([]core.Expense, error) {
	out := make([]core.Expense, 0, len(res.Expenses))
	for i, item := range res.Expenses {
		if !item.Amount.Valid {
			return nil, fmt.Errorf("expense %d: missing amount", i+1)
		}
		amount, err := core.MoneyFromDecimal(item.Amount.Decimal)
		if err != nil {
			return nil, fmt.Errorf("expense %d: amount %s: %w", i+1, item.Amount.Decimal, err)
		}
		currency, err := core.NormalizeCurrency(item.Currency, defaultCurrency)
		if err != nil {
			return nil, fmt.Errorf("expense %d: %w", i+1, err)
		}
		date, err := parseDate(item.Date)
		if err != nil {
			return nil, fmt.Errorf("expense %d: %w", i+1, err)
		}

		e := core.Expense{
			MerchantName: strings.TrimSpace(item.MerchantName),
			Amount:       amount,
			Currency:     currency,
			Category:     core.NormalizeCategory(item.Category),
			Date:         date,
			Description:  strings.TrimSpace(item.Description),
			Confidence:   item.Confidence,
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("expense %d: %w", i+1, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// errorMessage pulls the "error" string out of a failure body, if any.
func errorMessage(body []byte) string {
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return resp.Error
}
