package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is applied to extracted expenses that carry no currency code.
const DefaultCurrency = "INR"

const (
	StatusPending   ReceiptStatus = "pending"
	StatusProcessed ReceiptStatus = "processed"
	StatusFailed    ReceiptStatus = "failed"
)

const (
	CategoryFood           Category = "food"
	CategoryLifestyle      Category = "lifestyle"
	CategorySubscriptions  Category = "subscriptions"
	CategoryTransportation Category = "transportation"
	CategoryShopping       Category = "shopping"
	CategoryEntertainment  Category = "entertainment"
	CategoryUtilities      Category = "utilities"
	CategoryHealthcare     Category = "healthcare"
	CategoryOther          Category = "other"
)

// Categories is the closed set of expense categories in display order.
var Categories = []Category{
	CategoryFood,
	CategoryLifestyle,
	CategorySubscriptions,
	CategoryTransportation,
	CategoryShopping,
	CategoryEntertainment,
	CategoryUtilities,
	CategoryHealthcare,
	CategoryOther,
}

type (
	ReceiptStatus string

	Category string

	Receipt struct {
		ID            int64
		ImageURL      string
		UploadedAt    time.Time
		ProcessedAt   *time.Time
		Status        ReceiptStatus
		FailureReason string
		Expenses      []Expense
	}

	Expense struct {
		ID           int64
		ReceiptID    int64
		MerchantName string
		Amount       Money
		Currency     string
		Category     Category
		Date         *time.Time
		Description  string
		Confidence   decimal.NullDecimal
		CreatedAt    time.Time
	}
)

var (
	ErrReceiptNotFound   = errors.New("receipt not found")
	ErrReceiptNotPending = errors.New("receipt is not pending")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrInvalidCurrency   = errors.New("invalid currency")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// IsTerminal reports whether the status can no longer change.
func (s ReceiptStatus) IsTerminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

func (s ReceiptStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

func (c Category) IsValid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Label returns the category with its first letter upper-cased.
func (c Category) Label() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

// ParseCategory accepts exactly one of the known categories, case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

var categoryAliases = map[string]Category{
	"groceries":     CategoryFood,
	"grocery":       CategoryFood,
	"restaurant":    CategoryFood,
	"dining":        CategoryFood,
	"transport":     CategoryTransportation,
	"travel":        CategoryTransportation,
	"fuel":          CategoryTransportation,
	"subscription":  CategorySubscriptions,
	"bills":         CategoryUtilities,
	"health":        CategoryHealthcare,
	"medical":       CategoryHealthcare,
	"pharmacy":      CategoryHealthcare,
	"clothing":      CategoryShopping,
	"personal care": CategoryLifestyle,
}

// NormalizeCategory maps an extractor's free-form guess onto the closed set.
// Anything unrecognised becomes CategoryOther.
func NormalizeCategory(s string) Category {
	if c, err := ParseCategory(s); err == nil {
		return c
	}
	if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c
	}
	return CategoryOther
}

// NormalizeCurrency upper-cases a code and falls back to fallback when empty.
func NormalizeCurrency(code, fallback string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = fallback
	}
	if len(code) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
		}
	}
	return code, nil
}

func (e Expense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !e.Category.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, e.Category)
	}
	if _, err := NormalizeCurrency(e.Currency, ""); err != nil {
		return err
	}
	if len(e.MerchantName) > 200 {
		return errors.New("merchant name too long (max 200 characters)")
	}
	if len(e.Description) > 500 {
		return errors.New("description too long (max 500 characters)")
	}
	return nil
}

// EffectiveDate is the instant used for range filtering and bucketing.
func (e Expense) EffectiveDate() time.Time {
	if e.Date != nil {
		return *e.Date
	}
	return e.CreatedAt
}

// Total sums the receipt's expense amounts.
func (r Receipt) Total() Money {
	var sum Money
	for _, e := range r.Expenses {
		sum = sum.Add(e.Amount)
	}
	return sum
}

// Merchant returns the first non-empty merchant name among the receipt's expenses.
func (r Receipt) Merchant() string {
	for _, e := range r.Expenses {
		if e.MerchantName != "" {
			return e.MerchantName
		}
	}
	return ""
}
