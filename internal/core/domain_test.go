package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseCategory(t *testing.T) {
	for _, c := range Categories {
		got, err := ParseCategory(string(c))
		if err != nil || got != c {
			t.Fatalf("%s: expected ok, got %q (err=%v)", c, got, err)
		}
	}
	if got, err := ParseCategory(" Food "); err != nil || got != CategoryFood {
		t.Fatalf("expected case-insensitive match, got %q (err=%v)", got, err)
	}
	if _, err := ParseCategory("groceries"); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestNormalizeCategory(t *testing.T) {
	cases := map[string]Category{
		"shopping":  CategoryShopping,
		"Groceries": CategoryFood,
		"fuel":      CategoryTransportation,
		"pharmacy":  CategoryHealthcare,
		"":          CategoryOther,
		"rocket":    CategoryOther,
	}
	for in, want := range cases {
		if got := NormalizeCategory(in); got != want {
			t.Fatalf("%q: expected %s, got %s", in, want, got)
		}
	}
}

func TestNormalizeCurrency(t *testing.T) {
	if got, err := NormalizeCurrency("", DefaultCurrency); err != nil || got != "INR" {
		t.Fatalf("expected default INR, got %q (err=%v)", got, err)
	}
	if got, err := NormalizeCurrency("usd", DefaultCurrency); err != nil || got != "USD" {
		t.Fatalf("expected USD, got %q (err=%v)", got, err)
	}
	for _, bad := range []string{"EURO", "U1D", "$"} {
		if _, err := NormalizeCurrency(bad, DefaultCurrency); !errors.Is(err, ErrInvalidCurrency) {
			t.Fatalf("%q: expected ErrInvalidCurrency, got %v", bad, err)
		}
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{Amount: Money{Cents: 50000}, Currency: "INR", Category: CategoryFood}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Expense{
		{Amount: Money{Cents: -1}, Currency: "INR", Category: CategoryFood},
		{Amount: Money{Cents: 1}, Currency: "INR", Category: "groceries"},
		{Amount: Money{Cents: 1}, Currency: "", Category: CategoryFood},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestReceiptStatus(t *testing.T) {
	if StatusPending.IsTerminal() {
		t.Fatalf("pending must not be terminal")
	}
	if !StatusProcessed.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Fatalf("processed and failed must be terminal")
	}
	if ReceiptStatus("archived").IsValid() {
		t.Fatalf("unknown status reported valid")
	}
}

func TestReceiptTotalAndMerchant(t *testing.T) {
	r := Receipt{Expenses: []Expense{
		{Amount: Money{Cents: 50000}},
		{Amount: Money{Cents: 120000}, MerchantName: "Big Bazaar"},
	}}
	if r.Total().Cents != 170000 {
		t.Fatalf("expected 170000, got %d", r.Total().Cents)
	}
	if r.Merchant() != "Big Bazaar" {
		t.Fatalf("unexpected merchant %q", r.Merchant())
	}
}

func TestExpenseEffectiveDate(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	e := Expense{CreatedAt: created}
	if !e.EffectiveDate().Equal(created) {
		t.Fatalf("expected created_at fallback")
	}
	d := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	e.Date = &d
	if !e.EffectiveDate().Equal(d) {
		t.Fatalf("expected transaction date")
	}
}
