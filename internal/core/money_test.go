package core

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"0", 0, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"1200", 120000, true},
		{"-1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:      "0.00",
		5:      "0.05",
		170000: "1700.00",
		85050:  "850.50",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).String(); got != want {
			t.Fatalf("%d: expected %s, got %s", cents, want, got)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(Money{Cents: 123456})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"1234.56"` {
		t.Fatalf("unexpected json %s", b)
	}

	for _, in := range []string{`"12.5"`, `12.5`} {
		var m Money
		if err := json.Unmarshal([]byte(in), &m); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		if m.Cents != 1250 {
			t.Fatalf("unmarshal %s: got %d", in, m.Cents)
		}
	}

	var m Money
	if err := json.Unmarshal([]byte(`"-3"`), &m); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}

func TestMoneyFromDecimal(t *testing.T) {
	m, err := MoneyFromDecimal(decimal.RequireFromString("499.999"))
	if err != nil || m.Cents != 50000 {
		t.Fatalf("expected 50000, got %d (err=%v)", m.Cents, err)
	}
}

func TestMoneyPercent(t *testing.T) {
	if got := (Money{Cents: 500}).Percent(Money{Cents: 1700}); got != 29.4 {
		t.Fatalf("expected 29.4, got %v", got)
	}
	if got := (Money{Cents: 500}).Percent(Money{}); got != 0 {
		t.Fatalf("expected 0 for empty whole, got %v", got)
	}
}
