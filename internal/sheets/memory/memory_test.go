package memory

import (
	"context"
	"errors"
	"testing"

	"cashly/internal/core"
)

func TestExportRecordsRows(t *testing.T) {
	e := New()
	ctx := context.Background()

	ref, err := e.Export(ctx, 1, []core.Expense{
		{ReceiptID: 1, MerchantName: "Cafe", Amount: core.Money{Cents: 500}, Category: core.CategoryFood},
		{ReceiptID: 1, MerchantName: "Cafe", Amount: core.Money{Cents: 250}, Category: core.CategoryFood},
	})
	if err != nil || ref != "mem!A2:H3" {
		t.Fatalf("Export() = %q, %v", ref, err)
	}

	ref, err = e.Export(ctx, 2, []core.Expense{{ReceiptID: 2, Amount: core.Money{Cents: 100}}})
	if err != nil || ref != "mem!A4:H4" {
		t.Fatalf("second Export() = %q, %v", ref, err)
	}

	if got := e.Rows(1); len(got) != 2 || got[1].Amount.Cents != 250 {
		t.Errorf("Rows(1) = %+v", got)
	}
	if e.Len() != 2 {
		t.Errorf("Len() = %d", e.Len())
	}
}

func TestExportEmptyAndFailure(t *testing.T) {
	e := New()
	if ref, err := e.Export(context.Background(), 1, nil); ref != "" || err != nil {
		t.Errorf("empty Export() = %q, %v", ref, err)
	}
	if e.Len() != 0 {
		t.Errorf("empty export stored rows")
	}

	boom := errors.New("quota exceeded")
	e.FailWith(boom)
	if _, err := e.Export(context.Background(), 1, []core.Expense{{ReceiptID: 1}}); !errors.Is(err, boom) {
		t.Errorf("Export() error = %v", err)
	}
	if len(e.Rows(1)) != 0 {
		t.Errorf("failed export stored rows")
	}
}
