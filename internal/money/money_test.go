package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidatePositive(t *testing.T) {
	if err := ValidatePositive(decimal.NewFromInt(100)); err != nil {
		t.Fatalf("positive amount rejected: %v", err)
	}
	if err := ValidatePositive(decimal.Zero); err == nil {
		t.Fatal("zero amount accepted")
	}
	if err := ValidatePositive(decimal.NewFromInt(-5)); err == nil {
		t.Fatal("negative amount accepted")
	}
}

func TestSimpleInterestAcrossCycles(t *testing.T) {
	// 1000 at 12% annual for 90+60+30 = 180 days total across three cycles.
	amount := decimal.NewFromInt(1000)
	rate := decimal.NewFromInt(12)

	total := decimal.Zero
	for _, days := range []int{90, 60, 30} {
		total = total.Add(SimpleInterest(amount, rate, days))
	}
	// gross = 1000 * 0.12/365 * 180
	want := amount.Mul(decimal.NewFromInt(12)).Div(decimal.NewFromInt(365)).Div(decimal.NewFromInt(100)).Mul(decimal.NewFromInt(180))
	if !total.Equal(want) {
		t.Fatalf("interest mismatch: got %s want %s", total, want)
	}
	// Boundary rounding: 1000 * 0.12/365 * 180 = 59.178... -> 59.18
	if got := Round(total).String(); got != "59.18" {
		t.Fatalf("rounded interest = %s, want 59.18", got)
	}
}

func TestSimpleInterestNonPositiveDays(t *testing.T) {
	if got := SimpleInterest(decimal.NewFromInt(1000), decimal.NewFromInt(12), 0); !got.IsZero() {
		t.Fatalf("zero days should accrue nothing, got %s", got)
	}
	if got := SimpleInterest(decimal.NewFromInt(1000), decimal.NewFromInt(12), -3); !got.IsZero() {
		t.Fatalf("negative days should accrue nothing, got %s", got)
	}
}

func TestTaxOn(t *testing.T) {
	interest := decimal.RequireFromString("100.00")
	tax := TaxOn(interest, decimal.NewFromInt(15))
	if got := Round(tax).String(); got != "15" && got != "15.00" {
		t.Fatalf("tax = %s, want 15", got)
	}
	if !TaxOn(decimal.Zero, decimal.NewFromInt(15)).IsZero() {
		t.Fatal("tax on zero interest should be zero")
	}
}

func TestParse(t *testing.T) {
	d, err := Parse("250.50")
	if err != nil {
		t.Fatal(err)
	}
	if d.String() != "250.5" {
		t.Fatalf("parsed %s", d)
	}
	if _, err := Parse("not-a-number"); err == nil {
		t.Fatal("expected parse error")
	}
}
