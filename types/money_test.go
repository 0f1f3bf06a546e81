package types

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"Micros", Micros(5_000, "usdc"), 5_000, "usdc", "0.005 usdc"},
		{"Micros sub-cent", Micros(1_000, "usdc"), 1_000, "usdc", "0.001 usdc"},
		{"Units", Units(3, "usdc"), 3_000_000, "usdc", "3.00 usdc"},
		{"Zero", Zero("usdc"), 0, "usdc", "0.00 usdc"},
		{"Uppercase currency", Micros(100, "USDC"), 100, "usdc", "0.0001 usdc"},
		{"Negative", Micros(-5_000, "usdc"), -5_000, "usdc", "-0.005 usdc"},
		{"Whole plus fraction", Micros(1_500_000, "usd"), 1_500_000, "usd", "1.50 usd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	usdc := func(micros int64) Money { return Micros(micros, "usdc") }

	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return usdc(100).Add(usdc(200)) }, usdc(300)},
		{"Subtract", func() Money { return usdc(500).Subtract(usdc(200)) }, usdc(300)},
		{"Multiply", func() Money { return usdc(100).Multiply(3) }, usdc(300)},
		{"Divide", func() Money { return usdc(900).Divide(3) }, usdc(300)},
		{"Divide truncates", func() Money { return usdc(100).Divide(3) }, usdc(33)},
		{"Negate", func() Money { return usdc(100).Negate() }, usdc(-100)},
		{"Abs positive", func() Money { return usdc(100).Abs() }, usdc(100)},
		{"Abs negative", func() Money { return usdc(-100).Abs() }, usdc(100)},
		{"Complex", func() Money {
			return usdc(1000).Add(usdc(500)).Multiply(2).Subtract(usdc(1000))
		}, usdc(2000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.op()
			if !got.Equal(tt.expected) {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestMoneyComparisons(t *testing.T) {
	small := Micros(1_000, "usdc")
	big := Micros(5_000, "usdc")

	if !small.LessThan(big) {
		t.Error("LessThan: 1000 < 5000 expected")
	}
	if !big.GreaterThan(small) {
		t.Error("GreaterThan: 5000 > 1000 expected")
	}
	if !small.Min(big).Equal(small) {
		t.Error("Min should pick the smaller value")
	}
	if !small.Max(big).Equal(big) {
		t.Error("Max should pick the larger value")
	}
	if !Zero("usdc").IsZero() {
		t.Error("IsZero on Zero expected")
	}
	if !big.IsPositive() || big.IsNegative() {
		t.Error("sign checks on positive value")
	}
}

func TestMoneyCurrencyMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("adding mismatched currencies should panic")
		}
	}()
	Micros(100, "usdc").Add(Micros(100, "eth"))
}

func TestMoneyJSON(t *testing.T) {
	m := Micros(5_000, "usdc")

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Money
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(m) {
		t.Errorf("round trip: got %s, want %s", decoded, m)
	}

	// Bare form without the display field decodes too.
	var bare Money
	if err := json.Unmarshal([]byte(`{"amount":2500,"currency":"USDC"}`), &bare); err != nil {
		t.Fatalf("unmarshal bare: %v", err)
	}
	if bare.Amount != 2500 || bare.Currency != "usdc" {
		t.Errorf("bare decode: got %+v", bare)
	}
}

func TestSum(t *testing.T) {
	total := Sum(
		Micros(1_000, "usdc"),
		Micros(2_000, "usdc"),
		Micros(3_000, "usdc"),
	)
	if total.Amount != 6_000 {
		t.Errorf("Sum: got %d, want 6000", total.Amount)
	}

	if !Sum().IsZero() {
		t.Error("empty Sum should be zero")
	}
}
