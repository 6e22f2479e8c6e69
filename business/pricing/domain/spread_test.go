package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCalculateSpread(t *testing.T) {
	tests := []struct {
		name           string
		buyAsk         string
		sellBid        string
		wantAbsolute   string
		wantPercent    string
		wantProfitable bool
	}{
		{
			name:           "equal_prices_no_spread",
			buyAsk:         "3400.00",
			sellBid:        "3400.00",
			wantAbsolute:   "0",
			wantPercent:    "0",
			wantProfitable: false,
		},
		{
			name:           "sell_higher_half_percent",
			buyAsk:         "2000.00",
			sellBid:        "2010.00",
			wantAbsolute:   "10",
			wantPercent:    "0.5", // 10/2000 * 100
			wantProfitable: true,
		},
		{
			name:           "sell_lower_negative_spread",
			buyAsk:         "3400.00",
			sellBid:        "3366.00",
			wantAbsolute:   "-34",
			wantPercent:    "-1",
			wantProfitable: false,
		},
		{
			name:           "repeating_fraction_truncated",
			buyAsk:         "3",
			sellBid:        "4",
			wantAbsolute:   "1",
			wantPercent:    "33.333333333333333333333333333333333333", // 36 places, not rounded up
			wantProfitable: true,
		},
		{
			name:           "tiny_on_chain_units",
			buyAsk:         "0.000000000000000001",
			sellBid:        "0.000000000000000002",
			wantAbsolute:   "0.000000000000000001",
			wantPercent:    "100",
			wantProfitable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spread, err := CalculateSpread(decimal.RequireFromString(tt.buyAsk), decimal.RequireFromString(tt.sellBid))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !spread.Absolute.Equal(decimal.RequireFromString(tt.wantAbsolute)) {
				t.Errorf("Absolute = %s, want %s", spread.Absolute, tt.wantAbsolute)
			}
			if !spread.Percent.Equal(decimal.RequireFromString(tt.wantPercent)) {
				t.Errorf("Percent = %s, want %s", spread.Percent, tt.wantPercent)
			}
			if spread.IsProfitable() != tt.wantProfitable {
				t.Errorf("IsProfitable = %v, want %v", spread.IsProfitable(), tt.wantProfitable)
			}
		})
	}
}

func TestCalculateSpread_RejectsNonPositiveBuyPrice(t *testing.T) {
	for _, ask := range []string{"0", "-1"} {
		if _, err := CalculateSpread(decimal.RequireFromString(ask), decimal.NewFromInt(10)); err == nil {
			t.Errorf("buy ask %s: expected error", ask)
		}
	}
}
