package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-detector/internal/apperror"
)

var ethUSDC = MustParseInstrument("ETH-USDC")

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewPriceUpdate_Validation(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		bid, ask string
		at       time.Time
		wantCode apperror.Code
	}{
		{"valid", "1999.5", "2000", now, ""},
		{"locked book allowed", "2000", "2000", now, ""},
		{"zero bid", "0", "2000", now, apperror.CodeInvalidPrice},
		{"negative ask", "1999", "-2000", now, apperror.CodeInvalidPrice},
		{"crossed book", "2001", "2000", now, apperror.CodeMalformedPayload},
		{"missing time", "1999", "2000", time.Time{}, apperror.CodeRequiredField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPriceUpdate(VenueBinance, ethUSDC, d(tt.bid), d(tt.ask), tt.at, 1)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !apperror.HasCode(err, tt.wantCode) {
				t.Errorf("error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestPriceUpdate_Supersedes(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(seq uint64, offset time.Duration) PriceUpdate {
		u, err := NewPriceUpdate(VenueCoinbase, ethUSDC, d("1"), d("2"), t0.Add(offset), seq)
		if err != nil {
			t.Fatalf("build update: %v", err)
		}
		return u
	}

	tests := []struct {
		name string
		next PriceUpdate
		prev PriceUpdate
		want bool
	}{
		{"higher sequence", at(11, 0), at(10, 0), true},
		{"duplicate sequence", at(10, time.Second), at(10, 0), false},
		{"lower sequence later time", at(9, time.Minute), at(10, 0), false},
		{"no sequence later time", at(0, time.Second), at(0, 0), true},
		{"no sequence same time", at(0, 0), at(0, 0), false},
		{"one side without sequence uses time", at(0, time.Second), at(5, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.next.Supersedes(tt.prev); got != tt.want {
				t.Errorf("Supersedes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPriceUpdate_MidAndStaleness(t *testing.T) {
	now := time.Now()
	u, err := NewPriceUpdate(VenueBinance, ethUSDC, d("2000"), d("2001"), now.Add(-3*time.Second), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !u.Mid().Equal(d("2000.5")) {
		t.Errorf("Mid = %s", u.Mid())
	}
	if u.IsStale(now, 5*time.Second) {
		t.Error("3s old update should be fresh with 5s max age")
	}
	if !u.IsStale(now, 2*time.Second) {
		t.Error("3s old update should be stale with 2s max age")
	}
	if u.Key().String() != "binance:ETH-USDC" {
		t.Errorf("Key = %s", u.Key())
	}
}

func TestParseInstrument(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ETH-USDC", "ETH-USDC", false},
		{"eth/usdt", "ETH-USDT", false},
		{" btc_usdc ", "BTC-USDC", false},
		{"ETHUSDC", "", true},
		{"ETH-", "", true},
		{"A-B-C", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInstrument(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseInstrument(%q) error = %v", tt.in, err)
			}
			if !tt.wantErr && got.String() != tt.want {
				t.Errorf("ParseInstrument(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}
