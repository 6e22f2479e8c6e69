package asset_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-detector/internal/asset"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2000.00", "2000", false},
		{" 0.000000000000000001 ", "0.000000000000000001", false},
		{"0", "", true},
		{"-1.5", "", true},
		{"abc", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := asset.ParsePrice(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePrice(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParsePrice(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}

	if _, err := asset.ParsePrice("0"); !errors.Is(err, asset.ErrNonPositivePrice) {
		t.Errorf("zero price error = %v, want ErrNonPositivePrice", err)
	}
}

func TestRatio_TruncatesTowardZero(t *testing.T) {
	tests := []struct {
		name     string
		num, den string
		want     string
	}{
		{"exact", "10", "2000", "0.005"},
		{"two thirds truncated", "2", "3", "0." + repeat("6", 36)},
		{"negative truncated toward zero", "-2", "3", "-0." + repeat("6", 36)},
		{"below precision", "1", "1" + repeat("0", 40), "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := asset.Ratio(decimal.RequireFromString(tt.num), decimal.RequireFromString(tt.den))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Ratio(%s, %s) = %s, want %s", tt.num, tt.den, got, tt.want)
			}
		})
	}

	if _, err := asset.Ratio(decimal.NewFromInt(1), decimal.Zero); !errors.Is(err, asset.ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestPercent(t *testing.T) {
	got, err := asset.Percent(decimal.RequireFromString("10.00"), decimal.RequireFromString("2000.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("Percent = %s, want 0.5", got)
	}
}

func TestInvert(t *testing.T) {
	got, err := asset.Invert(decimal.RequireFromString("4"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("Invert(4) = %s", got)
	}
}

func TestPriceFromSqrtX96(t *testing.T) {
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)

	tests := []struct {
		name           string
		sqrt           *big.Int
		token0, token1 *asset.Asset
		want           string
	}{
		{"unit price same decimals", q96, asset.USDC, asset.USDT, "1"},
		{"tripled sqrt same decimals", new(big.Int).Mul(q96, big.NewInt(3)), asset.USDC, asset.USDT, "9"},
		{"half sqrt", new(big.Int).Rsh(q96, 1), asset.USDC, asset.USDT, "0.25"},
		{"decimals adjustment eth/usdc", q96, asset.ETH, asset.USDC, "1000000000000"},
		{"decimals adjustment usdc/eth", q96, asset.USDC, asset.ETH, "0.000000000001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := asset.PriceFromSqrtX96(tt.sqrt, tt.token0, tt.token1)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPriceFromSqrtX96_IsExact(t *testing.T) {
	// An odd sqrt value has no short decimal form; the conversion must still round-trip.
	sqrt, _ := new(big.Int).SetString("3543191142285914205922034323214", 10)

	got, err := asset.PriceFromSqrtX96(sqrt, asset.USDC, asset.USDT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q192 := decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 192), 0)
	back := got.Mul(q192)
	want := decimal.NewFromBigInt(new(big.Int).Mul(sqrt, sqrt), 0)
	if !back.Equal(want) {
		t.Errorf("price * 2^192 = %s, want %s", back, want)
	}
}

func TestPriceFromSqrtX96_RejectsZero(t *testing.T) {
	if _, err := asset.PriceFromSqrtX96(big.NewInt(0), asset.ETH, asset.USDC); err == nil {
		t.Error("expected error for zero sqrt price")
	}
}

func TestApplyFee(t *testing.T) {
	mid := decimal.RequireFromString("2000")

	bid, ask := asset.ApplyFee(mid, 500) // 0.05%
	if !bid.Equal(decimal.RequireFromString("1999")) {
		t.Errorf("bid = %s, want 1999", bid)
	}
	if !ask.Equal(decimal.RequireFromString("2001")) {
		t.Errorf("ask = %s, want 2001", ask)
	}

	tiny := decimal.New(1, -40)
	bid, ask = asset.ApplyFee(tiny, 3000)
	if !bid.IsZero() {
		t.Errorf("sub-precision bid should round down to zero, got %s", bid)
	}
	if !ask.Equal(decimal.New(1, -asset.RatioPlaces)) {
		t.Errorf("sub-precision ask should round up, got %s", ask)
	}
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
