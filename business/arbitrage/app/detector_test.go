package app

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-detector/business/arbitrage/domain"
	pricingDomain "github.com/fd1az/arbitrage-detector/business/pricing/domain"
)

func view(prices ...pricingDomain.PriceUpdate) domain.InstrumentView {
	s := domain.NewMarketState()
	for _, p := range prices {
		s.Apply(p, t0)
	}
	return s.View(ethUSDC, t0, 1<<62)
}

func TestDetector_Scenarios(t *testing.T) {
	// A asks 2000.00, B bids 2010.00.
	a := func(t *testing.T) pricingDomain.PriceUpdate {
		return priceUpdate(t, pricingDomain.VenueBinance, "1999.00", "2000.00", 1)
	}
	b := func(t *testing.T) pricingDomain.PriceUpdate {
		return priceUpdate(t, pricingDomain.VenueCoinbase, "2010.00", "2011.00", 1)
	}

	tests := []struct {
		name    string
		pct     string
		abs     string
		wantOpp bool
	}{
		{name: "both thresholds met", pct: "0.1", abs: "1.00", wantOpp: true},
		{name: "absolute check fails", pct: "0.1", abs: "20.00", wantOpp: false},
		{name: "percentage check fails", pct: "0.6", abs: "1.00", wantOpp: false},
		{name: "percentage exactly at threshold", pct: "0.5", abs: "1.00", wantOpp: true},
		{name: "absolute exactly at threshold", pct: "0.1", abs: "10.00", wantOpp: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(thresholds(t, tt.pct, tt.abs))
			opps := d.Evaluate(view(a(t), b(t)))

			if !tt.wantOpp {
				if len(opps) != 0 {
					t.Fatalf("got %d opportunities, want none", len(opps))
				}
				return
			}
			if len(opps) != 1 {
				t.Fatalf("got %d opportunities, want 1", len(opps))
			}
			opp := opps[0]
			if opp.BuyVenue != pricingDomain.VenueBinance || opp.SellVenue != pricingDomain.VenueCoinbase {
				t.Errorf("route = %s, want binance->coinbase", opp.Route())
			}
			if !opp.SpreadAbs.Equal(decimal.RequireFromString("10")) {
				t.Errorf("spread_abs = %s, want 10", opp.SpreadAbs)
			}
			if !opp.SpreadPct.Equal(decimal.RequireFromString("0.5")) {
				t.Errorf("spread_pct = %s, want 0.5", opp.SpreadPct)
			}
			if !opp.BuyPrice.Equal(decimal.RequireFromString("2000")) || !opp.SellPrice.Equal(decimal.RequireFromString("2010")) {
				t.Errorf("legs = %s / %s", opp.BuyPrice, opp.SellPrice)
			}
		})
	}
}

func TestDetector_IdenticalPricesNeverQualify(t *testing.T) {
	d := NewDetector(domain.Thresholds{})
	opps := d.Evaluate(view(
		priceUpdate(t, pricingDomain.VenueBinance, "2000", "2000", 1),
		priceUpdate(t, pricingDomain.VenueCoinbase, "2000", "2000", 1),
	))
	if len(opps) != 0 {
		t.Errorf("got %d opportunities for a zero spread", len(opps))
	}
}

func TestDetector_ReportsEveryQualifyingPairInOrder(t *testing.T) {
	d := NewDetector(thresholds(t, "0", "0.01"))
	opps := d.Evaluate(view(
		priceUpdate(t, pricingDomain.VenueUniswapV4, "2020", "2021", 1),
		priceUpdate(t, pricingDomain.VenueBinance, "1999", "2000", 1),
		priceUpdate(t, pricingDomain.VenueCoinbase, "2010", "2011", 1),
	))

	want := []string{"binance->coinbase", "binance->uniswap-v4", "coinbase->uniswap-v4"}
	if len(opps) != len(want) {
		t.Fatalf("got %d opportunities, want %d", len(opps), len(want))
	}
	for i, w := range want {
		if opps[i].Route() != w {
			t.Errorf("opportunity %d route = %s, want %s", i, opps[i].Route(), w)
		}
	}
}

func TestDetector_PercentTruncatesTowardZero(t *testing.T) {
	d := NewDetector(domain.Thresholds{})
	opps := d.Evaluate(view(
		priceUpdate(t, pricingDomain.VenueBinance, "2", "3", 1),
		priceUpdate(t, pricingDomain.VenueCoinbase, "4", "5", 1),
	))
	if len(opps) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(opps))
	}
	// (4-3)/3*100 = 33.333... truncated at 36 places.
	want := decimal.RequireFromString("33.333333333333333333333333333333333333")
	if !opps[0].SpreadPct.Equal(want) {
		t.Errorf("spread_pct = %s, want %s", opps[0].SpreadPct, want)
	}
}

func TestDetector_Idempotent(t *testing.T) {
	d := NewDetector(thresholds(t, "0.1", "1"))
	v := view(
		priceUpdate(t, pricingDomain.VenueBinance, "1999", "2000", 7),
		priceUpdate(t, pricingDomain.VenueCoinbase, "2010", "2011", 9),
	)

	first := d.Evaluate(v)
	second := d.Evaluate(v)
	if len(first) != len(second) || len(first) == 0 {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		a, b := first[i], second[i]
		if a.ID != b.ID || a.Route() != b.Route() || !a.SpreadAbs.Equal(b.SpreadAbs) ||
			!a.SpreadPct.Equal(b.SpreadPct) || !a.DetectedAt.Equal(b.DetectedAt) {
			t.Errorf("evaluation %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestDetector_StaleLegIsExcluded(t *testing.T) {
	s := domain.NewMarketState()
	s.Apply(priceUpdate(t, pricingDomain.VenueBinance, "1999", "2000", 1), t0.Add(-10e9))
	s.Apply(priceUpdate(t, pricingDomain.VenueCoinbase, "2100", "2101", 1), t0)

	d := NewDetector(thresholds(t, "0.1", "1"))
	if opps := d.Evaluate(s.View(ethUSDC, t0, 5e9)); len(opps) != 0 {
		t.Errorf("got %d opportunities with a stale leg", len(opps))
	}
}
