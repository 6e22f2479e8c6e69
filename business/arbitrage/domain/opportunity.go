// Package domain contains the core domain types for the arbitrage context.
package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pricingDomain "github.com/fd1az/arbitrage-detector/business/pricing/domain"
)

// opportunityNamespace scopes the name-based opportunity ids.
var opportunityNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("arbitrage-detector/opportunity"))

// Opportunity is one qualifying directional trade: buy at BuyVenue's ask,
// sell at SellVenue's bid. Values are derived and never mutated.
type Opportunity struct {
	ID         uuid.UUID
	Instrument pricingDomain.Instrument
	BuyVenue   pricingDomain.Venue
	SellVenue  pricingDomain.Venue
	BuyPrice   decimal.Decimal
	SellPrice  decimal.Decimal
	SpreadAbs  decimal.Decimal
	SpreadPct  decimal.Decimal // percent: 0.5 means 0.5%
	DetectedAt time.Time

	// BuyRef and SellRef identify the two observations the opportunity was
	// computed from.
	BuyRef  string
	SellRef string
}

// NewOpportunity builds an opportunity from the two legs. The id is a
// function of the instrument, the venues and the legs' references, so the
// same pair of observations always yields the same id.
func NewOpportunity(buy, sell pricingDomain.PriceUpdate, spread pricingDomain.Spread, detectedAt time.Time) Opportunity {
	buyRef, sellRef := LegRef(buy), LegRef(sell)
	name := buy.Instrument.String() + "|" + buy.Venue.String() + "@" + buyRef + "|" + sell.Venue.String() + "@" + sellRef

	return Opportunity{
		ID:         uuid.NewSHA1(opportunityNamespace, []byte(name)),
		Instrument: buy.Instrument,
		BuyVenue:   buy.Venue,
		SellVenue:  sell.Venue,
		BuyPrice:   spread.BuyAsk,
		SellPrice:  spread.SellBid,
		SpreadAbs:  spread.Absolute,
		SpreadPct:  spread.Percent,
		DetectedAt: detectedAt,
		BuyRef:     buyRef,
		SellRef:    sellRef,
	}
}

// LegRef is the venue sequence when there is one, the observation time otherwise.
func LegRef(u pricingDomain.PriceUpdate) string {
	if u.Sequence != 0 {
		return "seq:" + strconv.FormatUint(u.Sequence, 10)
	}
	return "ts:" + strconv.FormatInt(u.ObservedAt.UnixNano(), 10)
}

// Route returns "buy->sell".
func (o Opportunity) Route() string {
	return o.BuyVenue.String() + "->" + o.SellVenue.String()
}
