package domain

import (
	"sort"
	"time"

	pricingDomain "github.com/fd1az/arbitrage-detector/business/pricing/domain"
)

// Entry is the current update for one market and when it was received.
type Entry struct {
	Update     pricingDomain.PriceUpdate
	ReceivedAt time.Time
}

// Age returns how long ago the entry was received.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.ReceivedAt)
}

// MarketState holds at most one current update per (venue, instrument).
// It is not safe for concurrent use: a single owner mutates it.
type MarketState struct {
	entries map[pricingDomain.MarketKey]Entry
}

// NewMarketState creates an empty state.
func NewMarketState() *MarketState {
	return &MarketState{entries: make(map[pricingDomain.MarketKey]Entry)}
}

// Apply stores u if it supersedes the current entry for its market. Stale and
// duplicate updates are discarded and reported as false.
func (s *MarketState) Apply(u pricingDomain.PriceUpdate, receivedAt time.Time) bool {
	key := u.Key()
	if cur, ok := s.entries[key]; ok && !u.Supersedes(cur.Update) {
		return false
	}
	s.entries[key] = Entry{Update: u, ReceivedAt: receivedAt}
	return true
}

// Get returns the current entry for key.
func (s *MarketState) Get(key pricingDomain.MarketKey) (Entry, bool) {
	e, ok := s.entries[key]
	return e, ok
}

// Len returns the number of markets held.
func (s *MarketState) Len() int {
	return len(s.entries)
}

// View returns the fresh entries for inst at now. Entries older than maxAge
// stay in the state but are left out of the view.
func (s *MarketState) View(inst pricingDomain.Instrument, now time.Time, maxAge time.Duration) InstrumentView {
	view := InstrumentView{Instrument: inst, At: now}
	for key, e := range s.entries {
		if key.Instrument != inst {
			continue
		}
		if e.Age(now) > maxAge {
			view.Stale++
			continue
		}
		view.Prices = append(view.Prices, e.Update)
	}
	sort.Slice(view.Prices, func(i, j int) bool {
		return view.Prices[i].Venue < view.Prices[j].Venue
	})
	return view
}

// InstrumentView is a read-only snapshot of one instrument's fresh prices,
// one per venue, ordered by venue.
type InstrumentView struct {
	Instrument pricingDomain.Instrument
	At         time.Time
	Prices     []pricingDomain.PriceUpdate
	// Stale counts the entries excluded for age.
	Stale int
}
