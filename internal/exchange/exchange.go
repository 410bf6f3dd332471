package exchange

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/rs/zerolog/log"
)

var ErrUnknownSymbol = fmt.Errorf("%w: unknown symbol", types.ErrValidation)

// Venue represents a mock price venue
type Venue struct {
	ID              string
	Name            string
	Spread          float64 // fraction of the reference price quoted around mid
	LiquidityFactor float64 // 0-1, selection weight
}

// Quote is an indicative price for one symbol
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	VenueID   string    `json:"venue_id"`
	Timestamp time.Time `json:"timestamp"`
}

var mockVenues = []*Venue{
	{ID: "EXCH1", Name: "Primary Exchange", Spread: 0.0005, LiquidityFactor: 0.9},
	{ID: "EXCH2", Name: "Secondary Exchange", Spread: 0.0010, LiquidityFactor: 0.7},
	{ID: "EXCH3", Name: "Regional Exchange", Spread: 0.0020, LiquidityFactor: 0.5},
	{ID: "EXCH4", Name: "Dark Pool", Spread: 0.0030, LiquidityFactor: 0.3},
}

// Reference mid prices the mock venues quote around
var referencePrices = map[string]float64{
	"BTCUSD": 67000,
	"ETHUSD": 3400,
	"SOLUSD": 150,
	"XRPUSD": 0.55,
	"EURUSD": 1.08,
	"GBPUSD": 1.27,
	"USDJPY": 151.2,
	"XAUUSD": 2350,
	"AAPL":   190,
	"TSLA":   175,
	"AMZN":   180,
	"MSFT":   420,
}

// Service quotes prices from the mock venues
type Service struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
}

// NewService creates a quote source. A nil src seeds from the clock.
func NewService(src rand.Source) *Service {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Service{
		rng:    rand.New(src),
		prices: referencePrices,
	}
}

// Symbols lists the quotable symbols
func (s *Service) Symbols() []string {
	symbols := make([]string, 0, len(s.prices))
	for symbol := range s.prices {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// Quote returns a price within ±2% of the reference price, adjusted by the
// chosen venue's spread for the side
func (s *Service) Quote(symbol, side string) (*Quote, error) {
	symbol = strings.ToUpper(symbol)
	ref, ok := s.prices[symbol]
	if !ok {
		return nil, ErrUnknownSymbol
	}

	s.mu.Lock()
	venue := s.pickVenue()
	variance := 1 + (s.rng.Float64()*0.04 - 0.02)
	s.mu.Unlock()

	price := ref * variance
	if side == types.SideBuy {
		price *= 1 + venue.Spread/2
	} else {
		price *= 1 - venue.Spread/2
	}

	log.Debug().
		Str("component", "exchange").
		Str("symbol", symbol).
		Str("venue_id", venue.ID).
		Float64("reference_price", ref).
		Float64("price", price).
		Msg("quoted price")

	return &Quote{
		Symbol:    symbol,
		Price:     price,
		VenueID:   venue.ID,
		Timestamp: time.Now(),
	}, nil
}

// pickVenue draws a venue weighted by liquidity. Caller holds s.mu.
func (s *Service) pickVenue() *Venue {
	totalWeight := 0.0
	for _, v := range mockVenues {
		totalWeight += v.LiquidityFactor
	}

	choice := s.rng.Float64() * totalWeight
	currentWeight := 0.0
	for _, v := range mockVenues {
		currentWeight += v.LiquidityFactor
		if currentWeight >= choice {
			return v
		}
	}
	return mockVenues[0]
}
