package settlement

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ksred/tradedesk-api/internal/accounts"
	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/shopspring/decimal"
)

// Owner is what the resolver needs to know about a trade's owner
type Owner struct {
	UserID    string
	Role      string
	AutoTrade accounts.AutoTradeSettings
}

// PayoutRange is the half-open interval [Min, Max) a Won payout is drawn from
type PayoutRange struct {
	Min int64
	Max int64
}

var payoutRanges = map[string]PayoutRange{
	accounts.MagnitudeTen:      {Min: 0, Max: 100},
	accounts.MagnitudeHundred:  {Min: 100, Max: 1000},
	accounts.MagnitudeThousand: {Min: 1000, Max: 10000},
	accounts.MagnitudeMillion:  {Min: 1000000, Max: 10000000},
	accounts.MagnitudeRandom:   {Min: 0, Max: 10000000},
}

// PayoutRangeFor returns the range for a magnitude class. Unknown classes
// fall back to Ten.
func PayoutRangeFor(magnitude string) PayoutRange {
	if r, ok := payoutRanges[magnitude]; ok {
		return r
	}
	return payoutRanges[accounts.MagnitudeTen]
}

// Resolver decides the outcome of expired trades
type Resolver struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewResolver creates a resolver. A nil src seeds from the clock.
func NewResolver(src rand.Source) *Resolver {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Resolver{rng: rand.New(src)}
}

// Resolve returns a copy of trade carrying its terminal outcome.
//
// Admin-originated trades take the outcome the admin chose. User trades
// resolve automatically only when the owner has auto-trade active and is not
// an admin; anything else returns ErrNoOutcome and waits for an admin.
func (r *Resolver) Resolve(trade types.Trade, owner Owner, now time.Time) (*types.Trade, error) {
	if trade.IsProcessed || types.IsTerminal(trade.Status) {
		return nil, ErrAlreadyProcessed
	}
	if Remaining(trade.CreatedAt, trade.ExpireTime, now) > 0 {
		return nil, ErrNotExpired
	}

	var (
		status string
		profit decimal.Decimal
	)
	switch {
	case trade.Origin == types.OriginAdmin:
		if trade.AdminOutcome != types.StatusWon && trade.AdminOutcome != types.StatusLose {
			return nil, ErrNoOutcome
		}
		status = trade.AdminOutcome
		profit = trade.AdminProfit

	case owner.Role != types.RoleAdmin && owner.AutoTrade.Active:
		status = r.DrawOutcome(owner.AutoTrade.Mode)
		if status == types.StatusWon {
			profit = r.DrawPayout(owner.AutoTrade.Magnitude)
		}

	default:
		return nil, ErrNoOutcome
	}

	return Apply(trade, status, profit, now)
}

// Apply stamps an outcome on trade. A Lose always reports the stake as the
// loss, whatever profit says.
func Apply(trade types.Trade, status string, profit decimal.Decimal, now time.Time) (*types.Trade, error) {
	if trade.IsProcessed || types.IsTerminal(trade.Status) {
		return nil, ErrAlreadyProcessed
	}

	switch status {
	case types.StatusWon:
		if profit.IsNegative() {
			return nil, ErrInvalidProfit
		}
	case types.StatusLose:
		profit = trade.Amount
	default:
		return nil, ErrInvalidOutcome
	}

	settledAt := now
	trade.Status = status
	trade.ProfitLoss = profit
	trade.IsProcessed = true
	trade.SettledAt = &settledAt
	trade.UpdatedAt = now
	return &trade, nil
}

// DrawOutcome picks Won or Lose for an auto-trade mode. Random is a fair
// coin; unknown modes behave like Random.
func (r *Resolver) DrawOutcome(mode string) string {
	switch mode {
	case accounts.ModeAlwaysWin:
		return types.StatusWon
	case accounts.ModeAlwaysLose:
		return types.StatusLose
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rng.Intn(2) == 0 {
		return types.StatusWon
	}
	return types.StatusLose
}

// DrawPayout draws a whole-unit payout uniformly from the magnitude's range
func (r *Resolver) DrawPayout(magnitude string) decimal.Decimal {
	pr := PayoutRangeFor(magnitude)

	r.mu.Lock()
	v := pr.Min + r.rng.Int63n(pr.Max-pr.Min)
	r.mu.Unlock()

	return decimal.NewFromInt(v)
}
