package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor settles expired trades on a fixed tick. It replaces the
// per-row browser timers: whichever server instance commits first wins, and
// the conditional update in CommitSettlement keeps the others out.
type Processor struct {
	db           *Database
	resolver     *Resolver
	processDelay time.Duration // Time between scans
	batchSize    int
	now          func() time.Time
}

func NewProcessor(db *Database, resolver *Resolver, processDelay time.Duration, batchSize int) *Processor {
	if processDelay <= 0 {
		processDelay = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Processor{
		db:           db,
		resolver:     resolver,
		processDelay: processDelay,
		batchSize:    batchSize,
		now:          time.Now,
	}
}

// Start begins the settlement processing loop
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "settlement_processor").Logger()
	logger.Info().Dur("interval", p.processDelay).Msg("starting settlement processor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down settlement processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessExpiredTrades(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to process expired trades")
			}
		}
	}
}

// ProcessExpiredTrades settles every expired trade that has an outcome and
// returns how many were settled. Per-trade failures are logged and retried
// on the next scan.
func (p *Processor) ProcessExpiredTrades(ctx context.Context) (int, error) {
	logger := log.With().Str("component", "settlement_processor").Logger()

	now := p.now()
	settled := 0
	var afterID uint

	for {
		if err := ctx.Err(); err != nil {
			return settled, err
		}

		trades, err := p.db.GetExpiredTrades(now, afterID, p.batchSize)
		if err != nil {
			return settled, err
		}
		if len(trades) == 0 {
			break
		}

		logger.Debug().Int("expired_count", len(trades)).Msg("processing expired trades")

		for _, trade := range trades {
			afterID = trade.ID

			tradeLogger := logger.With().
				Str("trade_id", trade.TradeID).
				Str("user_id", trade.UserID).
				Logger()

			owner, err := p.db.GetOwner(trade.UserID)
			if err != nil {
				tradeLogger.Error().Err(err).Msg("failed to load trade owner")
				continue
			}

			resolved, err := p.resolver.Resolve(trade, *owner, now)
			if err != nil {
				if errors.Is(err, ErrNoOutcome) {
					tradeLogger.Debug().Msg("trade awaiting manual settlement")
				} else {
					tradeLogger.Warn().Err(err).Msg("could not resolve trade")
				}
				continue
			}

			if err := p.db.CommitSettlement(resolved); err != nil {
				if errors.Is(err, ErrAlreadyProcessed) {
					tradeLogger.Debug().Msg("trade settled elsewhere")
				} else {
					tradeLogger.Error().Err(err).Msg("failed to commit settlement")
				}
				continue
			}

			settled++
			tradeLogger.Info().
				Str("status", resolved.Status).
				Str("profit_loss", resolved.ProfitLoss.String()).
				Msg("trade settled")
		}

		if len(trades) < p.batchSize {
			break
		}
	}

	return settled, nil
}
