package settlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/ksred/tradedesk-api/pkg/middleware"
	"github.com/ksred/tradedesk-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrTradeNotFound    = fmt.Errorf("trade %w", types.ErrNotFound)
	ErrAlreadyProcessed = fmt.Errorf("%w: trade already processed", types.ErrConflict)
	ErrNotExpired       = fmt.Errorf("%w: trade has not expired", types.ErrConflict)
	ErrNoOutcome        = fmt.Errorf("%w: trade has no automatic outcome and awaits manual settlement", types.ErrConflict)
	ErrNotSettled       = fmt.Errorf("trade settlement %w", types.ErrNotFound)
	ErrInvalidOutcome   = fmt.Errorf("%w: status must be Won or Lose", types.ErrValidation)
	ErrInvalidProfit    = fmt.Errorf("%w: profit must not be negative", types.ErrValidation)
)

// Service settles trades on request: the owner's client reporting an
// elapsed countdown, or an admin choosing the outcome
type Service struct {
	db       *Database
	resolver *Resolver
	now      func() time.Time
}

func NewService(gormDB *gorm.DB, resolver *Resolver) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		resolver: resolver,
		now:      time.Now,
	}
}

// GetDB exposes the store for the background processor
func (s *Service) GetDB() *Database {
	return s.db
}

// ExpireTrade resolves a trade whose countdown the caller saw reach zero.
// The server clock decides whether it really expired. Repeated calls for a
// settled trade return the recorded outcome.
func (s *Service) ExpireTrade(tradeID, callerID string, isAdmin bool) (*types.SettlementResponse, error) {
	logger := log.With().
		Str("trade_id", tradeID).
		Str("service", "settlement").
		Logger()

	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && trade.UserID != callerID {
		return nil, ErrTradeNotFound
	}
	if trade.IsProcessed {
		return toResponse(trade), nil
	}

	owner, err := s.db.GetOwner(trade.UserID)
	if err != nil {
		return nil, err
	}

	resolved, err := s.resolver.Resolve(*trade, *owner, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.db.CommitSettlement(resolved); err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			return s.currentSettlement(tradeID)
		}
		logger.Error().Err(err).Msg("failed to commit settlement")
		return nil, err
	}

	logger.Info().
		Str("status", resolved.Status).
		Str("profit_loss", resolved.ProfitLoss.String()).
		Msg("trade settled on expiry report")

	return toResponse(resolved), nil
}

// SettleTrade records an admin-chosen outcome. Admins may settle before
// expiry.
func (s *Service) SettleTrade(tradeID string, req SettleRequest) (*types.SettlementResponse, error) {
	logger := log.With().
		Str("trade_id", tradeID).
		Str("service", "settlement").
		Logger()

	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}

	resolved, err := Apply(*trade, req.Status, req.ProfitLoss, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.db.CommitSettlement(resolved); err != nil {
		logger.Error().Err(err).Msg("failed to commit manual settlement")
		return nil, err
	}

	logger.Info().
		Str("status", resolved.Status).
		Str("profit_loss", resolved.ProfitLoss.String()).
		Msg("trade settled manually")

	return toResponse(resolved), nil
}

// GetSettlement returns the outcome of a processed trade
func (s *Service) GetSettlement(tradeID, callerID string, isAdmin bool) (*types.SettlementResponse, error) {
	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && trade.UserID != callerID {
		return nil, ErrTradeNotFound
	}
	if !trade.IsProcessed {
		return nil, ErrNotSettled
	}
	return toResponse(trade), nil
}

func (s *Service) currentSettlement(tradeID string) (*types.SettlementResponse, error) {
	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	return toResponse(trade), nil
}

func toResponse(t *types.Trade) *types.SettlementResponse {
	resp := &types.SettlementResponse{
		TradeID:     t.TradeID,
		UserID:      t.UserID,
		Status:      t.Status,
		ProfitLoss:  t.ProfitLoss,
		IsProcessed: t.IsProcessed,
	}
	if t.SettledAt != nil {
		resp.SettledAt = *t.SettledAt
	}
	return resp
}

// GinHandlers contains HTTP handlers for settlement endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) ExpireTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		settlement, err := h.service.ExpireTrade(c.Param("trade_id"), middleware.UserID(c), middleware.IsAdmin(c))
		response.Handle(c, settlement, err)
	}
}

func (h *GinHandlers) GetSettlementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		settlement, err := h.service.GetSettlement(c.Param("trade_id"), middleware.UserID(c), middleware.IsAdmin(c))
		response.Handle(c, settlement, err)
	}
}

// SettleTradeHandler is admin only
func (h *GinHandlers) SettleTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SettleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		settlement, err := h.service.SettleTrade(c.Param("trade_id"), req)
		response.Handle(c, settlement, err)
	}
}
