package trading

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/tradedesk-api/internal/exchange"
	"github.com/ksred/tradedesk-api/internal/settlement"
	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/ksred/tradedesk-api/pkg/middleware"
	"github.com/ksred/tradedesk-api/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Longest countdown a trade may carry
const maxExpireMinutes = 7 * 24 * 60

var (
	ErrTradeNotFound       = fmt.Errorf("trade %w", types.ErrNotFound)
	ErrTradeExpired        = fmt.Errorf("%w: trade has already expired", types.ErrConflict)
	ErrAlreadyProcessed    = fmt.Errorf("%w: trade already processed", types.ErrConflict)
	ErrInvalidMode         = fmt.Errorf("%w: trading_mode must be LIVE or DEMO", types.ErrValidation)
	ErrInvalidSide         = fmt.Errorf("%w: side must be BUY or SELL", types.ErrValidation)
	ErrInvalidOrderType    = fmt.Errorf("%w: order_type must be MARKET or LIMIT", types.ErrValidation)
	ErrInvalidAmount       = fmt.Errorf("%w: amount must be positive", types.ErrValidation)
	ErrInvalidExpiry       = fmt.Errorf("%w: expire_time must be between 1 and %d minutes", types.ErrValidation, maxExpireMinutes)
	ErrInvalidLimitPrice   = fmt.Errorf("%w: LIMIT orders need a positive price", types.ErrValidation)
	ErrInvalidOutcome      = fmt.Errorf("%w: outcome must be Won or Lose", types.ErrValidation)
	ErrMissingIdempotency  = fmt.Errorf("%w: Idempotency-Key header is required", types.ErrValidation)
	ErrIdempotencyMismatch = fmt.Errorf("%w: Idempotency-Key was used for another resource", types.ErrConflict)

	errNotCancellable = errors.New("trade not cancellable")
)

// Quoter prices new trades
type Quoter interface {
	Quote(symbol, side string) (*exchange.Quote, error)
}

// Service handles the trade lifecycle: opening, listing, cancelling and
// deleting trades. Settlement lives in the settlement package.
type Service struct {
	db     *Database
	quotes Quoter
	now    func() time.Time
}

// NewService creates a new trading service with the given database connection
func NewService(gormDB *gorm.DB, quotes Quoter) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		quotes: quotes,
		now:    time.Now,
	}
}

// CreateTrade opens a user-originated trade with idempotency support.
// A repeated idempotency key returns the trade created the first time.
func (s *Service) CreateTrade(userID string, req CreateTradeRequest, idempotencyKey string) (*types.Trade, error) {
	return s.createTrade(userID, req, types.OriginUser, "", decimal.Zero, idempotencyKey)
}

// CreateAdminTrade opens a trade for a user with an outcome chosen by an
// admin. The outcome is applied when the countdown reaches zero.
func (s *Service) CreateAdminTrade(req AdminTradeRequest, idempotencyKey string) (*types.Trade, error) {
	if req.Outcome != types.StatusWon && req.Outcome != types.StatusLose {
		return nil, ErrInvalidOutcome
	}
	if req.AdminProfit.IsNegative() {
		return nil, fmt.Errorf("%w: admin_profit must not be negative", types.ErrValidation)
	}
	return s.createTrade(req.UserID, req.CreateTradeRequest, types.OriginAdmin, req.Outcome, req.AdminProfit, idempotencyKey)
}

func (s *Service) createTrade(userID string, req CreateTradeRequest, origin, outcome string, adminProfit decimal.Decimal, idempotencyKey string) (*types.Trade, error) {
	if idempotencyKey == "" {
		return nil, ErrMissingIdempotency
	}
	scopedKey := userID + ":" + idempotencyKey

	record, err := s.db.GetIdempotencyRecord(scopedKey)
	if err != nil {
		return nil, err
	}
	if record != nil && record.ExpiresAt.After(s.now()) {
		if record.ResourceType != "trade" {
			return nil, ErrIdempotencyMismatch
		}
		return s.db.GetTrade(record.ResourceID)
	}

	if err := normalize(&req); err != nil {
		return nil, err
	}

	logger := log.With().
		Str("service", "trading").
		Str("user_id", userID).
		Str("symbol", req.Symbol).
		Str("origin", origin).
		Logger()

	price := req.Price
	if req.OrderType == types.OrderTypeMarket {
		quote, err := s.quotes.Quote(req.Symbol, req.Side)
		if err != nil {
			return nil, err
		}
		price = quote.Price
	}

	units, _ := req.Amount.Div(decimal.NewFromFloat(price)).Float64()
	now := s.now()

	trade := &types.Trade{
		TradeID:      "TRD_" + uuid.New().String(),
		UserID:       userID,
		TradingMode:  req.TradingMode,
		Symbol:       req.Symbol,
		Side:         req.Side,
		OrderType:    req.OrderType,
		Amount:       req.Amount,
		Price:        price,
		Units:        units,
		ROI:          req.ROI,
		ExpireTime:   req.ExpireTime,
		Status:       types.StatusPending,
		Origin:       origin,
		AdminOutcome: outcome,
		AdminProfit:  adminProfit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.CreateTradeWithIdempotency(trade, scopedKey); err != nil {
		logger.Error().Err(err).Msg("failed to create trade")
		return nil, err
	}

	logger.Info().
		Str("trade_id", trade.TradeID).
		Str("trading_mode", trade.TradingMode).
		Str("amount", trade.Amount.String()).
		Float64("price", trade.Price).
		Int("expire_time", trade.ExpireTime).
		Msg("trade opened")

	return trade, nil
}

// normalize upper-cases enums, fills defaults and validates the request
func normalize(req *CreateTradeRequest) error {
	req.TradingMode = strings.ToUpper(req.TradingMode)
	req.Symbol = strings.ToUpper(req.Symbol)
	req.Side = strings.ToUpper(req.Side)
	req.OrderType = strings.ToUpper(req.OrderType)
	if req.OrderType == "" {
		req.OrderType = types.OrderTypeMarket
	}

	switch req.TradingMode {
	case types.ModeLive, types.ModeDemo:
	default:
		return ErrInvalidMode
	}
	switch req.Side {
	case types.SideBuy, types.SideSell:
	default:
		return ErrInvalidSide
	}
	switch req.OrderType {
	case types.OrderTypeMarket:
	case types.OrderTypeLimit:
		if req.Price <= 0 {
			return ErrInvalidLimitPrice
		}
	default:
		return ErrInvalidOrderType
	}
	if !req.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if req.ExpireTime < 1 || req.ExpireTime > maxExpireMinutes {
		return ErrInvalidExpiry
	}
	return nil
}

// GetTrade returns a trade visible to the caller
func (s *Service) GetTrade(tradeID, callerID string, isAdmin bool) (*types.Trade, error) {
	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && trade.UserID != callerID {
		return nil, ErrTradeNotFound
	}
	return trade, nil
}

func (s *Service) ListTrades(filter TradeFilter) ([]types.Trade, error) {
	filter.TradingMode = strings.ToUpper(filter.TradingMode)
	return s.db.ListTrades(filter)
}

// OpenTrades returns the user's unprocessed trades
func (s *Service) OpenTrades(userID string) ([]types.Trade, error) {
	return s.db.ListTrades(TradeFilter{UserID: userID, OpenOnly: true})
}

// CancelTrade cancels an unprocessed trade before its expiry and refunds
// the stake
func (s *Service) CancelTrade(tradeID, callerID string, isAdmin bool) (*types.Trade, error) {
	trade, err := s.GetTrade(tradeID, callerID, isAdmin)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cancelled, err := s.db.CancelTrade(trade.TradeID, now)
	if errors.Is(err, errNotCancellable) {
		// Find out which guard failed
		current, getErr := s.db.GetTrade(tradeID)
		if getErr != nil {
			return nil, getErr
		}
		if current.IsProcessed {
			return nil, ErrAlreadyProcessed
		}
		return nil, ErrTradeExpired
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "trading").
		Str("trade_id", tradeID).
		Str("cancelled_by", callerID).
		Msg("trade cancelled")

	return cancelled, nil
}

// DeleteTrade removes a trade from listings. Admin only.
func (s *Service) DeleteTrade(tradeID string) error {
	if err := s.db.DeleteTrade(tradeID); err != nil {
		return err
	}
	log.Info().Str("service", "trading").Str("trade_id", tradeID).Msg("trade deleted")
	return nil
}

// GetCountdown returns the remaining time of a trade
func (s *Service) GetCountdown(tradeID, callerID string, isAdmin bool) (*types.CountdownResponse, error) {
	trade, err := s.GetTrade(tradeID, callerID, isAdmin)
	if err != nil {
		return nil, err
	}
	return CountdownOf(trade, s.now()), nil
}

// CountdownOf builds the display countdown of a trade at now. Processed
// trades always read as expired with zero time left.
func CountdownOf(trade *types.Trade, now time.Time) *types.CountdownResponse {
	cd := settlement.NewCountdown(trade.CreatedAt, trade.ExpireTime, now)
	resp := &types.CountdownResponse{
		TradeID:          trade.TradeID,
		Hours:            cd.Hours,
		Minutes:          cd.Minutes,
		Seconds:          cd.Seconds,
		RemainingSeconds: int64(cd.Remaining / time.Second),
		Expired:          cd.Expired,
		Status:           trade.Status,
		ProfitLoss:       trade.ProfitLoss,
		Timestamp:        now,
	}
	if trade.IsProcessed {
		resp.Hours, resp.Minutes, resp.Seconds, resp.RemainingSeconds = 0, 0, 0, 0
		resp.Expired = true
	}
	return resp
}

// GinHandlers contains HTTP handlers for trading endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for trading endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateTradeHandler handles POST requests to open trades
// Requires a valid JWT token and idempotency key in headers
func (h *GinHandlers) CreateTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTradeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.CreateTrade(middleware.UserID(c), req, c.GetHeader("Idempotency-Key"))
		response.Handle(c, trade, err)
	}
}

// CreateAdminTradeHandler handles POST requests from admins opening a trade
// for a user with a preset outcome
func (h *GinHandlers) CreateAdminTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AdminTradeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.CreateAdminTrade(req, c.GetHeader("Idempotency-Key"))
		response.Handle(c, trade, err)
	}
}

func (h *GinHandlers) GetTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trade, err := h.service.GetTrade(c.Param("trade_id"), middleware.UserID(c), middleware.IsAdmin(c))
		response.Handle(c, trade, err)
	}
}

// ListTradesHandler lists the caller's trades
// Query parameters: mode, status, open, limit
func (h *GinHandlers) ListTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := filterFromQuery(c)
		filter.UserID = middleware.UserID(c)

		trades, err := h.service.ListTrades(filter)
		response.Handle(c, trades, err)
	}
}

// ListAllTradesHandler lists every user's trades, optionally for one user_id
func (h *GinHandlers) ListAllTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := filterFromQuery(c)
		filter.UserID = c.Query("user_id")

		trades, err := h.service.ListTrades(filter)
		response.Handle(c, trades, err)
	}
}

func (h *GinHandlers) CancelTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trade, err := h.service.CancelTrade(c.Param("trade_id"), middleware.UserID(c), middleware.IsAdmin(c))
		response.Handle(c, trade, err)
	}
}

func (h *GinHandlers) DeleteTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.DeleteTrade(c.Param("trade_id")); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"message": "trade deleted"})
	}
}

func (h *GinHandlers) GetCountdownHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		countdown, err := h.service.GetCountdown(c.Param("trade_id"), middleware.UserID(c), middleware.IsAdmin(c))
		response.Handle(c, countdown, err)
	}
}

func filterFromQuery(c *gin.Context) TradeFilter {
	filter := TradeFilter{
		TradingMode: c.Query("mode"),
		Status:      c.Query("status"),
		OpenOnly:    c.Query("open") == "true",
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	return filter
}
