package wallet

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/tradedesk-api/internal/notification"
	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/ksred/tradedesk-api/pkg/middleware"
	"github.com/ksred/tradedesk-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrTransactionNotFound = fmt.Errorf("transaction %w", types.ErrNotFound)
	ErrAlreadyReviewed     = fmt.Errorf("%w: request already reviewed", types.ErrConflict)
	ErrNotReviewable       = fmt.Errorf("%w: only deposits and withdrawals can be reviewed", types.ErrValidation)
	ErrInsufficientFunds   = fmt.Errorf("%w: insufficient funds", types.ErrValidation)
	ErrInvalidAmount       = fmt.Errorf("%w: amount must be positive", types.ErrValidation)
	ErrInvalidMode         = fmt.Errorf("%w: mode must be LIVE or DEMO", types.ErrValidation)
)

// Service handles balances and the deposit/withdrawal review flow
type Service struct {
	gormDB *gorm.DB
	db     *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		gormDB: gormDB,
		db:     NewDatabase(gormDB),
	}
}

func (s *Service) GetWallet(userID string) (*Wallet, error) {
	return s.db.GetWallet(userID)
}

func (s *Service) GetTransactions(userID string) ([]Transaction, error) {
	return s.db.GetUserTransactions(userID)
}

// RequestDeposit records a PENDING deposit for admin review
func (s *Service) RequestDeposit(userID string, req FundsRequest) (*Transaction, error) {
	return s.createRequest(userID, TypeDeposit, req)
}

// RequestWithdrawal records a PENDING withdrawal. The balance is checked
// now and again when the request is approved.
func (s *Service) RequestWithdrawal(userID string, req FundsRequest) (*Transaction, error) {
	w, err := s.db.GetWallet(userID)
	if err != nil {
		return nil, err
	}
	balance := w.DemoBalance
	if strings.ToUpper(req.Mode) == types.ModeLive {
		balance = w.LiveBalance
	}
	if balance.LessThan(req.Amount) {
		return nil, ErrInsufficientFunds
	}
	return s.createRequest(userID, TypeWithdrawal, req)
}

func (s *Service) createRequest(userID, txType string, req FundsRequest) (*Transaction, error) {
	mode := strings.ToUpper(req.Mode)
	if _, err := balanceColumn(mode); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	txn := &Transaction{
		TransactionID: "TXN_" + uuid.New().String(),
		UserID:        userID,
		Type:          txType,
		Mode:          mode,
		Amount:        req.Amount,
		Status:        StatusPending,
		Note:          req.Note,
	}
	if err := s.db.CreateTransaction(txn); err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", strings.ToLower(txType), err)
	}

	log.Info().
		Str("service", "wallet").
		Str("transaction_id", txn.TransactionID).
		Str("user_id", userID).
		Str("type", txType).
		Str("mode", mode).
		Str("amount", txn.Amount.String()).
		Msg("funds request created")

	return txn, nil
}

func (s *Service) GetPendingRequests() ([]Transaction, error) {
	return s.db.GetPendingRequests()
}

// ReviewRequest approves or rejects a pending request and notifies the user
func (s *Service) ReviewRequest(transactionID, reviewer string, req ReviewRequest) (*Transaction, error) {
	logger := log.With().
		Str("service", "wallet").
		Str("transaction_id", transactionID).
		Str("reviewer", reviewer).
		Logger()

	txn, err := s.db.ReviewRequest(transactionID, reviewer, req.Approve, req.Note)
	if err != nil {
		logger.Error().Err(err).Msg("failed to review request")
		return nil, err
	}

	logger.Info().Str("status", txn.Status).Msg("funds request reviewed")

	title := fmt.Sprintf("%s %s", titleCase(txn.Type), strings.ToLower(txn.Status))
	message := fmt.Sprintf("Your %s request of %s (%s) was %s.",
		strings.ToLower(txn.Type), txn.Amount.StringFixed(2), txn.Mode, strings.ToLower(txn.Status))
	if _, err := notification.Create(s.gormDB, txn.UserID, title, message); err != nil {
		logger.Warn().Err(err).Msg("failed to notify user of review")
	}

	return txn, nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// GinHandlers contains HTTP handlers for wallet endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) GetWalletHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		w, err := h.service.GetWallet(middleware.UserID(c))
		response.Handle(c, w, err)
	}
}

func (h *GinHandlers) GetTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		txns, err := h.service.GetTransactions(middleware.UserID(c))
		response.Handle(c, txns, err)
	}
}

func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req FundsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.RequestDeposit(middleware.UserID(c), req)
		response.Handle(c, txn, err)
	}
}

func (h *GinHandlers) WithdrawHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req FundsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.RequestWithdrawal(middleware.UserID(c), req)
		response.Handle(c, txn, err)
	}
}

func (h *GinHandlers) PendingRequestsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		txns, err := h.service.GetPendingRequests()
		response.Handle(c, txns, err)
	}
}

func (h *GinHandlers) ReviewRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.ReviewRequest(c.Param("transaction_id"), middleware.UserID(c), req)
		response.Handle(c, txn, err)
	}
}
