package wallet

import (
	"testing"

	"github.com/ksred/tradedesk-api/internal/notification"
	"github.com/ksred/tradedesk-api/internal/testutil"
	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTest(t *testing.T) (*gorm.DB, *Service) {
	db := testutil.OpenDB(t, &Wallet{}, &Transaction{}, &notification.Notification{})
	return db, NewService(db)
}

func TestGetWallet_CreatesEmptyWallet(t *testing.T) {
	_, svc := setupTest(t)

	w, err := svc.GetWallet("USR_1")
	require.NoError(t, err)
	assert.Equal(t, "USR_1", w.UserID)
	assert.True(t, w.LiveBalance.IsZero())
	assert.True(t, w.DemoBalance.IsZero())

	again, err := svc.GetWallet("USR_1")
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)
}

func TestCreditDebit(t *testing.T) {
	db, svc := setupTest(t)

	_, err := Credit(db, Posting{UserID: "USR_1", Mode: types.ModeLive, Type: TypeDeposit, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)

	txn, err := Debit(db, Posting{UserID: "USR_1", Mode: types.ModeLive, Type: TypeTradeStake, Amount: decimal.NewFromFloat(40.5), Reference: "TRD_1"})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, txn.Status)
	assert.Equal(t, "TRD_1", txn.Reference)

	w, err := svc.GetWallet("USR_1")
	require.NoError(t, err)
	assert.True(t, w.LiveBalance.Equal(decimal.NewFromFloat(59.5)), w.LiveBalance.String())
	assert.True(t, w.DemoBalance.IsZero())

	_, err = Debit(db, Posting{UserID: "USR_1", Mode: types.ModeLive, Type: TypeTradeStake, Amount: decimal.NewFromInt(60)})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = Debit(db, Posting{UserID: "USR_1", Mode: types.ModeDemo, Type: TypeTradeStake, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = Credit(db, Posting{UserID: "USR_1", Mode: "PAPER", Type: TypeDeposit, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrInvalidMode)

	_, err = Credit(db, Posting{UserID: "USR_1", Mode: types.ModeLive, Type: TypeDeposit, Amount: decimal.Zero})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCredit_KeepsDecimalPrecision(t *testing.T) {
	db, svc := setupTest(t)

	cents := decimal.RequireFromString("0.1")
	for i := 0; i < 10; i++ {
		_, err := Credit(db, Posting{UserID: "USR_1", Mode: types.ModeDemo, Type: TypeDeposit, Amount: cents})
		require.NoError(t, err)
	}
	_, err := Debit(db, Posting{UserID: "USR_1", Mode: types.ModeDemo, Type: TypeTradeStake, Amount: decimal.RequireFromString("0.3")})
	require.NoError(t, err)

	w, err := svc.GetWallet("USR_1")
	require.NoError(t, err)
	assert.True(t, w.DemoBalance.Equal(decimal.RequireFromString("0.7")), w.DemoBalance.String())

	// The whole balance can be spent, nothing more
	_, err = Debit(db, Posting{UserID: "USR_1", Mode: types.ModeDemo, Type: TypeTradeStake, Amount: decimal.RequireFromString("0.7")})
	require.NoError(t, err)
	_, err = Debit(db, Posting{UserID: "USR_1", Mode: types.ModeDemo, Type: TypeTradeStake, Amount: decimal.RequireFromString("0.00000001")})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestDepositReview_AppliedExactlyOnce(t *testing.T) {
	_, svc := setupTest(t)

	txn, err := svc.RequestDeposit("USR_1", FundsRequest{Mode: "demo", Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, txn.Status)
	assert.Equal(t, types.ModeDemo, txn.Mode)

	// Pending requests do not move the balance
	w, err := svc.GetWallet("USR_1")
	require.NoError(t, err)
	assert.True(t, w.DemoBalance.IsZero())

	pending, err := svc.GetPendingRequests()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	reviewed, err := svc.ReviewRequest(txn.TransactionID, "USR_ADMIN", ReviewRequest{Approve: true, Note: "ok"})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, reviewed.Status)
	assert.Equal(t, "USR_ADMIN", reviewed.ReviewedBy)
	assert.NotNil(t, reviewed.ReviewedAt)

	_, err = svc.ReviewRequest(txn.TransactionID, "USR_ADMIN", ReviewRequest{Approve: true})
	assert.ErrorIs(t, err, ErrAlreadyReviewed)

	w, err = svc.GetWallet("USR_1")
	require.NoError(t, err)
	assert.True(t, w.DemoBalance.Equal(decimal.NewFromInt(500)))

	pending, err = svc.GetPendingRequests()
	require.NoError(t, err)
	assert.Empty(t, pending)

	notifications, err := notification.NewService(svc.gormDB).List("USR_1", false)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, "Deposit approved", notifications[0].Title)
}

func TestRejectedRequestLeavesBalance(t *testing.T) {
	_, svc := setupTest(t)

	txn, err := svc.RequestDeposit("USR_1", FundsRequest{Mode: types.ModeLive, Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)

	reviewed, err := svc.ReviewRequest(txn.TransactionID, "USR_ADMIN", ReviewRequest{Approve: false, Note: "no proof"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, reviewed.Status)

	w, err := svc.GetWallet("USR_1")
	require.NoError(t, err)
	assert.True(t, w.LiveBalance.IsZero())
}

func TestWithdrawal(t *testing.T) {
	db, svc := setupTest(t)

	_, err := svc.RequestWithdrawal("USR_1", FundsRequest{Mode: types.ModeLive, Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = Credit(db, Posting{UserID: "USR_1", Mode: types.ModeLive, Type: TypeDeposit, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)

	first, err := svc.RequestWithdrawal("USR_1", FundsRequest{Mode: types.ModeLive, Amount: decimal.NewFromInt(80)})
	require.NoError(t, err)
	second, err := svc.RequestWithdrawal("USR_1", FundsRequest{Mode: types.ModeLive, Amount: decimal.NewFromInt(80)})
	require.NoError(t, err)

	_, err = svc.ReviewRequest(first.TransactionID, "USR_ADMIN", ReviewRequest{Approve: true})
	require.NoError(t, err)

	// The balance is checked again on approval
	_, err = svc.ReviewRequest(second.TransactionID, "USR_ADMIN", ReviewRequest{Approve: true})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	stored, err := svc.db.GetTransaction(second.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)

	w, err := svc.GetWallet("USR_1")
	require.NoError(t, err)
	assert.True(t, w.LiveBalance.Equal(decimal.NewFromInt(20)))
}

func TestReviewRequest_Errors(t *testing.T) {
	db, svc := setupTest(t)

	_, err := svc.ReviewRequest("TXN_missing", "USR_ADMIN", ReviewRequest{Approve: true})
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	stake, err := Credit(db, Posting{UserID: "USR_1", Mode: types.ModeDemo, Type: TypeTradePayout, Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)
	_, err = svc.ReviewRequest(stake.TransactionID, "USR_ADMIN", ReviewRequest{Approve: true})
	assert.ErrorIs(t, err, ErrNotReviewable)
}

func TestRequestValidation(t *testing.T) {
	_, svc := setupTest(t)

	_, err := svc.RequestDeposit("USR_1", FundsRequest{Mode: "PAPER", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrInvalidMode)

	_, err = svc.RequestDeposit("USR_1", FundsRequest{Mode: types.ModeDemo, Amount: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestGetTransactions_NewestFirst(t *testing.T) {
	db, svc := setupTest(t)

	for i := 1; i <= 3; i++ {
		_, err := Credit(db, Posting{UserID: "USR_1", Mode: types.ModeDemo, Type: TypeDeposit, Amount: decimal.NewFromInt(int64(i))})
		require.NoError(t, err)
	}

	txns, err := svc.GetTransactions("USR_1")
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.True(t, txns[0].Amount.Equal(decimal.NewFromInt(3)))
}
