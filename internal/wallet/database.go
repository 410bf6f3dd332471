package wallet

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetWallet returns the user's wallet, creating an empty one on first use
func (d *Database) GetWallet(userID string) (*Wallet, error) {
	return ensureWallet(d.db, userID)
}

func (d *Database) GetTransaction(transactionID string) (*Transaction, error) {
	var txn Transaction
	if err := d.db.Where("transaction_id = ?", transactionID).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to fetch transaction: %w", err)
	}
	return &txn, nil
}

func (d *Database) CreateTransaction(txn *Transaction) error {
	return d.db.Create(txn).Error
}

func (d *Database) GetUserTransactions(userID string) ([]Transaction, error) {
	var txns []Transaction
	if err := d.db.Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (d *Database) GetPendingRequests() ([]Transaction, error) {
	var txns []Transaction
	if err := d.db.Where("status = ? AND type IN ?", StatusPending, []string{TypeDeposit, TypeWithdrawal}).
		Order("created_at ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// ReviewRequest moves a PENDING deposit or withdrawal to APPROVED or
// REJECTED and applies the balance change, all in one transaction. A request
// that is no longer PENDING is left untouched.
func (d *Database) ReviewRequest(transactionID, reviewer string, approve bool, note string) (*Transaction, error) {
	var reviewed Transaction
	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("transaction_id = ?", transactionID).First(&reviewed).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		if reviewed.Type != TypeDeposit && reviewed.Type != TypeWithdrawal {
			return ErrNotReviewable
		}

		status := StatusRejected
		if approve {
			status = StatusApproved
		}
		now := time.Now()

		result := tx.Model(&Transaction{}).
			Where("transaction_id = ? AND status = ?", transactionID, StatusPending).
			Updates(map[string]interface{}{
				"status":      status,
				"reviewed_by": reviewer,
				"reviewed_at": now,
				"note":        note,
				"updated_at":  now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyReviewed
		}

		if approve {
			var err error
			if reviewed.Type == TypeDeposit {
				err = adjustBalance(tx, reviewed.UserID, reviewed.Mode, reviewed.Amount)
			} else {
				err = adjustBalance(tx, reviewed.UserID, reviewed.Mode, reviewed.Amount.Neg())
			}
			if err != nil {
				return err
			}
		}

		reviewed.Status = status
		reviewed.ReviewedBy = reviewer
		reviewed.ReviewedAt = &now
		reviewed.Note = note
		reviewed.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &reviewed, nil
}

// Credit adds p.Amount to the balance selected by p.Mode and records an
// approved ledger row. tx is usually the caller's open transaction.
func Credit(tx *gorm.DB, p Posting) (*Transaction, error) {
	if !p.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if err := adjustBalance(tx, p.UserID, p.Mode, p.Amount); err != nil {
		return nil, err
	}
	return record(tx, p)
}

// Debit removes p.Amount from the balance selected by p.Mode. It fails with
// ErrInsufficientFunds rather than letting the balance go negative.
func Debit(tx *gorm.DB, p Posting) (*Transaction, error) {
	if !p.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if err := adjustBalance(tx, p.UserID, p.Mode, p.Amount.Neg()); err != nil {
		return nil, err
	}
	return record(tx, p)
}

func record(tx *gorm.DB, p Posting) (*Transaction, error) {
	txn := &Transaction{
		TransactionID: "TXN_" + uuid.New().String(),
		UserID:        p.UserID,
		Type:          p.Type,
		Mode:          p.Mode,
		Amount:        p.Amount,
		Status:        StatusApproved,
		Reference:     p.Reference,
		Note:          p.Note,
	}
	if err := tx.Create(txn).Error; err != nil {
		return nil, fmt.Errorf("failed to record ledger entry: %w", err)
	}
	return txn, nil
}

// adjustBalance applies delta to the locked wallet row using decimal
// arithmetic, so sqlite's numeric affinity never sums balances as floats.
// Negative deltas fail when the balance does not cover them.
func adjustBalance(tx *gorm.DB, userID, mode string, delta decimal.Decimal) error {
	column, err := balanceColumn(mode)
	if err != nil {
		return err
	}

	return tx.Transaction(func(tx *gorm.DB) error {
		if _, err := ensureWallet(tx, userID); err != nil {
			return err
		}

		var w Wallet
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&w).Error; err != nil {
			return fmt.Errorf("failed to load wallet: %w", err)
		}

		next := w.balance(mode).Add(delta)
		if next.IsNegative() {
			return ErrInsufficientFunds
		}

		if err := tx.Model(&Wallet{}).Where("id = ?", w.ID).Updates(map[string]interface{}{
			column:       next,
			"updated_at": time.Now(),
		}).Error; err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}
		return nil
	})
}

func ensureWallet(tx *gorm.DB, userID string) (*Wallet, error) {
	var w Wallet
	if err := tx.Where(Wallet{UserID: userID}).
		Attrs(Wallet{LiveBalance: decimal.Zero, DemoBalance: decimal.Zero}).
		FirstOrCreate(&w).Error; err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	return &w, nil
}

func balanceColumn(mode string) (string, error) {
	switch mode {
	case types.ModeLive:
		return "live_balance", nil
	case types.ModeDemo:
		return "demo_balance", nil
	}
	return "", ErrInvalidMode
}
