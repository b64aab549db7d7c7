package store

import (
	"context"
	"database/sql"
	"fmt"

	"babymuse/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// GetWalletByUserID retrieves a user's wallet, creating it with a zero
// balance on first access.
func (s *Store) GetWalletByUserID(ctx context.Context, userID int64) (*models.Wallet, error) {
	var w models.Wallet
	err := s.db.GetContext(ctx, &w, `
		INSERT INTO wallets (user_id, balance) VALUES ($1, 0)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING *`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &w, nil
}

// ListWalletTransactions returns a wallet's ledger, newest first
func (s *Store) ListWalletTransactions(ctx context.Context, userID int64) ([]models.WalletTransaction, error) {
	var txs []models.WalletTransaction
	err := s.db.SelectContext(ctx, &txs, `
		SELECT wt.* FROM wallet_transactions wt
		JOIN wallets w ON w.id = wt.wallet_id
		WHERE w.user_id = $1
		ORDER BY wt.created_at DESC`, userID)
	return txs, err
}

// CreditWallet credits a wallet and appends the matching ledger row in one
// transaction. Used for refunds and manual top-ups.
func (s *Store) CreditWallet(ctx context.Context, credit WalletCredit) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := creditWalletTx(ctx, tx, credit); err != nil {
		return err
	}

	return tx.Commit()
}

// ReconcileWallet compares the cached balance with the ledger sum and
// returns both. Drift indicates a mutation that bypassed the ledger.
func (s *Store) ReconcileWallet(ctx context.Context, userID int64) (balance, ledgerSum int64, err error) {
	err = s.db.GetContext(ctx, &balance,
		"SELECT balance FROM wallets WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return 0, 0, fmt.Errorf("wallet for user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return 0, 0, err
	}

	err = s.db.GetContext(ctx, &ledgerSum, `
		SELECT COALESCE(SUM(CASE WHEN wt.type = 'Credit' THEN wt.amount ELSE -wt.amount END), 0)
		FROM wallet_transactions wt
		JOIN wallets w ON w.id = wt.wallet_id
		WHERE w.user_id = $1`, userID)
	if err != nil {
		return 0, 0, err
	}
	return balance, ledgerSum, nil
}

// creditWalletTx performs the balance update plus ledger append inside an
// existing transaction. The wallet row is created on demand.
func creditWalletTx(ctx context.Context, tx *sqlx.Tx, credit WalletCredit) error {
	var walletID int64
	err := tx.GetContext(ctx, &walletID, `
		INSERT INTO wallets (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = wallets.balance + $2, updated_at = NOW()
		RETURNING id`, credit.UserID, credit.Amount)
	if err != nil {
		return fmt.Errorf("failed to credit wallet: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (wallet_id, amount, type, reason, order_id, reference)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		walletID, credit.Amount, models.TransactionCredit, credit.Reason,
		credit.OrderID, uuid.New().String())
	if err != nil {
		return fmt.Errorf("failed to append credit ledger entry: %w", err)
	}
	return nil
}

// debitWalletTx debits conditionally on sufficient balance and appends the
// ledger row. Zero rows affected means insufficient funds; the caller's
// transaction rolls back with no partial mutation.
func debitWalletTx(ctx context.Context, tx *sqlx.Tx, userID, amount int64, reason string, orderID *int64) error {
	var walletID int64
	err := tx.GetContext(ctx, &walletID, `
		UPDATE wallets
		SET balance = balance - $1, updated_at = NOW()
		WHERE user_id = $2 AND balance >= $1
		RETURNING id`, amount, userID)
	if err == sql.ErrNoRows {
		return ErrInsufficientFunds
	}
	if err != nil {
		return fmt.Errorf("failed to debit wallet: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (wallet_id, amount, type, reason, order_id, reference)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		walletID, amount, models.TransactionDebit, reason, orderID, uuid.New().String())
	if err != nil {
		return fmt.Errorf("failed to append debit ledger entry: %w", err)
	}
	return nil
}
