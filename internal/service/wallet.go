package service

import (
	"context"
	"fmt"

	"babymuse/internal/broker"
	"babymuse/internal/models"
	"babymuse/internal/store"
	"babymuse/internal/util"

	"go.uber.org/zap"
)

// WalletStore is the persistence contract for wallet reads and top-ups
type WalletStore interface {
	GetWalletByUserID(ctx context.Context, userID int64) (*models.Wallet, error)
	ListWalletTransactions(ctx context.Context, userID int64) ([]models.WalletTransaction, error)
	CreditWallet(ctx context.Context, credit store.WalletCredit) error
	ReconcileWallet(ctx context.Context, userID int64) (balance, ledgerSum int64, err error)
}

// WalletService exposes balance, ledger history and manual top-ups
type WalletService struct {
	store  WalletStore
	events *broker.EventPublisher
	logger *zap.Logger
}

// NewWalletService creates a new wallet service
func NewWalletService(st WalletStore, events *broker.EventPublisher) *WalletService {
	return &WalletService{
		store:  st,
		events: events,
		logger: util.GetLogger(),
	}
}

// GetWallet returns the user's wallet, creating it on first access
func (s *WalletService) GetWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	return s.store.GetWalletByUserID(ctx, userID)
}

// ListTransactions returns the user's ledger, newest first
func (s *WalletService) ListTransactions(ctx context.Context, userID int64) ([]models.WalletTransaction, error) {
	return s.store.ListWalletTransactions(ctx, userID)
}

// TopUp credits the wallet with a manual deposit
func (s *WalletService) TopUp(ctx context.Context, userID, amount int64) (*models.Wallet, error) {
	ctx, span := util.StartSpan(ctx, "WalletService.TopUp")
	defer span.End()

	if amount <= 0 {
		return nil, fmt.Errorf("%w: top-up amount must be positive", ErrInvalidAmount)
	}

	err := s.store.CreditWallet(ctx, store.WalletCredit{
		UserID: userID,
		Amount: amount,
		Reason: "Wallet top-up",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to top up wallet: %w", err)
	}

	util.WalletCreditsTotal.Inc()
	s.logger.Info("Wallet topped up",
		zap.Int64("user_id", userID),
		zap.Int64("amount", amount))

	if s.events != nil {
		event := &models.WalletCreditedEvent{
			BaseEvent: newBaseEvent(models.EventTypeWalletCredited),
			UserID:    userID,
			Amount:    amount,
			Reason:    "Wallet top-up",
		}
		if err := s.events.PublishWalletCredited(ctx, event); err != nil {
			s.logger.Error("Failed to publish WalletCredited event", zap.Error(err))
		}
	}

	return s.store.GetWalletByUserID(ctx, userID)
}

// ReconcileResult reports a wallet balance against its ledger sum
type ReconcileResult struct {
	UserID     int64 `json:"user_id"`
	Balance    int64 `json:"balance"`
	LedgerSum  int64 `json:"ledger_sum"`
	Consistent bool  `json:"consistent"`
}

// Reconcile checks that the cached balance matches the ledger
func (s *WalletService) Reconcile(ctx context.Context, userID int64) (*ReconcileResult, error) {
	balance, ledgerSum, err := s.store.ReconcileWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	result := &ReconcileResult{
		UserID:     userID,
		Balance:    balance,
		LedgerSum:  ledgerSum,
		Consistent: balance == ledgerSum,
	}
	if !result.Consistent {
		s.logger.Warn("Wallet balance drifted from ledger",
			zap.Int64("user_id", userID),
			zap.Int64("balance", balance),
			zap.Int64("ledger_sum", ledgerSum))
	}
	return result, nil
}
