package service

import (
	"context"
	"testing"

	"babymuse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletTopUp(t *testing.T) {
	ctx := context.Background()

	t.Run("credits balance with a ledger entry", func(t *testing.T) {
		st := newFakeStore()
		svc := NewWalletService(st, nil)

		wallet, err := svc.TopUp(ctx, testUserID, 50000)
		require.NoError(t, err)
		assert.Equal(t, int64(50000), wallet.Balance)

		txs, err := svc.ListTransactions(ctx, testUserID)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, models.TransactionCredit, txs[0].Type)
		assert.Equal(t, int64(50000), txs[0].Amount)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		st := newFakeStore()
		svc := NewWalletService(st, nil)

		_, err := svc.TopUp(ctx, testUserID, 0)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = svc.TopUp(ctx, testUserID, -100)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		assert.Empty(t, st.ledger)
		assert.Equal(t, int64(0), st.balances[testUserID])
	})
}

func TestWalletReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("ledger matches balance after paired mutations", func(t *testing.T) {
		st := newFakeStore()
		seedCheckout(st)
		st.balances[testUserID] = 500000
		st.ledger = append(st.ledger, models.WalletTransaction{
			WalletID: testUserID, Amount: 500000, Type: models.TransactionCredit, Reason: "Wallet top-up",
		})

		checkout := newCheckoutService(st, nil)
		_, err := checkout.Checkout(ctx, &CheckoutRequest{
			UserID:        testUserID,
			AddressID:     1,
			PaymentMethod: "WALLET",
		})
		require.NoError(t, err)

		svc := NewWalletService(st, nil)
		result, err := svc.Reconcile(ctx, testUserID)
		require.NoError(t, err)
		assert.True(t, result.Consistent)
		assert.Equal(t, int64(290000), result.Balance)
		assert.Equal(t, result.Balance, result.LedgerSum)
	})

	t.Run("flags drift", func(t *testing.T) {
		st := newFakeStore()
		st.balances[testUserID] = 1000

		svc := NewWalletService(st, nil)
		result, err := svc.Reconcile(ctx, testUserID)
		require.NoError(t, err)
		assert.False(t, result.Consistent)
	})
}
