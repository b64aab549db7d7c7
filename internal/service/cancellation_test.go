package service

import (
	"context"
	"testing"

	"babymuse/internal/models"
	"babymuse/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedPaidOrder settles an order via the given payment method and returns it
// with its items.
func seedPaidOrder(t *testing.T, st *fakeStore, method string) (*models.Order, []models.OrderItem) {
	t.Helper()
	seedCheckout(st)
	if method == "WALLET" {
		st.balances[testUserID] += 500000
	}

	svc := newCheckoutService(st, nil)
	result, err := svc.Checkout(context.Background(), &CheckoutRequest{
		UserID:        testUserID,
		AddressID:     1,
		PaymentMethod: method,
	})
	require.NoError(t, err)
	return result.Order, result.Items
}

func setItemStatuses(st *fakeStore, orderID int64, status models.Status) {
	for _, item := range st.items {
		if item.OrderID == orderID {
			item.Status = status
		}
	}
	st.orders[orderID].Status = status
}

func TestCancelItem(t *testing.T) {
	ctx := context.Background()

	t.Run("cod cancellation restocks without refund", func(t *testing.T) {
		st := newFakeStore()
		order, items := seedPaidOrder(t, st, "COD")
		svc := NewCancellationService(st, nil)

		cancelled, err := svc.CancelItem(ctx, items[0].ID, testUserID, "changed my mind")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, cancelled.Status)

		assert.Equal(t, 5, st.stock[10])
		assert.Empty(t, st.ledger)
		assert.Equal(t, int64(0), st.balances[testUserID])
		assert.Equal(t, models.StatusPartiallyCancelled, st.orders[order.ID].Status)
	})

	t.Run("wallet payment refunds the line subtotal", func(t *testing.T) {
		st := newFakeStore()
		_, items := seedPaidOrder(t, st, "WALLET")
		balanceAfterCheckout := st.balances[testUserID]
		svc := NewCancellationService(st, nil)

		// items[0] is 2 x 60000
		_, err := svc.CancelItem(ctx, items[0].ID, testUserID, "ordered twice")
		require.NoError(t, err)

		assert.Equal(t, balanceAfterCheckout+120000, st.balances[testUserID])
		last := st.ledger[len(st.ledger)-1]
		assert.Equal(t, models.TransactionCredit, last.Type)
		assert.Equal(t, int64(120000), last.Amount)
		require.NotNil(t, last.OrderID)
		assert.Equal(t, items[0].OrderID, *last.OrderID)
	})

	t.Run("shipped item cannot be cancelled", func(t *testing.T) {
		st := newFakeStore()
		order, items := seedPaidOrder(t, st, "COD")
		setItemStatuses(st, order.ID, models.StatusShipped)
		svc := NewCancellationService(st, nil)

		_, err := svc.CancelItem(ctx, items[0].ID, testUserID, "")
		require.ErrorIs(t, err, ErrNotCancellable)
		assert.Equal(t, 3, st.stock[10])
	})

	t.Run("item of another user is not found", func(t *testing.T) {
		st := newFakeStore()
		_, items := seedPaidOrder(t, st, "COD")
		svc := NewCancellationService(st, nil)

		_, err := svc.CancelItem(ctx, items[0].ID, 999, "")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels every line and restocks", func(t *testing.T) {
		st := newFakeStore()
		order, _ := seedPaidOrder(t, st, "COD")
		svc := NewCancellationService(st, nil)

		cancelled, err := svc.CancelOrder(ctx, order.ID, testUserID, "no longer needed")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, cancelled.Status)

		assert.Equal(t, 5, st.stock[10])
		assert.Equal(t, 3, st.stock[11])
		for _, item := range st.items {
			assert.Equal(t, models.StatusCancelled, item.Status)
		}
	})

	t.Run("wallet payment refunds the item total", func(t *testing.T) {
		st := newFakeStore()
		order, _ := seedPaidOrder(t, st, "WALLET")
		balanceAfterCheckout := st.balances[testUserID]
		svc := NewCancellationService(st, nil)

		_, err := svc.CancelOrder(ctx, order.ID, testUserID, "")
		require.NoError(t, err)

		// 2 x 60000 + 1 x 80000
		assert.Equal(t, balanceAfterCheckout+200000, st.balances[testUserID])
	})

	t.Run("one shipped line blocks whole-order cancellation", func(t *testing.T) {
		st := newFakeStore()
		order, items := seedPaidOrder(t, st, "COD")
		st.items[items[0].ID].Status = models.StatusShipped
		svc := NewCancellationService(st, nil)

		_, err := svc.CancelOrder(ctx, order.ID, testUserID, "")
		require.ErrorIs(t, err, ErrNotCancellable)

		// nothing changed, including the still-cancellable line
		assert.Equal(t, models.StatusProcessing, st.items[items[1].ID].Status)
		assert.Equal(t, 3, st.stock[10])
	})
}

func TestRequestReturn(t *testing.T) {
	ctx := context.Background()

	t.Run("whole order after delivery", func(t *testing.T) {
		st := newFakeStore()
		order, _ := seedPaidOrder(t, st, "COD")
		setItemStatuses(st, order.ID, models.StatusDelivered)
		svc := NewCancellationService(st, nil)

		request, err := svc.RequestReturn(ctx, order.ID, testUserID, "damaged box")
		require.NoError(t, err)
		assert.False(t, request.Approved)
		assert.Nil(t, request.OrderItemID)

		assert.Equal(t, models.StatusReturned, st.orders[order.ID].Status)
		for _, item := range st.items {
			assert.Equal(t, models.StatusReturned, item.Status)
		}
		// no refund until staff approval
		assert.Empty(t, st.ledger)
		assert.Equal(t, 3, st.stock[10])
	})

	t.Run("undelivered order cannot be returned", func(t *testing.T) {
		st := newFakeStore()
		order, _ := seedPaidOrder(t, st, "COD")
		svc := NewCancellationService(st, nil)

		_, err := svc.RequestReturn(ctx, order.ID, testUserID, "")
		assert.ErrorIs(t, err, ErrNotReturnable)
	})

	t.Run("single delivered item", func(t *testing.T) {
		st := newFakeStore()
		order, items := seedPaidOrder(t, st, "COD")
		st.items[items[0].ID].Status = models.StatusDelivered
		svc := NewCancellationService(st, nil)

		request, err := svc.RequestItemReturn(ctx, items[0].ID, testUserID, "wrong size")
		require.NoError(t, err)
		require.NotNil(t, request.OrderItemID)
		assert.Equal(t, items[0].ID, *request.OrderItemID)

		assert.Equal(t, models.StatusReturned, st.items[items[0].ID].Status)
		assert.Equal(t, models.StatusProcessing, st.items[items[1].ID].Status)
		assert.Equal(t, models.StatusPartiallyReturned, st.orders[order.ID].Status)
	})
}

func TestApproveReturn(t *testing.T) {
	ctx := context.Background()

	t.Run("refunds to wallet and restocks, cod included", func(t *testing.T) {
		st := newFakeStore()
		order, _ := seedPaidOrder(t, st, "COD")
		setItemStatuses(st, order.ID, models.StatusDelivered)
		svc := NewCancellationService(st, nil)

		request, err := svc.RequestReturn(ctx, order.ID, testUserID, "damaged")
		require.NoError(t, err)

		approved, err := svc.ApproveReturn(ctx, request.ID)
		require.NoError(t, err)
		assert.True(t, approved.Approved)
		assert.True(t, approved.RefundedToWallet)

		assert.Equal(t, int64(200000), st.balances[testUserID])
		require.Len(t, st.ledger, 1)
		assert.Equal(t, models.TransactionCredit, st.ledger[0].Type)
		assert.Equal(t, 5, st.stock[10])
		assert.Equal(t, 3, st.stock[11])
	})

	t.Run("second approval is rejected and credits nothing", func(t *testing.T) {
		st := newFakeStore()
		order, _ := seedPaidOrder(t, st, "COD")
		setItemStatuses(st, order.ID, models.StatusDelivered)
		svc := NewCancellationService(st, nil)

		request, err := svc.RequestReturn(ctx, order.ID, testUserID, "damaged")
		require.NoError(t, err)
		_, err = svc.ApproveReturn(ctx, request.ID)
		require.NoError(t, err)

		_, err = svc.ApproveReturn(ctx, request.ID)
		require.ErrorIs(t, err, store.ErrAlreadyApproved)

		assert.Equal(t, int64(200000), st.balances[testUserID])
		assert.Len(t, st.ledger, 1)
		assert.Equal(t, 5, st.stock[10])
	})

	t.Run("single-item return refunds only that line", func(t *testing.T) {
		st := newFakeStore()
		_, items := seedPaidOrder(t, st, "COD")
		st.items[items[1].ID].Status = models.StatusDelivered
		svc := NewCancellationService(st, nil)

		request, err := svc.RequestItemReturn(ctx, items[1].ID, testUserID, "wrong size")
		require.NoError(t, err)

		_, err = svc.ApproveReturn(ctx, request.ID)
		require.NoError(t, err)

		// items[1] is 1 x 80000
		assert.Equal(t, int64(80000), st.balances[testUserID])
		assert.Equal(t, 3, st.stock[11])
		assert.Equal(t, 3, st.stock[10])
	})
}

func TestCancelBeforeGatewaySettlement(t *testing.T) {
	ctx := context.Background()

	t.Run("whole order cancels without restock or refund", func(t *testing.T) {
		st := newFakeStore()
		order := seedGatewayOrder(t, st)
		svc := NewCancellationService(st, nil)

		cancelled, err := svc.CancelOrder(ctx, order.ID, testUserID, "abandoned payment")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, cancelled.Status)

		// stock was never decremented for the pending intent, so
		// cancellation must not inflate it
		assert.Equal(t, 5, st.stock[10])
		assert.Equal(t, 3, st.stock[11])
		assert.Empty(t, st.ledger)
		assert.Equal(t, int64(0), st.balances[testUserID])
	})

	t.Run("single item cancels without restock", func(t *testing.T) {
		st := newFakeStore()
		order := seedGatewayOrder(t, st)
		svc := NewCancellationService(st, nil)

		items, err := st.GetOrderItems(ctx, order.ID)
		require.NoError(t, err)

		_, err = svc.CancelItem(ctx, items[0].ID, testUserID, "abandoned payment")
		require.NoError(t, err)
		assert.Equal(t, 5, st.stock[10])
		assert.Empty(t, st.ledger)
	})
}

func TestCancellationStatusGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("cancel of a shipped item rolls back whole", func(t *testing.T) {
		st := newFakeStore()
		order, items := seedPaidOrder(t, st, "WALLET")
		balanceAfterCheckout := st.balances[testUserID]
		setItemStatuses(st, order.ID, models.StatusShipped)

		// the transition guard lives inside the transaction, so a cancel
		// raced by a shipment neither restocks nor refunds
		err := st.CancelItems(ctx, store.CancelItemsParams{
			OrderID:      order.ID,
			ItemIDs:      []int64{items[0].ID},
			HeaderStatus: models.StatusPartiallyCancelled,
			Restock:      []store.StockAdjust{{VariantID: items[0].VariantID, Quantity: items[0].Quantity}},
			Refund: &store.WalletCredit{
				UserID: testUserID,
				Amount: items[0].Subtotal(),
			},
		})
		require.ErrorIs(t, err, store.ErrStatusConflict)
		assert.Equal(t, 3, st.stock[10])
		assert.Equal(t, balanceAfterCheckout, st.balances[testUserID])
		assert.Equal(t, models.StatusShipped, st.items[items[0].ID].Status)
	})

	t.Run("return of an undelivered item rolls back whole", func(t *testing.T) {
		st := newFakeStore()
		order, items := seedPaidOrder(t, st, "COD")

		request := &models.ReturnRequest{OrderID: order.ID, Reason: "wrong size"}
		err := st.CreateReturnRequest(ctx, store.CreateReturnRequestParams{
			Request:      request,
			ItemIDs:      []int64{items[0].ID},
			HeaderStatus: models.StatusPartiallyReturned,
		})
		require.ErrorIs(t, err, store.ErrStatusConflict)
		assert.Empty(t, st.returns)
		assert.Equal(t, models.StatusProcessing, st.items[items[0].ID].Status)
	})
}
