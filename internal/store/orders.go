package store

import (
	"context"
	"database/sql"
	"fmt"

	"babymuse/internal/models"
)

// execer is satisfied by both *sqlx.DB and *sqlx.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CreateOrder creates the order header and all of its items in one transaction.
// Item prices are the offer-price snapshots computed at checkout.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, order, `
		INSERT INTO orders (user_id, address_id, payment_method, is_paid, status,
		                    subtotal, shipping, tax, discount_amount, total_price, coupon_id)
		VALUES ($1, $2, $3, FALSE, $4, $5, $6, $7, $8, $9, $10)
		RETURNING *`,
		order.UserID, order.AddressID, order.PaymentMethod, order.Status,
		order.Subtotal, order.Shipping, order.Tax, order.DiscountAmount,
		order.TotalPrice, order.CouponID)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.GetContext(ctx, &items[i].ID, `
			INSERT INTO order_items (order_id, product_id, variant_id, name, quantity, price, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			items[i].OrderID, items[i].ProductID, items[i].VariantID,
			items[i].Name, items[i].Quantity, items[i].Price, items[i].Status)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForUser retrieves an order owned by the user
func (s *Store) GetOrderForUser(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE id = $1 AND user_id = $2", orderID, userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByGatewayOrderID retrieves an order by its payment intent id
func (s *Store) GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE gateway_order_id = $1", gatewayOrderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("gateway order %s: %w", gatewayOrderID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetOrderItems retrieves all items for an order
func (s *Store) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// GetOrderItemForUser retrieves one item together with its owning order,
// verifying ownership.
func (s *Store) GetOrderItemForUser(ctx context.Context, itemID, userID int64) (*models.OrderItem, *models.Order, error) {
	var item models.OrderItem
	err := s.db.GetContext(ctx, &item, `
		SELECT oi.* FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.id = $1 AND o.user_id = $2`, itemID, userID)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("order item %d: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}
	order, err := s.GetOrderByID(ctx, item.OrderID)
	if err != nil {
		return nil, nil, err
	}
	return &item, order, nil
}

// GetOrderItem retrieves one item with its owning order, without an
// ownership check. Staff flows only.
func (s *Store) GetOrderItem(ctx context.Context, itemID int64) (*models.OrderItem, *models.Order, error) {
	var item models.OrderItem
	err := s.db.GetContext(ctx, &item,
		"SELECT * FROM order_items WHERE id = $1", itemID)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("order item %d: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}
	order, err := s.GetOrderByID(ctx, item.OrderID)
	if err != nil {
		return nil, nil, err
	}
	return &item, order, nil
}

// SetGatewayOrderID persists the payment intent id issued by the gateway
func (s *Store) SetGatewayOrderID(ctx context.Context, orderID int64, gatewayOrderID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET gateway_order_id = $1, updated_at = NOW() WHERE id = $2",
		gatewayOrderID, orderID)
	return err
}

// MarkOrderFailed sets the header status to Failed without touching stock,
// cart, coupon or wallet state. Paid and cancelled orders keep their status.
func (s *Store) MarkOrderFailed(ctx context.Context, orderID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND is_paid = FALSE AND status NOT IN ($3, $4)`,
		models.StatusFailed, orderID, models.StatusCancelled, models.StatusPartiallyCancelled)
	return err
}

// UpdateItemStatus sets one item's status and the reducer-derived header
// status in a single transaction. Used by fulfilment transitions
// (Processing/Shipped/Delivered/Completed); cancellations and returns go
// through their dedicated tx methods. The expected-from condition rejects a
// transition raced by another writer (ErrStatusConflict).
func (s *Store) UpdateItemStatus(ctx context.Context, itemID int64, from, to, headerStatus models.Status) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var orderID int64
	err = tx.GetContext(ctx, &orderID,
		"UPDATE order_items SET status = $1 WHERE id = $2 AND status = $3 RETURNING order_id",
		to, itemID, from)
	if err == sql.ErrNoRows {
		return fmt.Errorf("item %d: %w", itemID, ErrStatusConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		headerStatus, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	return tx.Commit()
}

// WalletDebit describes the wallet leg of a wallet-paid settlement
type WalletDebit struct {
	UserID int64
	Amount int64
	Reason string
}

// SettleOrderParams carries every side effect of a confirmed payment
type SettleOrderParams struct {
	OrderID     int64
	UserID      int64
	Status      models.Status
	Items       []models.OrderItem
	CouponID    *int64
	ClearCart   bool
	WalletDebit *WalletDebit
}

// SettleOrder applies all settlement side effects atomically: mark paid,
// move items to Processing, decrement stock, clear the cart, consume coupon
// usage and, for wallet payments, debit the wallet with a ledger entry.
// The is_paid guard makes a duplicate settlement a no-op (ErrAlreadySettled),
// the status guard rejects a payment confirmation for an order cancelled in
// the meantime (ErrOrderCancelled), and every conditional update rolls the
// whole operation back on failure.
func (s *Store) SettleOrder(ctx context.Context, p SettleOrderParams) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET is_paid = TRUE, status = $1, updated_at = NOW()
		WHERE id = $2 AND is_paid = FALSE AND status NOT IN ($3, $4)`,
		p.Status, p.OrderID, models.StatusCancelled, models.StatusPartiallyCancelled)
	if err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var paid bool
		if err := tx.GetContext(ctx, &paid,
			"SELECT is_paid FROM orders WHERE id = $1", p.OrderID); err != nil {
			return err
		}
		if paid {
			return ErrAlreadySettled
		}
		return ErrOrderCancelled
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE order_items SET status = $1 WHERE order_id = $2 AND status = $3",
		models.StatusProcessing, p.OrderID, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to advance item statuses: %w", err)
	}

	for _, item := range p.Items {
		res, err := tx.ExecContext(ctx,
			"UPDATE variants SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1",
			item.Quantity, item.VariantID)
		if err != nil {
			return fmt.Errorf("failed to decrement stock: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("variant %d: %w", item.VariantID, ErrInsufficientStock)
		}
	}

	if p.CouponID != nil {
		if err := consumeCouponUsage(ctx, tx, *p.CouponID); err != nil {
			return err
		}
	}

	if p.ClearCart {
		_, err = tx.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", p.UserID)
		if err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
	}

	if p.WalletDebit != nil {
		if err := debitWalletTx(ctx, tx, p.WalletDebit.UserID, p.WalletDebit.Amount,
			p.WalletDebit.Reason, &p.OrderID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// StockAdjust is a variant restock instruction
type StockAdjust struct {
	VariantID int64
	Quantity  int
}

// WalletCredit describes a refund or top-up leg
type WalletCredit struct {
	UserID  int64
	Amount  int64
	Reason  string
	OrderID *int64
}

// CancelItemsParams carries the side effects of a cancellation
type CancelItemsParams struct {
	OrderID      int64
	ItemIDs      []int64
	HeaderStatus models.Status
	Restock      []StockAdjust
	Refund       *WalletCredit
}

// CancelItems flips the given items to Cancelled, restocks their variants,
// sets the reducer-derived header status and issues the wallet refund, all
// in one transaction.
func (s *Store) CancelItems(ctx context.Context, p CancelItemsParams) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// conditional on the current status so a raced cancel rolls back whole
	// instead of restocking and refunding twice
	for _, itemID := range p.ItemIDs {
		res, err := tx.ExecContext(ctx,
			"UPDATE order_items SET status = $1 WHERE id = $2 AND status IN ($3, $4)",
			models.StatusCancelled, itemID, models.StatusPending, models.StatusProcessing)
		if err != nil {
			return fmt.Errorf("failed to cancel item %d: %w", itemID, err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("item %d: %w", itemID, ErrStatusConflict)
		}
	}

	for _, adj := range p.Restock {
		_, err = tx.ExecContext(ctx,
			"UPDATE variants SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
			adj.Quantity, adj.VariantID)
		if err != nil {
			return fmt.Errorf("failed to restock variant %d: %w", adj.VariantID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		p.HeaderStatus, p.OrderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	if p.Refund != nil {
		if err := creditWalletTx(ctx, tx, *p.Refund); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CreateReturnRequestParams creates the request and flips items to Returned
type CreateReturnRequestParams struct {
	Request      *models.ReturnRequest
	ItemIDs      []int64
	HeaderStatus models.Status
}

// CreateReturnRequest inserts the return request and moves the covered items
// to Returned along with the reducer-derived header status, atomically.
func (s *Store) CreateReturnRequest(ctx context.Context, p CreateReturnRequestParams) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, p.Request, `
		INSERT INTO return_requests (order_id, order_item_id, reason)
		VALUES ($1, $2, $3)
		RETURNING *`,
		p.Request.OrderID, p.Request.OrderItemID, p.Request.Reason)
	if err != nil {
		return fmt.Errorf("failed to insert return request: %w", err)
	}

	for _, itemID := range p.ItemIDs {
		res, err := tx.ExecContext(ctx,
			"UPDATE order_items SET status = $1 WHERE id = $2 AND status = $3",
			models.StatusReturned, itemID, models.StatusDelivered)
		if err != nil {
			return fmt.Errorf("failed to mark item returned: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("item %d: %w", itemID, ErrStatusConflict)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		p.HeaderStatus, p.Request.OrderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	return tx.Commit()
}

// GetReturnRequest retrieves a return request by ID
func (s *Store) GetReturnRequest(ctx context.Context, id int64) (*models.ReturnRequest, error) {
	var rr models.ReturnRequest
	err := s.db.GetContext(ctx, &rr, "SELECT * FROM return_requests WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("return request %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rr, nil
}

// ApproveReturnParams carries the side effects of a return approval
type ApproveReturnParams struct {
	ReturnID int64
	Restock  []StockAdjust
	Refund   *WalletCredit
}

// ApproveReturn approves a return request, restocks and refunds in one
// transaction. The approved = FALSE guard rejects a second approval
// (ErrAlreadyApproved) so the refund can never be issued twice.
func (s *Store) ApproveReturn(ctx context.Context, p ApproveReturnParams) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE return_requests
		SET approved = TRUE, refunded_to_wallet = $1, updated_at = NOW()
		WHERE id = $2 AND approved = FALSE`,
		p.Refund != nil, p.ReturnID)
	if err != nil {
		return fmt.Errorf("failed to approve return: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAlreadyApproved
	}

	for _, adj := range p.Restock {
		_, err = tx.ExecContext(ctx,
			"UPDATE variants SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
			adj.Quantity, adj.VariantID)
		if err != nil {
			return fmt.Errorf("failed to restock variant %d: %w", adj.VariantID, err)
		}
	}

	if p.Refund != nil {
		if err := creditWalletTx(ctx, tx, *p.Refund); err != nil {
			return err
		}
	}

	return tx.Commit()
}
