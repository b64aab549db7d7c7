package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"babymuse/internal/models"
	"babymuse/internal/store"
)

// fakeStore is an in-memory stand-in for the persistence layer. Its
// transactional methods mirror the store semantics: they validate every leg
// first and mutate only when the whole operation can succeed.
type fakeStore struct {
	cartLines map[int64][]models.CartLine
	addresses map[int64]*models.Address
	coupons   map[string]*models.Coupon
	orders    map[int64]*models.Order
	items     map[int64]*models.OrderItem
	stock     map[int64]int
	balances  map[int64]int64
	ledger    []models.WalletTransaction
	returns   map[int64]*models.ReturnRequest
	processed map[string]bool

	nextOrderID  int64
	nextItemID   int64
	nextReturnID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cartLines: make(map[int64][]models.CartLine),
		addresses: make(map[int64]*models.Address),
		coupons:   make(map[string]*models.Coupon),
		orders:    make(map[int64]*models.Order),
		items:     make(map[int64]*models.OrderItem),
		stock:     make(map[int64]int),
		balances:  make(map[int64]int64),
		returns:   make(map[int64]*models.ReturnRequest),
		processed: make(map[string]bool),
	}
}

func (f *fakeStore) ListCartLines(_ context.Context, userID int64) ([]models.CartLine, error) {
	return f.cartLines[userID], nil
}

func (f *fakeStore) GetAddressForUser(_ context.Context, addressID, userID int64) (*models.Address, error) {
	addr, ok := f.addresses[addressID]
	if !ok || addr.UserID != userID {
		return nil, fmt.Errorf("address %d: %w", addressID, store.ErrNotFound)
	}
	return addr, nil
}

func (f *fakeStore) GetDefaultAddress(_ context.Context, userID int64) (*models.Address, error) {
	for _, addr := range f.addresses {
		if addr.UserID == userID && addr.IsDefault {
			return addr, nil
		}
	}
	return nil, fmt.Errorf("default address for user %d: %w", userID, store.ErrNotFound)
}

func (f *fakeStore) GetCouponByCode(_ context.Context, code string) (*models.Coupon, error) {
	c, ok := f.coupons[strings.ToLower(code)]
	if !ok || !c.Active || c.IsDeleted {
		return nil, fmt.Errorf("coupon %q: %w", code, store.ErrNotFound)
	}
	return c, nil
}

func (f *fakeStore) GetCouponByID(_ context.Context, id int64) (*models.Coupon, error) {
	if c := f.couponByID(id); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("coupon %d: %w", id, store.ErrNotFound)
}

func (f *fakeStore) couponByID(id int64) *models.Coupon {
	for _, c := range f.coupons {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (f *fakeStore) CreateOrder(_ context.Context, order *models.Order, items []models.OrderItem) error {
	f.nextOrderID++
	order.ID = f.nextOrderID
	order.CreatedAt = time.Now()
	copied := *order
	f.orders[order.ID] = &copied

	for i := range items {
		f.nextItemID++
		items[i].ID = f.nextItemID
		items[i].OrderID = order.ID
		item := items[i]
		f.items[item.ID] = &item
	}
	return nil
}

func (f *fakeStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	copied := *order
	return &copied, nil
}

func (f *fakeStore) GetOrderForUser(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	order, err := f.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order %d: %w", orderID, store.ErrNotFound)
	}
	return order, nil
}

func (f *fakeStore) GetOrderByGatewayOrderID(_ context.Context, gatewayOrderID string) (*models.Order, error) {
	for _, order := range f.orders {
		if order.GatewayOrderID != nil && *order.GatewayOrderID == gatewayOrderID {
			copied := *order
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("gateway order %s: %w", gatewayOrderID, store.ErrNotFound)
}

func (f *fakeStore) GetOrderItems(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	for id := int64(1); id <= f.nextItemID; id++ {
		if item, ok := f.items[id]; ok && item.OrderID == orderID {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (f *fakeStore) GetOrderItemForUser(ctx context.Context, itemID, userID int64) (*models.OrderItem, *models.Order, error) {
	item, ok := f.items[itemID]
	if !ok {
		return nil, nil, fmt.Errorf("order item %d: %w", itemID, store.ErrNotFound)
	}
	order, err := f.GetOrderForUser(ctx, item.OrderID, userID)
	if err != nil {
		return nil, nil, err
	}
	copied := *item
	return &copied, order, nil
}

func (f *fakeStore) GetOrderItem(_ context.Context, itemID int64) (*models.OrderItem, *models.Order, error) {
	item, ok := f.items[itemID]
	if !ok {
		return nil, nil, fmt.Errorf("order item %d: %w", itemID, store.ErrNotFound)
	}
	copied := *item
	order := *f.orders[item.OrderID]
	return &copied, &order, nil
}

func (f *fakeStore) UpdateItemStatus(_ context.Context, itemID int64, from, to, headerStatus models.Status) error {
	item := f.items[itemID]
	if item.Status != from {
		return fmt.Errorf("item %d: %w", itemID, store.ErrStatusConflict)
	}
	item.Status = to
	f.orders[item.OrderID].Status = headerStatus
	return nil
}

func (f *fakeStore) SetGatewayOrderID(_ context.Context, orderID int64, gatewayOrderID string) error {
	f.orders[orderID].GatewayOrderID = &gatewayOrderID
	return nil
}

func (f *fakeStore) MarkOrderFailed(_ context.Context, orderID int64) error {
	order := f.orders[orderID]
	if !order.IsPaid && order.Status != models.StatusCancelled &&
		order.Status != models.StatusPartiallyCancelled {
		order.Status = models.StatusFailed
	}
	return nil
}

func (f *fakeStore) SettleOrder(_ context.Context, p store.SettleOrderParams) error {
	order := f.orders[p.OrderID]
	if order.IsPaid {
		return store.ErrAlreadySettled
	}
	if order.Status == models.StatusCancelled || order.Status == models.StatusPartiallyCancelled {
		return store.ErrOrderCancelled
	}

	for _, item := range p.Items {
		if f.stock[item.VariantID] < item.Quantity {
			return fmt.Errorf("variant %d: %w", item.VariantID, store.ErrInsufficientStock)
		}
	}
	var coupon *models.Coupon
	if p.CouponID != nil {
		coupon = f.couponByID(*p.CouponID)
		if coupon != nil && coupon.UsageLimit != nil && coupon.TimesUsed >= *coupon.UsageLimit {
			return store.ErrCouponUsageExceeded
		}
	}
	if p.WalletDebit != nil && f.balances[p.WalletDebit.UserID] < p.WalletDebit.Amount {
		return store.ErrInsufficientFunds
	}

	order.IsPaid = true
	order.Status = p.Status
	for _, item := range f.items {
		if item.OrderID == p.OrderID && item.Status == models.StatusPending {
			item.Status = models.StatusProcessing
		}
	}
	for _, item := range p.Items {
		f.stock[item.VariantID] -= item.Quantity
	}
	if coupon != nil {
		coupon.TimesUsed++
	}
	if p.ClearCart {
		delete(f.cartLines, p.UserID)
	}
	if p.WalletDebit != nil {
		f.debit(p.WalletDebit.UserID, p.WalletDebit.Amount, p.WalletDebit.Reason, &p.OrderID)
	}
	return nil
}

func (f *fakeStore) CancelItems(_ context.Context, p store.CancelItemsParams) error {
	for _, id := range p.ItemIDs {
		if !models.Cancellable(f.items[id].Status) {
			return fmt.Errorf("item %d: %w", id, store.ErrStatusConflict)
		}
	}
	for _, id := range p.ItemIDs {
		f.items[id].Status = models.StatusCancelled
	}
	f.orders[p.OrderID].Status = p.HeaderStatus
	for _, adj := range p.Restock {
		f.stock[adj.VariantID] += adj.Quantity
	}
	if p.Refund != nil {
		f.credit(*p.Refund)
	}
	return nil
}

func (f *fakeStore) CreateReturnRequest(_ context.Context, p store.CreateReturnRequestParams) error {
	for _, id := range p.ItemIDs {
		if f.items[id].Status != models.StatusDelivered {
			return fmt.Errorf("item %d: %w", id, store.ErrStatusConflict)
		}
	}
	f.nextReturnID++
	p.Request.ID = f.nextReturnID
	copied := *p.Request
	f.returns[copied.ID] = &copied
	for _, id := range p.ItemIDs {
		f.items[id].Status = models.StatusReturned
	}
	f.orders[p.Request.OrderID].Status = p.HeaderStatus
	return nil
}

func (f *fakeStore) GetReturnRequest(_ context.Context, id int64) (*models.ReturnRequest, error) {
	request, ok := f.returns[id]
	if !ok {
		return nil, fmt.Errorf("return request %d: %w", id, store.ErrNotFound)
	}
	copied := *request
	return &copied, nil
}

func (f *fakeStore) ApproveReturn(_ context.Context, p store.ApproveReturnParams) error {
	request := f.returns[p.ReturnID]
	if request.Approved {
		return store.ErrAlreadyApproved
	}
	request.Approved = true
	request.RefundedToWallet = p.Refund != nil
	for _, adj := range p.Restock {
		f.stock[adj.VariantID] += adj.Quantity
	}
	if p.Refund != nil {
		f.credit(*p.Refund)
	}
	return nil
}

func (f *fakeStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	return f.processed[eventID], nil
}

func (f *fakeStore) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	f.processed[eventID] = true
	return nil
}

func (f *fakeStore) GetWalletByUserID(_ context.Context, userID int64) (*models.Wallet, error) {
	return &models.Wallet{ID: userID, UserID: userID, Balance: f.balances[userID]}, nil
}

func (f *fakeStore) ListWalletTransactions(_ context.Context, userID int64) ([]models.WalletTransaction, error) {
	var txs []models.WalletTransaction
	for i := len(f.ledger) - 1; i >= 0; i-- {
		if f.ledger[i].WalletID == userID {
			txs = append(txs, f.ledger[i])
		}
	}
	return txs, nil
}

func (f *fakeStore) CreditWallet(_ context.Context, credit store.WalletCredit) error {
	f.credit(credit)
	return nil
}

func (f *fakeStore) ReconcileWallet(_ context.Context, userID int64) (int64, int64, error) {
	var sum int64
	for _, tx := range f.ledger {
		if tx.WalletID != userID {
			continue
		}
		if tx.Type == models.TransactionCredit {
			sum += tx.Amount
		} else {
			sum -= tx.Amount
		}
	}
	return f.balances[userID], sum, nil
}

func (f *fakeStore) credit(c store.WalletCredit) {
	f.balances[c.UserID] += c.Amount
	f.ledger = append(f.ledger, models.WalletTransaction{
		WalletID: c.UserID,
		Amount:   c.Amount,
		Type:     models.TransactionCredit,
		Reason:   c.Reason,
		OrderID:  c.OrderID,
	})
}

func (f *fakeStore) debit(userID, amount int64, reason string, orderID *int64) {
	f.balances[userID] -= amount
	f.ledger = append(f.ledger, models.WalletTransaction{
		WalletID: userID,
		Amount:   amount,
		Type:     models.TransactionDebit,
		Reason:   reason,
		OrderID:  orderID,
	})
}

// fakeCache is an in-memory stand-in for the redis dedup and lock surface
type fakeCache struct {
	seen  map[string]bool
	locks map[int64]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{seen: make(map[string]bool), locks: make(map[int64]bool)}
}

func (c *fakeCache) IsEventSeen(_ context.Context, eventID string) (bool, error) {
	return c.seen[eventID], nil
}

func (c *fakeCache) MarkEventSeen(_ context.Context, eventID string, _ time.Duration) (bool, error) {
	if c.seen[eventID] {
		return false, nil
	}
	c.seen[eventID] = true
	return true, nil
}

func (c *fakeCache) AcquireSettlementLock(_ context.Context, orderID int64, _ time.Duration) (bool, error) {
	if c.locks[orderID] {
		return false, nil
	}
	c.locks[orderID] = true
	return true, nil
}

func (c *fakeCache) ReleaseSettlementLock(_ context.Context, orderID int64) error {
	delete(c.locks, orderID)
	return nil
}

// fakeGateway is a canned payment gateway for tests
type fakeGateway struct {
	intentID     string
	intentErr    error
	validSig     string
	validWebhook string
}

func (g *fakeGateway) CreateIntent(_ context.Context, _ int64, _, _ string) (string, error) {
	if g.intentErr != nil {
		return "", g.intentErr
	}
	return g.intentID, nil
}

func (g *fakeGateway) VerifyPaymentSignature(_, _, signature string) bool {
	return signature == g.validSig
}

func (g *fakeGateway) VerifyWebhookSignature(_ []byte, signature string) bool {
	return signature == g.validWebhook
}
