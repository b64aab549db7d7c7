package service

import (
	"context"
	"errors"
	"fmt"

	"babymuse/internal/broker"
	"babymuse/internal/models"
	"babymuse/internal/store"
	"babymuse/internal/util"

	"go.uber.org/zap"
)

// CancellationStore is the persistence contract for cancellations and returns
type CancellationStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderForUser(ctx context.Context, orderID, userID int64) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetOrderItemForUser(ctx context.Context, itemID, userID int64) (*models.OrderItem, *models.Order, error)
	CancelItems(ctx context.Context, p store.CancelItemsParams) error
	CreateReturnRequest(ctx context.Context, p store.CreateReturnRequestParams) error
	GetReturnRequest(ctx context.Context, id int64) (*models.ReturnRequest, error)
	ApproveReturn(ctx context.Context, p store.ApproveReturnParams) error
}

// CancellationService validates cancel/return transitions, restocks
// inventory and issues wallet refunds.
type CancellationService struct {
	store  CancellationStore
	events *broker.EventPublisher
	logger *zap.Logger
}

// NewCancellationService creates a new cancellation service
func NewCancellationService(st CancellationStore, events *broker.EventPublisher) *CancellationService {
	return &CancellationService{
		store:  st,
		events: events,
		logger: util.GetLogger(),
	}
}

// CancelItem cancels a single order line: item to Cancelled, variant
// restocked, header re-derived, and for captured payments the line subtotal
// refunded to the wallet. COD orders produce no refund since nothing was
// captured.
func (s *CancellationService) CancelItem(ctx context.Context, itemID, userID int64, reason string) (*models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "CancellationService.CancelItem")
	defer span.End()

	item, order, err := s.store.GetOrderItemForUser(ctx, itemID, userID)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(item.Status, models.StatusCancelled) {
		return nil, fmt.Errorf("%w: item %d is %s", ErrNotCancellable, item.ID, item.Status)
	}

	items, err := s.store.GetOrderItems(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	header := reduceAfter(items, map[int64]models.Status{item.ID: models.StatusCancelled})

	refund := s.refundFor(order, item.Subtotal(),
		fmt.Sprintf("Refund for cancelled item %q (order #%d)", item.Name, order.ID))

	// stock is decremented at settlement, so an unsettled order has
	// nothing to put back
	var restock []store.StockAdjust
	if order.IsPaid {
		restock = []store.StockAdjust{{VariantID: item.VariantID, Quantity: item.Quantity}}
	}

	err = s.store.CancelItems(ctx, store.CancelItemsParams{
		OrderID:      order.ID,
		ItemIDs:      []int64{item.ID},
		HeaderStatus: header,
		Restock:      restock,
		Refund:       refund,
	})
	if err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: item %d", ErrNotCancellable, item.ID)
		}
		return nil, fmt.Errorf("failed to cancel item: %w", err)
	}

	util.OrderItemsCancelledTotal.Inc()
	s.logger.Info("Order item cancelled",
		zap.Int64("order_id", order.ID),
		zap.Int64("item_id", item.ID),
		zap.String("reason", reason))

	s.publishCancelled(ctx, models.EventTypeItemCancelled, order, []int64{item.ID}, refundAmount(refund), reason)

	item.Status = models.StatusCancelled
	return item, nil
}

// CancelOrder cancels every line of an order. Legal only while every item is
// still cancellable; issues a single aggregate refund for captured payments.
func (s *CancellationService) CancelOrder(ctx context.Context, orderID, userID int64, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CancellationService.CancelOrder")
	defer span.End()

	order, err := s.store.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.GetOrderItems(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order %d has no items", ErrNotCancellable, order.ID)
	}

	var itemIDs []int64
	var restock []store.StockAdjust
	var refundTotal int64
	for _, item := range items {
		if !models.Cancellable(item.Status) {
			return nil, fmt.Errorf("%w: item %d is %s", ErrNotCancellable, item.ID, item.Status)
		}
		itemIDs = append(itemIDs, item.ID)
		if order.IsPaid {
			restock = append(restock, store.StockAdjust{VariantID: item.VariantID, Quantity: item.Quantity})
		}
		refundTotal += item.Subtotal()
	}

	refund := s.refundFor(order, refundTotal, fmt.Sprintf("Refund for cancelled order #%d", order.ID))

	err = s.store.CancelItems(ctx, store.CancelItemsParams{
		OrderID:      order.ID,
		ItemIDs:      itemIDs,
		HeaderStatus: models.StatusCancelled,
		Restock:      restock,
		Refund:       refund,
	})
	if err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: order %d", ErrNotCancellable, order.ID)
		}
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", order.ID),
		zap.String("reason", reason))

	s.publishCancelled(ctx, models.EventTypeOrderCancelled, order, itemIDs, refundAmount(refund), reason)

	order.Status = models.StatusCancelled
	return order, nil
}

// RequestReturn files a whole-order return. Legal only when every item has
// been delivered; items move to Returned immediately, the refund waits for
// staff approval.
func (s *CancellationService) RequestReturn(ctx context.Context, orderID, userID int64, reason string) (*models.ReturnRequest, error) {
	ctx, span := util.StartSpan(ctx, "CancellationService.RequestReturn")
	defer span.End()

	order, err := s.store.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.GetOrderItems(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order %d has no items", ErrNotReturnable, order.ID)
	}

	var itemIDs []int64
	transitions := make(map[int64]models.Status, len(items))
	for _, item := range items {
		if !models.CanTransition(item.Status, models.StatusReturned) {
			return nil, fmt.Errorf("%w: item %d is %s", ErrNotReturnable, item.ID, item.Status)
		}
		itemIDs = append(itemIDs, item.ID)
		transitions[item.ID] = models.StatusReturned
	}

	request := &models.ReturnRequest{OrderID: order.ID, Reason: reason}
	err = s.store.CreateReturnRequest(ctx, store.CreateReturnRequestParams{
		Request:      request,
		ItemIDs:      itemIDs,
		HeaderStatus: reduceAfter(items, transitions),
	})
	if err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: order %d", ErrNotReturnable, order.ID)
		}
		return nil, fmt.Errorf("failed to create return request: %w", err)
	}

	util.ReturnsRequestedTotal.Inc()
	s.publishReturnRequested(ctx, request)
	return request, nil
}

// RequestItemReturn files a return for a single delivered line
func (s *CancellationService) RequestItemReturn(ctx context.Context, itemID, userID int64, reason string) (*models.ReturnRequest, error) {
	ctx, span := util.StartSpan(ctx, "CancellationService.RequestItemReturn")
	defer span.End()

	item, order, err := s.store.GetOrderItemForUser(ctx, itemID, userID)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(item.Status, models.StatusReturned) {
		return nil, fmt.Errorf("%w: item %d is %s", ErrNotReturnable, item.ID, item.Status)
	}

	items, err := s.store.GetOrderItems(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}

	request := &models.ReturnRequest{OrderID: order.ID, OrderItemID: &item.ID, Reason: reason}
	err = s.store.CreateReturnRequest(ctx, store.CreateReturnRequestParams{
		Request:      request,
		ItemIDs:      []int64{item.ID},
		HeaderStatus: reduceAfter(items, map[int64]models.Status{item.ID: models.StatusReturned}),
	})
	if err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: item %d", ErrNotReturnable, item.ID)
		}
		return nil, fmt.Errorf("failed to create return request: %w", err)
	}

	util.ReturnsRequestedTotal.Inc()
	s.publishReturnRequested(ctx, request)
	return request, nil
}

// ApproveReturn is the staff action that restocks and refunds a return.
// Approval is one-way: a second approval is rejected so the wallet can never
// be credited twice for one return.
func (s *CancellationService) ApproveReturn(ctx context.Context, returnID int64) (*models.ReturnRequest, error) {
	ctx, span := util.StartSpan(ctx, "CancellationService.ApproveReturn")
	defer span.End()

	request, err := s.store.GetReturnRequest(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if request.Approved {
		return nil, store.ErrAlreadyApproved
	}

	order, err := s.store.GetOrderByID(ctx, request.OrderID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.GetOrderItems(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}

	var restock []store.StockAdjust
	var refundTotal int64
	for _, item := range items {
		if request.OrderItemID != nil && item.ID != *request.OrderItemID {
			continue
		}
		if item.Status != models.StatusReturned {
			continue
		}
		restock = append(restock, store.StockAdjust{VariantID: item.VariantID, Quantity: item.Quantity})
		refundTotal += item.Subtotal()
	}

	// Returns follow delivery, so the payment was captured for every
	// method, COD included; the refund always lands in the wallet.
	refund := &store.WalletCredit{
		UserID:  order.UserID,
		Amount:  refundTotal,
		Reason:  fmt.Sprintf("Refund for returned order #%d", order.ID),
		OrderID: &order.ID,
	}

	err = s.store.ApproveReturn(ctx, store.ApproveReturnParams{
		ReturnID: request.ID,
		Restock:  restock,
		Refund:   refund,
	})
	if err != nil {
		return nil, err
	}

	util.ReturnsApprovedTotal.Inc()
	util.RefundsIssuedTotal.Inc()
	util.WalletCreditsTotal.Inc()
	s.logger.Info("Return approved",
		zap.Int64("return_id", request.ID),
		zap.Int64("order_id", order.ID),
		zap.Int64("refund_amount", refundTotal))

	if s.events != nil {
		event := &models.ReturnApprovedEvent{
			BaseEvent:    newBaseEvent(models.EventTypeReturnApproved),
			ReturnID:     request.ID,
			OrderID:      order.ID,
			RefundAmount: refundTotal,
		}
		if err := s.events.PublishReturnApproved(ctx, event); err != nil {
			s.logger.Error("Failed to publish ReturnApproved event", zap.Error(err))
		}
	}

	request.Approved = true
	request.RefundedToWallet = true
	return request, nil
}

// refundFor builds the wallet credit for a cancellation, or nil when no
// payment was captured.
func (s *CancellationService) refundFor(order *models.Order, amount int64, reason string) *store.WalletCredit {
	if order.PaymentMethod == models.PaymentMethodCOD || !order.IsPaid {
		return nil
	}
	return &store.WalletCredit{
		UserID:  order.UserID,
		Amount:  amount,
		Reason:  reason,
		OrderID: &order.ID,
	}
}

func refundAmount(refund *store.WalletCredit) int64 {
	if refund == nil {
		return 0
	}
	return refund.Amount
}

// reduceAfter derives the header status the order will have once the given
// item transitions are applied.
func reduceAfter(items []models.OrderItem, transitions map[int64]models.Status) models.Status {
	next := make([]models.OrderItem, len(items))
	copy(next, items)
	for i := range next {
		if status, ok := transitions[next[i].ID]; ok {
			next[i].Status = status
		}
	}
	return models.ReduceOrderStatus(next)
}

func (s *CancellationService) publishCancelled(ctx context.Context, eventType string, order *models.Order, itemIDs []int64, refund int64, reason string) {
	if refund > 0 {
		util.RefundsIssuedTotal.Inc()
		util.WalletCreditsTotal.Inc()
	}
	if s.events == nil {
		return
	}
	event := &models.OrderCancelledEvent{
		BaseEvent:    newBaseEvent(eventType),
		OrderID:      order.ID,
		UserID:       order.UserID,
		ItemIDs:      itemIDs,
		RefundAmount: refund,
		Reason:       reason,
	}
	if err := s.events.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
}

func (s *CancellationService) publishReturnRequested(ctx context.Context, request *models.ReturnRequest) {
	if s.events == nil {
		return
	}
	event := &models.ReturnRequestedEvent{
		BaseEvent: newBaseEvent(models.EventTypeReturnRequested),
		ReturnID:  request.ID,
		OrderID:   request.OrderID,
		ItemID:    request.OrderItemID,
		Reason:    request.Reason,
	}
	if err := s.events.PublishReturnRequested(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReturnRequested event", zap.Error(err))
	}
}
