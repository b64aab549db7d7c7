package service

import (
	"context"
	"errors"
	"fmt"

	"babymuse/internal/models"
	"babymuse/internal/store"
	"babymuse/internal/util"

	"go.uber.org/zap"
)

// FulfillmentStore is the persistence contract for fulfilment transitions
type FulfillmentStore interface {
	GetOrderItem(ctx context.Context, itemID int64) (*models.OrderItem, *models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	UpdateItemStatus(ctx context.Context, itemID int64, from, to, headerStatus models.Status) error
}

// FulfillmentService advances items along the forward flow
// Processing -> Shipped -> Delivered -> Completed. Cancellations and returns
// have their own flows and are rejected here.
type FulfillmentService struct {
	store  FulfillmentStore
	logger *zap.Logger
}

// NewFulfillmentService creates a new fulfillment service
func NewFulfillmentService(st FulfillmentStore) *FulfillmentService {
	return &FulfillmentService{
		store:  st,
		logger: util.GetLogger(),
	}
}

// AdvanceItem moves one item forward and re-derives the order header status
func (s *FulfillmentService) AdvanceItem(ctx context.Context, itemID int64, to models.Status) (*models.OrderItem, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.AdvanceItem")
	defer span.End()

	if to == models.StatusCancelled || to == models.StatusReturned {
		return nil, fmt.Errorf("%w: %s is not a fulfilment stage", ErrIllegalTransition, to)
	}

	item, order, err := s.store.GetOrderItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(item.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, item.Status, to)
	}

	items, err := s.store.GetOrderItems(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	header := reduceAfter(items, map[int64]models.Status{item.ID: to})

	if err := s.store.UpdateItemStatus(ctx, item.ID, item.Status, to, header); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: item %d changed concurrently", ErrIllegalTransition, item.ID)
		}
		return nil, fmt.Errorf("failed to update item status: %w", err)
	}

	s.logger.Info("Order item advanced",
		zap.Int64("order_id", order.ID),
		zap.Int64("item_id", item.ID),
		zap.String("from", string(item.Status)),
		zap.String("to", string(to)))

	item.Status = to
	return item, nil
}
