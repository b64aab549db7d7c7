package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"babymuse/internal/broker"
	"babymuse/internal/gateway"
	"babymuse/internal/models"
	"babymuse/internal/store"
	"babymuse/internal/util"

	"go.uber.org/zap"
)

const settlementLockTTL = 30 * time.Second

// SettlementStore is the persistence contract for gateway settlements
type SettlementStore interface {
	GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	SettleOrder(ctx context.Context, p store.SettleOrderParams) error
	MarkOrderFailed(ctx context.Context, orderID int64) error
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// SettlementCache is the redis surface settlement uses: webhook event dedup
// and the per-order settlement lock. Satisfied by redisclient.Client.
type SettlementCache interface {
	IsEventSeen(ctx context.Context, eventID string) (bool, error)
	MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	AcquireSettlementLock(ctx context.Context, orderID int64, ttl time.Duration) (bool, error)
	ReleaseSettlementLock(ctx context.Context, orderID int64) error
}

// CallbackRequest is the browser-redirect confirmation payload
type CallbackRequest struct {
	GatewayOrderID string `json:"razorpay_order_id" binding:"required"`
	PaymentID      string `json:"razorpay_payment_id" binding:"required"`
	Signature      string `json:"razorpay_signature" binding:"required"`
}

// SettlementResult reports the outcome of a callback or webhook settlement
type SettlementResult struct {
	OrderID        int64         `json:"order_id"`
	Status         models.Status `json:"status"`
	AlreadySettled bool          `json:"already_settled"`
}

// webhookEvent is the subset of the Razorpay webhook schema the core reads
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// SettlementService confirms gateway payments. Callbacks and webhooks are
// untrusted input: signatures are verified before any side effect, and a
// duplicate confirmation for an already-paid order is a no-op.
type SettlementService struct {
	store   SettlementStore
	gateway gateway.PaymentGateway
	cache   SettlementCache
	events  *broker.EventPublisher
	coupons *CouponService
	logger  *zap.Logger
}

// NewSettlementService creates a new settlement service; cache and coupons
// may be nil.
func NewSettlementService(
	st SettlementStore,
	gw gateway.PaymentGateway,
	cache SettlementCache,
	events *broker.EventPublisher,
	coupons *CouponService,
) *SettlementService {
	return &SettlementService{
		store:   st,
		gateway: gw,
		cache:   cache,
		events:  events,
		coupons: coupons,
		logger:  util.GetLogger(),
	}
}

// HandleCallback verifies the payment signature and applies the deferred
// settlement side effects: mark paid, decrement stock, clear cart, consume
// coupon usage.
func (s *SettlementService) HandleCallback(ctx context.Context, req *CallbackRequest) (*SettlementResult, error) {
	ctx, span := util.StartSpan(ctx, "SettlementService.HandleCallback")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SettlementLatency.Observe(time.Since(start).Seconds())
	}()

	order, err := s.store.GetOrderByGatewayOrderID(ctx, req.GatewayOrderID)
	if err != nil {
		util.GatewayCallbacksTotal.WithLabelValues("unknown_order").Inc()
		return nil, fmt.Errorf("failed to resolve gateway order: %w", err)
	}

	if order.IsPaid {
		util.GatewayCallbacksTotal.WithLabelValues("duplicate").Inc()
		s.logger.Info("Duplicate gateway callback ignored", zap.Int64("order_id", order.ID))
		return &SettlementResult{OrderID: order.ID, Status: order.Status, AlreadySettled: true}, nil
	}

	if !s.gateway.VerifyPaymentSignature(req.GatewayOrderID, req.PaymentID, req.Signature) {
		util.GatewayCallbacksTotal.WithLabelValues("bad_signature").Inc()
		s.logger.Warn("Gateway signature verification failed",
			zap.Int64("order_id", order.ID),
			zap.String("payment_id", req.PaymentID))
		if err := s.store.MarkOrderFailed(ctx, order.ID); err != nil {
			s.logger.Error("Failed to mark order failed", zap.Int64("order_id", order.ID), zap.Error(err))
		}
		s.publishOrderFailed(ctx, order.ID, "signature verification failed")
		return nil, ErrInvalidSignature
	}

	return s.settle(ctx, order, req.PaymentID)
}

// HandleWebhook processes an asynchronous gateway event. Events can arrive
// more than once or out of order; dedup is keyed on the gateway event id and
// the settlement itself is guarded by order state.
func (s *SettlementService) HandleWebhook(ctx context.Context, eventID string, body []byte, signature string) error {
	ctx, span := util.StartSpan(ctx, "SettlementService.HandleWebhook")
	defer span.End()

	if !s.gateway.VerifyWebhookSignature(body, signature) {
		util.GatewayCallbacksTotal.WithLabelValues("bad_signature").Inc()
		return ErrInvalidSignature
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	if eventID != "" {
		if s.cache != nil {
			seen, err := s.cache.IsEventSeen(ctx, eventID)
			if err != nil {
				s.logger.Warn("Webhook dedup cache unavailable", zap.Error(err))
			} else if seen {
				util.GatewayCallbacksTotal.WithLabelValues("duplicate").Inc()
				return nil
			}
		}
		processed, err := s.store.IsEventProcessed(ctx, eventID)
		if err != nil {
			return fmt.Errorf("failed to check event processed: %w", err)
		}
		if processed {
			util.GatewayCallbacksTotal.WithLabelValues("duplicate").Inc()
			return nil
		}
	}

	order, err := s.store.GetOrderByGatewayOrderID(ctx, event.Payload.Payment.Entity.OrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// event for an order this service never issued
			util.GatewayCallbacksTotal.WithLabelValues("unknown_order").Inc()
			return nil
		}
		return err
	}

	switch event.Event {
	case "payment.captured":
		if !order.IsPaid {
			if _, err := s.settle(ctx, order, event.Payload.Payment.Entity.ID); err != nil {
				if !errors.Is(err, store.ErrOrderCancelled) {
					return err
				}
				// the money was captured for an order the customer already
				// cancelled; needs a manual refund at the gateway
				s.logger.Warn("Captured payment for a cancelled order",
					zap.Int64("order_id", order.ID),
					zap.String("payment_id", event.Payload.Payment.Entity.ID))
			}
		}
	case "payment.failed":
		if err := s.store.MarkOrderFailed(ctx, order.ID); err != nil {
			return fmt.Errorf("failed to mark order failed: %w", err)
		}
		util.GatewayCallbacksTotal.WithLabelValues("payment_failed").Inc()
		s.publishOrderFailed(ctx, order.ID, "payment failed at gateway")
	default:
		s.logger.Info("Unhandled gateway event", zap.String("event", event.Event))
	}

	if eventID != "" {
		if err := s.store.MarkEventProcessed(ctx, eventID, event.Event); err != nil {
			s.logger.Error("Failed to mark event processed", zap.String("event_id", eventID), zap.Error(err))
		}
		// cached only once the event is fully handled, so a transient
		// settlement failure leaves gateway retries of this id alive
		if s.cache != nil {
			if _, err := s.cache.MarkEventSeen(ctx, eventID, 24*time.Hour); err != nil {
				s.logger.Warn("Failed to cache event id", zap.String("event_id", eventID), zap.Error(err))
			}
		}
	}
	return nil
}

func (s *SettlementService) settle(ctx context.Context, order *models.Order, paymentID string) (*SettlementResult, error) {
	if s.cache != nil {
		acquired, err := s.cache.AcquireSettlementLock(ctx, order.ID, settlementLockTTL)
		if err != nil {
			s.logger.Warn("Settlement lock unavailable", zap.Int64("order_id", order.ID), zap.Error(err))
		} else if !acquired {
			util.GatewayCallbacksTotal.WithLabelValues("duplicate").Inc()
			return &SettlementResult{OrderID: order.ID, Status: order.Status, AlreadySettled: true}, nil
		} else {
			defer func() {
				if err := s.cache.ReleaseSettlementLock(ctx, order.ID); err != nil {
					s.logger.Warn("Failed to release settlement lock", zap.Int64("order_id", order.ID), zap.Error(err))
				}
			}()
		}
	}

	items, err := s.store.GetOrderItems(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}

	err = s.store.SettleOrder(ctx, store.SettleOrderParams{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Status:    models.StatusProcessing,
		Items:     items,
		CouponID:  order.CouponID,
		ClearCart: true,
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadySettled) {
			util.GatewayCallbacksTotal.WithLabelValues("duplicate").Inc()
			return &SettlementResult{OrderID: order.ID, Status: order.Status, AlreadySettled: true}, nil
		}
		if errors.Is(err, store.ErrOrderCancelled) {
			// the cancellation stands; stock, cart, coupon and payment
			// state stay untouched
			util.GatewayCallbacksTotal.WithLabelValues("order_cancelled").Inc()
			s.logger.Warn("Payment confirmation for a cancelled order rejected",
				zap.Int64("order_id", order.ID),
				zap.String("payment_id", paymentID))
			return nil, fmt.Errorf("order %d: %w", order.ID, err)
		}
		s.logger.Error("Gateway settlement failed",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		if failErr := s.store.MarkOrderFailed(ctx, order.ID); failErr != nil {
			s.logger.Error("Failed to mark order failed", zap.Int64("order_id", order.ID), zap.Error(failErr))
		}
		util.GatewayCallbacksTotal.WithLabelValues("settlement_error").Inc()
		s.publishOrderFailed(ctx, order.ID, err.Error())
		return nil, fmt.Errorf("failed to settle order: %w", err)
	}

	if order.CouponID != nil && s.coupons != nil {
		s.coupons.InvalidateByID(ctx, *order.CouponID)
	}

	util.GatewayCallbacksTotal.WithLabelValues("settled").Inc()
	util.OrdersPaidTotal.WithLabelValues(string(order.PaymentMethod)).Inc()
	s.logger.Info("Gateway payment settled",
		zap.Int64("order_id", order.ID),
		zap.String("payment_id", paymentID))

	if s.events != nil {
		event := &models.OrderPaidEvent{
			BaseEvent:     newBaseEvent(models.EventTypeOrderPaid),
			OrderID:       order.ID,
			UserID:        order.UserID,
			PaymentMethod: order.PaymentMethod,
			Amount:        order.TotalPrice,
			GatewayTxID:   paymentID,
		}
		if err := s.events.PublishOrderPaid(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
		}
	}

	return &SettlementResult{OrderID: order.ID, Status: models.StatusProcessing}, nil
}

func (s *SettlementService) publishOrderFailed(ctx context.Context, orderID int64, reason string) {
	if s.events == nil {
		return
	}
	event := &models.OrderFailedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderFailed),
		OrderID:   orderID,
		Reason:    reason,
	}
	if err := s.events.PublishOrderFailed(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderFailed event", zap.Error(err))
	}
}
