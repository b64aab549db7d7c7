package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"babymuse/internal/broker"
	"babymuse/internal/gateway"
	"babymuse/internal/models"
	"babymuse/internal/store"
	"babymuse/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutStore is the persistence contract checkout depends on
type CheckoutStore interface {
	ListCartLines(ctx context.Context, userID int64) ([]models.CartLine, error)
	GetAddressForUser(ctx context.Context, addressID, userID int64) (*models.Address, error)
	GetDefaultAddress(ctx context.Context, userID int64) (*models.Address, error)
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	SettleOrder(ctx context.Context, p store.SettleOrderParams) error
	SetGatewayOrderID(ctx context.Context, orderID int64, gatewayOrderID string) error
	MarkOrderFailed(ctx context.Context, orderID int64) error
}

// CheckoutRequest represents a checkout submission
type CheckoutRequest struct {
	UserID        int64  `json:"user_id" binding:"required"`
	AddressID     int64  `json:"address_id"`
	PaymentMethod string `json:"payment_method" binding:"required"`
	CouponCode    string `json:"coupon_code,omitempty"`
}

// GatewayCheckout is returned for online payments: the caller redirects the
// customer to the gateway and settlement happens on the signed callback.
type GatewayCheckout struct {
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

// CheckoutResult is the outcome of a checkout submission
type CheckoutResult struct {
	Order   *models.Order      `json:"order"`
	Items   []models.OrderItem `json:"items"`
	Pricing PriceBreakdown     `json:"pricing"`
	Payment *GatewayCheckout   `json:"payment,omitempty"`
}

// settlementContext carries one checkout through its payment handler,
// replacing the ambient session state the storefront UI keeps.
type settlementContext struct {
	Order *models.Order
	Items []models.OrderItem
}

// SettlementHandler decides, per payment method, when stock is decremented,
// when the cart is cleared and when the order is marked paid. Adding a
// payment method means adding a handler to the map; there is no string
// branching in the checkout flow.
type SettlementHandler interface {
	Settle(ctx context.Context, sc *settlementContext) (*GatewayCheckout, error)
}

// CheckoutService orchestrates cart validation, coupon application, pricing
// and payment settlement.
type CheckoutService struct {
	store    CheckoutStore
	coupons  *CouponService
	gateway  gateway.PaymentGateway
	events   *broker.EventPublisher
	pricing  PricingConfig
	currency string
	handlers map[models.PaymentMethod]SettlementHandler
	logger   *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	st CheckoutStore,
	coupons *CouponService,
	gw gateway.PaymentGateway,
	events *broker.EventPublisher,
	pricing PricingConfig,
	currency string,
) *CheckoutService {
	s := &CheckoutService{
		store:    st,
		coupons:  coupons,
		gateway:  gw,
		events:   events,
		pricing:  pricing,
		currency: currency,
		logger:   util.GetLogger(),
	}
	s.handlers = map[models.PaymentMethod]SettlementHandler{
		models.PaymentMethodCOD:      &codHandler{s},
		models.PaymentMethodWallet:   &walletHandler{s},
		models.PaymentMethodRazorpay: &gatewayHandler{s},
	}
	return s
}

// Checkout creates the order aggregate in one transaction and hands it to
// the payment method's settlement handler.
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	method, ok := models.ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		util.CheckoutFailedTotal.WithLabelValues("invalid_payment_method").Inc()
		return nil, fmt.Errorf("%w: %q", ErrInvalidPayment, req.PaymentMethod)
	}

	lines, err := s.store.ListCartLines(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(lines) == 0 {
		util.CheckoutFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, ErrEmptyCart
	}

	if unavailable := unavailableLines(lines); len(unavailable) > 0 {
		util.CheckoutFailedTotal.WithLabelValues("unavailable_stock").Inc()
		return nil, fmt.Errorf("%w: %s", ErrStockUnavailable, strings.Join(unavailable, ", "))
	}

	// an omitted address id falls back to the user's default address
	addressID := req.AddressID
	if addressID == 0 {
		addr, err := s.store.GetDefaultAddress(ctx, req.UserID)
		if err != nil {
			util.CheckoutFailedTotal.WithLabelValues("invalid_address").Inc()
			return nil, fmt.Errorf("failed to resolve address: %w", err)
		}
		addressID = addr.ID
	} else if _, err := s.store.GetAddressForUser(ctx, addressID, req.UserID); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("invalid_address").Inc()
		return nil, fmt.Errorf("failed to resolve address: %w", err)
	}

	var subtotal int64
	for _, line := range lines {
		subtotal += OfferPrice(line) * int64(line.Quantity)
	}

	var couponID *int64
	var discount int64
	if req.CouponCode != "" {
		application, err := s.coupons.Validate(ctx, req.CouponCode, req.UserID, subtotal)
		if err != nil {
			util.CheckoutFailedTotal.WithLabelValues("coupon_rejected").Inc()
			return nil, err
		}
		couponID = &application.Coupon.ID
		discount = application.Discount
	}

	breakdown := ComputePricing(lines, discount, s.pricing)

	order := &models.Order{
		UserID:         req.UserID,
		AddressID:      addressID,
		PaymentMethod:  method,
		Status:         models.StatusPending,
		Subtotal:       breakdown.Subtotal,
		Shipping:       breakdown.Shipping,
		Tax:            breakdown.Tax,
		DiscountAmount: breakdown.Discount,
		TotalPrice:     breakdown.Total,
		CouponID:       couponID,
	}

	items := make([]models.OrderItem, len(lines))
	for i, line := range lines {
		items[i] = models.OrderItem{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Name:      line.ProductName,
			Quantity:  line.Quantity,
			Price:     OfferPrice(line),
			Status:    models.StatusPending,
		}
	}

	if err := s.store.CreateOrder(ctx, order, items); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersPlacedTotal.WithLabelValues(string(method)).Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", req.UserID),
		zap.String("payment_method", string(method)),
		zap.Int64("total_price", order.TotalPrice))

	s.publishOrderPlaced(ctx, order, items)

	payment, err := s.handlers[method].Settle(ctx, &settlementContext{Order: order, Items: items})
	if err != nil {
		return nil, err
	}

	return &CheckoutResult{
		Order:   order,
		Items:   items,
		Pricing: breakdown,
		Payment: payment,
	}, nil
}

func unavailableLines(lines []models.CartLine) []string {
	var names []string
	for _, line := range lines {
		if line.ProductDeleted || line.Stock < line.Quantity {
			names = append(names, line.ProductName)
		}
	}
	return names
}

// settle applies the immediate-settlement path shared by COD and wallet
// payments; the wallet debit is nil for COD.
func (s *CheckoutService) settle(ctx context.Context, sc *settlementContext, debit *store.WalletDebit) error {
	start := time.Now()
	defer func() {
		util.SettlementLatency.Observe(time.Since(start).Seconds())
	}()

	err := s.store.SettleOrder(ctx, store.SettleOrderParams{
		OrderID:     sc.Order.ID,
		UserID:      sc.Order.UserID,
		Status:      models.StatusProcessing,
		Items:       sc.Items,
		CouponID:    sc.Order.CouponID,
		ClearCart:   true,
		WalletDebit: debit,
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			util.CheckoutFailedTotal.WithLabelValues("insufficient_funds").Inc()
			if failErr := s.store.MarkOrderFailed(ctx, sc.Order.ID); failErr != nil {
				s.logger.Error("Failed to mark order failed", zap.Int64("order_id", sc.Order.ID), zap.Error(failErr))
			}
			return ErrInsufficientFunds
		}
		if errors.Is(err, store.ErrInsufficientStock) {
			util.CheckoutFailedTotal.WithLabelValues("unavailable_stock").Inc()
			if failErr := s.store.MarkOrderFailed(ctx, sc.Order.ID); failErr != nil {
				s.logger.Error("Failed to mark order failed", zap.Int64("order_id", sc.Order.ID), zap.Error(failErr))
			}
			return fmt.Errorf("%w: %v", ErrStockUnavailable, err)
		}
		return fmt.Errorf("failed to settle order: %w", err)
	}

	sc.Order.IsPaid = true
	sc.Order.Status = models.StatusProcessing
	for i := range sc.Items {
		sc.Items[i].Status = models.StatusProcessing
	}

	if sc.Order.CouponID != nil {
		// usage count changed, drop the cached read model
		s.coupons.InvalidateByID(ctx, *sc.Order.CouponID)
	}

	util.OrdersPaidTotal.WithLabelValues(string(sc.Order.PaymentMethod)).Inc()
	s.logger.Info("Order settled",
		zap.Int64("order_id", sc.Order.ID),
		zap.String("payment_method", string(sc.Order.PaymentMethod)))

	s.publishOrderPaid(ctx, sc.Order, "")
	return nil
}

// codHandler settles immediately with no payment capture: stock decremented,
// cart cleared, coupon usage consumed, order marked paid.
type codHandler struct {
	svc *CheckoutService
}

func (h *codHandler) Settle(ctx context.Context, sc *settlementContext) (*GatewayCheckout, error) {
	return nil, h.svc.settle(ctx, sc, nil)
}

// walletHandler debits the wallet sufficiency-checked in the same
// transaction as the rest of the settlement.
type walletHandler struct {
	svc *CheckoutService
}

func (h *walletHandler) Settle(ctx context.Context, sc *settlementContext) (*GatewayCheckout, error) {
	debit := &store.WalletDebit{
		UserID: sc.Order.UserID,
		Amount: sc.Order.TotalPrice,
		Reason: fmt.Sprintf("Payment for order #%d", sc.Order.ID),
	}
	if err := h.svc.settle(ctx, sc, debit); err != nil {
		return nil, err
	}
	util.WalletDebitsTotal.Inc()
	return nil, nil
}

// gatewayHandler creates the payment intent and defers every side effect to
// the signed callback; stock and cart are untouched here.
type gatewayHandler struct {
	svc *CheckoutService
}

func (h *gatewayHandler) Settle(ctx context.Context, sc *settlementContext) (*GatewayCheckout, error) {
	receipt := fmt.Sprintf("order-%d-%s", sc.Order.ID, uuid.New().String()[:8])
	intentID, err := h.svc.gateway.CreateIntent(ctx, sc.Order.TotalPrice, h.svc.currency, receipt)
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("gateway_error").Inc()
		if failErr := h.svc.store.MarkOrderFailed(ctx, sc.Order.ID); failErr != nil {
			h.svc.logger.Error("Failed to mark order failed", zap.Int64("order_id", sc.Order.ID), zap.Error(failErr))
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	if err := h.svc.store.SetGatewayOrderID(ctx, sc.Order.ID, intentID); err != nil {
		return nil, fmt.Errorf("failed to persist gateway order id: %w", err)
	}
	sc.Order.GatewayOrderID = &intentID

	h.svc.logger.Info("Payment intent created",
		zap.Int64("order_id", sc.Order.ID),
		zap.String("gateway_order_id", intentID))

	return &GatewayCheckout{
		GatewayOrderID: intentID,
		Amount:         sc.Order.TotalPrice,
		Currency:       h.svc.currency,
	}, nil
}

func (s *CheckoutService) publishOrderPlaced(ctx context.Context, order *models.Order, items []models.OrderItem) {
	if s.events == nil {
		return
	}
	itemData := make([]models.OrderItemData, len(items))
	for i, it := range items {
		itemData[i] = models.OrderItemData{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		}
	}
	event := &models.OrderPlacedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeOrderPlaced),
		OrderID:       order.ID,
		UserID:        order.UserID,
		PaymentMethod: order.PaymentMethod,
		TotalPrice:    order.TotalPrice,
		Items:         itemData,
	}
	if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}
}

func (s *CheckoutService) publishOrderPaid(ctx context.Context, order *models.Order, gatewayTxID string) {
	if s.events == nil {
		return
	}
	event := &models.OrderPaidEvent{
		BaseEvent:     newBaseEvent(models.EventTypeOrderPaid),
		OrderID:       order.ID,
		UserID:        order.UserID,
		PaymentMethod: order.PaymentMethod,
		Amount:        order.TotalPrice,
		GatewayTxID:   gatewayTxID,
	}
	if err := s.events.PublishOrderPaid(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
