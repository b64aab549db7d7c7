package models

import "time"

// Event types
const (
	EventTypeOrderPlaced     = "ORDER_PLACED"
	EventTypeOrderPaid       = "ORDER_PAID"
	EventTypeOrderFailed     = "ORDER_FAILED"
	EventTypeOrderCancelled  = "ORDER_CANCELLED"
	EventTypeItemCancelled   = "ORDER_ITEM_CANCELLED"
	EventTypeReturnRequested = "RETURN_REQUESTED"
	EventTypeReturnApproved  = "RETURN_APPROVED"
	EventTypeWalletCredited  = "WALLET_CREDITED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64 `json:"product_id"`
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
	Price     int64 `json:"price"`
}

// OrderPlacedEvent published when checkout creates an order
type OrderPlacedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	UserID        int64           `json:"user_id"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	TotalPrice    int64           `json:"total_price"`
	Items         []OrderItemData `json:"items"`
}

// OrderPaidEvent published when a settlement confirms payment
type OrderPaidEvent struct {
	BaseEvent
	OrderID       int64         `json:"order_id"`
	UserID        int64         `json:"user_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Amount        int64         `json:"amount"`
	GatewayTxID   string        `json:"gateway_tx_id,omitempty"`
}

// OrderFailedEvent published when a gateway settlement fails
type OrderFailedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// OrderCancelledEvent published on whole-order or per-item cancellation
type OrderCancelledEvent struct {
	BaseEvent
	OrderID      int64   `json:"order_id"`
	UserID       int64   `json:"user_id"`
	ItemIDs      []int64 `json:"item_ids,omitempty"`
	RefundAmount int64   `json:"refund_amount"`
	Reason       string  `json:"reason"`
}

// ReturnRequestedEvent published when a return request is created
type ReturnRequestedEvent struct {
	BaseEvent
	ReturnID int64  `json:"return_id"`
	OrderID  int64  `json:"order_id"`
	ItemID   *int64 `json:"item_id,omitempty"`
	Reason   string `json:"reason"`
}

// ReturnApprovedEvent published when staff approve a return
type ReturnApprovedEvent struct {
	BaseEvent
	ReturnID     int64 `json:"return_id"`
	OrderID      int64 `json:"order_id"`
	RefundAmount int64 `json:"refund_amount"`
}

// WalletCreditedEvent published on every wallet credit
type WalletCreditedEvent struct {
	BaseEvent
	UserID  int64  `json:"user_id"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
	OrderID *int64 `json:"order_id,omitempty"`
}
