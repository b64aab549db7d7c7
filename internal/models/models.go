package models

import "time"

// All money amounts are int64 paise (minor currency units).

// PaymentMethod identifies how an order is settled
type PaymentMethod string

const (
	PaymentMethodCOD      PaymentMethod = "COD"
	PaymentMethodWallet   PaymentMethod = "WALLET"
	PaymentMethodRazorpay PaymentMethod = "RAZORPAY"
)

// ParsePaymentMethod validates a payment method string
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch PaymentMethod(s) {
	case PaymentMethodCOD, PaymentMethodWallet, PaymentMethodRazorpay:
		return PaymentMethod(s), true
	}
	return "", false
}

// Category represents a product category
type Category struct {
	ID           int64  `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	OfferPercent int    `db:"offer_percent" json:"offer_percent"`
	IsActive     bool   `db:"is_active" json:"is_active"`
	IsDeleted    bool   `db:"is_deleted" json:"-"`
}

// Product represents a product in the catalog
type Product struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	CategoryID   int64     `db:"category_id" json:"category_id"`
	ListPrice    int64     `db:"list_price" json:"list_price"`
	OfferPercent int       `db:"offer_percent" json:"offer_percent"`
	IsDeleted    bool      `db:"is_deleted" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Variant represents a purchasable size/color variant of a product
type Variant struct {
	ID        int64     `db:"id" json:"id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Label     string    `db:"label" json:"label"`
	Stock     int       `db:"stock" json:"stock"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartLine is a cart entry joined with the catalog data pricing needs
type CartLine struct {
	VariantID            int64  `db:"variant_id" json:"variant_id"`
	ProductID            int64  `db:"product_id" json:"product_id"`
	ProductName          string `db:"product_name" json:"product_name"`
	Quantity             int    `db:"quantity" json:"quantity"`
	ListPrice            int64  `db:"list_price" json:"list_price"`
	ProductOfferPercent  int    `db:"product_offer_percent" json:"product_offer_percent"`
	CategoryOfferPercent int    `db:"category_offer_percent" json:"category_offer_percent"`
	Stock                int    `db:"stock" json:"stock"`
	ProductDeleted       bool   `db:"product_deleted" json:"-"`
}

// Address is an address snapshot referenced by an order
type Address struct {
	ID         int64  `db:"id" json:"id"`
	UserID     int64  `db:"user_id" json:"user_id"`
	Name       string `db:"name" json:"name"`
	Phone      string `db:"phone" json:"phone"`
	Line1      string `db:"line1" json:"line1"`
	Line2      string `db:"line2" json:"line2"`
	City       string `db:"city" json:"city"`
	State      string `db:"state" json:"state"`
	PostalCode string `db:"postal_code" json:"postal_code"`
	IsDefault  bool   `db:"is_default" json:"is_default"`
}

// Coupon represents a discount coupon.
// DiscountValue is paise for flat coupons and a whole percent for percentage ones.
type Coupon struct {
	ID                int64     `db:"id" json:"id"`
	Code              string    `db:"code" json:"code"`
	DiscountValue     int64     `db:"discount_value" json:"discount_value"`
	IsPercentage      bool      `db:"is_percentage" json:"is_percentage"`
	MinimumAmount     int64     `db:"minimum_amount" json:"minimum_amount"`
	MaxDiscountAmount *int64    `db:"max_discount_amount" json:"max_discount_amount,omitempty"`
	UsageLimit        *int      `db:"usage_limit" json:"usage_limit,omitempty"`
	TimesUsed         int       `db:"times_used" json:"times_used"`
	ValidFrom         time.Time `db:"valid_from" json:"valid_from"`
	ValidTo           time.Time `db:"valid_to" json:"valid_to"`
	Active            bool      `db:"active" json:"active"`
	IsDeleted         bool      `db:"is_deleted" json:"-"`
	UserID            *int64    `db:"user_id" json:"user_id,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Order represents a customer order header.
// TotalPrice is frozen at checkout and never recomputed from items.
type Order struct {
	ID             int64         `db:"id" json:"id"`
	UserID         int64         `db:"user_id" json:"user_id"`
	AddressID      int64         `db:"address_id" json:"address_id"`
	PaymentMethod  PaymentMethod `db:"payment_method" json:"payment_method"`
	IsPaid         bool          `db:"is_paid" json:"is_paid"`
	Status         Status        `db:"status" json:"status"`
	Subtotal       int64         `db:"subtotal" json:"subtotal"`
	Shipping       int64         `db:"shipping" json:"shipping"`
	Tax            int64         `db:"tax" json:"tax"`
	DiscountAmount int64         `db:"discount_amount" json:"discount_amount"`
	TotalPrice     int64         `db:"total_price" json:"total_price"`
	CouponID       *int64        `db:"coupon_id" json:"coupon_id,omitempty"`
	GatewayOrderID *string       `db:"gateway_order_id" json:"gateway_order_id,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// OrderItem represents one line of an order.
// Price is the offer price snapshot at purchase; Quantity is immutable.
type OrderItem struct {
	ID        int64  `db:"id" json:"id"`
	OrderID   int64  `db:"order_id" json:"order_id"`
	ProductID int64  `db:"product_id" json:"product_id"`
	VariantID int64  `db:"variant_id" json:"variant_id"`
	Name      string `db:"name" json:"name"`
	Quantity  int    `db:"quantity" json:"quantity"`
	Price     int64  `db:"price" json:"price"`
	Status    Status `db:"status" json:"status"`
}

// Subtotal returns the purchase-price value of the line
func (i OrderItem) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}

// ReturnRequest represents a customer return for an order or one of its items
type ReturnRequest struct {
	ID               int64     `db:"id" json:"id"`
	OrderID          int64     `db:"order_id" json:"order_id"`
	OrderItemID      *int64    `db:"order_item_id" json:"order_item_id,omitempty"`
	Reason           string    `db:"reason" json:"reason"`
	Approved         bool      `db:"approved" json:"approved"`
	RefundedToWallet bool      `db:"refunded_to_wallet" json:"refunded_to_wallet"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Wallet holds a user's balance, a cached projection of its ledger
type Wallet struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Balance   int64     `db:"balance" json:"balance"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Wallet transaction directions
const (
	TransactionCredit = "Credit"
	TransactionDebit  = "Debit"
)

// WalletTransaction is one append-only ledger row
type WalletTransaction struct {
	ID        int64     `db:"id" json:"id"`
	WalletID  int64     `db:"wallet_id" json:"wallet_id"`
	Amount    int64     `db:"amount" json:"amount"`
	Type      string    `db:"type" json:"type"`
	Reason    string    `db:"reason" json:"reason"`
	OrderID   *int64    `db:"order_id" json:"order_id,omitempty"`
	Reference string    `db:"reference" json:"reference"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ProcessedEvent for gateway webhook idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
