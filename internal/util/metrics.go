package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders created at checkout",
	}, []string{"payment_method"})

	OrdersPaidTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders successfully settled",
	}, []string{"payment_method"})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failed_total",
		Help: "Total number of rejected checkouts",
	}, []string{"reason"})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of whole-order cancellations",
	})

	OrderItemsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_items_cancelled_total",
		Help: "Total number of cancelled order items",
	})

	CouponApplicationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupon_applications_total",
		Help: "Total number of coupon validation attempts",
	}, []string{"result"})

	GatewayCallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_callbacks_total",
		Help: "Total number of payment gateway callbacks and webhooks",
	}, []string{"result"})

	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_latency_seconds",
		Help:    "Latency of payment settlement operations",
		Buckets: prometheus.DefBuckets,
	})

	WalletCreditsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_credits_total",
		Help: "Total number of wallet credit transactions",
	})

	WalletDebitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_debits_total",
		Help: "Total number of wallet debit transactions",
	})

	RefundsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refunds_issued_total",
		Help: "Total number of wallet refunds issued",
	})

	ReturnsRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "returns_requested_total",
		Help: "Total number of return requests created",
	})

	ReturnsApprovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "returns_approved_total",
		Help: "Total number of approved return requests",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
