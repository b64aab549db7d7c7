package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"babymuse/internal/models"
	"babymuse/internal/service"
	"babymuse/internal/store"
	"babymuse/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	checkout      *service.CheckoutService
	coupons       *service.CouponService
	settlement    *service.SettlementService
	cancellations *service.CancellationService
	fulfillment   *service.FulfillmentService
	wallet        *service.WalletService
	store         *store.Store
}

// NewHandler creates a new HTTP handler
func NewHandler(
	checkout *service.CheckoutService,
	coupons *service.CouponService,
	settlement *service.SettlementService,
	cancellations *service.CancellationService,
	fulfillment *service.FulfillmentService,
	wallet *service.WalletService,
	st *store.Store,
) *Handler {
	return &Handler{
		checkout:      checkout,
		coupons:       coupons,
		settlement:    settlement,
		cancellations: cancellations,
		fulfillment:   fulfillment,
		wallet:        wallet,
		store:         st,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/checkout", h.postCheckout)
		v1.POST("/coupons/apply", h.applyCoupon)

		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/return", h.returnOrder)
		v1.POST("/order-items/:id/cancel", h.cancelOrderItem)
		v1.POST("/order-items/:id/return", h.returnOrderItem)
		v1.POST("/order-items/:id/status", h.updateItemStatus)
		v1.POST("/returns/:id/approve", h.approveReturn)

		v1.POST("/payments/razorpay/callback", h.paymentCallback)
		v1.POST("/payments/razorpay/webhook", h.paymentWebhook)

		v1.GET("/wallet", h.getWallet)
		v1.GET("/wallet/transactions", h.listWalletTransactions)
		v1.POST("/wallet/topup", h.walletTopUp)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// postCheckout handles checkout submissions
func (h *Handler) postCheckout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.checkout.Checkout(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

type applyCouponRequest struct {
	UserID    int64  `json:"user_id" binding:"required"`
	Code      string `json:"code" binding:"required"`
	CartTotal int64  `json:"cart_total" binding:"required"`
}

// applyCoupon previews the discount a coupon would grant on a cart total
func (h *Handler) applyCoupon(c *gin.Context) {
	var req applyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	application, err := h.coupons.Validate(c.Request.Context(), req.Code, req.UserID, req.CartTotal)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, application)
}

// listOrders lists a user's orders, newest first
func (h *Handler) listOrders(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	orders, err := h.store.GetOrdersByUserID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder returns one order with its items
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	order, err := h.store.GetOrderForUser(c.Request.Context(), orderID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := h.store.GetOrderItems(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

type reasonRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Reason string `json:"reason"`
}

// cancelOrder cancels every line of an order
func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.cancellations.CancelOrder(c.Request.Context(), orderID, req.UserID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// cancelOrderItem cancels a single order line
func (h *Handler) cancelOrderItem(c *gin.Context) {
	itemID, ok := pathID(c)
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	item, err := h.cancellations.CancelItem(c.Request.Context(), itemID, req.UserID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item})
}

// returnOrder files a whole-order return request
func (h *Handler) returnOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	request, err := h.cancellations.RequestReturn(c.Request.Context(), orderID, req.UserID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"return_request": request})
}

// returnOrderItem files a single-item return request
func (h *Handler) returnOrderItem(c *gin.Context) {
	itemID, ok := pathID(c)
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	request, err := h.cancellations.RequestItemReturn(c.Request.Context(), itemID, req.UserID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"return_request": request})
}

type itemStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// updateItemStatus is the staff fulfilment action moving an item forward
// (Processing, Shipped, Delivered, Completed)
func (h *Handler) updateItemStatus(c *gin.Context) {
	itemID, ok := pathID(c)
	if !ok {
		return
	}
	var req itemStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	item, err := h.fulfillment.AdvanceItem(c.Request.Context(), itemID, models.Status(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item})
}

// approveReturn is the staff action that restocks and refunds a return
func (h *Handler) approveReturn(c *gin.Context) {
	returnID, ok := pathID(c)
	if !ok {
		return
	}

	request, err := h.cancellations.ApproveReturn(c.Request.Context(), returnID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"return_request": request})
}

// paymentCallback handles the browser-redirect payment confirmation
func (h *Handler) paymentCallback(c *gin.Context) {
	var req service.CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.settlement.HandleCallback(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// paymentWebhook handles asynchronous gateway events. The signature covers
// the raw body, so the body is read before any parsing.
func (h *Handler) paymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	eventID := c.GetHeader("X-Razorpay-Event-Id")
	signature := c.GetHeader("X-Razorpay-Signature")

	if err := h.settlement.HandleWebhook(c.Request.Context(), eventID, body, signature); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getWallet returns the user's wallet balance
func (h *Handler) getWallet(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	wallet, err := h.wallet.GetWallet(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// listWalletTransactions returns the user's ledger, newest first
func (h *Handler) listWalletTransactions(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	txs, err := h.wallet.ListTransactions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

type topUpRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
	Amount int64 `json:"amount" binding:"required"`
}

// walletTopUp credits a manual deposit
func (h *Handler) walletTopUp(c *gin.Context) {
	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	wallet, err := h.wallet.TopUp(c.Request.Context(), req.UserID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return id, true
}

func queryUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid user_id"})
		return 0, false
	}
	return userID, true
}

// respondError maps service and store errors to HTTP status codes
func respondError(c *gin.Context, err error) {
	if ce, ok := service.AsCouponError(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Coupon rejected",
			"reason": string(ce.Reason),
		})
		return
	}

	var status int
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, store.ErrAlreadyApproved),
		errors.Is(err, store.ErrOrderCancelled),
		errors.Is(err, service.ErrNotCancellable),
		errors.Is(err, service.ErrNotReturnable),
		errors.Is(err, service.ErrIllegalTransition):
		status = http.StatusConflict
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrStockUnavailable),
		errors.Is(err, service.ErrInvalidPayment),
		errors.Is(err, service.ErrInvalidSignature),
		errors.Is(err, service.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrGatewayUnavailable):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
