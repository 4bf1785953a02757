package orders

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/identity"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/logging"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/usdt"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/validation"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/wallet"
)

// Handler provides HTTP endpoints for order operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new order handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterPublicRoutes sets up the public order book.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/orders", h.ListOpen)
	r.GET("/orders/:id", h.GetOrder)
}

// RegisterRoutes sets up authenticated order routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/orders", h.CreateOrder)
	r.GET("/orders/mine", h.ListMine)
	r.POST("/orders/:id/confirm-payment", h.ConfirmInrPayment)
}

// RegisterAdminRoutes sets up admin-only order routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/orders", h.ListAll)
	r.POST("/orders/:id/verify", h.Verify)
	r.POST("/orders/:id/release", h.Release)
	r.POST("/orders/:id/refund", h.Refund)
	r.POST("/orders/:id/freeze", h.Freeze)
	r.POST("/orders/:id/unfreeze", h.Unfreeze)
}

// CreateOrderRequest is the body for POST /v1/orders.
type CreateOrderRequest struct {
	Amount      float64 `json:"amount" binding:"required"`
	UpiID       string  `json:"upiId" binding:"required"`
	BankAccount string  `json:"bankAccount"`
	IFSC        string  `json:"ifsc"`
}

// CreateOrder handles POST /v1/orders. The seller's USDT is escrowed
// immediately; the INR payment details tell the buyer where to pay.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if errs := validation.Validate(
		validation.PositiveAmount("amount", req.Amount),
		validation.ValidUpiID("upiId", req.UpiID),
		validation.ValidBankAccount("bankAccount", req.BankAccount),
		validation.ValidIFSC("ifsc", req.IFSC),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	o, err := h.service.Create(c.Request.Context(), identity.CallerPrincipal(c),
		usdt.FromFloat(req.Amount), req.UpiID, req.BankAccount, req.IFSC)
	if err != nil {
		writeError(c, err, "Failed to create order")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": orderView(o)})
}

// ListOpen handles GET /v1/orders: the public book of open orders.
func (h *Handler) ListOpen(c *gin.Context) {
	list, err := h.service.List(c.Request.Context(), Filter{OpenOnly: true})
	if err != nil {
		writeError(c, err, "Failed to list orders")
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orderViews(list), "count": len(list)})
}

// ListMine handles GET /v1/orders/mine: orders where the caller is the
// seller plus orders where the caller is the buyer.
func (h *Handler) ListMine(c *gin.Context) {
	principal := identity.CallerPrincipal(c)
	ctx := c.Request.Context()

	selling, err := h.service.List(ctx, Filter{Seller: principal})
	if err != nil {
		writeError(c, err, "Failed to list orders")
		return
	}
	buying, err := h.service.List(ctx, Filter{Buyer: principal})
	if err != nil {
		writeError(c, err, "Failed to list orders")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"selling": orderViews(selling),
		"buying":  orderViews(buying),
	})
}

// ListAll handles GET /v1/admin/orders.
func (h *Handler) ListAll(c *gin.Context) {
	list, err := h.service.List(c.Request.Context(), Filter{
		Seller: c.Query("seller"),
		Buyer:  c.Query("buyer"),
		Status: Status(c.Query("status")),
	})
	if err != nil {
		writeError(c, err, "Failed to list orders")
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orderViews(list), "count": len(list)})
}

// GetOrder handles GET /v1/orders/:id.
func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	o, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "Failed to load order")
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderView(o)})
}

// ConfirmInrPayment handles POST /v1/orders/:id/confirm-payment.
func (h *Handler) ConfirmInrPayment(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	o, err := h.service.ConfirmInrPayment(c.Request.Context(), identity.CallerPrincipal(c), id)
	if err != nil {
		writeError(c, err, "Failed to confirm payment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderView(o)})
}

// Verify handles POST /v1/admin/orders/:id/verify.
func (h *Handler) Verify(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	o, err := h.service.Verify(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "Failed to verify order")
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderView(o)})
}

// ReleaseRequest is the optional body for POST /v1/admin/orders/:id/release.
type ReleaseRequest struct {
	Buyer string `json:"buyer"`
}

// Release handles POST /v1/admin/orders/:id/release.
func (h *Handler) Release(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req ReleaseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c)
			return
		}
	}
	o, err := h.service.Release(c.Request.Context(), id, identity.Normalize(req.Buyer))
	if err != nil {
		writeError(c, err, "Failed to release order")
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderView(o)})
}

// Freeze handles POST /v1/admin/orders/:id/freeze.
func (h *Handler) Freeze(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	o, err := h.service.Freeze(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "Failed to freeze order")
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderView(o)})
}

// Unfreeze handles POST /v1/admin/orders/:id/unfreeze.
func (h *Handler) Unfreeze(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	o, err := h.service.Unfreeze(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "Failed to unfreeze order")
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderView(o)})
}

// Refund handles POST /v1/admin/orders/:id/refund.
func (h *Handler) Refund(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	o, err := h.service.Refund(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "Failed to refund order")
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderView(o)})
}

func orderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Order ID must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

// orderView renders an order with amounts as JSON numbers and the INR
// total derived from the creation-time rate.
func orderView(o *SellOrder) gin.H {
	amount := usdt.ToFloat(o.Amount)
	return gin.H{
		"id":          o.ID,
		"seller":      o.Seller,
		"buyer":       o.Buyer,
		"amount":      amount,
		"rate":        o.Rate,
		"inrAmount":   amount * o.Rate,
		"upiId":       o.UpiID,
		"bankAccount": o.BankAccount,
		"ifsc":        o.IFSC,
		"status":      o.Status,
		"frozen":      o.Frozen,
		"createdAt":   o.CreatedAt,
		"updatedAt":   o.UpdatedAt,
	}
}

func orderViews(list []*SellOrder) []gin.H {
	out := make([]gin.H, 0, len(list))
	for _, o := range list {
		out = append(out, orderView(o))
	}
	return out
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": "Invalid request body",
	})
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Order not found",
		})
	case errors.Is(err, ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": "Order is not in a state that permits this transition",
		})
	case errors.Is(err, ErrOrderFrozen):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "order_frozen",
			"message": "Order is frozen pending dispute resolution",
		})
	case errors.Is(err, ErrSelfTrade):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Cannot buy your own order",
		})
	case errors.Is(err, ErrNoBuyer):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": "No buyer recorded; supply one to release manually",
		})
	case errors.Is(err, ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Amount must be a positive USDT value",
		})
	case errors.Is(err, wallet.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "insufficient_balance",
			"message": "Insufficient available balance to escrow",
		})
	case errors.Is(err, wallet.ErrWalletFrozen):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "wallet_frozen",
			"message": "Wallet is frozen pending dispute resolution",
		})
	case errors.Is(err, wallet.ErrInsufficientEscrow):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": "Escrow does not cover this order",
		})
	default:
		logging.L(c.Request.Context()).Error("order op failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": fallback,
		})
	}
}
