package disputes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/identity"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/logging"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/orders"
)

// Handler provides HTTP endpoints for dispute operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new dispute handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up authenticated dispute routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/disputes", h.Raise)
	r.GET("/orders/:id/disputes", h.ListForOrder)
}

// RegisterAdminRoutes sets up admin-only dispute routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/disputes", h.ListOpen)
	r.GET("/disputes/:id", h.Get)
	r.POST("/disputes/:id/resolve", h.Resolve)
	r.POST("/wallets/:principal/freeze", h.FreezeWallet)
	r.POST("/wallets/:principal/unfreeze", h.UnfreezeWallet)
}

// RaiseRequest is the body for POST /v1/disputes.
type RaiseRequest struct {
	OrderID int64       `json:"orderId" binding:"required"`
	Type    DisputeType `json:"type" binding:"required"`
	Reason  string      `json:"reason"`
}

// Raise handles POST /v1/disputes.
func (h *Handler) Raise(c *gin.Context) {
	var req RaiseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	d, err := h.service.Raise(c.Request.Context(), identity.CallerPrincipal(c), req.OrderID, req.Type, req.Reason)
	if err != nil {
		writeError(c, err, "Failed to raise dispute")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"dispute": d})
}

// ListForOrder handles GET /v1/orders/:id/disputes.
func (h *Handler) ListForOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Order ID must be a positive integer",
		})
		return
	}
	list, err := h.service.ListForOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "Failed to list disputes")
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputes": list, "count": len(list)})
}

// ListOpen handles GET /v1/admin/disputes.
func (h *Handler) ListOpen(c *gin.Context) {
	list, err := h.service.ListOpen(c.Request.Context())
	if err != nil {
		writeError(c, err, "Failed to list disputes")
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputes": list, "count": len(list)})
}

// Get handles GET /v1/admin/disputes/:id.
func (h *Handler) Get(c *gin.Context) {
	d, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "Failed to load dispute")
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// ResolveRequest is the body for POST /v1/admin/disputes/:id/resolve.
type ResolveRequest struct {
	Resolution string `json:"resolution" binding:"required"`
	Unfreeze   bool   `json:"unfreeze"`
}

// Resolve handles POST /v1/admin/disputes/:id/resolve.
func (h *Handler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	d, err := h.service.Resolve(c.Request.Context(), identity.CallerPrincipal(c), c.Param("id"), req.Resolution, req.Unfreeze)
	if err != nil {
		writeError(c, err, "Failed to resolve dispute")
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute": d})
}

// FreezeWallet handles POST /v1/admin/wallets/:principal/freeze.
func (h *Handler) FreezeWallet(c *gin.Context) {
	principal := identity.Normalize(c.Param("principal"))
	if err := h.service.FreezeWallet(c.Request.Context(), principal); err != nil {
		writeError(c, err, "Failed to freeze wallet")
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": principal, "frozen": true})
}

// UnfreezeWallet handles POST /v1/admin/wallets/:principal/unfreeze.
func (h *Handler) UnfreezeWallet(c *gin.Context) {
	principal := identity.Normalize(c.Param("principal"))
	if err := h.service.UnfreezeWallet(c.Request.Context(), principal); err != nil {
		writeError(c, err, "Failed to unfreeze wallet")
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": principal, "frozen": false})
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrDisputeNotFound), errors.Is(err, orders.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Not found",
		})
	case errors.Is(err, ErrNotParty):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": "Only a party to the order can raise this dispute",
		})
	case errors.Is(err, ErrAlreadyDisputed), errors.Is(err, ErrAlreadyResolved), errors.Is(err, ErrOrderTerminal):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": err.Error(),
		})
	case errors.Is(err, ErrInvalidType):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Dispute type must be buyerDispute or sellerDispute",
		})
	default:
		logging.L(c.Request.Context()).Error("dispute op failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": fallback,
		})
	}
}
