package platform

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/identity"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/logging"
)

// Handler provides HTTP endpoints for platform controls.
type Handler struct {
	service *Service
}

// NewHandler creates a new platform handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterPublicRoutes sets up public platform routes.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/rate", h.GetRate)
	r.GET("/withdrawal-lock", h.GetLock)
}

// RegisterAdminRoutes sets up admin-only platform routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/withdrawal-lock", h.SetLock)
	r.GET("/withdrawal-lock/history", h.LockHistory)
	r.POST("/rate", h.SetRate)
	r.GET("/profit", h.ProfitDashboard)
	r.GET("/profit/export", h.ExportCSV)
}

// GetRate handles GET /v1/rate: the rate new orders will be created at.
func (h *Handler) GetRate(c *gin.Context) {
	rate, err := h.service.Rate(c.Request.Context())
	if err != nil {
		internalError(c, err, "Failed to load rate")
		return
	}
	c.JSON(http.StatusOK, gin.H{"rate": rate})
}

// GetLock handles GET /v1/withdrawal-lock.
func (h *Handler) GetLock(c *gin.Context) {
	locked, err := h.service.WithdrawalsLocked(c.Request.Context())
	if err != nil {
		internalError(c, err, "Failed to load lock state")
		return
	}
	c.JSON(http.StatusOK, gin.H{"locked": locked})
}

// SetLockRequest is the body for POST /v1/admin/withdrawal-lock.
type SetLockRequest struct {
	Locked *bool  `json:"locked" binding:"required"`
	Reason string `json:"reason"`
}

// SetLock handles POST /v1/admin/withdrawal-lock.
func (h *Handler) SetLock(c *gin.Context) {
	var req SetLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	l, err := h.service.SetWithdrawalLock(c.Request.Context(), identity.CallerPrincipal(c), *req.Locked, req.Reason)
	if err != nil {
		internalError(c, err, "Failed to set lock")
		return
	}
	c.JSON(http.StatusOK, gin.H{"lock": l})
}

// LockHistory handles GET /v1/admin/withdrawal-lock/history.
func (h *Handler) LockHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	history, err := h.service.LockHistory(c.Request.Context(), limit)
	if err != nil {
		internalError(c, err, "Failed to load lock history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history, "count": len(history)})
}

// SetRateRequest is the body for POST /v1/admin/rate.
type SetRateRequest struct {
	Rate float64 `json:"rate" binding:"required"`
}

// SetRate handles POST /v1/admin/rate.
func (h *Handler) SetRate(c *gin.Context) {
	var req SetRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if err := h.service.SetRate(c.Request.Context(), identity.CallerPrincipal(c), req.Rate); err != nil {
		if errors.Is(err, ErrInvalidRate) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "Rate must be greater than zero",
			})
			return
		}
		internalError(c, err, "Failed to set rate")
		return
	}
	c.JSON(http.StatusOK, gin.H{"rate": req.Rate})
}

// ProfitDashboard handles GET /v1/admin/profit.
func (h *Handler) ProfitDashboard(c *gin.Context) {
	report, err := h.service.ProfitDashboard(c.Request.Context())
	if err != nil {
		internalError(c, err, "Failed to build profit report")
		return
	}
	c.JSON(http.StatusOK, report)
}

// ExportCSV handles GET /v1/admin/profit/export.
func (h *Handler) ExportCSV(c *gin.Context) {
	filename := "released-orders-" + time.Now().UTC().Format("20060102") + ".csv"
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := h.service.ExportOrdersCSV(c.Request.Context(), c.Writer); err != nil {
		logging.L(c.Request.Context()).Error("csv export failed", "error", err)
	}
}

func internalError(c *gin.Context, err error, fallback string) {
	logging.L(c.Request.Context()).Error("platform op failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": fallback,
	})
}
