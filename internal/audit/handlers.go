package audit

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/logging"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/usdt"
)

// Handler provides HTTP endpoints for the audit trail.
type Handler struct {
	service *Service
	caller  func(c *gin.Context) string
}

// NewHandler creates a new audit handler. callerFn resolves the
// authenticated principal from the request.
func NewHandler(service *Service, callerFn func(c *gin.Context) string) *Handler {
	return &Handler{service: service, caller: callerFn}
}

// RegisterRoutes sets up authenticated audit routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/audit", h.LogAction)
	r.GET("/audit/me", h.ListMine)
}

// RegisterAdminRoutes sets up admin-only audit routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/audit", h.ListAll)
}

// LogActionRequest is the body for POST /v1/audit.
type LogActionRequest struct {
	Action    ActionType `json:"action" binding:"required"`
	Amount    float64    `json:"amount"`
	OrderID   string     `json:"orderId"`
	Details   string     `json:"details"`
	Timestamp int64      `json:"timestamp"` // nanoseconds; omitted means server time
}

// LogAction handles POST /v1/audit. Callers record events against
// themselves only; server-side operations record their own events
// directly through the service.
func (h *Handler) LogAction(c *gin.Context) {
	var req LogActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	amount := ""
	if req.Amount != 0 {
		amount = usdt.FromFloat(req.Amount)
	}

	err := h.service.RecordAt(c.Request.Context(), h.caller(c), req.Action, amount, req.OrderID, req.Details, req.Timestamp)
	if err != nil {
		if errors.Is(err, ErrInvalidAction) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "Unknown action type",
			})
			return
		}
		logging.L(c.Request.Context()).Error("audit record failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to record action",
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "recorded"})
}

// ListMine handles GET /v1/audit/me.
func (h *Handler) ListMine(c *gin.Context) {
	h.list(c, Filter{
		Principal: h.caller(c),
		Action:    ActionType(c.Query("action")),
		Limit:     queryLimit(c),
	})
}

// ListAll handles GET /v1/admin/audit.
func (h *Handler) ListAll(c *gin.Context) {
	h.list(c, Filter{
		Principal: c.Query("principal"),
		Action:    ActionType(c.Query("action")),
		Limit:     queryLimit(c),
	})
}

func (h *Handler) list(c *gin.Context, f Filter) {
	events, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		if errors.Is(err, ErrInvalidAction) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "Unknown action type",
			})
			return
		}
		logging.L(c.Request.Context()).Error("audit list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list audit events",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

func queryLimit(c *gin.Context) int {
	n, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	return n
}
