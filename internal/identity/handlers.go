package identity

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/logging"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/validation"
)

// Handler provides HTTP endpoints for identity operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new identity handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up authenticated identity routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/profile", h.GetProfile)
	r.GET("/role", h.GetRole)
	r.GET("/role/admin", h.CheckAdmin)
	r.GET("/kyc", h.GetKycStatus)
	r.POST("/approvals/request", h.RequestApproval)
	r.GET("/approvals/me", h.GetMyApproval)
}

// RegisterPublicRoutes sets up unauthenticated identity routes.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.POST("/profile", h.SaveProfile)
}

// RegisterAdminRoutes sets up admin-only identity routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/approvals", h.ListApprovals)
	r.POST("/approvals/:principal", h.SetApproval)
	r.POST("/roles/:principal", h.AssignRole)
	r.POST("/kyc/:principal", h.SetKycVerified)
}

// SaveProfileRequest is the body for POST /v1/profile.
type SaveProfileRequest struct {
	Principal string `json:"principal" binding:"required"`
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email"`
}

// SaveProfile handles POST /v1/profile.
// For an existing principal the caller must be authenticated as that
// principal; for a new one the response carries the API key exactly once.
func (h *Handler) SaveProfile(c *gin.Context) {
	var req SaveProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidPrincipal("principal", req.Principal),
		validation.Required("username", req.Username),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	principal := Normalize(req.Principal)

	// Updating an existing profile requires being that principal
	if _, err := h.service.GetProfile(c.Request.Context(), principal); err == nil {
		if CallerPrincipal(c) != principal {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "unauthorized",
				"message": "Cannot modify another principal's profile",
			})
			return
		}
	}

	rawKey, acct, err := h.service.SaveProfile(c.Request.Context(), principal, req.Username, req.Email)
	if err != nil {
		logging.L(c.Request.Context()).Error("save profile failed", "principal", principal, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to save profile",
		})
		return
	}

	resp := gin.H{"profile": acct}
	status := http.StatusOK
	if rawKey != "" {
		resp["api_key"] = rawKey
		resp["warning"] = "Store this key securely. It will not be shown again."
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

// GetProfile handles GET /v1/profile.
func (h *Handler) GetProfile(c *gin.Context) {
	acct := CallerAccount(c)
	c.JSON(http.StatusOK, gin.H{"profile": acct})
}

// GetRole handles GET /v1/role.
func (h *Handler) GetRole(c *gin.Context) {
	acct := CallerAccount(c)
	c.JSON(http.StatusOK, gin.H{
		"principal": acct.Principal,
		"role":      EffectiveRole(acct),
	})
}

// CheckAdmin handles GET /v1/role/admin.
func (h *Handler) CheckAdmin(c *gin.Context) {
	acct := CallerAccount(c)
	c.JSON(http.StatusOK, gin.H{
		"principal": acct.Principal,
		"admin":     EffectiveRole(acct) == RoleAdmin,
	})
}

// GetKycStatus handles GET /v1/kyc.
func (h *Handler) GetKycStatus(c *gin.Context) {
	acct := CallerAccount(c)
	c.JSON(http.StatusOK, gin.H{
		"principal":   acct.Principal,
		"kycVerified": acct.KycVerified,
		"kycLevel":    acct.KycLevel,
	})
}

// RequestApproval handles POST /v1/approvals/request.
func (h *Handler) RequestApproval(c *gin.Context) {
	principal := CallerPrincipal(c)
	if err := h.service.RequestApproval(c.Request.Context(), principal); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Save a profile before requesting approval",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to request approval",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "requested"})
}

// GetMyApproval handles GET /v1/approvals/me.
func (h *Handler) GetMyApproval(c *gin.Context) {
	acct := CallerAccount(c)
	c.JSON(http.StatusOK, gin.H{
		"principal": acct.Principal,
		"status":    acct.Approval,
	})
}

// ListApprovals handles GET /v1/admin/approvals.
func (h *Handler) ListApprovals(c *gin.Context) {
	infos, err := h.service.ListApprovals(c.Request.Context(), CallerPrincipal(c))
	if err != nil {
		writeAdminError(c, err, "Failed to list approvals")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"approvals": infos,
		"count":     len(infos),
	})
}

// SetApprovalRequest is the body for POST /v1/admin/approvals/:principal.
type SetApprovalRequest struct {
	Status ApprovalStatus `json:"status" binding:"required"`
}

// SetApproval handles POST /v1/admin/approvals/:principal.
func (h *Handler) SetApproval(c *gin.Context) {
	var req SetApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	target := c.Param("principal")
	err := h.service.SetApproval(c.Request.Context(), CallerPrincipal(c), target, req.Status)
	if err != nil {
		writeAdminError(c, err, "Failed to set approval")
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": Normalize(target), "status": req.Status})
}

// AssignRoleRequest is the body for POST /v1/admin/roles/:principal.
type AssignRoleRequest struct {
	Role Role `json:"role" binding:"required"`
}

// AssignRole handles POST /v1/admin/roles/:principal.
func (h *Handler) AssignRole(c *gin.Context) {
	var req AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	target := c.Param("principal")
	err := h.service.AssignRole(c.Request.Context(), CallerPrincipal(c), target, req.Role)
	if err != nil {
		writeAdminError(c, err, "Failed to assign role")
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": Normalize(target), "role": req.Role})
}

// SetKycRequest is the body for POST /v1/admin/kyc/:principal.
type SetKycRequest struct {
	Verified *bool `json:"verified" binding:"required"`
}

// SetKycVerified handles POST /v1/admin/kyc/:principal.
func (h *Handler) SetKycVerified(c *gin.Context) {
	var req SetKycRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	target := c.Param("principal")
	err := h.service.SetKycVerified(c.Request.Context(), CallerPrincipal(c), target, *req.Verified)
	if err != nil {
		writeAdminError(c, err, "Failed to update KYC status")
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": Normalize(target), "kycVerified": *req.Verified})
}

func writeAdminError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": "Admin role required",
		})
	case errors.Is(err, ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Account not found",
		})
	default:
		logging.L(c.Request.Context()).Error("identity admin op failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": fallback,
		})
	}
}
