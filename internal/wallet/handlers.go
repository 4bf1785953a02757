package wallet

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/identity"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/logging"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/usdt"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/validation"
)

// Handler provides HTTP endpoints for wallet operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new wallet handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up authenticated wallet routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallet", h.GetWallet)
	r.POST("/wallet/deposits", h.RequestDeposit)
	r.GET("/wallet/deposits", h.ListMyDeposits)
	r.POST("/wallet/withdrawals", h.RequestWithdrawal)
	r.GET("/wallet/withdrawals", h.ListMyWithdrawals)
}

// RegisterAdminRoutes sets up admin-only wallet routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/wallets/:principal", h.GetWalletOf)
	r.GET("/deposits", h.ListDeposits)
	r.POST("/deposits/:id", h.ConfirmDeposit)
	r.GET("/withdrawals", h.ListWithdrawals)
	r.POST("/withdrawals/:id", h.ApproveWithdrawal)
}

// GetWallet handles GET /v1/wallet.
func (h *Handler) GetWallet(c *gin.Context) {
	w, err := h.service.Get(c.Request.Context(), identity.CallerPrincipal(c))
	if err != nil {
		writeError(c, err, "Failed to load wallet")
		return
	}
	c.JSON(http.StatusOK, walletView(w))
}

// GetWalletOf handles GET /v1/admin/wallets/:principal.
func (h *Handler) GetWalletOf(c *gin.Context) {
	w, err := h.service.Get(c.Request.Context(), identity.Normalize(c.Param("principal")))
	if err != nil {
		writeError(c, err, "Failed to load wallet")
		return
	}
	c.JSON(http.StatusOK, walletView(w))
}

// AmountRequest is the body for POST /v1/wallet/deposits.
type AmountRequest struct {
	Amount float64 `json:"amount" binding:"required"`
}

// RequestDeposit handles POST /v1/wallet/deposits.
func (h *Handler) RequestDeposit(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	if errs := validation.Validate(
		validation.PositiveAmount("amount", req.Amount),
	); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	d, err := h.service.RequestDeposit(c.Request.Context(), identity.CallerPrincipal(c), usdt.FromFloat(req.Amount))
	if err != nil {
		writeError(c, err, "Failed to request deposit")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"deposit": d})
}

// ListMyDeposits handles GET /v1/wallet/deposits.
func (h *Handler) ListMyDeposits(c *gin.Context) {
	list, err := h.service.ListDeposits(c.Request.Context(), identity.CallerPrincipal(c), RequestStatus(c.Query("status")))
	if err != nil {
		writeError(c, err, "Failed to list deposits")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposits": list, "count": len(list)})
}

// WithdrawalRequestBody is the body for POST /v1/wallet/withdrawals.
type WithdrawalRequestBody struct {
	Amount      float64 `json:"amount" binding:"required"`
	UpiID       string  `json:"upiId"`
	BankAccount string  `json:"bankAccount"`
	IFSC        string  `json:"ifsc"`
}

// RequestWithdrawal handles POST /v1/wallet/withdrawals.
func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var req WithdrawalRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	checks := []func() *validation.ValidationError{
		validation.PositiveAmount("amount", req.Amount),
	}
	if req.UpiID != "" {
		checks = append(checks, validation.ValidUpiID("upiId", req.UpiID))
	}
	if req.BankAccount != "" || req.IFSC != "" {
		checks = append(checks,
			validation.ValidBankAccount("bankAccount", req.BankAccount),
			validation.ValidIFSC("ifsc", req.IFSC),
		)
	}
	if errs := validation.Validate(checks...); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	w, err := h.service.RequestWithdrawal(c.Request.Context(), identity.CallerPrincipal(c),
		usdt.FromFloat(req.Amount), req.UpiID, req.BankAccount, req.IFSC)
	if err != nil {
		writeError(c, err, "Failed to request withdrawal")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"withdrawal": w})
}

// ListMyWithdrawals handles GET /v1/wallet/withdrawals.
func (h *Handler) ListMyWithdrawals(c *gin.Context) {
	list, err := h.service.ListWithdrawals(c.Request.Context(), identity.CallerPrincipal(c), RequestStatus(c.Query("status")))
	if err != nil {
		writeError(c, err, "Failed to list withdrawals")
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list, "count": len(list)})
}

// ListDeposits handles GET /v1/admin/deposits.
func (h *Handler) ListDeposits(c *gin.Context) {
	list, err := h.service.ListDeposits(c.Request.Context(), c.Query("principal"), RequestStatus(c.DefaultQuery("status", string(RequestPending))))
	if err != nil {
		writeError(c, err, "Failed to list deposits")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposits": list, "count": len(list)})
}

// DecisionRequest is the body for admin deposit/withdrawal decisions.
type DecisionRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

// ConfirmDeposit handles POST /v1/admin/deposits/:id.
func (h *Handler) ConfirmDeposit(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	d, err := h.service.ConfirmDeposit(c.Request.Context(), identity.CallerPrincipal(c), c.Param("id"), *req.Approve)
	if err != nil {
		writeError(c, err, "Failed to decide deposit")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposit": d})
}

// ListWithdrawals handles GET /v1/admin/withdrawals.
func (h *Handler) ListWithdrawals(c *gin.Context) {
	list, err := h.service.ListWithdrawals(c.Request.Context(), c.Query("principal"), RequestStatus(c.DefaultQuery("status", string(RequestPending))))
	if err != nil {
		writeError(c, err, "Failed to list withdrawals")
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list, "count": len(list)})
}

// ApproveWithdrawal handles POST /v1/admin/withdrawals/:id.
func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}
	w, err := h.service.ApproveWithdrawal(c.Request.Context(), identity.CallerPrincipal(c), c.Param("id"), *req.Approve)
	if err != nil {
		writeError(c, err, "Failed to decide withdrawal")
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawal": w})
}

// walletView exposes balances as JSON numbers alongside canonical strings.
func walletView(w *Wallet) gin.H {
	return gin.H{
		"principal": w.Principal,
		"balance":   usdt.ToFloat(w.Balance),
		"escrow":    usdt.ToFloat(w.Escrow),
		"frozen":    w.Frozen,
		"updatedAt": w.UpdatedAt,
	}
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": "Invalid request body",
	})
}

func validationFailed(c *gin.Context, errs validation.ValidationErrors) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "validation_error",
		"message": errs.Error(),
		"details": errs,
	})
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrWithdrawalLocked):
		c.JSON(http.StatusLocked, gin.H{
			"error":   "withdrawal_locked",
			"message": "Withdrawals are temporarily disabled platform-wide",
		})
	case errors.Is(err, ErrWalletFrozen):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "wallet_frozen",
			"message": "Wallet is frozen pending dispute resolution",
		})
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInsufficientEscrow):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "insufficient_balance",
			"message": "Insufficient funds",
		})
	case errors.Is(err, ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Amount must be a positive USDT value",
		})
	case errors.Is(err, ErrRequestNotFound), errors.Is(err, ErrWalletNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Not found",
		})
	case errors.Is(err, ErrAlreadyDecided):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": "Request already decided",
		})
	default:
		logging.L(c.Request.Context()).Error("wallet op failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": fallback,
		})
	}
}
