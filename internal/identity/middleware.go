package identity

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/logging"
)

type contextKey string

const (
	accountKey   contextKey = "identity.account"
	principalKey contextKey = "identity.principal"
)

// Middleware resolves the request's API key (Authorization or X-API-Key
// header) to an account and stores it in the request context. Requests
// without a key pass through as anonymous; gate enforcement happens in
// RequireAuth / RequireRole.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw == "" {
			raw = c.GetHeader("X-API-Key")
		}
		if raw == "" {
			c.Next()
			return
		}

		acct, err := s.ValidateKey(c.Request.Context(), raw)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid API key",
			})
			c.Abort()
			return
		}

		ctx := context.WithValue(c.Request.Context(), accountKey, acct)
		ctx = context.WithValue(ctx, principalKey, acct.Principal)
		ctx = logging.WithPrincipal(ctx, acct.Principal)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAuth aborts with 401 when no account was resolved.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerAccount(c) == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authentication required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole aborts with 403 when the caller's effective role is below
// the required tier. Implies RequireAuth.
func RequireRole(required Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		acct := CallerAccount(c)
		if acct == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authentication required",
			})
			c.Abort()
			return
		}
		if !EffectiveRole(acct).AtLeast(required) {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "unauthorized",
				"message": "Insufficient role",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CallerAccount returns the resolved account for the request, or nil.
func CallerAccount(c *gin.Context) *Account {
	acct, _ := c.Request.Context().Value(accountKey).(*Account)
	return acct
}

// CallerPrincipal returns the resolved principal for the request, or "".
func CallerPrincipal(c *gin.Context) string {
	p, _ := c.Request.Context().Value(principalKey).(string)
	return p
}

// WithAccount stores an account on a plain context. Used by tests and by
// internal call sites that bypass HTTP.
func WithAccount(ctx context.Context, acct *Account) context.Context {
	ctx = context.WithValue(ctx, accountKey, acct)
	return context.WithValue(ctx, principalKey, acct.Principal)
}
