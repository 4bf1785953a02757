// Package validation provides input validation for the trading platform API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

var (
	// principalRegex validates opaque principal handles
	principalRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,62}$`)
	// ifscRegex validates Indian bank IFSC codes (exactly 11 alphanumerics)
	ifscRegex = regexp.MustCompile(`^[A-Z0-9]{11}$`)
	// bankAccountRegex validates bank account numbers (9-18 digits)
	bankAccountRegex = regexp.MustCompile(`^[0-9]{9,18}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidPrincipal checks if a string is a well-formed principal handle.
func IsValidPrincipal(p string) bool {
	return principalRegex.MatchString(p)
}

// SanitizePrincipal normalizes a principal handle.
func SanitizePrincipal(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidPrincipal checks if a field is a well-formed principal handle
func ValidPrincipal(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidPrincipal(SanitizePrincipal(value)) {
			return &ValidationError{Field: field, Message: "must be a valid principal handle"}
		}
		return nil
	}
}

// PositiveAmount checks that a numeric amount is greater than zero
func PositiveAmount(field string, value float64) func() *ValidationError {
	return func() *ValidationError {
		if value <= 0 {
			return &ValidationError{Field: field, Message: "must be greater than zero"}
		}
		return nil
	}
}

// ValidUpiID checks UPI ID shape: non-empty and containing "@"
func ValidUpiID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		v := strings.TrimSpace(value)
		if v == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		if !strings.Contains(v, "@") {
			return &ValidationError{Field: field, Message: "must contain \"@\" (e.g. name@upi)"}
		}
		return nil
	}
}

// ValidBankAccount checks bank account numbers (9-18 digits)
func ValidBankAccount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		v := strings.TrimSpace(value)
		if v == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		if !bankAccountRegex.MatchString(v) {
			return &ValidationError{Field: field, Message: "must be 9-18 digits"}
		}
		return nil
	}
}

// ValidIFSC checks IFSC codes (exactly 11 alphanumeric characters)
func ValidIFSC(field, value string) func() *ValidationError {
	return func() *ValidationError {
		v := strings.ToUpper(strings.TrimSpace(value))
		if v == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		if !ifscRegex.MatchString(v) {
			return &ValidationError{Field: field, Message: "must be exactly 11 alphanumeric characters"}
		}
		return nil
	}
}

// PrincipalParamMiddleware validates the :principal URL parameter on routes
// that use it. Rejects malformed principals before handlers run.
func PrincipalParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := c.Param("principal")
		if p != "" && !IsValidPrincipal(SanitizePrincipal(p)) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_principal",
				"message": "principal must be a valid identity handle",
			})
			return
		}
		c.Next()
	}
}
