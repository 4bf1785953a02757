// Package identity resolves authenticated callers to principals, roles,
// and approval status.
//
// Authentication model:
//   - Saving a profile for a new principal issues an API key (shown once)
//   - Every authenticated call presents the key; middleware resolves it to
//     an account
//   - Roles form a strict hierarchy: admin(3) > user(1) > guest(0); an
//     operation requiring role R is permitted iff the caller's level >= R's
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/idgen"
)

// Errors
var (
	ErrNoAPIKey        = errors.New("identity: API key required")
	ErrInvalidAPIKey   = errors.New("identity: invalid API key")
	ErrAccountNotFound = errors.New("identity: account not found")
	ErrUnauthorized    = errors.New("identity: not authorized")
	ErrAccountExists   = errors.New("identity: account already exists")
)

// Role is a caller's privilege tier.
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Level returns the numeric rank used for hierarchy checks.
func (r Role) Level() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether the role satisfies the required tier.
func (r Role) AtLeast(required Role) bool {
	return r.Level() >= required.Level()
}

// ApprovalStatus is the lifecycle of a platform access request.
type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = ""
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Account is a registered principal.
type Account struct {
	Principal   string         `json:"principal"`
	Username    string         `json:"username"`
	Email       string         `json:"email"`
	Role        Role           `json:"role"`
	Approval    ApprovalStatus `json:"approval"`
	KycVerified bool           `json:"kycVerified"`
	KycLevel    int            `json:"kycLevel"` // Level 0 tier: everyone verified by default
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// APIKey is a stored credential for a principal.
type APIKey struct {
	ID        string    `json:"id"`
	Hash      string    `json:"-"` // SHA256 hash of the raw key
	Principal string    `json:"principal"`
	CreatedAt time.Time `json:"createdAt"`
	Revoked   bool      `json:"revoked"`
}

// ApprovalInfo is the admin-facing view of one principal's approval record.
type ApprovalInfo struct {
	Principal string         `json:"principal"`
	Status    ApprovalStatus `json:"status"`
	Role      Role           `json:"role"`
	Username  string         `json:"username"`
}

// Store persists accounts and API keys.
type Store interface {
	CreateAccount(ctx context.Context, acct *Account) error
	GetAccount(ctx context.Context, principal string) (*Account, error)
	UpdateAccount(ctx context.Context, acct *Account) error
	ListAccounts(ctx context.Context) ([]*Account, error)
	CreateKey(ctx context.Context, key *APIKey) error
	GetKeyByHash(ctx context.Context, hash string) (*APIKey, error)
}

// Service implements identity and role resolution.
type Service struct {
	store Store
}

// NewService creates a new identity service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// EnsureAdmin creates or promotes the bootstrap admin account. Called once
// at startup with the configured admin principal. On first creation a raw
// API key is returned so the operator can authenticate; it is never
// returned again.
func (s *Service) EnsureAdmin(ctx context.Context, principal string) (string, error) {
	principal = Normalize(principal)
	acct, err := s.store.GetAccount(ctx, principal)
	if errors.Is(err, ErrAccountNotFound) {
		now := time.Now()
		acct = &Account{
			Principal: principal,
			Username:  principal,
			Role:      RoleAdmin,
			Approval:  ApprovalApproved,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.CreateAccount(ctx, acct); err != nil {
			return "", err
		}
		rawKey := "pk_" + idgen.Hex(32)
		key := &APIKey{
			ID:        idgen.WithPrefix("ak_"),
			Hash:      hashKey(rawKey),
			Principal: principal,
			CreatedAt: now,
		}
		if err := s.store.CreateKey(ctx, key); err != nil {
			return "", err
		}
		return rawKey, nil
	}
	if err != nil {
		return "", err
	}
	if acct.Role != RoleAdmin || acct.Approval != ApprovalApproved {
		acct.Role = RoleAdmin
		acct.Approval = ApprovalApproved
		acct.UpdatedAt = time.Now()
		return "", s.store.UpdateAccount(ctx, acct)
	}
	return "", nil
}

// SaveProfile creates or updates a profile. On first save a raw API key is
// returned (shown once); later saves return an empty key.
func (s *Service) SaveProfile(ctx context.Context, principal, username, email string) (rawKey string, acct *Account, err error) {
	principal = Normalize(principal)

	acct, err = s.store.GetAccount(ctx, principal)
	if err == nil {
		// Existing account: user-initiated profile edit
		acct.Username = username
		acct.Email = email
		acct.UpdatedAt = time.Now()
		return "", acct, s.store.UpdateAccount(ctx, acct)
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return "", nil, err
	}

	now := time.Now()
	acct = &Account{
		Principal: principal,
		Username:  username,
		Email:     email,
		Role:      RoleUser,
		Approval:  ApprovalNone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateAccount(ctx, acct); err != nil {
		return "", nil, err
	}

	rawKey = "pk_" + idgen.Hex(32)
	key := &APIKey{
		ID:        idgen.WithPrefix("ak_"),
		Hash:      hashKey(rawKey),
		Principal: principal,
		CreatedAt: now,
	}
	if err := s.store.CreateKey(ctx, key); err != nil {
		return "", nil, err
	}

	return rawKey, acct, nil
}

// GetProfile returns the account for a principal.
func (s *Service) GetProfile(ctx context.Context, principal string) (*Account, error) {
	return s.store.GetAccount(ctx, Normalize(principal))
}

// ValidateKey resolves a raw API key to its account.
func (s *Service) ValidateKey(ctx context.Context, rawKey string) (*Account, error) {
	if rawKey == "" {
		return nil, ErrNoAPIKey
	}

	rawKey = strings.TrimPrefix(rawKey, "Bearer ")
	rawKey = strings.TrimSpace(rawKey)
	if !strings.HasPrefix(rawKey, "pk_") {
		return nil, ErrInvalidAPIKey
	}

	key, err := s.store.GetKeyByHash(ctx, hashKey(rawKey))
	if err != nil || key.Revoked {
		return nil, ErrInvalidAPIKey
	}

	acct, err := s.store.GetAccount(ctx, key.Principal)
	if err != nil {
		return nil, ErrInvalidAPIKey
	}
	return acct, nil
}

// RoleOf returns the effective role for a principal: guest until a profile
// exists and is approved, the assigned role afterwards. Admins bypass the
// approval gate entirely.
func (s *Service) RoleOf(ctx context.Context, principal string) (Role, error) {
	acct, err := s.store.GetAccount(ctx, Normalize(principal))
	if errors.Is(err, ErrAccountNotFound) {
		return RoleGuest, nil
	}
	if err != nil {
		return RoleGuest, err
	}
	return EffectiveRole(acct), nil
}

// EffectiveRole derives the gate-checked role from an account's assigned
// role and approval status.
func EffectiveRole(acct *Account) Role {
	if acct.Role == RoleAdmin {
		return RoleAdmin
	}
	if acct.Approval == ApprovalApproved {
		return acct.Role
	}
	return RoleGuest
}

// IsApproved reports whether a principal has platform access.
func (s *Service) IsApproved(ctx context.Context, principal string) (bool, error) {
	acct, err := s.store.GetAccount(ctx, Normalize(principal))
	if errors.Is(err, ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acct.Approval == ApprovalApproved || acct.Role == RoleAdmin, nil
}

// RequestApproval creates a pending approval record. Idempotent: repeat
// calls are no-ops while pending or once approved. A rejected principal may
// re-request, which moves the record back to pending.
func (s *Service) RequestApproval(ctx context.Context, principal string) error {
	acct, err := s.store.GetAccount(ctx, Normalize(principal))
	if err != nil {
		return err
	}
	switch acct.Approval {
	case ApprovalPending, ApprovalApproved:
		return nil
	}
	acct.Approval = ApprovalPending
	acct.UpdatedAt = time.Now()
	return s.store.UpdateAccount(ctx, acct)
}

// SetApproval sets a principal's approval status. Caller must be admin.
func (s *Service) SetApproval(ctx context.Context, caller, target string, status ApprovalStatus) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if status != ApprovalPending && status != ApprovalApproved && status != ApprovalRejected {
		return errors.New("identity: invalid approval status")
	}
	acct, err := s.store.GetAccount(ctx, Normalize(target))
	if err != nil {
		return err
	}
	acct.Approval = status
	acct.UpdatedAt = time.Now()
	return s.store.UpdateAccount(ctx, acct)
}

// AssignRole sets a principal's role. Caller must be admin.
func (s *Service) AssignRole(ctx context.Context, caller, target string, role Role) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	if role != RoleGuest && role != RoleUser && role != RoleAdmin {
		return errors.New("identity: invalid role")
	}
	acct, err := s.store.GetAccount(ctx, Normalize(target))
	if err != nil {
		return err
	}
	acct.Role = role
	acct.UpdatedAt = time.Now()
	return s.store.UpdateAccount(ctx, acct)
}

// SetKycVerified flips the KYC verified flag. Caller must be admin.
// KYC is a Level 0 tier, so this is bookkeeping only.
func (s *Service) SetKycVerified(ctx context.Context, caller, target string, verified bool) error {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return err
	}
	acct, err := s.store.GetAccount(ctx, Normalize(target))
	if err != nil {
		return err
	}
	acct.KycVerified = verified
	acct.UpdatedAt = time.Now()
	return s.store.UpdateAccount(ctx, acct)
}

// ListApprovals returns every principal's approval record for the admin
// console.
func (s *Service) ListApprovals(ctx context.Context, caller string) ([]*ApprovalInfo, error) {
	if err := s.requireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	accts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]*ApprovalInfo, 0, len(accts))
	for _, a := range accts {
		infos = append(infos, &ApprovalInfo{
			Principal: a.Principal,
			Status:    a.Approval,
			Role:      a.Role,
			Username:  a.Username,
		})
	}
	return infos, nil
}

func (s *Service) requireAdmin(ctx context.Context, caller string) error {
	role, err := s.RoleOf(ctx, caller)
	if err != nil {
		return err
	}
	if !role.AtLeast(RoleAdmin) {
		return ErrUnauthorized
	}
	return nil
}

// Normalize canonicalizes a principal handle.
func Normalize(principal string) string {
	return strings.ToLower(strings.TrimSpace(principal))
}

func hashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
