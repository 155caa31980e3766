package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/classtrack/apiserver/internal/store"
	"github.com/classtrack/apiserver/internal/token"
	"github.com/classtrack/apiserver/types"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// IdentityStore defines persistence operations over the three role-scoped
// account collections.
type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (types.Identity, error)
	GetByID(ctx context.Context, role types.Role, id string) (types.Identity, error)
	Create(ctx context.Context, identity types.Identity) (types.Identity, error)
	UpdatePassword(ctx context.Context, role types.Role, id, passwordHash string) error
	CountAdmins(ctx context.Context) (int, error)
	UpdateAdminPermissions(ctx context.Context, id string, roleType types.AdminRoleType, permissions []string) error
}

// ResetTokenStore defines persistence operations for reset tokens.
type ResetTokenStore interface {
	Create(ctx context.Context, t types.ResetToken) (types.ResetToken, error)
	Peek(ctx context.Context, secretHash string, now time.Time) (types.ResetToken, error)
	Consume(ctx context.Context, secretHash string, now time.Time) (types.ResetToken, error)
}

// CounterStore hands out sequence values for student and employee numbers.
type CounterStore interface {
	Next(ctx context.Context, name string) (int64, error)
}

// Mailer dispatches the password-reset message. Delivery happens outside
// this service.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, firstName, resetURL string) error
}

const (
	maxAdminAccounts  = 2
	minPasswordLength = 8

	counterStudentNumber  = "student_number"
	counterEmployeeNumber = "employee_number"
)

// AuthService implements registration, login, session-token verification and
// the password change/reset flows.
type AuthService struct {
	identities IdentityStore
	resets     ResetTokenStore
	counters   CounterStore
	tokens     *token.Manager
	mailer     Mailer
	baseURL    string
	resetTTL   time.Duration
	now        func() time.Time
}

func NewAuthService(
	identities IdentityStore,
	resets ResetTokenStore,
	counters CounterStore,
	tokens *token.Manager,
	mailer Mailer,
	baseURL string,
	resetTTL time.Duration,
) *AuthService {
	return &AuthService{
		identities: identities,
		resets:     resets,
		counters:   counters,
		tokens:     tokens,
		mailer:     mailer,
		baseURL:    strings.TrimRight(baseURL, "/"),
		resetTTL:   resetTTL,
		now:        time.Now,
	}
}

// RegisterInput carries the registration fields. RoleType and Permissions
// are only meaningful for admin registrations.
type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Role        types.Role
	RoleType    types.AdminRoleType
	Permissions []string
}

// Register creates a new account and issues a session token for it. Email
// uniqueness is enforced across all three collections.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (types.Identity, string, error) {
	email := normalizeEmail(in.Email)

	fields := map[string]string{}
	if email == "" {
		fields["email"] = "email is required"
	} else if !strings.Contains(email, "@") {
		fields["email"] = "email is not valid"
	}
	if len(in.Password) < minPasswordLength {
		fields["password"] = fmt.Sprintf("password must be at least %d characters", minPasswordLength)
	}
	if strings.TrimSpace(in.FirstName) == "" {
		fields["firstName"] = "first name is required"
	}
	if strings.TrimSpace(in.LastName) == "" {
		fields["lastName"] = "last name is required"
	}
	if len(fields) > 0 {
		return types.Identity{}, "", validationFailed(fields)
	}
	if !types.ValidRole(in.Role) {
		return types.Identity{}, "", badRequest("invalid_role", "role must be admin, teacher or student")
	}

	if _, err := s.identities.FindByEmail(ctx, email); err == nil {
		return types.Identity{}, "", conflict("email_taken", "an account with this email already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.Identity{}, "", unavailable(err)
	}

	identity := types.Identity{
		ID:        uuid.NewString(),
		Email:     email,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Role:      in.Role,
	}

	switch in.Role {
	case types.RoleAdmin:
		count, err := s.identities.CountAdmins(ctx)
		if err != nil {
			return types.Identity{}, "", unavailable(err)
		}
		if count >= maxAdminAccounts {
			return types.Identity{}, "", forbidden("admin_limit_reached", "admin account limit reached")
		}
		roleType := in.RoleType
		if roleType == "" {
			roleType = types.AdminCustom
		}
		if !types.ValidAdminRoleType(roleType) {
			return types.Identity{}, "", badRequest("invalid_role_type", "unknown admin role type")
		}
		identity.RoleType = roleType
		permissions := types.NormalizePermissions(in.Permissions)
		if len(permissions) == 0 {
			permissions = types.DefaultPermissions(roleType)
		}
		identity.Permissions = permissions
	case types.RoleTeacher:
		number, err := s.nextNumber(ctx, counterEmployeeNumber, "EMP")
		if err != nil {
			return types.Identity{}, "", unavailable(err)
		}
		identity.EmployeeNumber = number
	case types.RoleStudent:
		number, err := s.nextNumber(ctx, counterStudentNumber, "STU")
		if err != nil {
			return types.Identity{}, "", unavailable(err)
		}
		identity.StudentNumber = number
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.Identity{}, "", unavailable(err)
	}
	identity.PasswordHash = string(hash)

	created, err := s.identities.Create(ctx, identity)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			// lost a concurrent registration race; the unique index decides
			return types.Identity{}, "", conflict("email_taken", "an account with this email already exists")
		}
		return types.Identity{}, "", unavailable(err)
	}

	sessionToken, err := s.tokens.Issue(created.ID, created.Role)
	if err != nil {
		return types.Identity{}, "", unavailable(err)
	}
	return created, sessionToken, nil
}

// Login verifies credentials and issues a session token. An unknown email is
// reported as not-found, distinct from a wrong password.
func (s *AuthService) Login(ctx context.Context, email, password string) (types.Identity, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return types.Identity{}, "", badRequest("missing_credentials", "email and password are required")
	}

	identity, err := s.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Identity{}, "", notFound("account_not_found", "no account matches this email")
		}
		return types.Identity{}, "", unavailable(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return types.Identity{}, "", unauthorized("invalid_credentials", "invalid credentials")
	}

	sessionToken, err := s.tokens.Issue(identity.ID, identity.Role)
	if err != nil {
		return types.Identity{}, "", unavailable(err)
	}
	return identity, sessionToken, nil
}

// VerifySessionToken validates the signature and expiry of a session token.
func (s *AuthService) VerifySessionToken(tokenString string) (*token.Claims, error) {
	claims, err := s.tokens.Parse(tokenString)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, unauthorized("token_expired", "session token expired")
		}
		return nil, unauthorized("token_invalid", "session token invalid")
	}
	return claims, nil
}

// GetIdentity loads an account by role and id.
func (s *AuthService) GetIdentity(ctx context.Context, role types.Role, id string) (types.Identity, error) {
	identity, err := s.identities.GetByID(ctx, role, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Identity{}, notFound("user_not_found", "user not found")
		}
		return types.Identity{}, unavailable(err)
	}
	return identity, nil
}

// ChangePassword verifies the current password before storing a new one.
func (s *AuthService) ChangePassword(ctx context.Context, role types.Role, id, currentPassword, newPassword string) error {
	identity, err := s.GetIdentity(ctx, role, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(currentPassword)); err != nil {
		return badRequest("wrong_password", "current password is incorrect")
	}
	if len(newPassword) < minPasswordLength {
		return badRequest("weak_password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	return s.updatePassword(ctx, role, id, newPassword)
}

// ForgotPassword creates a single-use reset token for the matching account
// and dispatches the reset link. The raw secret only travels in the mail.
func (s *AuthService) ForgotPassword(ctx context.Context, email, ipAddress, userAgent string) error {
	identity, err := s.identities.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("account_not_found", "no account matches this email")
		}
		return unavailable(err)
	}

	secret, err := token.NewResetSecret()
	if err != nil {
		return unavailable(err)
	}

	_, err = s.resets.Create(ctx, types.ResetToken{
		ID:         uuid.NewString(),
		OwnerID:    identity.ID,
		OwnerRole:  identity.Role,
		SecretHash: token.HashSecret(secret),
		Purpose:    types.PurposePasswordReset,
		ExpiresAt:  s.now().Add(s.resetTTL),
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
	})
	if err != nil {
		return unavailable(err)
	}

	resetURL := fmt.Sprintf("%s/reset-password/%s", s.baseURL, secret)
	if err := s.mailer.SendPasswordReset(ctx, identity.Email, identity.FirstName, resetURL); err != nil {
		// the token is already persisted; a failed dispatch must not fail the request
		log.Printf("password reset mail dispatch failed for %s: %v", identity.Email, err)
	}
	return nil
}

// ValidateResetToken checks a raw reset secret without consuming it and
// returns the owner's email.
func (s *AuthService) ValidateResetToken(ctx context.Context, rawSecret string) (string, error) {
	reset, err := s.resets.Peek(ctx, token.HashSecret(rawSecret), s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", badRequest("invalid_reset_token", "reset token is invalid or expired")
		}
		return "", unavailable(err)
	}
	identity, err := s.identities.GetByID(ctx, reset.OwnerRole, reset.OwnerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", badRequest("invalid_reset_token", "reset token is invalid or expired")
		}
		return "", unavailable(err)
	}
	return identity.Email, nil
}

// ResetPassword consumes a reset token and stores the new password. A token
// can win this exactly once.
func (s *AuthService) ResetPassword(ctx context.Context, rawSecret, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return badRequest("weak_password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	reset, err := s.resets.Consume(ctx, token.HashSecret(rawSecret), s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return badRequest("invalid_reset_token", "reset token is invalid or expired")
		}
		return unavailable(err)
	}

	if err := s.updatePassword(ctx, reset.OwnerRole, reset.OwnerID, newPassword); err != nil {
		var svcErr *Error
		if errors.As(err, &svcErr) && svcErr.Kind == KindNotFound {
			// owner deleted since the token was issued
			return badRequest("invalid_reset_token", "reset token is invalid or expired")
		}
		return err
	}
	return nil
}

// RefreshToken re-verifies a session token, re-resolves its identity and
// issues a replacement with a fresh expiry. The old token stays valid until
// it expires; stateless tokens cannot be revoked server-side.
func (s *AuthService) RefreshToken(ctx context.Context, tokenString string) (types.Identity, string, error) {
	claims, err := s.VerifySessionToken(tokenString)
	if err != nil {
		return types.Identity{}, "", err
	}
	identity, err := s.GetIdentity(ctx, claims.Role, claims.Subject)
	if err != nil {
		return types.Identity{}, "", err
	}
	sessionToken, err := s.tokens.Issue(identity.ID, identity.Role)
	if err != nil {
		return types.Identity{}, "", unavailable(err)
	}
	return identity, sessionToken, nil
}

// SetAdminPermissions normalizes and stores an admin's role type and
// permission set. Callers outside the auth core use this for role management.
func (s *AuthService) SetAdminPermissions(ctx context.Context, id string, roleType types.AdminRoleType, permissions []string) error {
	if !types.ValidAdminRoleType(roleType) {
		return badRequest("invalid_role_type", "unknown admin role type")
	}
	normalized := types.NormalizePermissions(permissions)
	if len(normalized) == 0 {
		normalized = types.DefaultPermissions(roleType)
	}
	if err := s.identities.UpdateAdminPermissions(ctx, id, roleType, normalized); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("user_not_found", "user not found")
		}
		return unavailable(err)
	}
	return nil
}

// updatePassword hashes and persists a new password. A value that is already
// a bcrypt hash is stored as-is so an unrelated re-save can never hash twice.
func (s *AuthService) updatePassword(ctx context.Context, role types.Role, id, newPassword string) error {
	passwordHash := newPassword
	if !isBcryptHash(newPassword) {
		hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
		if err != nil {
			return unavailable(err)
		}
		passwordHash = string(hash)
	}
	if err := s.identities.UpdatePassword(ctx, role, id, passwordHash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("user_not_found", "user not found")
		}
		return unavailable(err)
	}
	return nil
}

// nextNumber formats the next sequence value as e.g. STU-2026-0001.
func (s *AuthService) nextNumber(ctx context.Context, counter, prefix string) (string, error) {
	value, err := s.counters.Next(ctx, counter)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%04d", prefix, s.now().Year(), value), nil
}

func isBcryptHash(value string) bool {
	_, err := bcrypt.Cost([]byte(value))
	return err == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
