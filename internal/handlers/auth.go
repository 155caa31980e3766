package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/classtrack/apiserver/internal/services"
	"github.com/classtrack/apiserver/internal/token"
	"github.com/classtrack/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// AuthService is the surface of the auth core consumed by the HTTP layer.
type AuthService interface {
	Register(ctx context.Context, in services.RegisterInput) (types.Identity, string, error)
	Login(ctx context.Context, email, password string) (types.Identity, string, error)
	VerifySessionToken(tokenString string) (*token.Claims, error)
	GetIdentity(ctx context.Context, role types.Role, id string) (types.Identity, error)
	ChangePassword(ctx context.Context, role types.Role, id, currentPassword, newPassword string) error
	ForgotPassword(ctx context.Context, email, ipAddress, userAgent string) error
	ValidateResetToken(ctx context.Context, rawSecret string) (string, error)
	ResetPassword(ctx context.Context, rawSecret, newPassword string) error
	RefreshToken(ctx context.Context, tokenString string) (types.Identity, string, error)
}

// AuthHandler provides the /auth endpoints.
type AuthHandler struct {
	svc AuthService
}

// NewAuthHandler constructs an AuthHandler with the provided service.
func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, svc AuthService) {
	handler := NewAuthHandler(svc)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/refresh", handler.Refresh)
	r.Post("/forgot-password", handler.ForgotPassword)
	r.Get("/reset-password/{token}", handler.ValidateResetToken)
	r.Post("/reset-password/{token}", handler.ResetPassword)
	r.With(handler.RequireAuth).Put("/password", handler.ChangePassword)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
}

// RequireAuth enforces session-token authentication for this handler's
// protected routes.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return RequireAuth(h.svc)(next)
}

type RegisterRequest struct {
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Role        string   `json:"role"`
	RoleType    string   `json:"roleType,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	Token string `json:"token"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// AuthData is the user+token payload returned by register, login and refresh.
type AuthData struct {
	User  types.Identity `json:"user"`
	Token string         `json:"token"`
}

// Register creates a new account and returns it with a session token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	identity, sessionToken, err := h.svc.Register(r.Context(), services.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Role:        types.Role(strings.TrimSpace(req.Role)),
		RoleType:    types.AdminRoleType(strings.TrimSpace(req.RoleType)),
		Permissions: req.Permissions,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, AuthData{User: identity, Token: sessionToken})
}

// Login verifies credentials and returns the account with a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	identity, sessionToken, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, AuthData{User: identity, Token: sessionToken})
}

// Refresh exchanges a still-valid session token for one with a fresh expiry.
// The prior token may arrive in the body or as the bearer credential.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	tokenString := strings.TrimSpace(req.Token)
	if tokenString == "" {
		fromHeader, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "token_missing", "a session token is required")
			return
		}
		tokenString = fromHeader
	}

	identity, sessionToken, err := h.svc.RefreshToken(r.Context(), tokenString)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, AuthData{User: identity, Token: sessionToken})
}

// ForgotPassword creates a reset token and dispatches the reset link.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if err := h.svc.ForgotPassword(r.Context(), req.Email, clientIP(r), r.UserAgent()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{
		"message": "a password reset link has been sent",
	})
}

// ValidateResetToken checks a reset link without consuming it.
func (h *AuthHandler) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	email, err := h.svc.ValidateResetToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"email": email})
}

// ResetPassword consumes a reset token and stores the new password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if err := h.svc.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password); err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"message": "password has been reset"})
}

// ChangePassword updates the authenticated account's password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "token_missing", "authorization required")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if err := h.svc.ChangePassword(r.Context(), principal.Role, principal.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// Me returns the current authenticated account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "token_missing", "authorization required")
		return
	}

	identity, err := h.svc.GetIdentity(r.Context(), principal.Role, principal.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"user": identity})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
