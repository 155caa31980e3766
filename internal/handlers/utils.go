package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/classtrack/apiserver/internal/services"
	"github.com/classtrack/apiserver/types"
)

type contextKey string

const contextPrincipalKey contextKey = "principal"

// Principal is the authenticated identity attached to the request context.
type Principal struct {
	ID          string
	Email       string
	FirstName   string
	LastName    string
	Role        types.Role
	RoleType    types.AdminRoleType
	Permissions []string
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(contextPrincipalKey).(Principal)
	return principal, ok
}

func withPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, contextPrincipalKey, principal)
}

// SuccessResponse is the envelope for successful responses.
type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// ErrorBody carries a stable machine code plus a human message.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorResponse is the envelope for failed responses.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// writeServiceError maps a service error onto its HTTP status. Anything that
// is not a typed service error becomes a generic 500 with no internal detail.
func writeServiceError(w http.ResponseWriter, err error) {
	svcErr, ok := services.AsError(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	writeJSON(w, statusForKind(svcErr.Kind), ErrorResponse{
		Error: ErrorBody{Code: svcErr.Code, Message: svcErr.Message, Fields: svcErr.Fields},
	})
}

func statusForKind(kind services.Kind) int {
	switch kind {
	case services.KindBadRequest:
		return http.StatusBadRequest
	case services.KindUnauthorized:
		return http.StatusUnauthorized
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	case services.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
