package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/classtrack/apiserver/internal/services"
	"github.com/classtrack/apiserver/internal/store"
	"github.com/classtrack/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// RequireAuth constructs middleware that extracts the bearer token, verifies
// it, loads the identity behind it and attaches the principal to the request
// context. Missing, invalid and expired credentials are all 401; the body
// distinguishes expired tokens so clients know to re-authenticate.
func RequireAuth(svc AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "token_missing", "authorization required")
				return
			}

			claims, err := svc.VerifySessionToken(tokenString)
			if err != nil {
				writeServiceError(w, err)
				return
			}

			identity, err := svc.GetIdentity(r.Context(), claims.Role, claims.Subject)
			if err != nil {
				if svcErr, ok := services.AsError(err); ok && svcErr.Kind == services.KindNotFound {
					writeError(w, http.StatusUnauthorized, "user_not_found", "user not found")
					return
				}
				writeServiceError(w, err)
				return
			}

			principal := Principal{
				ID:          identity.ID,
				Email:       identity.Email,
				FirstName:   identity.FirstName,
				LastName:    identity.LastName,
				Role:        identity.Role,
				RoleType:    identity.RoleType,
				Permissions: identity.Permissions,
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole passes only principals whose role is in the allowed set.
func RequireRole(roles ...types.Role) func(http.Handler) http.Handler {
	allowed := make(map[types.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return gate(func(principal Principal) bool {
		_, ok := allowed[principal.Role]
		return ok
	})
}

// RequireMinRole passes principals ranked at least as high as required, using
// admin > teacher > student.
func RequireMinRole(required types.Role) func(http.Handler) http.Handler {
	return gate(func(principal Principal) bool {
		return types.RoleAtLeast(principal.Role, required)
	})
}

// RequirePermission passes admins holding the permission. Super admins pass
// every permission gate.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return gate(func(principal Principal) bool {
		return principal.identity().HasPermission(perm)
	})
}

// RequireAnyPermission passes admins holding at least one of the listed
// permissions.
func RequireAnyPermission(perms ...string) func(http.Handler) http.Handler {
	return gate(func(principal Principal) bool {
		return principal.identity().HasAnyPermission(perms...)
	})
}

// OwnerLookup resolves the owner id of the resource identified by a route
// parameter. It returns store.ErrNotFound when the resource does not exist.
type OwnerLookup func(ctx context.Context, resourceID string) (string, error)

// RequireOwnerOrAdmin passes admins unconditionally; everyone else must own
// the resource named by the route parameter.
func RequireOwnerOrAdmin(param string, lookup OwnerLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "token_missing", "authorization required")
				return
			}
			if principal.Role == types.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}

			resourceID := chi.URLParam(r, param)
			ownerID, err := lookup(r.Context(), resourceID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeError(w, http.StatusNotFound, "not_found", "resource not found")
					return
				}
				writeError(w, http.StatusServiceUnavailable, "service_unavailable", "service temporarily unavailable")
				return
			}
			if ownerID != principal.ID {
				writeError(w, http.StatusForbidden, "forbidden", "insufficient rights")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func gate(pass func(Principal) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "token_missing", "authorization required")
				return
			}
			if !pass(principal) {
				writeError(w, http.StatusForbidden, "forbidden", "insufficient rights")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// identity rebuilds the permission-bearing view of the principal so the
// types-level predicates apply.
func (p Principal) identity() types.Identity {
	return types.Identity{
		ID:          p.ID,
		Role:        p.Role,
		RoleType:    p.RoleType,
		Permissions: p.Permissions,
	}
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
