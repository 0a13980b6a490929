package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"tkfleet.io/internal/auth"
	"tkfleet.io/internal/ids"
	"tkfleet.io/internal/tenant"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// tenantResolver skips malformed candidates so a bad header falls back to the token claim.
var tenantResolver = tenant.Resolver{Valid: ids.Valid}

func tenantSources(r *http.Request, claim string) tenant.Sources {
	return tenant.Sources{
		Route:  r.PathValue(tenant.ParamName),
		Query:  r.URL.Query().Get(tenant.ParamName),
		Header: r.Header.Get(tenant.HeaderName),
		Claim:  claim,
	}
}

// public installs the request tenant without requiring a token.
func (a *API) public(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := tenantResolver.Attach(r.Context(), tenantSources(r, ""))
		if id, ok := tenant.FromContext(ctx); ok {
			noteTenant(ctx, id)
		}
		h(w, r.WithContext(ctx))
	})
}

// secured authenticates the bearer token, stores the principal and the
// request tenant, and rejects callers acting outside their own tenant.
func (a *API) secured(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}
		claims, err := a.tokens.Validate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				unauthorized(w, r, "invalid token")
				return
			}
			respondInternal(w, r, err)
			return
		}
		principal, err := claims.Principal()
		if err != nil {
			unauthorized(w, r, "invalid token")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = tenantResolver.Attach(ctx, tenantSources(r, principal.TenantID))
		if id, ok := tenant.FromContext(ctx); ok {
			noteTenant(ctx, id)
			if err := auth.RequireTenant(principal, id); err != nil {
				respondError(w, r, err)
				return
			}
		}
		h(w, r.WithContext(ctx))
	})
}

// RequireRole rejects requests whose principal is below min.
func RequireRole(min auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w, r, "authentication required")
				return
			}
			if !principal.Role.AtLeast(min) {
				w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
				writeError(w, r, http.StatusForbidden, "requires role "+min.String())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="tkfleet"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
