package middleware

import (
	"net/http"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/permission"
)

// Authorize enforces policy on every request. It must run after Authenticate.
func Authorize(policy *permission.Policy) func(http.Handler) http.Handler {
	if policy == nil {
		policy = permission.DefaultPolicy()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := authgate.IdentityFromContext(r.Context())

			switch policy.Decide(r.URL.Path, id.Role, ok) {
			case permission.Allow:
				next.ServeHTTP(w, r)
			case permission.Forbidden:
				WriteMessage(w, http.StatusForbidden, authgate.Reason(authgate.ErrRoleForbidden))
			default:
				WriteMessage(w, http.StatusUnauthorized, authgate.Reason(authgate.ErrUnauthenticated))
			}
		})
	}
}
