package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorWriter renders a rejected request in the caller's error format.
type ErrorWriter func(w http.ResponseWriter, status int, code, detail string)

// Require admits requests whose bearer token verifies and grants scope.
// The Principal is available to next through PrincipalFrom.
func Require(v *Verifier, scope string, fail ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := v.Verify(bearerToken(r))
			switch {
			case errors.Is(err, ErrMissingToken):
				w.Header().Set("WWW-Authenticate", `Bearer realm="mergington"`)
				fail(w, http.StatusUnauthorized, "unauthorized", "Sign in to change enrollments")
				return
			case err != nil:
				w.Header().Set("WWW-Authenticate", `Bearer realm="mergington", error="invalid_token"`)
				fail(w, http.StatusUnauthorized, "unauthorized", "Session expired or invalid, sign in again")
				return
			case !p.Can(scope):
				w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="mergington", error="insufficient_scope", scope=%q`, scope))
				fail(w, http.StatusForbidden, "forbidden", "Your account cannot change enrollments")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// bearerToken returns the credentials of an "Authorization: Bearer" header, or "".
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return token
}
