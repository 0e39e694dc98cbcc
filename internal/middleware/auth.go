package middleware

import (
	"net/http"
	"strings"

	"chicklist/internal/identity"
)

// RequireAuth validates the bearer token and populates the request context
// with the user id. The token may also arrive in the "token" query
// parameter, for websocket clients that cannot set headers.
func RequireAuth(svc *identity.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := svc.Verify(bearerToken(r))
			if err != nil {
				http.Error(w, identity.Message(err), http.StatusUnauthorized)
				return
			}
			ctx := identity.WithUser(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
