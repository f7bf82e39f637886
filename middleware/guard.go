package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/goDeliver/jwt"
)

// AdminVerifier validates an admin bearer token.
type AdminVerifier interface {
	ParseAdmin(token string) (*jwt.AdminClaims, error)
}

type adminClaimsContextKey struct{}

// AdminFromContext returns the claims injected by [RequireAdmin].
func AdminFromContext(ctx context.Context) (*jwt.AdminClaims, bool) {
	claims, ok := ctx.Value(adminClaimsContextKey{}).(*jwt.AdminClaims)
	return claims, ok
}

// RequireAdmin rejects requests without a valid admin bearer token. The
// response never says why a token was refused.
func RequireAdmin(verifier AdminVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := verifier.ParseAdmin(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), adminClaimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
