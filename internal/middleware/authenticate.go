package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mypov/backend/internal/auth"
	"github.com/mypov/backend/internal/logging"
)

// TokenVerifier validates bearer access tokens.
type TokenVerifier interface {
	Verify(accessToken string) (string, error)
}

// Authenticate resolves an optional bearer token into a user id on the request
// context. Requests without a token pass through anonymously; requests with an
// invalid token are rejected so clients notice expired credentials.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" || verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				unauthorized(w, r, "malformed authorization header")
				return
			}

			userID, err := verifier.Verify(strings.TrimSpace(token))
			if err != nil {
				unauthorized(w, r, "invalid or expired token")
				return
			}

			ctx := auth.WithUserID(r.Context(), userID)
			ctx = logging.With(ctx, "user_id", userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	logging.FromContext(r.Context()).Warn("authentication rejected", "reason", reason)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="mypov"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": reason})
}
