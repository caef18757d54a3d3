package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/domain"
)

// Guest is the viewer key of requests without a token.
const Guest = "guest"

// Private context key (avoids collisions)
type contextKey struct{ name string }

var viewerCtxKey = &contextKey{"viewer_key"}

// Middleware validates the bearer token and puts the proven viewer key and
// the token itself in the request context. Requests without a token are guests.
func Middleware(validator Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")

			// 1. No header: anonymous viewer
			if header == "" {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), viewerCtxKey, Guest)))
				return
			}

			// 2. "Bearer <token>"
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			tokenStr = strings.TrimSpace(tokenStr)
			if !ok || tokenStr == "" {
				http.Error(w, "Invalid token format", http.StatusUnauthorized)
				return
			}

			// 3. Signature (or upstream) check
			viewer, err := validator.ValidateToken(r.Context(), tokenStr)
			if err != nil || viewer == "" {
				slog.Debug("Token rejected", "error", err)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			// 4. Sessions and cache entries are keyed by the proven viewer
			ctx := domain.WithAccessToken(r.Context(), tokenStr)
			ctx = context.WithValue(ctx, viewerCtxKey, viewer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ForContext returns the viewer key set by Middleware.
func ForContext(ctx context.Context) string {
	raw, _ := ctx.Value(viewerCtxKey).(string)
	if raw == "" {
		return Guest
	}
	return raw
}

func viewerFromClaims(claims jwt.MapClaims) string {
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	for _, k := range []string{"id", "_id", "userId", "username"} {
		if id, ok := domain.ResolveID(claims[k]); ok {
			return id
		}
	}
	return ""
}
