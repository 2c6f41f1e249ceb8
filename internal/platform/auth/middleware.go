package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/plateful/api/internal/platform/httpx"
	"github.com/plateful/api/internal/platform/requestctx"
)

// Middleware authenticates the bearer token and stores the identity on the
// request context. Requests without a valid token are rejected with 401.
func Middleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := bearerToken(r)
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "missing bearer token", http.StatusUnauthorized))
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				requestctx.Logger(ctx).Warn("token rejected", zap.Error(err))
				code := "unauthenticated"
				if errors.Is(err, ErrTokenExpired) {
					code = "token_expired"
				}
				httpx.WriteError(ctx, w, httpx.NewError(code, "invalid bearer token", http.StatusUnauthorized))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestctx.WithIdentity(ctx, identity)))
		})
	}
}

// RequireAdmin rejects callers without the admin role. It assumes Middleware
// already ran.
func RequireAdmin(next http.Handler) http.Handler {
	if next == nil {
		next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity, ok := requestctx.IdentityFrom(ctx)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "missing bearer token", http.StatusUnauthorized))
			return
		}
		if !identity.Admin() {
			httpx.WriteError(ctx, w, httpx.NewError("forbidden", "admin role required", http.StatusForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
