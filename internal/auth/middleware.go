package auth

import (
	"context"
	"net/http"
	"strings"

	"classroom-quiz-service/internal/domain"
	"go.uber.org/zap"
)

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(domain.Principal)
	return p, ok && p.ID != ""
}

// Middleware attaches the principal of a valid bearer token to the request
// context. Requests without a valid token pass through unauthenticated;
// handlers decide whether that is acceptable.
// Browsers cannot set headers on websocket upgrades, so access_token is also
// accepted as a query parameter.
func Middleware(a *Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := a.Verify(raw)
			if err != nil {
				logger.Debug("rejected token", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("access_token")
}
