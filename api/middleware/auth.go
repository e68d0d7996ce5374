package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/revenue-engine/api/responses"
	pkgAuth "github.com/angelmondragon/revenue-engine/pkg/auth"
	"github.com/angelmondragon/revenue-engine/pkg/config"
	pkgerrors "github.com/angelmondragon/revenue-engine/pkg/errors"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the tenant claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxTenantID, claims.TenantID)
			ctx = context.WithValue(ctx, ctxRole, string(claims.Role))
			ctx = context.WithValue(ctx, ctxSubject, claims.Subject)

			if logg != nil {
				ctx = logg.WithTenantID(ctx, claims.TenantID)
				ctx = logg.WithField(ctx, "actor_role", string(claims.Role))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
