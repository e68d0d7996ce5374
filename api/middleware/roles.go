package middleware

import (
	"net/http"

	"github.com/angelmondragon/revenue-engine/api/responses"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/revenue-engine/pkg/errors"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
)

// RequireManager lets through owners and admins. Viewers may only read analytics.
func RequireManager(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, err := enums.ParseMemberRole(RoleFromContext(r.Context()))
			if err != nil || !role.CanManage() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "owner or admin role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
