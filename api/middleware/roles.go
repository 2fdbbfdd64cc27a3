package middleware

import (
	"net/http"

	"github.com/angelmondragon/packfinderz-catalog/api/responses"
	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-catalog/pkg/errors"
	"github.com/angelmondragon/packfinderz-catalog/pkg/logger"
)

// RequireRoles admits requests whose token role is one of allowed.
func RequireRoles(logg *logger.Logger, allowed ...enums.MemberRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			for _, candidate := range allowed {
				if role == string(candidate) {
					next.ServeHTTP(w, r)
					return
				}
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required"))
		})
	}
}
