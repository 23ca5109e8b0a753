package middleware

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"
)

// Roles carried in access tokens.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Every role may read. WriterRoles may change documents, and only admins
// purge the audit trail.
var (
	WriterRoles = []string{RoleAdmin, RoleOperator} //nolint:gochecknoglobals // fixed policy
	AdminRoles  = []string{RoleAdmin}               //nolint:gochecknoglobals // fixed policy
)

// ValidRole reports whether role is one a token may carry.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleOperator, RoleViewer:
		return true
	}
	return false
}

// RequireRole returns a huma operation middleware admitting only callers
// whose role is in roles. The identity is the one stored by Auth; without it
// the operation answers 401, with a role outside roles it answers 403.
func RequireRole(api huma.API, roles ...string) func(huma.Context, func(huma.Context)) {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		id, ok := IdentityFromContext(ctx.Context())
		if !ok {
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "authentication required")
			return
		}

		if _, match := allowed[id.Role]; !match {
			zerolog.Ctx(ctx.Context()).Warn().
				Str("user_id", id.UserID).
				Str("role", id.Role).
				Str("operation", ctx.Operation().OperationID).
				Msg("rbac: operation denied")
			_ = huma.WriteErr(api, ctx, http.StatusForbidden, "insufficient permissions")
			return
		}

		next(ctx)
	}
}
