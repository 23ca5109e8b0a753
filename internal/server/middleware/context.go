package middleware

import (
	"context"

	"github.com/gosuda/praxis/internal/domain"
)

type contextKey string

const (
	ContextKeyUserID    contextKey = "user_id"
	ContextKeyUserEmail contextKey = "user_email"
	ContextKeyUserRole  contextKey = "role"
)

// WithIdentity stores id in ctx under the keys read by the helpers below.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	ctx = context.WithValue(ctx, ContextKeyUserID, id.UserID)
	ctx = context.WithValue(ctx, ContextKeyUserEmail, id.Email)
	ctx = context.WithValue(ctx, ContextKeyUserRole, id.Role)
	return ctx
}

// IdentityFromContext returns the authenticated caller. ok is false when no
// user id was stored.
func IdentityFromContext(ctx context.Context) (*domain.Identity, bool) {
	uid, ok := UserIDFromContext(ctx)
	if !ok {
		return nil, false
	}
	email, _ := ctx.Value(ContextKeyUserEmail).(string)
	role, _ := RoleFromContext(ctx)
	return &domain.Identity{UserID: uid, Email: email, Role: role}, true
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyUserID).(string)
	return v, ok && v != ""
}

func RoleFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyUserRole).(string)
	return v, ok
}
