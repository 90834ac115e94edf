// Package auth carries the authenticated caller through request contexts.
package auth

import (
	"context"

	"github.com/dukerupert/chorequest/internal/model"
)

type contextKey struct{}

// AuthContext identifies the caller of a request.
type AuthContext struct {
	UserID    int64
	Role      string
	SessionID int64
	Token     string
}

func (ac AuthContext) IsAdmin() bool {
	return ac.Role == model.RoleAdmin
}

// CanActFor reports whether the caller may modify data owned by userID:
// their own records, or anyone's for an admin.
func (ac AuthContext) CanActFor(userID int64) bool {
	return ac.UserID != 0 && (ac.UserID == userID || ac.IsAdmin())
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// UserID returns the caller's user id, or 0 for an anonymous context.
func UserID(ctx context.Context) int64 {
	ac, _ := FromContext(ctx)
	return ac.UserID
}

func IsAdmin(ctx context.Context) bool {
	ac, _ := FromContext(ctx)
	return ac.IsAdmin()
}

func CanActFor(ctx context.Context, userID int64) bool {
	ac, _ := FromContext(ctx)
	return ac.CanActFor(userID)
}
