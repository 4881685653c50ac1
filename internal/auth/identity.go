package auth

import (
	"context"
	"fmt"
)

type Role string

// Role names are persisted in users.role and embedded in tokens.
const (
	RoleCommon    Role = "common"
	RoleDeveloper Role = "developer"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleCommon:
		return RoleCommon, nil
	case RoleDeveloper:
		return RoleDeveloper, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) IsDeveloper() bool { return r == RoleDeveloper }

// Identity is the authenticated caller, rebuilt from a verified token on every call.
type Identity struct {
	UserID string `json:"id"`
	Role   Role   `json:"role"`
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.UserID != ""
}
