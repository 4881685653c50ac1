package rpc

import (
	"context"
	"encoding/json"

	"github.com/geocoder89/forumhub/internal/auth"
)

type Handler func(ctx context.Context, call Call) Envelope

type Procedure struct {
	Name    string
	Tier    Tier
	Kind    Kind
	Handler Handler
}

// Call is what a handler sees: the resolved caller (nil when anonymous) and
// its raw input. The session token itself never reaches handlers.
type Call struct {
	Procedure string
	Identity  *auth.Identity

	input json.RawMessage
}

func NewCall(procedure string, identity *auth.Identity, input json.RawMessage) Call {
	return Call{Procedure: procedure, Identity: identity, input: input}
}

// UserID is empty for anonymous callers.
func (c Call) UserID() string {
	if c.Identity == nil {
		return ""
	}
	return c.Identity.UserID
}

func (c Call) IsDeveloper() bool {
	return c.Identity != nil && c.Identity.Role.IsDeveloper()
}
