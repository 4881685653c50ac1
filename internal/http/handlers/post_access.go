package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/geocoder89/forumhub/internal/domain/post"
	"github.com/geocoder89/forumhub/internal/rpc"
)

type PostGetter interface {
	GetByID(ctx context.Context, id string) (post.Post, error)
}

// postGate decides whether the caller may see a post. Developers see
// everything; others get 404 for taken-down posts and 403 for group posts
// they are not a member of.
type postGate struct {
	posts   PostGetter
	members MembershipChecker
	log     *slog.Logger
}

func (g postGate) readable(cctx, ctx context.Context, call rpc.Call, id string) (post.Post, rpc.Envelope, bool) {
	p, err := g.posts.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, post.ErrNotFound) {
			return post.Post{}, rpc.NotFound("post not found"), false
		}
		return post.Post{}, storeFailed(ctx, g.log, call, err, "Could not load post"), false
	}

	if call.IsDeveloper() {
		return p, rpc.Envelope{}, true
	}

	if p.IsTakenDown {
		return post.Post{}, rpc.NotFound("post not found"), false
	}

	if p.GroupID != nil {
		if call.Identity == nil {
			return post.Post{}, rpc.Forbidden("only group members can read this post"), false
		}
		member, err := g.members.IsMember(cctx, *p.GroupID, call.UserID())
		if err != nil {
			return post.Post{}, storeFailed(ctx, g.log, call, err, "Could not load post"), false
		}
		if !member {
			return post.Post{}, rpc.Forbidden("only group members can read this post"), false
		}
	}

	return p, rpc.Envelope{}, true
}
