package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/forumhub/internal/domain/comment"
	"github.com/geocoder89/forumhub/internal/domain/post"
	"github.com/geocoder89/forumhub/internal/rpc"
)

type CommentStore interface {
	Create(ctx context.Context, req comment.CreateRequest) (comment.Comment, error)
	GetByID(ctx context.Context, id string) (comment.Comment, error)
	ListByPost(ctx context.Context, postID string) ([]comment.Comment, error)
	Delete(ctx context.Context, id string) error
}

type CommentsHandler struct {
	comments CommentStore
	gate     postGate
	log      *slog.Logger
}

// NewCommentsHandler applies the same visibility rules to a post's comments
// as post.getDetailedPost applies to the post itself.
func NewCommentsHandler(comments CommentStore, posts PostGetter, members MembershipChecker, log *slog.Logger) *CommentsHandler {
	log = loggerOr(log)
	return &CommentsHandler{
		comments: comments,
		gate:     postGate{posts: posts, members: members, log: log},
		log:      log,
	}
}

func (h *CommentsHandler) Procedures() []rpc.Procedure {
	return []rpc.Procedure{
		{Name: "comment.list", Tier: rpc.Public, Kind: rpc.Query, Handler: h.List},
		{Name: "comment.create", Tier: rpc.Authenticated, Kind: rpc.Mutation, Handler: h.Create},
		{Name: "comment.delete", Tier: rpc.Authenticated, Kind: rpc.Mutation, Handler: h.Delete},
	}
}

type CreateCommentInput struct {
	PostID      string `json:"postId" binding:"required,uuid"`
	Content     string `json:"content" binding:"required,min=1,max=2000"`
	IsAnonymous bool   `json:"isAnonymous"`
}

type CommentIDInput struct {
	CommentID string `json:"commentId" binding:"required,uuid"`
}

func (h *CommentsHandler) List(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in PostIDInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, env, ok := h.gate.readable(cctx, ctx, call, in.PostID); !ok {
		return env
	}

	items, err := h.comments.ListByPost(cctx, in.PostID)
	if err != nil {
		return storeFailed(ctx, h.log, call, err, "Could not load comments")
	}

	out := make([]comment.Comment, len(items))
	for i, c := range items {
		out[i] = c.Redacted(call.UserID())
	}

	return rpc.OK(http.StatusOK, "ok", out)
}

func (h *CommentsHandler) Create(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in CreateCommentInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, env, ok := h.gate.readable(cctx, ctx, call, in.PostID); !ok {
		return env
	}

	c, err := h.comments.Create(cctx, comment.CreateRequest{
		PostID:      in.PostID,
		AuthorID:    call.UserID(),
		Content:     in.Content,
		IsAnonymous: in.IsAnonymous,
	})
	if err != nil {
		if errors.Is(err, post.ErrNotFound) {
			return rpc.NotFound("post not found")
		}
		return storeFailed(ctx, h.log, call, err, "Could not add comment")
	}

	return rpc.OK(http.StatusCreated, "comment added", c.Redacted(call.UserID()))
}

func (h *CommentsHandler) Delete(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in CommentIDInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	c, err := h.comments.GetByID(cctx, in.CommentID)
	if err != nil {
		if errors.Is(err, comment.ErrNotFound) {
			return rpc.NotFound("comment not found")
		}
		return storeFailed(ctx, h.log, call, err, "Could not delete comment")
	}

	if c.AuthorID != call.UserID() && !call.IsDeveloper() {
		return rpc.Forbidden("only the author can delete this comment")
	}

	if err := h.comments.Delete(cctx, c.ID); err != nil {
		if errors.Is(err, comment.ErrNotFound) {
			return rpc.NotFound("comment not found")
		}
		return storeFailed(ctx, h.log, call, err, "Could not delete comment")
	}

	return rpc.OK(http.StatusOK, "comment deleted", nil)
}
