package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/forumhub/internal/cache"
	"github.com/geocoder89/forumhub/internal/domain/comment"
	"github.com/geocoder89/forumhub/internal/domain/post"
	"github.com/geocoder89/forumhub/internal/rpc"
	"github.com/geocoder89/forumhub/internal/utils"
)

type PostStore interface {
	Create(ctx context.Context, req post.CreateRequest) (post.Post, error)
	GetByID(ctx context.Context, id string) (post.Post, error)
	Feed(ctx context.Context, f post.FeedFilter) ([]post.Post, *string, error)
	ListByAuthor(ctx context.Context, f post.UserPostsFilter) ([]post.Post, error)
	ListReported(ctx context.Context) ([]post.Post, error)
	Update(ctx context.Context, id string, req post.UpdateRequest) (post.Post, error)
	Delete(ctx context.Context, id string) error
	Report(ctx context.Context, req post.ReportRequest) (post.Report, error)
	ListReasons(ctx context.Context, postID string) ([]post.Report, error)
	MarkSafe(ctx context.Context, postID string) error
	TakeDown(ctx context.Context, postID, moderatorID string) error
}

type CommentLister interface {
	ListByPost(ctx context.Context, postID string) ([]comment.Comment, error)
}

type MembershipChecker interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

const (
	feedCachePrefix  = "feed:"
	defaultFeedLimit = 20
)

type PostsHandler struct {
	posts    PostStore
	comments CommentLister
	members  MembershipChecker
	feed     cache.Store
	feedTTL  time.Duration
	log      *slog.Logger
}

// NewPostsHandler caches feed pages in feed for feedTTL. A nil feed disables
// caching.
func NewPostsHandler(
	posts PostStore,
	comments CommentLister,
	members MembershipChecker,
	feed cache.Store,
	feedTTL time.Duration,
	log *slog.Logger,
) *PostsHandler {
	return &PostsHandler{
		posts:    posts,
		comments: comments,
		members:  members,
		feed:     feed,
		feedTTL:  feedTTL,
		log:      loggerOr(log),
	}
}

func (h *PostsHandler) Procedures() []rpc.Procedure {
	return []rpc.Procedure{
		{Name: "post.getFeedByCategory", Tier: rpc.Public, Kind: rpc.Query, Handler: h.GetFeedByCategory},
		{Name: "post.getDetailedPost", Tier: rpc.Public, Kind: rpc.Query, Handler: h.GetDetailedPost},
		{Name: "post.getUserPosts", Tier: rpc.Authenticated, Kind: rpc.Query, Handler: h.GetUserPosts},
		{Name: "post.createPost", Tier: rpc.Authenticated, Kind: rpc.Mutation, Handler: h.CreatePost},
		{Name: "post.updatePost", Tier: rpc.Authenticated, Kind: rpc.Mutation, Handler: h.UpdatePost},
		{Name: "post.deletePost", Tier: rpc.Authenticated, Kind: rpc.Mutation, Handler: h.DeletePost},
		{Name: "post.reportPost", Tier: rpc.Authenticated, Kind: rpc.Mutation, Handler: h.ReportPost},
		{Name: "post.getReportedPost", Tier: rpc.Privileged, Kind: rpc.Query, Handler: h.GetReportedPosts},
		{Name: "post.getPostReportedReasons", Tier: rpc.Privileged, Kind: rpc.Query, Handler: h.GetPostReportedReasons},
		{Name: "post.safePost", Tier: rpc.Privileged, Kind: rpc.Mutation, Handler: h.SafePost},
		{Name: "post.takeDown", Tier: rpc.Privileged, Kind: rpc.Mutation, Handler: h.TakeDown},
	}
}

type FeedInput struct {
	CategoryID string `json:"categoryId" binding:"required,oneof=1 2"`
	Cursor     string `json:"cursor"`
	Limit      int    `json:"limit" binding:"omitempty,min=1,max=50"`
}

type PostIDInput struct {
	PostID string `json:"postId" binding:"required,uuid"`
}

type UserPostsInput struct {
	WithAnonymousPosts bool `json:"withAnonymousPosts"`
	WithComments       bool `json:"withComments"`
}

type CreatePostInput struct {
	Content         string `json:"content" binding:"required,min=1,max=5000"`
	CategoryID      string `json:"categoryId" binding:"required,oneof=1 2"`
	IsAnonymousPost bool   `json:"isAnonymousPost"`
}

type UpdatePostInput struct {
	PostID       string `json:"postId" binding:"required,uuid"`
	Content      string `json:"content" binding:"required,min=1,max=5000"`
	CategoryID   string `json:"categoryId" binding:"required,oneof=1 2"`
	VisibilityTo string `json:"visibilityTo" binding:"required,oneof=anonymous public"`
}

type ReportPostInput struct {
	PostID string `json:"postId" binding:"required,uuid"`
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

type FeedPage struct {
	Items      []post.Post `json:"items"`
	NextCursor *string     `json:"nextCursor"`
	HasMore    bool        `json:"hasMore"`
}

// cachedFeed keeps author ids, which the public JSON drops, so a cached page
// can still be redacted per viewer.
type cachedFeed struct {
	Items     []post.Post `json:"items"`
	AuthorIDs []string    `json:"authorIds"`
	Next      *string     `json:"next"`
}

func feedKey(in FeedInput) string {
	return fmt.Sprintf("%s%s:%d:%s", feedCachePrefix, in.CategoryID, in.Limit, in.Cursor)
}

// categoryFor keeps announcements to developers; everyone else posts to the
// general feed whatever they asked for.
func categoryFor(call rpc.Call, requested string) post.Category {
	if call.IsDeveloper() {
		return post.Category(requested)
	}
	return post.CategoryGeneral
}

func (h *PostsHandler) GetFeedByCategory(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in FeedInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}
	if in.Limit == 0 {
		in.Limit = defaultFeedLimit
	}

	f := post.FeedFilter{Category: post.Category(in.CategoryID), Limit: in.Limit}
	if in.Cursor != "" {
		cur, err := utils.DecodePostCursor(in.Cursor)
		if err != nil {
			return rpc.BadRequest("invalid cursor")
		}
		f.AfterCreatedAt, f.AfterID = cur.CreatedAt, cur.ID
	}

	key := feedKey(in)
	if page, ok := h.cachedFeed(ctx, key); ok {
		return rpc.OK(http.StatusOK, "ok", page.view(call.UserID()))
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	items, next, err := h.posts.Feed(cctx, f)
	if err != nil {
		return storeFailed(ctx, h.log, call, err, "Could not load feed")
	}

	page := newCachedFeed(items, next)
	h.storeFeed(ctx, key, page)

	return rpc.OK(http.StatusOK, "ok", page.view(call.UserID()))
}

func newCachedFeed(items []post.Post, next *string) cachedFeed {
	ids := make([]string, len(items))
	for i, p := range items {
		ids[i] = p.AuthorID
	}
	return cachedFeed{Items: items, AuthorIDs: ids, Next: next}
}

func (c cachedFeed) view(viewerID string) FeedPage {
	items := make([]post.Post, len(c.Items))
	for i, p := range c.Items {
		if i < len(c.AuthorIDs) {
			p.AuthorID = c.AuthorIDs[i]
		}
		items[i] = p.Redacted(viewerID)
	}
	return FeedPage{Items: items, NextCursor: c.Next, HasMore: c.Next != nil}
}

// Cache errors are logged and otherwise ignored; the store is the source of truth.
func (h *PostsHandler) cachedFeed(ctx context.Context, key string) (cachedFeed, bool) {
	if h.feed == nil {
		return cachedFeed{}, false
	}

	raw, ok, err := h.feed.Get(ctx, key)
	if err != nil {
		h.log.WarnContext(ctx, "feed_cache_get_failed", "key", key, "err", err)
		return cachedFeed{}, false
	}
	if !ok {
		return cachedFeed{}, false
	}

	var page cachedFeed
	if err := json.Unmarshal(raw, &page); err != nil {
		return cachedFeed{}, false
	}
	return page, true
}

func (h *PostsHandler) storeFeed(ctx context.Context, key string, page cachedFeed) {
	if h.feed == nil {
		return
	}

	raw, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := h.feed.Set(ctx, key, raw, h.feedTTL); err != nil {
		h.log.WarnContext(ctx, "feed_cache_set_failed", "key", key, "err", err)
	}
}

func (h *PostsHandler) invalidateFeed(ctx context.Context) {
	dropFeedPages(ctx, h.feed, h.log)
}

// dropFeedPages clears every cached feed page after a write that changes what
// a page renders.
func dropFeedPages(ctx context.Context, feed cache.Store, log *slog.Logger) {
	if feed == nil {
		return
	}
	if err := feed.DeletePrefix(ctx, feedCachePrefix); err != nil {
		log.WarnContext(ctx, "feed_cache_invalidate_failed", "err", err)
	}
}

func (h *PostsHandler) gate() postGate {
	return postGate{posts: h.posts, members: h.members, log: h.log}
}

func (h *PostsHandler) GetDetailedPost(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in PostIDInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	p, env, ok := h.gate().readable(cctx, ctx, call, in.PostID)
	if !ok {
		return env
	}

	comments, err := h.comments.ListByPost(cctx, p.ID)
	if err != nil {
		return storeFailed(ctx, h.log, call, err, "Could not load post")
	}
	p.Comments = comments

	return rpc.OK(http.StatusOK, "ok", p.Redacted(call.UserID()))
}

func (h *PostsHandler) GetUserPosts(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in UserPostsInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	posts, err := h.posts.ListByAuthor(cctx, post.UserPostsFilter{
		AuthorID:         call.UserID(),
		IncludeAnonymous: in.WithAnonymousPosts,
		IncludeTakenDown: true,
		WithComments:     in.WithComments,
	})
	if err != nil {
		return storeFailed(ctx, h.log, call, err, "Could not load posts")
	}

	return rpc.OK(http.StatusOK, "ok", post.RedactAll(posts, call.UserID()))
}

func (h *PostsHandler) CreatePost(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in CreatePostInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	p, err := h.posts.Create(cctx, post.CreateRequest{
		Content:     in.Content,
		CategoryID:  categoryFor(call, in.CategoryID),
		IsAnonymous: in.IsAnonymousPost,
		AuthorID:    call.UserID(),
	})
	if err != nil {
		return storeFailed(ctx, h.log, call, err, "Could not create post")
	}

	h.invalidateFeed(ctx)

	return rpc.OK(http.StatusCreated, "post created", p.Redacted(call.UserID()))
}

func (h *PostsHandler) UpdatePost(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in UpdatePostInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	existing, env, ok := h.loadLivePost(cctx, ctx, call, in.PostID)
	if !ok {
		return env
	}

	if existing.AuthorID != call.UserID() {
		return rpc.Forbidden("only the author can edit this post")
	}

	p, err := h.posts.Update(cctx, in.PostID, post.UpdateRequest{
		Content:     in.Content,
		CategoryID:  categoryFor(call, in.CategoryID),
		IsAnonymous: post.Visibility(in.VisibilityTo) == post.VisibilityAnonymous,
	})
	if err != nil {
		if errors.Is(err, post.ErrNotFound) {
			return rpc.NotFound("post not found")
		}
		return storeFailed(ctx, h.log, call, err, "Could not update post")
	}

	h.invalidateFeed(ctx)

	return rpc.OK(http.StatusOK, "post updated", p.Redacted(call.UserID()))
}

func (h *PostsHandler) DeletePost(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in PostIDInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	existing, env, ok := h.loadLivePost(cctx, ctx, call, in.PostID)
	if !ok {
		return env
	}

	if existing.AuthorID != call.UserID() && !call.IsDeveloper() {
		return rpc.Forbidden("only the author can delete this post")
	}

	if err := h.posts.Delete(cctx, in.PostID); err != nil {
		if errors.Is(err, post.ErrNotFound) {
			return rpc.NotFound("post not found")
		}
		return storeFailed(ctx, h.log, call, err, "Could not delete post")
	}

	h.invalidateFeed(ctx)

	return rpc.OK(http.StatusOK, "post deleted", nil)
}

// loadLivePost returns the post unless it is missing or taken down.
func (h *PostsHandler) loadLivePost(cctx, ctx context.Context, call rpc.Call, id string) (post.Post, rpc.Envelope, bool) {
	p, err := h.posts.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, post.ErrNotFound) {
			return post.Post{}, rpc.NotFound("post not found"), false
		}
		return post.Post{}, storeFailed(ctx, h.log, call, err, "Could not load post"), false
	}
	if p.IsTakenDown {
		return post.Post{}, rpc.NotFound("post not found"), false
	}
	return p, rpc.Envelope{}, true
}

func (h *PostsHandler) ReportPost(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in ReportPostInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	rep, err := h.posts.Report(cctx, post.ReportRequest{
		PostID:     in.PostID,
		ReporterID: call.UserID(),
		Reason:     in.Reason,
	})
	if err != nil {
		if errors.Is(err, post.ErrNotFound) {
			return rpc.NotFound("post not found")
		}
		return storeFailed(ctx, h.log, call, err, "Could not report post")
	}

	h.invalidateFeed(ctx)
	h.log.InfoContext(ctx, "post_reported", "post_id", rep.PostID, "report_id", rep.ID)

	return rpc.OK(http.StatusCreated, "post reported", rep)
}

// Moderators see authors of anonymous posts.
func (h *PostsHandler) GetReportedPosts(ctx context.Context, call rpc.Call) rpc.Envelope {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	posts, err := h.posts.ListReported(cctx)
	if err != nil {
		return storeFailed(ctx, h.log, call, err, "Could not load reported posts")
	}

	return rpc.OK(http.StatusOK, "ok", posts)
}

func (h *PostsHandler) GetPostReportedReasons(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in PostIDInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	reasons, err := h.posts.ListReasons(cctx, in.PostID)
	if err != nil {
		return storeFailed(ctx, h.log, call, err, "Could not load report reasons")
	}

	return rpc.OK(http.StatusOK, "ok", reasons)
}

func (h *PostsHandler) SafePost(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in PostIDInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := h.posts.MarkSafe(cctx, in.PostID); err != nil {
		if errors.Is(err, post.ErrNotFound) {
			return rpc.NotFound("post not found")
		}
		return storeFailed(ctx, h.log, call, err, "Could not mark post safe")
	}

	h.invalidateFeed(ctx)
	h.log.InfoContext(ctx, "post_marked_safe", "post_id", in.PostID, "moderator_id", call.UserID())

	return rpc.OK(http.StatusOK, "post marked safe", nil)
}

func (h *PostsHandler) TakeDown(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in PostIDInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := h.posts.TakeDown(cctx, in.PostID, call.UserID()); err != nil {
		if errors.Is(err, post.ErrNotFound) {
			return rpc.NotFound("post not found")
		}
		return storeFailed(ctx, h.log, call, err, "Could not take post down")
	}

	h.invalidateFeed(ctx)
	h.log.InfoContext(ctx, "post_taken_down", "post_id", in.PostID, "moderator_id", call.UserID())

	return rpc.OK(http.StatusOK, "post taken down", nil)
}
