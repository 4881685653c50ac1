package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/geocoder89/forumhub/internal/auth"
	"github.com/geocoder89/forumhub/internal/cache"
	"github.com/geocoder89/forumhub/internal/domain/comment"
	"github.com/geocoder89/forumhub/internal/domain/post"
	"github.com/geocoder89/forumhub/internal/domain/user"
	"github.com/geocoder89/forumhub/internal/http/handlers"
)

type fakePostStore struct {
	createFn       func(ctx context.Context, req post.CreateRequest) (post.Post, error)
	getFn          func(ctx context.Context, id string) (post.Post, error)
	feedFn         func(ctx context.Context, f post.FeedFilter) ([]post.Post, *string, error)
	listByAuthorFn func(ctx context.Context, f post.UserPostsFilter) ([]post.Post, error)
	listReportedFn func(ctx context.Context) ([]post.Post, error)
	updateFn       func(ctx context.Context, id string, req post.UpdateRequest) (post.Post, error)
	deleteFn       func(ctx context.Context, id string) error
	reportFn       func(ctx context.Context, req post.ReportRequest) (post.Report, error)
	reasonsFn      func(ctx context.Context, postID string) ([]post.Report, error)
	markSafeFn     func(ctx context.Context, postID string) error
	takeDownFn     func(ctx context.Context, postID, moderatorID string) error
}

func (f *fakePostStore) Create(ctx context.Context, req post.CreateRequest) (post.Post, error) {
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return post.Post{ID: newID(), Content: req.Content, CategoryID: req.CategoryID, AuthorID: req.AuthorID}, nil
}

func (f *fakePostStore) GetByID(ctx context.Context, id string) (post.Post, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return post.Post{}, post.ErrNotFound
}

func (f *fakePostStore) Feed(ctx context.Context, filter post.FeedFilter) ([]post.Post, *string, error) {
	if f.feedFn != nil {
		return f.feedFn(ctx, filter)
	}
	return []post.Post{}, nil, nil
}

func (f *fakePostStore) ListByAuthor(ctx context.Context, filter post.UserPostsFilter) ([]post.Post, error) {
	if f.listByAuthorFn != nil {
		return f.listByAuthorFn(ctx, filter)
	}
	return []post.Post{}, nil
}

func (f *fakePostStore) ListReported(ctx context.Context) ([]post.Post, error) {
	if f.listReportedFn != nil {
		return f.listReportedFn(ctx)
	}
	return []post.Post{}, nil
}

func (f *fakePostStore) Update(ctx context.Context, id string, req post.UpdateRequest) (post.Post, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, req)
	}
	return post.Post{ID: id, Content: req.Content, CategoryID: req.CategoryID, IsAnonymous: req.IsAnonymous}, nil
}

func (f *fakePostStore) Delete(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

func (f *fakePostStore) Report(ctx context.Context, req post.ReportRequest) (post.Report, error) {
	if f.reportFn != nil {
		return f.reportFn(ctx, req)
	}
	return post.Report{ID: newID(), PostID: req.PostID, ReporterID: req.ReporterID, Reason: req.Reason}, nil
}

func (f *fakePostStore) ListReasons(ctx context.Context, postID string) ([]post.Report, error) {
	if f.reasonsFn != nil {
		return f.reasonsFn(ctx, postID)
	}
	return []post.Report{}, nil
}

func (f *fakePostStore) MarkSafe(ctx context.Context, postID string) error {
	if f.markSafeFn != nil {
		return f.markSafeFn(ctx, postID)
	}
	return nil
}

func (f *fakePostStore) TakeDown(ctx context.Context, postID, moderatorID string) error {
	if f.takeDownFn != nil {
		return f.takeDownFn(ctx, postID, moderatorID)
	}
	return nil
}

type fakeCommentLister struct {
	listFn func(ctx context.Context, postID string) ([]comment.Comment, error)
}

func (f *fakeCommentLister) ListByPost(ctx context.Context, postID string) ([]comment.Comment, error) {
	if f.listFn != nil {
		return f.listFn(ctx, postID)
	}
	return []comment.Comment{}, nil
}

type fakeMembership struct {
	isMemberFn func(ctx context.Context, groupID, userID string) (bool, error)
}

func (f *fakeMembership) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	if f.isMemberFn != nil {
		return f.isMemberFn(ctx, groupID, userID)
	}
	return false, nil
}

func newPostsServer(t *testing.T, store *fakePostStore, feed cache.Store) (*fakeCommentLister, *fakeMembership, *auth.Manager, func(string, string, any, bool) (int, envelope)) {
	t.Helper()

	comments := &fakeCommentLister{}
	members := &fakeMembership{}
	h := handlers.NewPostsHandler(store, comments, members, feed, 30*time.Second, nil)
	r, m := newServer(t, h)

	call := func(procedure, token string, input any, isQuery bool) (int, envelope) {
		if isQuery {
			w, env := query(t, r, procedure, token, input)
			return w.Code, env
		}
		w, env := mutate(t, r, procedure, token, input)
		return w.Code, env
	}
	return comments, members, m, call
}

func TestPosts_CreateForcesGeneralCategoryForCommonUsers(t *testing.T) {
	tests := []struct {
		name string
		role auth.Role
		want post.Category
	}{
		{"common", auth.RoleCommon, post.CategoryGeneral},
		{"developer", auth.RoleDeveloper, post.CategoryAnnouncements},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got post.CreateRequest
			store := &fakePostStore{createFn: func(_ context.Context, req post.CreateRequest) (post.Post, error) {
				got = req
				return post.Post{ID: newID(), CategoryID: req.CategoryID, AuthorID: req.AuthorID}, nil
			}}
			_, _, m, call := newPostsServer(t, store, nil)

			userID := newID()
			code, env := call("post.createPost", tokenFor(t, m, userID, tt.role),
				map[string]any{"content": "halo", "categoryId": "2", "isAnonymousPost": true}, false)
			if code != http.StatusCreated {
				t.Fatalf("expected 201, got %d (%s)", code, env.Message)
			}
			if got.CategoryID != tt.want {
				t.Fatalf("expected category %q, got %q", tt.want, got.CategoryID)
			}
			if got.AuthorID != userID || !got.IsAnonymous {
				t.Fatalf("unexpected create request %+v", got)
			}
		})
	}
}

func TestPosts_CreateRequiresToken(t *testing.T) {
	_, _, _, call := newPostsServer(t, &fakePostStore{}, nil)

	code, env := call("post.createPost", "", map[string]any{"content": "x", "categoryId": "1"}, false)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if env.Message != "Sign in first" {
		t.Fatalf("unexpected message %q", env.Message)
	}
}

func TestPosts_UpdateAndDeleteOwnership(t *testing.T) {
	authorID := newID()
	postID := newID()

	store := &fakePostStore{getFn: func(_ context.Context, id string) (post.Post, error) {
		if id != postID {
			return post.Post{}, post.ErrNotFound
		}
		return post.Post{ID: postID, AuthorID: authorID, CategoryID: post.CategoryGeneral}, nil
	}}
	_, _, m, call := newPostsServer(t, store, nil)

	author := tokenFor(t, m, authorID, auth.RoleCommon)
	stranger := tokenFor(t, m, newID(), auth.RoleCommon)
	developer := tokenFor(t, m, newID(), auth.RoleDeveloper)

	update := map[string]any{"postId": postID, "content": "edited", "categoryId": "1", "visibilityTo": "anonymous"}

	tests := []struct {
		name      string
		procedure string
		token     string
		input     any
		want      int
	}{
		{"stranger cannot update", "post.updatePost", stranger, update, http.StatusForbidden},
		{"developer cannot update", "post.updatePost", developer, update, http.StatusForbidden},
		{"author updates", "post.updatePost", author, update, http.StatusOK},
		{"missing post", "post.updatePost", author, map[string]any{"postId": newID(), "content": "x", "categoryId": "1", "visibilityTo": "public"}, http.StatusNotFound},
		{"bad visibility", "post.updatePost", author, map[string]any{"postId": postID, "content": "x", "categoryId": "1", "visibilityTo": "secret"}, http.StatusBadRequest},
		{"stranger cannot delete", "post.deletePost", stranger, map[string]any{"postId": postID}, http.StatusForbidden},
		{"developer deletes", "post.deletePost", developer, map[string]any{"postId": postID}, http.StatusOK},
		{"author deletes", "post.deletePost", author, map[string]any{"postId": postID}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := call(tt.procedure, tt.token, tt.input, false)
			if code != tt.want {
				t.Fatalf("expected %d, got %d (%s)", tt.want, code, env.Message)
			}
		})
	}
}

func TestPosts_ModerationIsPrivileged(t *testing.T) {
	store := &fakePostStore{listReportedFn: func(context.Context) ([]post.Post, error) {
		return []post.Post{{ID: newID(), IsReported: true}}, nil
	}}
	_, _, m, call := newPostsServer(t, store, nil)

	code, _ := call("post.getReportedPost", tokenFor(t, m, newID(), auth.RoleCommon), nil, true)
	if code != http.StatusForbidden {
		t.Fatalf("common caller: expected 403, got %d", code)
	}

	code, _ = call("post.getReportedPost", tokenFor(t, m, newID(), auth.RoleDeveloper), nil, true)
	if code != http.StatusOK {
		t.Fatalf("developer: expected 200, got %d", code)
	}

	code, _ = call("post.takeDown", tokenFor(t, m, newID(), auth.RoleCommon), map[string]any{"postId": newID()}, false)
	if code != http.StatusForbidden {
		t.Fatalf("common takeDown: expected 403, got %d", code)
	}
}

func TestPosts_TakeDownAndSafe(t *testing.T) {
	knownID := newID()
	moderatorID := newID()

	var takenBy string
	store := &fakePostStore{
		takeDownFn: func(_ context.Context, postID, modID string) error {
			if postID != knownID {
				return post.ErrNotFound
			}
			takenBy = modID
			return nil
		},
		markSafeFn: func(_ context.Context, postID string) error {
			if postID != knownID {
				return post.ErrNotFound
			}
			return nil
		},
	}
	_, _, m, call := newPostsServer(t, store, nil)
	dev := tokenFor(t, m, moderatorID, auth.RoleDeveloper)

	if code, _ := call("post.takeDown", dev, map[string]any{"postId": knownID}, false); code != http.StatusOK {
		t.Fatalf("takeDown: expected 200, got %d", code)
	}
	if takenBy != moderatorID {
		t.Fatalf("expected moderator %s, got %s", moderatorID, takenBy)
	}
	if code, _ := call("post.takeDown", dev, map[string]any{"postId": newID()}, false); code != http.StatusNotFound {
		t.Fatalf("takeDown missing: expected 404, got %d", code)
	}
	if code, _ := call("post.safePost", dev, map[string]any{"postId": knownID}, false); code != http.StatusOK {
		t.Fatalf("safePost: expected 200, got %d", code)
	}
}

func TestPosts_ReportPost(t *testing.T) {
	store := &fakePostStore{reportFn: func(_ context.Context, req post.ReportRequest) (post.Report, error) {
		return post.Report{}, post.ErrNotFound
	}}
	_, _, m, call := newPostsServer(t, store, nil)
	tok := tokenFor(t, m, newID(), auth.RoleCommon)

	if code, _ := call("post.reportPost", tok, map[string]any{"postId": newID(), "reason": "spam"}, false); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}

	store.reportFn = nil
	if code, _ := call("post.reportPost", tok, map[string]any{"postId": newID(), "reason": "spam"}, false); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}

	if code, _ := call("post.reportPost", tok, map[string]any{"postId": newID(), "reason": ""}, false); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty reason, got %d", code)
	}
}

func TestPosts_StoreFailureIs500(t *testing.T) {
	store := &fakePostStore{feedFn: func(context.Context, post.FeedFilter) ([]post.Post, *string, error) {
		return nil, nil, errors.New("connection refused")
	}}
	_, _, _, call := newPostsServer(t, store, nil)

	code, env := call("post.getFeedByCategory", "", map[string]any{"categoryId": "1"}, true)
	if code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", code)
	}
	if env.Message != "Could not load feed" {
		t.Fatalf("cause must not leak, got %q", env.Message)
	}
}

func TestPosts_FeedHidesAnonymousAuthors(t *testing.T) {
	authorID := newID()
	store := &fakePostStore{feedFn: func(context.Context, post.FeedFilter) ([]post.Post, *string, error) {
		return []post.Post{{
			ID:          newID(),
			AuthorID:    authorID,
			Author:      &user.Summary{ID: authorID, Username: "budi"},
			IsAnonymous: true,
			CategoryID:  post.CategoryGeneral,
		}}, nil, nil
	}}
	_, _, m, call := newPostsServer(t, store, cache.New(time.Minute))

	for _, tc := range []struct {
		name       string
		token      string
		wantAuthor bool
	}{
		{"anonymous viewer", "", false},
		{"another user", tokenFor(t, m, newID(), auth.RoleCommon), false},
		{"the author", tokenFor(t, m, authorID, auth.RoleCommon), true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			code, env := call("post.getFeedByCategory", tc.token, map[string]any{"categoryId": "1"}, true)
			if code != http.StatusOK {
				t.Fatalf("expected 200, got %d", code)
			}

			var page handlers.FeedPage
			decodeData(t, env, &page)
			if len(page.Items) != 1 {
				t.Fatalf("expected 1 item, got %d", len(page.Items))
			}
			if got := page.Items[0].Author != nil; got != tc.wantAuthor {
				t.Fatalf("author visible = %v, want %v", got, tc.wantAuthor)
			}
		})
	}
}

func TestPosts_FeedCacheInvalidatedOnWrite(t *testing.T) {
	calls := 0
	store := &fakePostStore{feedFn: func(_ context.Context, f post.FeedFilter) ([]post.Post, *string, error) {
		calls++
		if f.Limit != 20 {
			t.Errorf("expected default limit 20, got %d", f.Limit)
		}
		return []post.Post{}, nil, nil
	}}
	_, _, m, call := newPostsServer(t, store, cache.New(time.Minute))

	feed := map[string]any{"categoryId": "1"}

	call("post.getFeedByCategory", "", feed, true)
	call("post.getFeedByCategory", "", feed, true)
	if calls != 1 {
		t.Fatalf("expected cached second read, store hit %d times", calls)
	}

	call("post.createPost", tokenFor(t, m, newID(), auth.RoleCommon), map[string]any{"content": "x", "categoryId": "1"}, false)

	call("post.getFeedByCategory", "", feed, true)
	if calls != 2 {
		t.Fatalf("expected cache invalidation after write, store hit %d times", calls)
	}
}

func TestPosts_ModerationWritesDropFeedPages(t *testing.T) {
	tests := []struct {
		name      string
		procedure string
		role      auth.Role
		input     map[string]any
	}{
		{"report", "post.reportPost", auth.RoleCommon, map[string]any{"postId": newID(), "reason": "spam"}},
		{"safe", "post.safePost", auth.RoleDeveloper, map[string]any{"postId": newID()}},
		{"take down", "post.takeDown", auth.RoleDeveloper, map[string]any{"postId": newID()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			store := &fakePostStore{feedFn: func(context.Context, post.FeedFilter) ([]post.Post, *string, error) {
				calls++
				return []post.Post{}, nil, nil
			}}
			_, _, m, call := newPostsServer(t, store, cache.New(time.Minute))

			feed := map[string]any{"categoryId": "1"}
			call("post.getFeedByCategory", "", feed, true)

			if code, env := call(tt.procedure, tokenFor(t, m, newID(), tt.role), tt.input, false); code >= 300 {
				t.Fatalf("%s failed: %d (%s)", tt.procedure, code, env.Message)
			}

			call("post.getFeedByCategory", "", feed, true)
			if calls != 2 {
				t.Fatalf("expected feed reloaded after %s, store hit %d times", tt.procedure, calls)
			}
		})
	}
}

func TestPosts_FeedRejectsBadInput(t *testing.T) {
	_, _, _, call := newPostsServer(t, &fakePostStore{}, nil)

	if code, _ := call("post.getFeedByCategory", "", map[string]any{"categoryId": "3"}, true); code != http.StatusBadRequest {
		t.Fatalf("unknown category: expected 400, got %d", code)
	}
	if code, _ := call("post.getFeedByCategory", "", map[string]any{"categoryId": "1", "cursor": "%%%"}, true); code != http.StatusBadRequest {
		t.Fatalf("bad cursor: expected 400, got %d", code)
	}
}

func TestPosts_DetailedPost(t *testing.T) {
	groupID := newID()
	memberID := newID()
	publicID, groupPostID, downID := newID(), newID(), newID()

	store := &fakePostStore{getFn: func(_ context.Context, id string) (post.Post, error) {
		switch id {
		case publicID:
			return post.Post{ID: id}, nil
		case groupPostID:
			return post.Post{ID: id, GroupID: &groupID}, nil
		case downID:
			return post.Post{ID: id, IsTakenDown: true}, nil
		}
		return post.Post{}, post.ErrNotFound
	}}
	comments, members, m, call := newPostsServer(t, store, nil)

	comments.listFn = func(_ context.Context, postID string) ([]comment.Comment, error) {
		return []comment.Comment{{ID: newID(), PostID: postID, Content: "nice"}}, nil
	}
	members.isMemberFn = func(_ context.Context, gid, uid string) (bool, error) {
		return gid == groupID && uid == memberID, nil
	}

	tests := []struct {
		name   string
		postID string
		token  string
		want   int
	}{
		{"public post", publicID, "", http.StatusOK},
		{"missing", newID(), "", http.StatusNotFound},
		{"taken down hidden", downID, "", http.StatusNotFound},
		{"taken down for developer", downID, tokenFor(t, m, newID(), auth.RoleDeveloper), http.StatusOK},
		{"group post anonymous", groupPostID, "", http.StatusForbidden},
		{"group post outsider", groupPostID, tokenFor(t, m, newID(), auth.RoleCommon), http.StatusForbidden},
		{"group post member", groupPostID, tokenFor(t, m, memberID, auth.RoleCommon), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := call("post.getDetailedPost", tt.token, map[string]any{"postId": tt.postID}, true)
			if code != tt.want {
				t.Fatalf("expected %d, got %d (%s)", tt.want, code, env.Message)
			}
			if code == http.StatusOK {
				var p post.Post
				decodeData(t, env, &p)
				if len(p.Comments) != 1 {
					t.Fatalf("expected comments attached, got %+v", p.Comments)
				}
			}
		})
	}
}

func TestPosts_UserPostsShowOwnTakenDown(t *testing.T) {
	var got post.UserPostsFilter
	store := &fakePostStore{listByAuthorFn: func(_ context.Context, f post.UserPostsFilter) ([]post.Post, error) {
		got = f
		return []post.Post{}, nil
	}}
	_, _, m, call := newPostsServer(t, store, nil)

	userID := newID()
	if code, _ := call("post.getUserPosts", tokenFor(t, m, userID, auth.RoleCommon), map[string]any{"withAnonymousPosts": true}, true); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if got.AuthorID != userID || !got.IncludeAnonymous || !got.IncludeTakenDown {
		t.Fatalf("unexpected filter %+v", got)
	}
}
