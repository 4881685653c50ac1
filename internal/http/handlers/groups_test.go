package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/geocoder89/forumhub/internal/auth"
	"github.com/geocoder89/forumhub/internal/domain/group"
	"github.com/geocoder89/forumhub/internal/domain/post"
	"github.com/geocoder89/forumhub/internal/domain/user"
	"github.com/geocoder89/forumhub/internal/http/handlers"
)

type fakeGroupStore struct {
	createFn       func(ctx context.Context, req group.CreateRequest) (group.Group, []group.Invitation, error)
	listByMemberFn func(ctx context.Context, userID string) ([]group.Group, error)
	searchFn       func(ctx context.Context, term string, limit int) ([]group.Group, error)
	getByPublicFn  func(ctx context.Context, publicID string) (group.Group, error)
	isMemberFn     func(ctx context.Context, groupID, userID string) (bool, error)
	pendingFn      func(ctx context.Context, userID string) ([]group.Invitation, error)
	respondFn      func(ctx context.Context, inviteID, groupID, inviteeID string, accept bool) error
}

func (f *fakeGroupStore) Create(ctx context.Context, req group.CreateRequest) (group.Group, []group.Invitation, error) {
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return group.Group{ID: newID(), PublicID: newID(), Name: req.Name, OwnerID: req.OwnerID}, nil, nil
}

func (f *fakeGroupStore) ListByMember(ctx context.Context, userID string) ([]group.Group, error) {
	if f.listByMemberFn != nil {
		return f.listByMemberFn(ctx, userID)
	}
	return []group.Group{}, nil
}

func (f *fakeGroupStore) Search(ctx context.Context, term string, limit int) ([]group.Group, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx, term, limit)
	}
	return []group.Group{}, nil
}

func (f *fakeGroupStore) GetByPublicID(ctx context.Context, publicID string) (group.Group, error) {
	if f.getByPublicFn != nil {
		return f.getByPublicFn(ctx, publicID)
	}
	return group.Group{}, group.ErrNotFound
}

func (f *fakeGroupStore) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	if f.isMemberFn != nil {
		return f.isMemberFn(ctx, groupID, userID)
	}
	return false, nil
}

func (f *fakeGroupStore) ListPendingInvitations(ctx context.Context, userID string) ([]group.Invitation, error) {
	if f.pendingFn != nil {
		return f.pendingFn(ctx, userID)
	}
	return []group.Invitation{}, nil
}

func (f *fakeGroupStore) RespondInvitation(ctx context.Context, inviteID, groupID, inviteeID string, accept bool) error {
	if f.respondFn != nil {
		return f.respondFn(ctx, inviteID, groupID, inviteeID, accept)
	}
	return nil
}

type fakeUsernameResolver struct {
	known map[string]string
}

func (f *fakeUsernameResolver) FindByUsernames(_ context.Context, usernames []string) ([]user.Summary, error) {
	out := []user.Summary{}
	for _, n := range usernames {
		if id, ok := f.known[n]; ok {
			out = append(out, user.Summary{ID: id, Username: n})
		}
	}
	return out, nil
}

type fakeGroupPosts struct {
	created []post.CreateRequest
	listFn  func(ctx context.Context, groupID string) ([]post.Post, error)
}

func (f *fakeGroupPosts) Create(_ context.Context, req post.CreateRequest) (post.Post, error) {
	f.created = append(f.created, req)
	return post.Post{ID: newID(), GroupID: req.GroupID, AuthorID: req.AuthorID}, nil
}

func (f *fakeGroupPosts) ListByGroup(ctx context.Context, groupID string) ([]post.Post, error) {
	if f.listFn != nil {
		return f.listFn(ctx, groupID)
	}
	return []post.Post{}, nil
}

func TestGroups_CreateResolvesInvitees(t *testing.T) {
	sariID := newID()

	var got group.CreateRequest
	store := &fakeGroupStore{createFn: func(_ context.Context, req group.CreateRequest) (group.Group, []group.Invitation, error) {
		got = req
		return group.Group{ID: newID(), PublicID: newID(), Name: req.Name}, []group.Invitation{{ID: newID(), InviteeID: sariID}}, nil
	}}
	users := &fakeUsernameResolver{known: map[string]string{"sari": sariID}}
	r, m := newServer(t, handlers.NewGroupsHandler(store, users, &fakeGroupPosts{}, nil))

	ownerID := newID()
	w, env := mutate(t, r, "group.createGroup", tokenFor(t, m, ownerID, auth.RoleCommon), map[string]any{
		"name":            "  Pecinta Kopi ",
		"description":     "ngopi",
		"invitedUsername": []string{"sa ri", "ghost"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}

	if got.OwnerID != ownerID || got.Name != "Pecinta Kopi" {
		t.Fatalf("unexpected create request %+v", got)
	}
	if len(got.InviteeIDs) != 1 || got.InviteeIDs[0] != sariID {
		t.Fatalf("expected only sari invited, got %v", got.InviteeIDs)
	}

	var created handlers.CreatedGroup
	decodeData(t, env, &created)
	if len(created.Invitations) != 1 {
		t.Fatalf("expected 1 invitation, got %d", len(created.Invitations))
	}
}

func TestGroups_AcceptOrDeclineInvite(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    string
		want    int
		wantMsg string
	}{
		{"accept", nil, "accept", http.StatusOK, "invitation accepted"},
		{"decline", nil, "decline", http.StatusOK, "invitation declined"},
		{"not invitee", group.ErrInvitationNotFound, "accept", http.StatusNotFound, "invitation not found"},
		{"already answered", group.ErrInvitationResolved, "accept", http.StatusConflict, "invitation already answered"},
		{"bad type", nil, "maybe", http.StatusBadRequest, "Invalid input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callerID := newID()
			var gotAccept bool
			var gotInvitee string

			store := &fakeGroupStore{respondFn: func(_ context.Context, _, _, inviteeID string, accept bool) error {
				gotAccept, gotInvitee = accept, inviteeID
				return tt.err
			}}
			r, m := newServer(t, handlers.NewGroupsHandler(store, &fakeUsernameResolver{}, &fakeGroupPosts{}, nil))

			w, env := mutate(t, r, "group.acceptOrDeclineInvite", tokenFor(t, m, callerID, auth.RoleCommon), map[string]any{
				"type": tt.kind, "inviteId": newID(), "groupId": newID(),
			})
			if w.Code != tt.want || env.Message != tt.wantMsg {
				t.Fatalf("expected %d %q, got %d %q", tt.want, tt.wantMsg, w.Code, env.Message)
			}
			if tt.err == nil && w.Code == http.StatusOK {
				if gotInvitee != callerID || gotAccept != (tt.kind == "accept") {
					t.Fatalf("unexpected respond call invitee=%s accept=%v", gotInvitee, gotAccept)
				}
			}
		})
	}
}

func TestGroups_MembersOnly(t *testing.T) {
	g := group.Group{ID: newID(), PublicID: newID(), Name: "Kopi"}
	memberID := newID()

	store := &fakeGroupStore{
		getByPublicFn: func(_ context.Context, publicID string) (group.Group, error) {
			if publicID == g.PublicID {
				return g, nil
			}
			return group.Group{}, group.ErrNotFound
		},
		isMemberFn: func(_ context.Context, groupID, userID string) (bool, error) {
			return groupID == g.ID && userID == memberID, nil
		},
	}
	posts := &fakeGroupPosts{}
	r, m := newServer(t, handlers.NewGroupsHandler(store, &fakeUsernameResolver{}, posts, nil))

	member := tokenFor(t, m, memberID, auth.RoleCommon)
	outsider := tokenFor(t, m, newID(), auth.RoleCommon)

	if w, _ := query(t, r, "group.getGroupByPublicId", member, map[string]any{"publicId": g.PublicID}); w.Code != http.StatusOK {
		t.Fatalf("member view: expected 200, got %d", w.Code)
	}

	w, env := query(t, r, "group.getGroupByPublicId", outsider, map[string]any{"publicId": g.PublicID})
	if w.Code != http.StatusForbidden {
		t.Fatalf("outsider view: expected 403, got %d", w.Code)
	}
	var detail handlers.GroupDetail
	decodeData(t, env, &detail)
	if detail.Group.ID != g.ID || len(detail.Posts) != 0 {
		t.Fatalf("outsider should see the group without posts, got %+v", detail)
	}

	if w, _ := query(t, r, "group.getGroupByPublicId", member, map[string]any{"publicId": newID()}); w.Code != http.StatusNotFound {
		t.Fatalf("missing group: expected 404, got %d", w.Code)
	}

	input := map[string]any{"content": "halo", "groupPublicId": g.PublicID}
	if w, _ := mutate(t, r, "group.createGroupPost", outsider, input); w.Code != http.StatusForbidden {
		t.Fatalf("outsider post: expected 403, got %d", w.Code)
	}
	if w, _ := mutate(t, r, "group.createGroupPost", member, input); w.Code != http.StatusCreated {
		t.Fatalf("member post: expected 201, got %d", w.Code)
	}

	if len(posts.created) != 1 || posts.created[0].GroupID == nil || *posts.created[0].GroupID != g.ID {
		t.Fatalf("expected one post in the group, got %+v", posts.created)
	}
}

func TestGroups_SearchUsesLimit(t *testing.T) {
	var gotTerm string
	var gotLimit int
	store := &fakeGroupStore{searchFn: func(_ context.Context, term string, limit int) ([]group.Group, error) {
		gotTerm, gotLimit = term, limit
		return []group.Group{}, nil
	}}
	r, m := newServer(t, handlers.NewGroupsHandler(store, &fakeUsernameResolver{}, &fakeGroupPosts{}, nil))

	w, _ := query(t, r, "group.getGroupByQuery", tokenFor(t, m, newID(), auth.RoleCommon), map[string]any{"searchTerm": " kopi "})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotTerm != "kopi" || gotLimit != 20 {
		t.Fatalf("unexpected search term=%q limit=%d", gotTerm, gotLimit)
	}

	if w, _ := query(t, r, "group.getGroupByQuery", "", map[string]any{}); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous search: expected 401, got %d", w.Code)
	}
}
