package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/geocoder89/forumhub/internal/domain/group"
	"github.com/geocoder89/forumhub/internal/domain/post"
	"github.com/geocoder89/forumhub/internal/domain/user"
	"github.com/geocoder89/forumhub/internal/rpc"
)

type GroupStore interface {
	Create(ctx context.Context, req group.CreateRequest) (group.Group, []group.Invitation, error)
	ListByMember(ctx context.Context, userID string) ([]group.Group, error)
	Search(ctx context.Context, term string, limit int) ([]group.Group, error)
	GetByPublicID(ctx context.Context, publicID string) (group.Group, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	ListPendingInvitations(ctx context.Context, userID string) ([]group.Invitation, error)
	RespondInvitation(ctx context.Context, inviteID, groupID, inviteeID string, accept bool) error
}

type UsernameResolver interface {
	FindByUsernames(ctx context.Context, usernames []string) ([]user.Summary, error)
}

type GroupPostStore interface {
	Create(ctx context.Context, req post.CreateRequest) (post.Post, error)
	ListByGroup(ctx context.Context, groupID string) ([]post.Post, error)
}

const groupSearchLimit = 20

type GroupsHandler struct {
	groups GroupStore
	users  UsernameResolver
	posts  GroupPostStore
	log    *slog.Logger
}

func NewGroupsHandler(groups GroupStore, users UsernameResolver, posts GroupPostStore, log *slog.Logger) *GroupsHandler {
	return &GroupsHandler{groups: groups, users: users, posts: posts, log: loggerOr(log)}
}

func (h *GroupsHandler) Procedures() []rpc.Procedure {
	return []rpc.Procedure{
		{Name: "group.getAllGroupByUser", Tier: rpc.Authenticated, Kind: rpc.Query, Handler: h.GetAllGroupByUser},
		{Name: "group.createGroup", Tier: rpc.Authenticated, Kind: rpc.Mutation, Handler: h.CreateGroup},
		{Name: "group.getGroupInvitation", Tier: rpc.Authenticated, Kind: rpc.Query, Handler: h.GetGroupInvitation},
		{Name: "group.acceptOrDeclineInvite", Tier: rpc.Authenticated, Kind: rpc.Mutation, Handler: h.AcceptOrDeclineInvite},
		{Name: "group.getGroupByQuery", Tier: rpc.Authenticated, Kind: rpc.Query, Handler: h.GetGroupByQuery},
		{Name: "group.getGroupByPublicId", Tier: rpc.Authenticated, Kind: rpc.Query, Handler: h.GetGroupByPublicID},
		{Name: "group.createGroupPost", Tier: rpc.Authenticated, Kind: rpc.Mutation, Handler: h.CreateGroupPost},
	}
}

type CreateGroupInput struct {
	Name            string   `json:"name" binding:"required,min=3,max=100"`
	Description     string   `json:"description" binding:"max=500"`
	InvitedUsername []string `json:"invitedUsername" binding:"omitempty,max=50,dive,required,max=40"`
}

type InviteResponseInput struct {
	Type     string `json:"type" binding:"required,oneof=accept decline"`
	InviteID string `json:"inviteId" binding:"required,uuid"`
	GroupID  string `json:"groupId" binding:"required,uuid"`
}

type GroupSearchInput struct {
	SearchTerm string `json:"searchTerm" binding:"max=100"`
}

type GroupPublicIDInput struct {
	PublicID string `json:"publicId" binding:"required,uuid"`
}

type CreateGroupPostInput struct {
	Content         string `json:"content" binding:"required,min=1,max=5000"`
	GroupPublicID   string `json:"groupPublicId" binding:"required,uuid"`
	IsAnonymousPost bool   `json:"isAnonymousPost"`
}

type CreatedGroup struct {
	Group       group.Group        `json:"group"`
	Invitations []group.Invitation `json:"invitations"`
}

type GroupDetail struct {
	Group    group.Group `json:"group"`
	IsMember bool        `json:"isMember"`
	Posts    []post.Post `json:"posts"`
}

func (h *GroupsHandler) GetAllGroupByUser(ctx context.Context, call rpc.Call) rpc.Envelope {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	groups, err := h.groups.ListByMember(cctx, call.UserID())
	if err != nil {
		return storeFailed(ctx, h.log, call, err, "Could not load groups")
	}

	return rpc.OK(http.StatusOK, "ok", groups)
}

// CreateGroup silently skips usernames that do not exist.
func (h *GroupsHandler) CreateGroup(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in CreateGroupInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	var inviteeIDs []string
	if len(in.InvitedUsername) > 0 {
		names := make([]string, 0, len(in.InvitedUsername))
		for _, n := range in.InvitedUsername {
			if n = user.NormalizeUsername(n); n != "" {
				names = append(names, n)
			}
		}

		found, err := h.users.FindByUsernames(cctx, names)
		if err != nil {
			return storeFailed(ctx, h.log, call, err, "Could not create group")
		}
		for _, u := range found {
			inviteeIDs = append(inviteeIDs, u.ID)
		}
	}

	g, invitations, err := h.groups.Create(cctx, group.CreateRequest{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		OwnerID:     call.UserID(),
		InviteeIDs:  inviteeIDs,
	})
	if err != nil {
		return storeFailed(ctx, h.log, call, err, "Could not create group")
	}

	if invitations == nil {
		invitations = []group.Invitation{}
	}

	h.log.InfoContext(ctx, "group_created", "group_id", g.ID, "invitations", len(invitations))

	return rpc.OK(http.StatusCreated, "group created", CreatedGroup{Group: g, Invitations: invitations})
}

func (h *GroupsHandler) GetGroupInvitation(ctx context.Context, call rpc.Call) rpc.Envelope {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	invitations, err := h.groups.ListPendingInvitations(cctx, call.UserID())
	if err != nil {
		return storeFailed(ctx, h.log, call, err, "Could not load invitations")
	}

	return rpc.OK(http.StatusOK, "ok", invitations)
}

func (h *GroupsHandler) AcceptOrDeclineInvite(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in InviteResponseInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	accept := in.Type == "accept"

	err := h.groups.RespondInvitation(cctx, in.InviteID, in.GroupID, call.UserID(), accept)
	if err != nil {
		switch {
		case errors.Is(err, group.ErrInvitationNotFound):
			return rpc.NotFound("invitation not found")
		case errors.Is(err, group.ErrInvitationResolved):
			return rpc.Conflict("invitation already answered")
		default:
			return storeFailed(ctx, h.log, call, err, "Could not answer invitation")
		}
	}

	if accept {
		return rpc.OK(http.StatusOK, "invitation accepted", nil)
	}
	return rpc.OK(http.StatusOK, "invitation declined", nil)
}

func (h *GroupsHandler) GetGroupByQuery(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in GroupSearchInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	groups, err := h.groups.Search(cctx, strings.TrimSpace(in.SearchTerm), groupSearchLimit)
	if err != nil {
		return storeFailed(ctx, h.log, call, err, "Could not search groups")
	}

	return rpc.OK(http.StatusOK, "ok", groups)
}

// GetGroupByPublicID shows the group to anyone signed in; posts are for
// members only.
func (h *GroupsHandler) GetGroupByPublicID(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in GroupPublicIDInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	g, env, ok := h.loadGroup(cctx, ctx, call, in.PublicID)
	if !ok {
		return env
	}

	member, err := h.groups.IsMember(cctx, g.ID, call.UserID())
	if err != nil {
		return storeFailed(ctx, h.log, call, err, "Could not load group")
	}

	if !member {
		env := rpc.Forbidden("only members can see this group's posts")
		env.Data = GroupDetail{Group: g, Posts: []post.Post{}}
		return env
	}

	posts, err := h.posts.ListByGroup(cctx, g.ID)
	if err != nil {
		return storeFailed(ctx, h.log, call, err, "Could not load group")
	}

	return rpc.OK(http.StatusOK, "ok", GroupDetail{
		Group:    g,
		IsMember: true,
		Posts:    post.RedactAll(posts, call.UserID()),
	})
}

func (h *GroupsHandler) CreateGroupPost(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in CreateGroupPostInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	g, env, ok := h.loadGroup(cctx, ctx, call, in.GroupPublicID)
	if !ok {
		return env
	}

	member, err := h.groups.IsMember(cctx, g.ID, call.UserID())
	if err != nil {
		return storeFailed(ctx, h.log, call, err, "Could not create post")
	}
	if !member {
		return rpc.Forbidden("only members can post in this group")
	}

	groupID := g.ID
	p, err := h.posts.Create(cctx, post.CreateRequest{
		Content:     in.Content,
		CategoryID:  post.CategoryGeneral,
		IsAnonymous: in.IsAnonymousPost,
		AuthorID:    call.UserID(),
		GroupID:     &groupID,
	})
	if err != nil {
		return storeFailed(ctx, h.log, call, err, "Could not create post")
	}

	return rpc.OK(http.StatusCreated, "post created", p.Redacted(call.UserID()))
}

func (h *GroupsHandler) loadGroup(cctx, ctx context.Context, call rpc.Call, publicID string) (group.Group, rpc.Envelope, bool) {
	g, err := h.groups.GetByPublicID(cctx, publicID)
	if err != nil {
		if errors.Is(err, group.ErrNotFound) {
			return group.Group{}, rpc.NotFound("group not found"), false
		}
		return group.Group{}, storeFailed(ctx, h.log, call, err, "Could not load group"), false
	}
	return g, rpc.Envelope{}, true
}
