package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/geocoder89/forumhub/internal/auth"
	"github.com/geocoder89/forumhub/internal/cache"
	"github.com/geocoder89/forumhub/internal/domain/post"
	"github.com/geocoder89/forumhub/internal/domain/user"
	"github.com/geocoder89/forumhub/internal/rpc"
	"github.com/geocoder89/forumhub/internal/storage"
)

type Credentials interface {
	Register(ctx context.Context, in auth.RegisterInput) (user.User, error)
	Authenticate(ctx context.Context, username, password string) (auth.Identity, error)
}

type TokenIssuer interface {
	Issue(id auth.Identity) (auth.SignedToken, error)
	TTL() time.Duration
}

type UserStore interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
	UpdateProfile(ctx context.Context, id string, req user.UpdateProfileRequest) (user.User, error)
}

type AuthorPosts interface {
	ListByAuthor(ctx context.Context, f post.UserPostsFilter) ([]post.Post, error)
}

type AvatarPresigner interface {
	PresignAvatar(ctx context.Context, userID, contentType string) (storage.AvatarUpload, error)
}

type UsersOptions struct {
	// GenericLoginErrors answers unknown user and wrong password identically.
	GenericLoginErrors bool
	CookieSecure       bool
	// Feed pages embed author names, so a profile edit drops them.
	Feed cache.Store
}

type UsersHandler struct {
	creds   Credentials
	tokens  TokenIssuer
	users   UserStore
	posts   AuthorPosts
	avatars AvatarPresigner
	opts    UsersOptions
	log     *slog.Logger
}

func NewUsersHandler(
	creds Credentials,
	tokens TokenIssuer,
	users UserStore,
	posts AuthorPosts,
	avatars AvatarPresigner,
	opts UsersOptions,
	log *slog.Logger,
) *UsersHandler {
	return &UsersHandler{
		creds:   creds,
		tokens:  tokens,
		users:   users,
		posts:   posts,
		avatars: avatars,
		opts:    opts,
		log:     loggerOr(log),
	}
}

func (h *UsersHandler) Procedures() []rpc.Procedure {
	return []rpc.Procedure{
		{Name: "user.signUp", Tier: rpc.Public, Kind: rpc.Mutation, Handler: h.SignUp},
		{Name: "user.signIn", Tier: rpc.Public, Kind: rpc.Mutation, Handler: h.SignIn},
		{Name: "user.signOut", Tier: rpc.Public, Kind: rpc.Mutation, Handler: h.SignOut},
		{Name: "user.me", Tier: rpc.Public, Kind: rpc.Query, Handler: h.Me},
		{Name: "user.getProfile", Tier: rpc.Public, Kind: rpc.Query, Handler: h.GetProfile},
		{Name: "user.editProfile", Tier: rpc.Authenticated, Kind: rpc.Mutation, Handler: h.EditProfile},
		{Name: "user.avatarUploadURL", Tier: rpc.Authenticated, Kind: rpc.Mutation, Handler: h.AvatarUploadURL},
	}
}

type SignUpInput struct {
	Name     string `json:"name" binding:"required,min=3,max=255"`
	Username string `json:"username" binding:"required,min=3,max=20"`
	Password string `json:"password" binding:"required,min=1,max=72"`
}

type SignInInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type GetProfileInput struct {
	UserID    string `json:"userId" binding:"omitempty,uuid"`
	Username  string `json:"username"`
	WithPosts bool   `json:"withPosts"`
}

type AvatarUploadInput struct {
	ContentType string `json:"contentType" binding:"required,oneof=image/png image/jpeg image/webp"`
}

// Me is what layouts render for the signed-in caller.
type Me struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Name     string    `json:"name"`
	Image    *string   `json:"image"`
	Role     auth.Role `json:"role"`
}

type Profile struct {
	User  user.User   `json:"user"`
	Posts []post.Post `json:"posts,omitempty"`
}

func validUsername(raw string) bool {
	n := utf8.RuneCountInString(user.NormalizeUsername(raw))
	return n >= 3 && n <= 20
}

func (h *UsersHandler) SignUp(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in SignUpInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	if !validUsername(in.Username) {
		return rpc.BadRequest("username must be 3 to 20 characters without spaces")
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	u, err := h.creds.Register(cctx, auth.RegisterInput{
		Name:     in.Name,
		Username: in.Username,
		Password: in.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateUsername):
			return rpc.BadRequest("username already registered")
		case errors.Is(err, auth.ErrInvalidUsername):
			return rpc.BadRequest("username must be 3 to 20 characters without spaces")
		case errors.Is(err, auth.ErrPasswordTooLong):
			return rpc.BadRequest("password must be at most 72 bytes")
		default:
			return storeFailed(ctx, h.log, call, err, "Could not register account")
		}
	}

	return rpc.OK(http.StatusCreated, "account registered", u)
}

func (h *UsersHandler) SignIn(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in SignInInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	id, err := h.creds.Authenticate(cctx, in.Username, in.Password)
	if err != nil {
		switch {
		case h.opts.GenericLoginErrors && (errors.Is(err, auth.ErrUnknownUser) || errors.Is(err, auth.ErrInvalidCredentials)):
			return rpc.Unauthorized("invalid username or password")
		case errors.Is(err, auth.ErrUnknownUser):
			return rpc.BadRequest("account not registered")
		case errors.Is(err, auth.ErrInvalidCredentials):
			return rpc.Unauthorized("wrong password")
		default:
			return storeFailed(ctx, h.log, call, err, "Could not sign in")
		}
	}

	tok, err := h.tokens.Issue(id)
	if err != nil {
		h.log.ErrorContext(ctx, "token_issue_failed", "user_id", id.UserID, "err", err)
		return rpc.StoreFailed("Could not sign in")
	}

	h.log.InfoContext(ctx, "signed_in", "user_id", id.UserID, "role", string(id.Role))

	return rpc.OK(http.StatusOK, "signed in", tok).
		WithCookie(rpc.SessionCookie(tok.Token, h.tokens.TTL(), h.opts.CookieSecure))
}

// SignOut only drops the cookie; an issued token stays valid until it expires.
func (h *UsersHandler) SignOut(_ context.Context, _ rpc.Call) rpc.Envelope {
	return rpc.OK(http.StatusOK, "signed out", nil).
		WithCookie(rpc.ClearSessionCookie(h.opts.CookieSecure))
}

func (h *UsersHandler) Me(ctx context.Context, call rpc.Call) rpc.Envelope {
	if call.Identity == nil {
		return rpc.OK(http.StatusOK, "anonymous", rpc.NullData)
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	u, err := h.users.GetByID(cctx, call.Identity.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return rpc.OK(http.StatusOK, "anonymous", rpc.NullData)
		}
		return storeFailed(ctx, h.log, call, err, "Could not load account")
	}

	return rpc.OK(http.StatusOK, "ok", Me{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name,
		Image:    u.Image,
		Role:     call.Identity.Role,
	})
}

func (h *UsersHandler) GetProfile(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in GetProfileInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		u   user.User
		err error
	)

	switch {
	case in.Username != "":
		u, err = h.users.GetByUsername(cctx, user.NormalizeUsername(in.Username))
	case in.UserID != "":
		u, err = h.users.GetByID(cctx, in.UserID)
	case call.Identity != nil:
		u, err = h.users.GetByID(cctx, call.Identity.UserID)
	default:
		return rpc.BadRequest("userId or username is required")
	}

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return rpc.NotFound("user not found")
		}
		return storeFailed(ctx, h.log, call, err, "Could not load profile")
	}

	out := Profile{User: u}

	if in.WithPosts {
		own := call.UserID() == u.ID
		posts, err := h.posts.ListByAuthor(cctx, post.UserPostsFilter{
			AuthorID:         u.ID,
			IncludeAnonymous: own,
			IncludeTakenDown: own,
		})
		if err != nil {
			return storeFailed(ctx, h.log, call, err, "Could not load profile")
		}
		out.Posts = post.RedactAll(posts, call.UserID())
	}

	return rpc.OK(http.StatusOK, "ok", out)
}

func (h *UsersHandler) EditProfile(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in user.UpdateProfileRequest
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	if !validUsername(in.Username) {
		return rpc.BadRequest("username must be 3 to 20 characters without spaces")
	}
	in.Username = user.NormalizeUsername(in.Username)

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	u, err := h.users.UpdateProfile(cctx, call.UserID(), in)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrUsernameTaken):
			return rpc.BadRequest("username already registered")
		case errors.Is(err, user.ErrNotFound):
			return rpc.NotFound("user not found")
		default:
			return storeFailed(ctx, h.log, call, err, "Could not update profile")
		}
	}

	dropFeedPages(ctx, h.opts.Feed, h.log)

	return rpc.OK(http.StatusCreated, "profile updated", u)
}

func (h *UsersHandler) AvatarUploadURL(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in AvatarUploadInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	if h.avatars == nil {
		return rpc.Unavailable("avatar uploads are disabled")
	}

	up, err := h.avatars.PresignAvatar(ctx, call.UserID(), in.ContentType)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotConfigured):
			return rpc.Unavailable("avatar uploads are disabled")
		case errors.Is(err, storage.ErrUnsupportedContent):
			return rpc.BadRequest("unsupported image type")
		default:
			h.log.ErrorContext(ctx, "avatar_presign_failed", "user_id", call.UserID(), "err", err)
			return rpc.StoreFailed("Could not prepare upload")
		}
	}

	return rpc.OK(http.StatusOK, "upload ready", up)
}
