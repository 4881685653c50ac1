package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/forumhub/internal/domain/user"
	"github.com/google/uuid"
)

// UsersRepo is a map-backed user store with the same uniqueness rules as the
// users table. Used by tests and local runs without Postgres.
type UsersRepo struct {
	mu         sync.RWMutex
	items      map[string]user.User // id -> user
	byUsername map[string]string    // username -> id
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items:      make(map[string]user.User),
		byUsername: make(map[string]string),
	}
}

func (r *UsersRepo) Create(_ context.Context, req user.CreateRequest) (user.User, error) {
	now := time.Now().UTC()
	u := user.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Username:     req.Username,
		PasswordHash: req.PasswordHash,
		Role:         req.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byUsername[u.Username]; taken {
		return user.User{}, user.ErrUsernameTaken
	}

	r.items[u.ID] = u
	r.byUsername[u.Username] = u.ID

	return u, nil
}

func (r *UsersRepo) GetByUsername(_ context.Context, username string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return r.items[id], nil
}

func (r *UsersRepo) GetByID(_ context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) UpdateProfile(_ context.Context, id string, req user.UpdateProfileRequest) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	if owner, taken := r.byUsername[req.Username]; taken && owner != id {
		return user.User{}, user.ErrUsernameTaken
	}

	delete(r.byUsername, u.Username)
	u.Name = req.Name
	u.Username = req.Username
	u.Bio = req.Bio
	u.Image = req.Image
	u.UpdatedAt = time.Now().UTC()

	r.items[id] = u
	r.byUsername[u.Username] = id

	return u, nil
}

func (r *UsersRepo) FindByUsernames(_ context.Context, usernames []string) ([]user.Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]user.Summary, 0, len(usernames))
	for _, name := range usernames {
		id, ok := r.byUsername[name]
		if !ok {
			continue
		}
		u := r.items[id]
		out = append(out, user.Summary{ID: u.ID, Username: u.Username, Name: u.Name, Image: u.Image})
	}
	return out, nil
}
