package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/forumhub/internal/domain/user"
	"github.com/geocoder89/forumhub/internal/security"
	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	Create(ctx context.Context, req user.CreateRequest) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
}

type PasswordHasher interface {
	HashPassword(plain string) (string, error)
	CheckPassword(hash, plain string) error
}

type RegisterInput struct {
	Name     string
	Username string
	Password string
}

// CredentialService owns sign-up and sign-in against stored bcrypt hashes.
type CredentialService struct {
	users      UserStore
	hasher     PasswordHasher
	developers map[string]struct{}
}

func NewCredentialService(users UserStore, hasher PasswordHasher, developerUsernames []string) *CredentialService {
	devs := make(map[string]struct{}, len(developerUsernames))
	for _, u := range developerUsernames {
		devs[user.NormalizeUsername(u)] = struct{}{}
	}

	return &CredentialService{
		users:      users,
		hasher:     hasher,
		developers: devs,
	}
}

func (s *CredentialService) Register(ctx context.Context, in RegisterInput) (user.User, error) {
	username := user.NormalizeUsername(in.Username)
	if username == "" {
		return user.User{}, ErrInvalidUsername
	}
	if len(in.Password) > security.MaxPasswordBytes {
		return user.User{}, ErrPasswordTooLong
	}

	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return user.User{}, ErrDuplicateUsername
	}
	if !errors.Is(err, user.ErrNotFound) {
		return user.User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return user.User{}, ErrPasswordTooLong
		}
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.users.Create(ctx, user.CreateRequest{
		Name:         in.Name,
		Username:     username,
		PasswordHash: hash,
		Role:         string(s.defaultRole(username)),
	})
	if err != nil {
		// lost the race against a concurrent sign-up with the same name
		if errors.Is(err, user.ErrUsernameTaken) {
			return user.User{}, ErrDuplicateUsername
		}
		return user.User{}, fmt.Errorf("create user: %w", err)
	}

	return created, nil
}

// Authenticate keeps ErrUnknownUser and ErrInvalidCredentials distinct;
// collapsing them for callers is the transport's decision.
func (s *CredentialService) Authenticate(ctx context.Context, username, password string) (Identity, error) {
	u, err := s.users.GetByUsername(ctx, user.NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Identity{}, ErrUnknownUser
		}
		return Identity{}, fmt.Errorf("lookup user: %w", err)
	}

	err = s.hasher.CheckPassword(u.PasswordHash, password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, fmt.Errorf("check password: %w", err)
	}

	role, err := ParseRole(u.Role)
	if err != nil {
		return Identity{}, fmt.Errorf("stored role: %w", err)
	}

	return Identity{UserID: u.ID, Role: role}, nil
}

func (s *CredentialService) defaultRole(username string) Role {
	if _, ok := s.developers[username]; ok {
		return RoleDeveloper
	}
	return RoleCommon
}
