package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/geocoder89/forumhub/internal/domain/user"
	"github.com/geocoder89/forumhub/internal/repo/memory"
	"github.com/geocoder89/forumhub/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestCredentials(devs ...string) (*CredentialService, *memory.UsersRepo) {
	repo := memory.NewUsersRepo()
	return NewCredentialService(repo, security.NewHasher(bcrypt.MinCost), devs), repo
}

func TestRegisterThenAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestCredentials()

	pairs := []RegisterInput{
		{Name: "Budi Santoso", Username: "budi", Password: "rahasia123"},
		{Name: "Siti", Username: "siti_n", Password: "p@ss word"},
		{Name: "Eko", Username: "e k o", Password: "x"},
	}

	for _, in := range pairs {
		u, err := svc.Register(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, user.NormalizeUsername(in.Username), u.Username)
		assert.NotEqual(t, in.Password, u.PasswordHash)

		id, err := svc.Authenticate(ctx, in.Username, in.Password)
		require.NoError(t, err)
		assert.Equal(t, u.ID, id.UserID)
		assert.Equal(t, RoleCommon, id.Role)
	}
}

func TestRegister_DuplicateAfterNormalization(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestCredentials()

	_, err := svc.Register(ctx, RegisterInput{Name: "Budi", Username: "budi", Password: "rahasia123"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Name: "Budi 2", Username: "bu di", Password: "other"})
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestRegister_EmptyUsername(t *testing.T) {
	svc, _ := newTestCredentials()

	_, err := svc.Register(context.Background(), RegisterInput{Name: "Blank", Username: "   ", Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidUsername)
}

func TestRegister_DeveloperRole(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestCredentials("adicss")

	u, err := svc.Register(ctx, RegisterInput{Name: "Adi", Username: "adicss", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, string(RoleDeveloper), u.Role)

	id, err := svc.Authenticate(ctx, "adicss", "x")
	require.NoError(t, err)
	assert.Equal(t, RoleDeveloper, id.Role)
}

func TestAuthenticate_WrongPasswordAndUnknownUser(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestCredentials()

	_, err := svc.Register(ctx, RegisterInput{Name: "Budi", Username: "budi", Password: "rahasia123"})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "budi", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody", "rahasia123")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

type raceStore struct {
	*memory.UsersRepo
}

// GetByUsername always misses, so only the insert sees the conflict.
func (s raceStore) GetByUsername(context.Context, string) (user.User, error) {
	return user.User{}, user.ErrNotFound
}

func TestRegister_UniqueViolationMapsToDuplicate(t *testing.T) {
	ctx := context.Background()
	store := raceStore{memory.NewUsersRepo()}
	svc := NewCredentialService(store, security.NewHasher(bcrypt.MinCost), nil)

	_, err := svc.Register(ctx, RegisterInput{Name: "A", Username: "budi", Password: "x"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Name: "B", Username: "budi", Password: "y"})
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

type failingStore struct{}

func (failingStore) Create(context.Context, user.CreateRequest) (user.User, error) {
	return user.User{}, errors.New("connection refused")
}

func (failingStore) GetByUsername(context.Context, string) (user.User, error) {
	return user.User{}, errors.New("connection refused")
}

func TestStoreFailuresAreWrapped(t *testing.T) {
	svc := NewCredentialService(failingStore{}, security.NewHasher(bcrypt.MinCost), nil)

	_, err := svc.Register(context.Background(), RegisterInput{Name: "A", Username: "a", Password: "x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateUsername)

	_, err = svc.Authenticate(context.Background(), "a", "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownUser)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegister_PasswordTooLong(t *testing.T) {
	svc, repo := newTestCredentials()
	ctx := context.Background()

	// 40 runes, 80 bytes
	_, err := svc.Register(ctx, RegisterInput{Name: "Budi", Username: "budi", Password: strings.Repeat("é", 40)})
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	_, err = repo.GetByUsername(ctx, "budi")
	assert.ErrorIs(t, err, user.ErrNotFound)

	_, err = svc.Register(ctx, RegisterInput{Name: "Budi", Username: "budi", Password: strings.Repeat("a", 72)})
	assert.NoError(t, err)
}
