package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/forumhub/internal/domain/user"
	"github.com/geocoder89/forumhub/internal/observability"
)

type UsersRepo struct {
	observer
	pool *pgxpool.Pool
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{observer: observer{prom: prom}, pool: pool}
}

const userColumns = `id, name, username, password_hash, bio, image, role, created_at, updated_at`

func scanUser(row pgx.Row, u *user.User) error {
	return row.Scan(
		&u.ID,
		&u.Name,
		&u.Username,
		&u.PasswordHash,
		&u.Bio,
		&u.Image,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
}

// Create relies on the unique index on username; a violation surfaces as
// user.ErrUsernameTaken.
func (r *UsersRepo) Create(ctx context.Context, req user.CreateRequest) (user.User, error) {
	var u user.User

	err := r.observe("users.create", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`INSERT INTO users (id, name, username, password_hash, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			RETURNING `+userColumns,
			uuid.NewString(), req.Name, req.Username, req.PasswordHash, req.Role,
		), &u)
	})

	if err != nil {
		if IsUniqueViolation(err) {
			return user.User{}, user.ErrUsernameTaken
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_username", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE username = $1`, username), &u)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_id", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id), &u)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) UpdateProfile(ctx context.Context, id string, req user.UpdateProfileRequest) (user.User, error) {
	var u user.User

	err := r.observe("users.update_profile", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`UPDATE users
			SET name = $2,
			    username = $3,
			    bio = $4,
			    image = $5,
			    updated_at = NOW()
			WHERE id = $1
			RETURNING `+userColumns,
			id, req.Name, req.Username, req.Bio, req.Image,
		), &u)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		if IsUniqueViolation(err) {
			return user.User{}, user.ErrUsernameTaken
		}
		return user.User{}, err
	}
	return u, nil
}

// FindByUsernames resolves the usernames that exist; unknown ones are skipped.
func (r *UsersRepo) FindByUsernames(ctx context.Context, usernames []string) ([]user.Summary, error) {
	if len(usernames) == 0 {
		return []user.Summary{}, nil
	}

	var out []user.Summary

	err := r.observe("users.find_by_usernames", func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT id, username, name, image FROM users WHERE username = ANY($1) ORDER BY username`,
			usernames,
		)
		if err != nil {
			return err
		}

		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (user.Summary, error) {
			var s user.Summary
			err := row.Scan(&s.ID, &s.Username, &s.Name, &s.Image)
			return s, err
		})
		return err
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}
