package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/forumhub/internal/config"
	"github.com/geocoder89/forumhub/internal/domain/user"
	"github.com/geocoder89/forumhub/internal/security"
)

// EnsureDeveloperUser creates the configured developer account once. An
// existing account with that username is left untouched.
func EnsureDeveloperUser(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	username := user.NormalizeUsername(cfg.SeedDeveloperUsername)
	if username == "" || cfg.SeedDeveloperPassword == "" {
		return nil
	}

	var dummy string

	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE username = $1`, username).Scan(&dummy)

	if err == nil {
		return nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := security.NewHasher(cfg.BcryptCost).HashPassword(cfg.SeedDeveloperPassword)

	if err != nil {
		return err
	}

	now := time.Now().UTC()

	_, err = pool.Exec(ctx,
		`INSERT INTO users (id, name, username, password_hash, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (username) DO NOTHING`,
		uuid.NewString(), cfg.SeedDeveloperName, username, hash, "developer", now, now,
	)

	return err
}
