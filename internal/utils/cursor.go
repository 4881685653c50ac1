package utils

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursors are opaque base64url JSON keys for DESC keyset pagination.

type PostCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

type JobCursor struct {
	UpdatedAt time.Time `json:"updatedAt"`
	ID        string    `json:"id"`
}

// First-page sentinels for DESC keysets: "far future" + max UUID.
var (
	FirstPageTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
	FirstPageID   = "ffffffff-ffff-ffff-ffff-ffffffffffff"
)

func EncodePostCursor(createdAt time.Time, id string) (string, error) {
	return encodeCursor(PostCursor{CreatedAt: createdAt, ID: id})
}

func DecodePostCursor(cursor string) (PostCursor, error) {
	var c PostCursor
	if err := decodeCursor(cursor, &c); err != nil {
		return PostCursor{}, err
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		return PostCursor{}, ErrInvalidCursor
	}
	return c, nil
}

func EncodeJobCursor(updatedAt time.Time, id string) (string, error) {
	return encodeCursor(JobCursor{UpdatedAt: updatedAt, ID: id})
}

func DecodeJobCursor(cursor string) (JobCursor, error) {
	var c JobCursor
	if err := decodeCursor(cursor, &c); err != nil {
		return JobCursor{}, err
	}
	if c.ID == "" || c.UpdatedAt.IsZero() {
		return JobCursor{}, ErrInvalidCursor
	}
	return c, nil
}

func encodeCursor(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func decodeCursor(cursor string, out any) error {
	if cursor == "" {
		return ErrInvalidCursor
	}

	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return ErrInvalidCursor
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return ErrInvalidCursor
	}
	return nil
}
