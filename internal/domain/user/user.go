package user

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Bio          *string   `json:"bio"`
	Image        *string   `json:"image"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Summary is the author block embedded in posts and comments.
type Summary struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Name     string  `json:"name"`
	Image    *string `json:"image"`
}

type CreateRequest struct {
	Name         string
	Username     string
	PasswordHash string
	Role         string
}

type UpdateProfileRequest struct {
	Name     string  `json:"name" binding:"required,min=3,max=255"`
	Username string  `json:"username" binding:"required,min=3,max=20"`
	Bio      *string `json:"bio" binding:"omitempty,max=100"`
	Image    *string `json:"image" binding:"omitempty,max=512"`
}

// NormalizeUsername strips every whitespace rune, so "bu di" and "budi" collide.
func NormalizeUsername(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}
