package comment

import (
	"errors"
	"time"

	"github.com/geocoder89/forumhub/internal/domain/user"
)

var ErrNotFound = errors.New("comment not found")

type Comment struct {
	ID          string        `json:"id"`
	PostID      string        `json:"postId"`
	AuthorID    string        `json:"-"`
	Author      *user.Summary `json:"author"`
	Content     string        `json:"content"`
	IsAnonymous bool          `json:"isAnonymous"`
	CreatedAt   time.Time     `json:"createdAt"`
}

func (c Comment) Redacted(viewerID string) Comment {
	if c.IsAnonymous && (viewerID == "" || viewerID != c.AuthorID) {
		c.Author = nil
	}
	return c
}

type CreateRequest struct {
	PostID      string
	AuthorID    string
	Content     string
	IsAnonymous bool
}
