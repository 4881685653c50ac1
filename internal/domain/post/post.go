package post

import (
	"errors"
	"time"

	"github.com/geocoder89/forumhub/internal/domain/comment"
	"github.com/geocoder89/forumhub/internal/domain/user"
)

type Category string

const (
	CategoryGeneral       Category = "1"
	CategoryAnnouncements Category = "2"
)

func (c Category) IsValid() bool {
	return c == CategoryGeneral || c == CategoryAnnouncements
}

type Visibility string

const (
	VisibilityAnonymous Visibility = "anonymous"
	VisibilityPublic    Visibility = "public"
)

var (
	ErrNotFound = errors.New("post not found")
	ErrNotOwner = errors.New("post belongs to another user")
)

type Post struct {
	ID          string        `json:"id"`
	Content     string        `json:"content"`
	CategoryID  Category      `json:"categoryId"`
	AuthorID    string        `json:"-"`
	Author      *user.Summary `json:"author"`
	GroupID     *string       `json:"groupId,omitempty"`
	IsAnonymous bool          `json:"isAnonymous"`
	IsReported  bool          `json:"isReported"`
	IsTakenDown bool          `json:"isTakenDown"`
	// nil unless the caller asked for comments
	Comments  []comment.Comment `json:"comments,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Redacted hides the author of an anonymous post. The author still sees
// themselves.
func (p Post) Redacted(viewerID string) Post {
	if p.IsAnonymous && (viewerID == "" || viewerID != p.AuthorID) {
		p.Author = nil
	}
	if p.Comments != nil {
		comments := make([]comment.Comment, len(p.Comments))
		for i, c := range p.Comments {
			comments[i] = c.Redacted(viewerID)
		}
		p.Comments = comments
	}
	return p
}

func RedactAll(posts []Post, viewerID string) []Post {
	out := make([]Post, len(posts))
	for i, p := range posts {
		out[i] = p.Redacted(viewerID)
	}
	return out
}

type Report struct {
	ID         string    `json:"id"`
	PostID     string    `json:"postId"`
	ReporterID string    `json:"reporterId"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"createdAt"`
}

type CreateRequest struct {
	Content     string
	CategoryID  Category
	IsAnonymous bool
	AuthorID    string
	GroupID     *string
}

type UpdateRequest struct {
	Content     string
	CategoryID  Category
	IsAnonymous bool
}

type ReportRequest struct {
	PostID     string
	ReporterID string
	Reason     string
}

type FeedFilter struct {
	Category       Category
	Limit          int
	AfterCreatedAt time.Time
	AfterID        string
}

type UserPostsFilter struct {
	AuthorID         string
	IncludeAnonymous bool
	// IncludeTakenDown is only set when the author is the viewer.
	IncludeTakenDown bool
	WithComments     bool
}
