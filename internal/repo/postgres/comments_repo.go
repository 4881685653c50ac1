package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/forumhub/internal/domain/comment"
	"github.com/geocoder89/forumhub/internal/domain/post"
	"github.com/geocoder89/forumhub/internal/domain/user"
	"github.com/geocoder89/forumhub/internal/observability"
)

type CommentsRepo struct {
	observer
	pool *pgxpool.Pool
}

func NewCommentsRepo(pool *pgxpool.Pool, prom *observability.Prom) *CommentsRepo {
	return &CommentsRepo{observer: observer{prom: prom}, pool: pool}
}

const commentSelect = `
	SELECT c.id, c.post_id, c.author_id, c.content, c.is_anonymous, c.created_at,
	       u.id, u.username, u.name, u.image
	FROM comments c
	JOIN users u ON u.id = c.author_id`

func scanComment(row pgx.Row, c *comment.Comment) error {
	var author user.Summary

	err := row.Scan(
		&c.ID, &c.PostID, &c.AuthorID, &c.Content, &c.IsAnonymous, &c.CreatedAt,
		&author.ID, &author.Username, &author.Name, &author.Image,
	)
	if err != nil {
		return err
	}

	c.Author = &author
	return nil
}

func queryComments(ctx context.Context, o observer, pool *pgxpool.Pool, op, sql string, args ...any) ([]comment.Comment, error) {
	out := make([]comment.Comment, 0)

	err := o.observe(op, func() error {
		rows, err := pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c comment.Comment
			if err := scanComment(rows, &c); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

// Create fails with post.ErrNotFound when the post is gone or taken down.
func (r *CommentsRepo) Create(ctx context.Context, req comment.CreateRequest) (comment.Comment, error) {
	id := uuid.NewString()
	var affected int64

	err := r.observe("comments.create", func() error {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO comments (id, post_id, author_id, content, is_anonymous, created_at)
			SELECT $1, p.id, $3, $4, $5, NOW()
			FROM posts p
			WHERE p.id = $2 AND p.is_taken_down = FALSE`,
			id, req.PostID, req.AuthorID, req.Content, req.IsAnonymous,
		)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return comment.Comment{}, err
	}
	if affected == 0 {
		return comment.Comment{}, post.ErrNotFound
	}

	return r.GetByID(ctx, id)
}

func (r *CommentsRepo) GetByID(ctx context.Context, id string) (comment.Comment, error) {
	var c comment.Comment

	err := r.observe("comments.get_by_id", func() error {
		return scanComment(r.pool.QueryRow(ctx, commentSelect+` WHERE c.id = $1`, id), &c)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return comment.Comment{}, comment.ErrNotFound
		}
		return comment.Comment{}, err
	}
	return c, nil
}

func (r *CommentsRepo) ListByPost(ctx context.Context, postID string) ([]comment.Comment, error) {
	return queryComments(ctx, r.observer, r.pool, "comments.list_by_post",
		commentSelect+` WHERE c.post_id = $1 ORDER BY c.created_at ASC, c.id ASC`, postID)
}

func (r *CommentsRepo) Delete(ctx context.Context, id string) error {
	var affected int64

	err := r.observe("comments.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return comment.ErrNotFound
	}
	return nil
}
