package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/forumhub/internal/domain/comment"
	"github.com/geocoder89/forumhub/internal/domain/post"
	"github.com/geocoder89/forumhub/internal/domain/user"
	"github.com/geocoder89/forumhub/internal/jobs"
	"github.com/geocoder89/forumhub/internal/observability"
	"github.com/geocoder89/forumhub/internal/utils"
)

type PostsRepo struct {
	observer
	pool *pgxpool.Pool
	jobs *JobsRepo
}

func NewPostsRepo(pool *pgxpool.Pool, prom *observability.Prom, jobsRepo *JobsRepo) *PostsRepo {
	return &PostsRepo{observer: observer{prom: prom}, pool: pool, jobs: jobsRepo}
}

const postSelect = `
	SELECT p.id, p.content, p.category_id, p.author_id, p.group_id,
	       p.is_anonymous, p.is_reported, p.is_taken_down,
	       p.created_at, p.updated_at,
	       u.id, u.username, u.name, u.image
	FROM posts p
	JOIN users u ON u.id = p.author_id`

func scanPost(row pgx.Row, p *post.Post) error {
	var (
		category string
		author   user.Summary
	)

	err := row.Scan(
		&p.ID, &p.Content, &category, &p.AuthorID, &p.GroupID,
		&p.IsAnonymous, &p.IsReported, &p.IsTakenDown,
		&p.CreatedAt, &p.UpdatedAt,
		&author.ID, &author.Username, &author.Name, &author.Image,
	)
	if err != nil {
		return err
	}

	p.CategoryID = post.Category(category)
	p.Author = &author
	return nil
}

func (r *PostsRepo) queryPosts(ctx context.Context, op, sql string, args ...any) ([]post.Post, error) {
	out := make([]post.Post, 0)

	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var p post.Post
			if err := scanPost(rows, &p); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostsRepo) Create(ctx context.Context, req post.CreateRequest) (post.Post, error) {
	id := uuid.NewString()

	err := r.observe("posts.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO posts (id, author_id, group_id, content, category_id, is_anonymous, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
			id, req.AuthorID, req.GroupID, req.Content, string(req.CategoryID), req.IsAnonymous,
		)
		return err
	})
	if err != nil {
		return post.Post{}, err
	}

	return r.GetByID(ctx, id)
}

func (r *PostsRepo) GetByID(ctx context.Context, id string) (post.Post, error) {
	var p post.Post

	err := r.observe("posts.get_by_id", func() error {
		return scanPost(r.pool.QueryRow(ctx, postSelect+` WHERE p.id = $1`, id), &p)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return post.Post{}, post.ErrNotFound
		}
		return post.Post{}, err
	}
	return p, nil
}

// Feed lists a category newest first, skipping group posts and taken down
// posts. The cursor points at the last row of the returned page.
func (r *PostsRepo) Feed(ctx context.Context, f post.FeedFilter) ([]post.Post, *string, error) {
	afterAt, afterID := f.AfterCreatedAt, f.AfterID
	if afterAt.IsZero() || afterID == "" {
		afterAt, afterID = utils.FirstPageTime, utils.FirstPageID
	}

	items, err := r.queryPosts(ctx, "posts.feed", postSelect+`
		WHERE p.category_id = $1
		  AND p.group_id IS NULL
		  AND p.is_taken_down = FALSE
		  AND (p.created_at, p.id) < ($2, $3)
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $4`,
		string(f.Category), afterAt, afterID, f.Limit+1,
	)
	if err != nil {
		return nil, nil, err
	}

	var next *string
	if len(items) > f.Limit {
		items = items[:f.Limit]
		last := items[len(items)-1]

		cur, err := utils.EncodePostCursor(last.CreatedAt, last.ID)
		if err != nil {
			return nil, nil, err
		}
		next = &cur
	}

	return items, next, nil
}

func (r *PostsRepo) ListByAuthor(ctx context.Context, f post.UserPostsFilter) ([]post.Post, error) {
	q := postSelect + ` WHERE p.author_id = $1 AND p.group_id IS NULL`
	if !f.IncludeAnonymous {
		q += ` AND p.is_anonymous = FALSE`
	}
	if !f.IncludeTakenDown {
		q += ` AND p.is_taken_down = FALSE`
	}
	q += ` ORDER BY p.created_at DESC, p.id DESC`

	items, err := r.queryPosts(ctx, "posts.list_by_author", q, f.AuthorID)
	if err != nil {
		return nil, err
	}

	if f.WithComments {
		if err := r.attachComments(ctx, items); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (r *PostsRepo) ListByGroup(ctx context.Context, groupID string) ([]post.Post, error) {
	return r.queryPosts(ctx, "posts.list_by_group", postSelect+`
		WHERE p.group_id = $1 AND p.is_taken_down = FALSE
		ORDER BY p.created_at DESC, p.id DESC`, groupID)
}

func (r *PostsRepo) ListReported(ctx context.Context) ([]post.Post, error) {
	return r.queryPosts(ctx, "posts.list_reported", postSelect+`
		WHERE p.is_reported = TRUE AND p.is_taken_down = FALSE
		ORDER BY p.updated_at DESC, p.id DESC`)
}

func (r *PostsRepo) attachComments(ctx context.Context, items []post.Post) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, len(items))
	index := make(map[string]int, len(items))
	for i, p := range items {
		ids[i] = p.ID
		index[p.ID] = i
		items[i].Comments = []comment.Comment{}
	}

	comments, err := queryComments(ctx, r.observer, r.pool, "posts.attach_comments",
		commentSelect+` WHERE c.post_id = ANY($1::uuid[]) ORDER BY c.created_at ASC, c.id ASC`, ids)
	if err != nil {
		return err
	}

	for _, c := range comments {
		i := index[c.PostID]
		items[i].Comments = append(items[i].Comments, c)
	}
	return nil
}

func (r *PostsRepo) Update(ctx context.Context, id string, req post.UpdateRequest) (post.Post, error) {
	var affected int64

	err := r.observe("posts.update", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE posts
			SET content = $2,
			    category_id = $3,
			    is_anonymous = $4,
			    updated_at = NOW()
			WHERE id = $1`,
			id, req.Content, string(req.CategoryID), req.IsAnonymous,
		)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return post.Post{}, err
	}
	if affected == 0 {
		return post.Post{}, post.ErrNotFound
	}

	return r.GetByID(ctx, id)
}

func (r *PostsRepo) Delete(ctx context.Context, id string) error {
	var affected int64

	err := r.observe("posts.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return post.ErrNotFound
	}
	return nil
}

// Report stores the report, flags the post and enqueues the moderation
// notice in one transaction.
func (r *PostsRepo) Report(ctx context.Context, req post.ReportRequest) (rep post.Report, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return post.Report{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var affected int64
	err = r.observe("posts.report.flag", func() error {
		tag, err := tx.Exec(ctx, `
			UPDATE posts
			SET is_reported = TRUE, updated_at = NOW()
			WHERE id = $1 AND is_taken_down = FALSE`, req.PostID)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return post.Report{}, err
	}
	if affected == 0 {
		return post.Report{}, post.ErrNotFound
	}

	rep = post.Report{
		ID:         uuid.NewString(),
		PostID:     req.PostID,
		ReporterID: req.ReporterID,
		Reason:     req.Reason,
		CreatedAt:  time.Now().UTC(),
	}

	err = r.observe("posts.report.insert", func() error {
		_, err := tx.Exec(ctx,
			`INSERT INTO post_reports (id, post_id, reporter_id, reason, created_at) VALUES ($1, $2, $3, $4, $5)`,
			rep.ID, rep.PostID, rep.ReporterID, rep.Reason, rep.CreatedAt,
		)
		return err
	})
	if err != nil {
		return post.Report{}, err
	}

	jobReq, err := jobs.NewRequest(jobs.JobReportFiled, jobs.ReportFiledPayload{
		PostID:     rep.PostID,
		ReportID:   rep.ID,
		ReporterID: rep.ReporterID,
		Reason:     rep.Reason,
	}, "report:"+rep.ID)
	if err != nil {
		return post.Report{}, err
	}

	if _, err = r.jobs.CreateTx(ctx, tx, jobReq); err != nil {
		return post.Report{}, fmt.Errorf("enqueue report notice: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return post.Report{}, err
	}
	return rep, nil
}

func (r *PostsRepo) ListReasons(ctx context.Context, postID string) ([]post.Report, error) {
	out := make([]post.Report, 0)

	err := r.observe("posts.list_reasons", func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT id, post_id, reporter_id, reason, created_at
			FROM post_reports
			WHERE post_id = $1
			ORDER BY created_at DESC, id DESC`, postID)
		if err != nil {
			return err
		}

		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (post.Report, error) {
			var rep post.Report
			err := row.Scan(&rep.ID, &rep.PostID, &rep.ReporterID, &rep.Reason, &rep.CreatedAt)
			return rep, err
		})
		return err
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkSafe clears every report on the post.
func (r *PostsRepo) MarkSafe(ctx context.Context, postID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var affected int64
	err = r.observe("posts.mark_safe", func() error {
		tag, err := tx.Exec(ctx, `
			UPDATE posts SET is_reported = FALSE, updated_at = NOW()
			WHERE id = $1 AND is_taken_down = FALSE`, postID)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()

		_, err = tx.Exec(ctx, `DELETE FROM post_reports WHERE post_id = $1`, postID)
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return post.ErrNotFound
	}

	return tx.Commit(ctx)
}

// TakeDown hides the post everywhere and enqueues a notice for its author.
func (r *PostsRepo) TakeDown(ctx context.Context, postID, moderatorID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var authorID string
	err = r.observe("posts.take_down", func() error {
		return tx.QueryRow(ctx, `
			UPDATE posts
			SET is_taken_down = TRUE, is_reported = FALSE, updated_at = NOW()
			WHERE id = $1 AND is_taken_down = FALSE
			RETURNING author_id`, postID).Scan(&authorID)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return post.ErrNotFound
		}
		return err
	}

	jobReq, err := jobs.NewRequest(jobs.JobPostTakenDown, jobs.PostTakenDownPayload{
		PostID:      postID,
		AuthorID:    authorID,
		ModeratorID: moderatorID,
	}, "takedown:"+postID)
	if err != nil {
		return err
	}

	if _, err := r.jobs.CreateTx(ctx, tx, jobReq); err != nil {
		return fmt.Errorf("enqueue takedown notice: %w", err)
	}

	return tx.Commit(ctx)
}
