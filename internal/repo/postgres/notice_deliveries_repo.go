package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/forumhub/internal/domain/delivery"
	"github.com/geocoder89/forumhub/internal/observability"
)

type NoticeDeliveriesRepo struct {
	observer
	pool *pgxpool.Pool
}

func NewNoticeDeliveriesRepo(pool *pgxpool.Pool, prom *observability.Prom) *NoticeDeliveriesRepo {
	return &NoticeDeliveriesRepo{observer: observer{prom: prom}, pool: pool}
}

// TryStart claims the send for k. It returns ErrAlreadySent once the notice
// went out and ErrInProgress while another attempt holds a claim younger
// than staleAfter. Failed and stale claims are taken over.
func (r *NoticeDeliveriesRepo) TryStart(
	ctx context.Context,
	k delivery.Key,
	jobID string,
	recipient string,
	staleAfter time.Duration,
) error {
	err := r.observe("notice_deliveries.insert", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO notice_deliveries (job_type, ref_id, job_id, recipient, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
			k.JobType, k.RefID, jobID, recipient, string(delivery.StatusSending))
		return err
	})
	if err == nil {
		return nil
	}
	if !IsUniqueViolation(err) {
		return err
	}

	// only one worker can flip the row back to sending
	var affected int64
	err = r.observe("notice_deliveries.reclaim", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE notice_deliveries
			SET status = $3,
			    job_id = $4,
			    recipient = $5,
			    last_error = NULL,
			    updated_at = NOW()
			WHERE job_type = $1 AND ref_id = $2
			  AND (status = 'failed'
			       OR (status = 'sending' AND updated_at < NOW() - make_interval(secs => $6)))`,
			k.JobType, k.RefID, string(delivery.StatusSending), jobID, recipient, staleAfter.Seconds())
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var (
		status string
		sentAt *time.Time
	)
	err = r.observe("notice_deliveries.status", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT status, sent_at
			FROM notice_deliveries
			WHERE job_type = $1 AND ref_id = $2`,
			k.JobType, k.RefID).Scan(&status, &sentAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// deleted underneath us; the job retries
			return delivery.ErrInProgress
		}
		return err
	}

	if sentAt != nil || delivery.Status(status) == delivery.StatusSent {
		return delivery.ErrAlreadySent
	}
	return delivery.ErrInProgress
}

func (r *NoticeDeliveriesRepo) MarkSent(ctx context.Context, k delivery.Key) error {
	return r.observe("notice_deliveries.mark_sent", func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE notice_deliveries
			SET status = $3,
			    sent_at = NOW(),
			    last_error = NULL,
			    updated_at = NOW()
			WHERE job_type = $1 AND ref_id = $2`,
			k.JobType, k.RefID, string(delivery.StatusSent))
		return err
	})
}

func (r *NoticeDeliveriesRepo) MarkFailed(ctx context.Context, k delivery.Key, errMsg string) error {
	return r.observe("notice_deliveries.mark_failed", func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE notice_deliveries
			SET status = $3,
			    last_error = $4,
			    updated_at = NOW()
			WHERE job_type = $1 AND ref_id = $2 AND status = 'sending'`,
			k.JobType, k.RefID, string(delivery.StatusFailed), errMsg)
		return err
	})
}
