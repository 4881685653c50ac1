package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/forumhub/internal/domain/delivery"
	"github.com/geocoder89/forumhub/internal/domain/job"
	"github.com/geocoder89/forumhub/internal/jobs"
	"github.com/geocoder89/forumhub/internal/notifications"
)

// ProcessOne claims and runs a single job. It reports false when the queue
// had nothing runnable.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}
		return false, err
	}

	w.metrics.IncClaimed()
	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	start := w.now()

	execCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	err = w.execute(execCtx, j)
	cancel()

	elapsed := w.now().Sub(start)
	w.metrics.ObserveDuration(elapsed)

	if err != nil {
		result := w.handleFailure(ctx, j, err)
		w.observe(j.Type, result, elapsed)
		return true, nil
	}

	if err := w.repo.MarkDone(ctx, j.ID); err != nil {
		_ = w.repo.MarkFailed(ctx, j.ID, "mark_done_failed: "+err.Error())
		w.metrics.IncFailed()
		w.observe(j.Type, "failed", elapsed)
		return true, err
	}

	w.metrics.IncDone()
	w.observe(j.Type, "done", elapsed)
	w.log.InfoContext(ctx, "job_done", "job_id", j.ID, "type", j.Type, "attempt", j.Attempts+1)

	return true, nil
}

func (w *Worker) observe(jobType, result string, elapsed time.Duration) {
	w.metrics.IncResult(jobType, result)
	if w.prom != nil {
		w.prom.ObserveJob(jobType, result, elapsed)
	}
}

var errPermanent = errors.New("permanent job error")

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	payload, err := jobs.DecodePayload(j)
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}

	notice, err := noticeFor(payload, w.now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}

	if w.ledger == nil {
		return w.notifier.Notify(ctx, notice)
	}

	key := delivery.Key{JobType: j.Type, RefID: deliveryRef(payload)}

	err = w.ledger.TryStart(ctx, key, j.ID, notice.RecipientID, w.cfg.LockTTL)
	switch {
	case errors.Is(err, delivery.ErrAlreadySent):
		w.log.InfoContext(ctx, "notice_already_sent", "job_id", j.ID, "type", j.Type, "ref_id", key.RefID)
		return nil
	case err != nil:
		return fmt.Errorf("claim delivery: %w", err)
	}

	if err := w.notifier.Notify(ctx, notice); err != nil {
		if mErr := w.ledger.MarkFailed(context.WithoutCancel(ctx), key, err.Error()); mErr != nil {
			w.log.WarnContext(ctx, "delivery_mark_failed_failed", "job_id", j.ID, "err", mErr)
		}
		return err
	}

	// the notice is out; a lost MarkSent only risks a resend after the stale window
	if err := w.ledger.MarkSent(context.WithoutCancel(ctx), key); err != nil {
		w.log.WarnContext(ctx, "delivery_mark_sent_failed", "job_id", j.ID, "err", err)
	}
	return nil
}

// deliveryRef names what a notice is about. Each report gets its own notice,
// while a post is only taken down once.
func deliveryRef(payload any) string {
	switch p := payload.(type) {
	case jobs.ReportFiledPayload:
		return p.ReportID
	case jobs.PostTakenDownPayload:
		return p.PostID
	case jobs.GroupInvitationPayload:
		return p.InvitationID
	}
	return ""
}

func noticeFor(payload any, at time.Time) (notifications.Notice, error) {
	switch p := payload.(type) {
	case jobs.ReportFiledPayload:
		return notifications.Notice{
			Kind:        notifications.NoticeReportFiled,
			RecipientID: notifications.RecipientModerators,
			Subject:     "A post was reported",
			RefID:       p.PostID,
			Body:        p.Reason,
			OccurredAt:  at,
		}, nil

	case jobs.PostTakenDownPayload:
		return notifications.Notice{
			Kind:        notifications.NoticePostTakenDown,
			RecipientID: p.AuthorID,
			Subject:     "Your post was taken down",
			RefID:       p.PostID,
			OccurredAt:  at,
		}, nil

	case jobs.GroupInvitationPayload:
		return notifications.Notice{
			Kind:        notifications.NoticeGroupInvitation,
			RecipientID: p.InviteeID,
			Subject:     "You were invited to " + p.GroupName,
			RefID:       p.InvitationID,
			OccurredAt:  at,
		}, nil
	}

	return notifications.Notice{}, fmt.Errorf("no notice for payload %T", payload)
}

// handleFailure reschedules with backoff or marks the job failed once its
// attempts are spent. Undecodable payloads fail immediately.
func (w *Worker) handleFailure(ctx context.Context, j job.Job, cause error) string {
	msg := cause.Error()
	nextAttempt := j.Attempts + 1

	if errors.Is(cause, errPermanent) || nextAttempt >= j.MaxAttempts {
		if err := w.repo.MarkFailed(ctx, j.ID, msg); err != nil {
			w.log.ErrorContext(ctx, "job_mark_failed_failed", "job_id", j.ID, "err", err)
		}
		w.metrics.IncFailed()
		w.metrics.IncDeadLettered()
		w.log.ErrorContext(ctx, "job_failed", "job_id", j.ID, "type", j.Type, "attempt", nextAttempt, "err", msg)
		return "failed"
	}

	runAt := w.now().Add(w.backoff(j.Attempts))
	if err := w.repo.Reschedule(ctx, j.ID, runAt, msg); err != nil {
		w.log.ErrorContext(ctx, "job_reschedule_failed", "job_id", j.ID, "err", err)
	}
	w.metrics.IncRetried()
	w.log.WarnContext(ctx, "job_retry_scheduled",
		"job_id", j.ID,
		"type", j.Type,
		"attempt", nextAttempt,
		"run_at", runAt,
		"err", msg,
	)
	return "retry"
}
