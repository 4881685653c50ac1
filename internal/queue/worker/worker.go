package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/forumhub/internal/domain/delivery"
	"github.com/geocoder89/forumhub/internal/domain/job"
	"github.com/geocoder89/forumhub/internal/notifications"
	"github.com/geocoder89/forumhub/internal/observability"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
}

// DeliveryLedger records which notices went out, so a job that runs again
// after a retry or a stale-lock requeue does not notify twice.
type DeliveryLedger interface {
	TryStart(ctx context.Context, k delivery.Key, jobID, recipient string, staleAfter time.Duration) error
	MarkSent(ctx context.Context, k delivery.Key) error
	MarkFailed(ctx context.Context, k delivery.Key, errMsg string) error
}

type Config struct {
	WorkerID     string
	Concurrency  int
	PollInterval time.Duration
	// processing rows older than this are handed back to the queue
	LockTTL       time.Duration
	JobTimeout    time.Duration
	ShutdownGrace time.Duration
}

type Worker struct {
	cfg      Config
	repo     JobsRepository
	notifier notifications.Notifier
	ledger   DeliveryLedger
	log      *slog.Logger
	prom     *observability.Prom
	metrics  *observability.JobMetrics

	backoff func(attempt int) time.Duration
	now     func() time.Time

	readyMu sync.RWMutex
	ready   bool
}

func New(
	cfg Config,
	repo JobsRepository,
	notifier notifications.Notifier,
	ledger DeliveryLedger,
	log *slog.Logger,
	prom *observability.Prom,
	metrics *observability.JobMetrics,
) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewJobMetrics()
	}

	return &Worker{
		cfg:      cfg,
		repo:     repo,
		notifier: notifier,
		ledger:   ledger,
		log:      log,
		prom:     prom,
		metrics:  metrics,
		backoff:  ExponentialBackoff,
		now:      time.Now,
	}
}

func (w *Worker) Metrics() *observability.JobMetrics { return w.metrics }

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) Ready() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}

// Run starts cfg.Concurrency polling loops plus the stale lock reaper and
// blocks until ctx is cancelled and in-flight jobs finish or the grace
// period runs out.
func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	w.log.Info("worker_started",
		"worker_id", w.cfg.WorkerID,
		"concurrency", w.cfg.Concurrency,
		"poll_interval", w.cfg.PollInterval.String(),
	)

	// jobs get their own context so a shutdown does not cut a notice in half
	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	var wg sync.WaitGroup

	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, jobCtx, slot)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.reap(ctx)
	}()

	<-ctx.Done()
	w.setReady(false)
	w.log.Info("worker_draining", "worker_id", w.cfg.WorkerID)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.log.Info("worker_stopped", "worker_id", w.cfg.WorkerID)
		return nil
	case <-time.After(w.cfg.ShutdownGrace):
		cancelJobs()
		<-done
		w.log.Warn("worker_shutdown_grace_exceeded", "worker_id", w.cfg.WorkerID)
		return errors.New("worker: shutdown grace exceeded")
	}
}

func (w *Worker) loop(ctx, jobCtx context.Context, slot int) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// drain the queue before sleeping again
		for ctx.Err() == nil {
			processed, err := w.ProcessOne(jobCtx)
			if err != nil {
				w.log.Error("worker_step_failed", "slot", slot, "err", err)
				break
			}
			if !processed {
				break
			}
		}

		timer.Reset(w.cfg.PollInterval)
	}
}

func (w *Worker) reap(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.LockTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			n, err := w.repo.RequeueStaleProcessing(rctx, w.cfg.LockTTL)
			cancel()

			if err != nil {
				w.log.Error("requeue_stale_failed", "err", err)
				continue
			}
			if n > 0 {
				w.log.Warn("requeued_stale_jobs", "count", n)
			}
		}
	}
}
