package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/forumhub/internal/domain/job"
	"github.com/geocoder89/forumhub/internal/rpc"
	"github.com/geocoder89/forumhub/internal/utils"
)

type JobsAdmin interface {
	ListCursor(ctx context.Context, status *string, limit int, afterUpdatedAt time.Time, afterID string) ([]job.Job, *string, bool, error)
	Retry(ctx context.Context, id string) error
}

const defaultJobsLimit = 20

type JobsHandler struct {
	jobs JobsAdmin
	log  *slog.Logger
}

func NewJobsHandler(jobs JobsAdmin, log *slog.Logger) *JobsHandler {
	return &JobsHandler{jobs: jobs, log: loggerOr(log)}
}

func (h *JobsHandler) Procedures() []rpc.Procedure {
	return []rpc.Procedure{
		{Name: "jobs.list", Tier: rpc.Privileged, Kind: rpc.Query, Handler: h.List},
		{Name: "jobs.retry", Tier: rpc.Privileged, Kind: rpc.Mutation, Handler: h.Retry},
	}
}

type ListJobsInput struct {
	Status string `json:"status" binding:"omitempty,oneof=pending processing done failed"`
	Cursor string `json:"cursor"`
	Limit  int    `json:"limit" binding:"omitempty,min=1,max=100"`
}

type JobIDInput struct {
	ID string `json:"id" binding:"required,uuid"`
}

type JobsPage struct {
	Items      []job.Job `json:"items"`
	NextCursor *string   `json:"nextCursor"`
	HasMore    bool      `json:"hasMore"`
}

func (h *JobsHandler) List(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in ListJobsInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}
	if in.Limit == 0 {
		in.Limit = defaultJobsLimit
	}

	var status *string
	if in.Status != "" {
		status = &in.Status
	}

	afterAt, afterID := utils.FirstPageTime, utils.FirstPageID
	if in.Cursor != "" {
		cur, err := utils.DecodeJobCursor(in.Cursor)
		if err != nil {
			return rpc.BadRequest("invalid cursor")
		}
		afterAt, afterID = cur.UpdatedAt, cur.ID
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	items, next, hasMore, err := h.jobs.ListCursor(cctx, status, in.Limit, afterAt, afterID)
	if err != nil {
		return storeFailed(ctx, h.log, call, err, "Could not list jobs")
	}

	return rpc.OK(http.StatusOK, "ok", JobsPage{Items: items, NextCursor: next, HasMore: hasMore})
}

func (h *JobsHandler) Retry(ctx context.Context, call rpc.Call) rpc.Envelope {
	var in JobIDInput
	if env, ok := call.Bind(&in); !ok {
		return env
	}

	cctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := h.jobs.Retry(cctx, in.ID); err != nil {
		switch {
		case errors.Is(err, job.ErrJobNotFound):
			return rpc.NotFound("job not found")
		case errors.Is(err, job.ErrJobNotFailed):
			return rpc.Conflict("only failed jobs can be retried")
		default:
			return storeFailed(ctx, h.log, call, err, "Could not retry job")
		}
	}

	h.log.InfoContext(ctx, "job_retried", "job_id", in.ID, "moderator_id", call.UserID())

	return rpc.OK(http.StatusOK, "job requeued", nil)
}
