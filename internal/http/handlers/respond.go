package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/forumhub/internal/rpc"
)

// storeTimeout bounds a single handler's trip to the database.
const storeTimeout = 3 * time.Second

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, storeTimeout)
}

// storeFailed logs the cause and hands the caller only the message.
func storeFailed(ctx context.Context, log *slog.Logger, call rpc.Call, err error, message string) rpc.Envelope {
	log.ErrorContext(ctx, "store_failed",
		"procedure", call.Procedure,
		"user_id", call.UserID(),
		"err", err,
	)
	return rpc.StoreFailed(message)
}

func loggerOr(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}
