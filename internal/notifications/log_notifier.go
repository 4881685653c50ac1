package notifications

import (
	"context"
	"log/slog"
)

// LogNotifier writes notices to the log. Used when no broker is configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, notice Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.log.InfoContext(ctx, "notification",
		"kind", string(notice.Kind),
		"recipient_id", notice.RecipientID,
		"subject", notice.Subject,
		"ref_id", notice.RefID,
	)
	return nil
}
