package notifications

import (
	"context"
	"time"
)

type NoticeKind string

const (
	NoticeReportFiled     NoticeKind = "report_filed"
	NoticePostTakenDown   NoticeKind = "post_taken_down"
	NoticeGroupInvitation NoticeKind = "group_invitation"
)

// RecipientModerators addresses every developer account instead of one user.
const RecipientModerators = "moderators"

type Notice struct {
	Kind        NoticeKind `json:"kind"`
	RecipientID string     `json:"recipientId"`
	Subject     string     `json:"subject"`
	RefID       string     `json:"refId"`
	Body        string     `json:"body,omitempty"`
	OccurredAt  time.Time  `json:"occurredAt"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}
