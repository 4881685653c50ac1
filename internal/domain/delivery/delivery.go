package delivery

import "errors"

type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

var (
	ErrAlreadySent = errors.New("notice already sent")
	ErrInProgress  = errors.New("notice delivery in progress")
)

// Key identifies one notice. A job that runs again for the same key must not
// notify twice.
type Key struct {
	JobType string
	RefID   string
}
