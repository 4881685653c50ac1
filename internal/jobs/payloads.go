package jobs

// Payloads stay ID based; the worker loads anything else it needs.

type ReportFiledPayload struct {
	PostID     string `json:"postId"`
	ReportID   string `json:"reportId"`
	ReporterID string `json:"reporterId"`
	Reason     string `json:"reason"`
}

type PostTakenDownPayload struct {
	PostID      string `json:"postId"`
	AuthorID    string `json:"authorId"`
	ModeratorID string `json:"moderatorId"`
}

type GroupInvitationPayload struct {
	InvitationID string `json:"invitationId"`
	GroupID      string `json:"groupId"`
	GroupName    string `json:"groupName"`
	InviterID    string `json:"inviterId"`
	InviteeID    string `json:"inviteeId"`
}
