package jobs

import "strings"

// ValidatePayload rejects payloads of the wrong type or with missing ids.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	blank := func(values ...string) bool {
		for _, v := range values {
			if strings.TrimSpace(v) == "" {
				return true
			}
		}
		return false
	}

	switch t {
	case JobReportFiled:
		var p ReportFiledPayload
		switch v := payload.(type) {
		case ReportFiledPayload:
			p = v
		case *ReportFiledPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if blank(p.PostID, p.ReportID, p.ReporterID) {
			return ErrInvalidJobPayload
		}
		return nil

	case JobPostTakenDown:
		var p PostTakenDownPayload
		switch v := payload.(type) {
		case PostTakenDownPayload:
			p = v
		case *PostTakenDownPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if blank(p.PostID, p.AuthorID) {
			return ErrInvalidJobPayload
		}
		return nil

	case JobGroupInvitation:
		var p GroupInvitationPayload
		switch v := payload.(type) {
		case GroupInvitationPayload:
			p = v
		case *GroupInvitationPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if blank(p.InvitationID, p.GroupID, p.InviteeID) {
			return ErrInvalidJobPayload
		}
		return nil

	default:
		return ErrInvalidJobType
	}
}
