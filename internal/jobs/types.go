package jobs

type JobType string

const (
	JobReportFiled     JobType = "moderation.report_filed"
	JobPostTakenDown   JobType = "moderation.post_taken_down"
	JobGroupInvitation JobType = "group.invitation_sent"
)

func (t JobType) IsValid() bool {
	switch t {
	case JobReportFiled, JobPostTakenDown, JobGroupInvitation:
		return true
	default:
		return false
	}
}
