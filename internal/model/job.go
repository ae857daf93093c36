package model

import "time"

// JobState is the lifecycle state of a background analytics job.
// Pending -> Processing -> {Completed, Failed, Cancelled}; terminal states
// never transition further.
type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
	JobCancelled  JobState = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// JobDomain selects which bounded worker pool executes a job.
type JobDomain string

const (
	DomainSegmentation JobDomain = "segmentation"
	DomainRules        JobDomain = "rules"
	DomainPolicy       JobDomain = "policy"
)

// Job is the externally visible record of one background unit of work.
// The tracker owns the record; callers only ever see copies keyed by ID.
type Job struct {
	ID          string     `json:"id"`
	Domain      JobDomain  `json:"domain"`
	State       JobState   `json:"state"`
	Progress    int        `json:"progress"` // 0-100
	SubmittedAt time.Time  `json:"submitted_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}
