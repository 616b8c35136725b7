package domain

// Task is an admin-defined campaign task. Tasks are read-only for the bot;
// the admin backend owns their lifecycle.
type Task struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	TaskType     string `json:"task_type"`
	Requirements string `json:"requirements,omitempty"`
}

// SubmissionStatus is the admin review decision for a task submission.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

// Submission is a user's proof of completion for a task. The task API keeps
// at most one submission per (user, task); resubmitting replaces it.
type Submission struct {
	UserID         int64            `json:"user_id"`
	TaskID         int64            `json:"task_id"`
	SubmissionLink string           `json:"submission_link"`
	Status         SubmissionStatus `json:"status"`
}
