package models

import "time"

// LearnedPattern is a sender-email → project-code association mined from
// historical accepted links. Patterns are recomputed wholesale by the pattern
// maintainer; Occurrences gates whether the linker may act on one.
type LearnedPattern struct {
	ID          int64     `json:"id"`
	SenderEmail string    `json:"sender_email"`
	ProjectCode string    `json:"project_code"`
	Occurrences int       `json:"occurrences"`
	Confidence  float64   `json:"confidence"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Pending link review statuses.
const (
	PendingStatusPending  = "pending"
	PendingStatusApproved = "approved"
	PendingStatusDenied   = "denied"
)

// PendingLink is a candidate that did not clear the auto-link policy and awaits
// a human decision. The approve/deny workflow itself lives in the CRUD API; this
// service only produces rows.
type PendingLink struct {
	ID          int64      `json:"id"`
	ReviewID    string     `json:"review_id"`
	MessageID   string     `json:"message_id"`
	ProjectCode string     `json:"project_code"`
	Confidence  float64    `json:"confidence"`
	Method      LinkMethod `json:"method"`
	Evidence    string     `json:"evidence"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ClassificationFailure records an LLM classification error for a message so
// that "classification failed" is distinguishable from "no candidates found".
// Failed messages are retried on the next batch; the counter feeds alerting.
type ClassificationFailure struct {
	MessageID     string    `json:"message_id"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
}

// ReconciliationRun is the audit record for one reconciler pass.
type ReconciliationRun struct {
	ID                string    `json:"id"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	OrphansFound      int       `json:"orphans_found"`
	Relinked          int       `json:"relinked"`
	Deleted           int       `json:"deleted"`
	PatternsReapplied int       `json:"patterns_reapplied"`
}

// Stats is a snapshot of table counts for operator tooling.
type Stats struct {
	Projects               int64 `json:"projects"`
	Contacts               int64 `json:"contacts"`
	Messages               int64 `json:"messages"`
	UnlinkedMessages       int64 `json:"unlinked_messages"`
	Links                  int64 `json:"links"`
	LearnedPatterns        int64 `json:"learned_patterns"`
	PendingReviews         int64 `json:"pending_reviews"`
	ClassificationFailures int64 `json:"classification_failures"`
}
