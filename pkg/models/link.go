package models

import "time"

// LinkMethod identifies how a message-to-project association was derived.
type LinkMethod string

// Link method constants, recorded as provenance on every link.
const (
	MethodSenderFrequency   LinkMethod = "sender-frequency"
	MethodDomainPattern     LinkMethod = "domain-pattern"
	MethodContactMatch      LinkMethod = "contact-match"
	MethodThreadInheritance LinkMethod = "thread-inheritance"
	MethodLLMClassification LinkMethod = "llm-classification"
	MethodManualFix         LinkMethod = "manual-fix"
)

// HeuristicMethods are the rule-based methods that must never be applied to
// internal-domain senders.
var HeuristicMethods = []LinkMethod{
	MethodSenderFrequency,
	MethodDomainPattern,
	MethodContactMatch,
	MethodThreadInheritance,
}

// Link associates a message with a project.
//
// Both key spaces are stored: MessagePK/ProjectPK are the surrogate row ids the
// rest of the platform joins on, MessageID/ProjectCode are the durable business
// keys. The business keys are authoritative; surrogate ids are rewritten by the
// reconciler whenever the external sync regenerates them.
type Link struct {
	ID          int64      `json:"id"`
	MessagePK   int64      `json:"message_pk"`
	ProjectPK   int64      `json:"project_pk"`
	MessageID   string     `json:"message_id"`
	ProjectCode string     `json:"project_code"`
	Confidence  float64    `json:"confidence"`
	Method      LinkMethod `json:"method"`
	Evidence    string     `json:"evidence"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Candidate is a proposed link for a message, produced by the linker pipeline
// before the acceptance policy decides whether it becomes a Link or a pending
// review entry.
type Candidate struct {
	ProjectCode string     `json:"project_code"`
	Confidence  float64    `json:"confidence"`
	Method      LinkMethod `json:"method"`
	Evidence    string     `json:"evidence"`
}
