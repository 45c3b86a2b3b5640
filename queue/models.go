package queue

import "time"

// Kind distinguishes the two review domains sharing the engine. It decides
// which reviewer pool and outcome vocabulary apply; the escalation machinery
// is identical for both.
type Kind string

const (
	KindDispute      Kind = "dispute"
	KindVerification Kind = "verification"
)

// Status is the lifecycle of a queue item. resolved and overturned are
// terminal; overturned marks an amended resolution, not a reopening.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInReview   Status = "in_review"
	StatusEscalated  Status = "escalated"
	StatusResolved   Status = "resolved"
	StatusOverturned Status = "overturned"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusOverturned
}

// Priority is the SLA tier of an item. It only moves upward, and only
// through escalation.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityUrgent   Priority = "urgent"
	PriorityCritical Priority = "critical"
)

// Outcome is the terminal decision applied at resolution.
type Outcome string

const (
	OutcomeRequesterFavor  Outcome = "requester_favor"
	OutcomeRespondentFavor Outcome = "respondent_favor"
	OutcomeSplit           Outcome = "split"
	OutcomeNoAction        Outcome = "no_action"
)

// ValidOutcome reports whether outcome belongs to the vocabulary of the
// given kind. Verifications have nothing to divide, so split is a dispute
// outcome only.
func ValidOutcome(kind Kind, outcome Outcome) bool {
	switch outcome {
	case OutcomeRequesterFavor, OutcomeRespondentFavor, OutcomeNoAction:
		return true
	case OutcomeSplit:
		return kind == KindDispute
	}
	return false
}

// Item mirrors the queue_items table.
type Item struct {
	ID                 string
	Kind               Kind
	Priority           Priority
	Status             Status
	FiledAt            time.Time
	RequesterID        string
	RespondentID       string
	AmountCents        int64
	AssignedReviewerID *string
	EscalationLevel    int
	WarnedAt           *time.Time
	ResolutionOutcome  *Outcome
	ResolutionNotes    *string
	ResolutionAmount   *int64
	RequesterCredit    *int64
	RespondentCredit   *int64
	ResolvedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// EscalationRecord mirrors the append-only escalation_records table. The
// unique (queue_item_id, level) pair is the duplicate-escalation guard.
type EscalationRecord struct {
	ID             string
	QueueItemID    string
	Level          int
	Reason         string
	FromReviewerID *string
	ToReviewerID   string
	OccurredAt     time.Time
}
