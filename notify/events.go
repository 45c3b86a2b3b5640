package notify

import "time"

// Event is a typed notification emitted by the engine. Delivery mechanics
// (mail, SMS, in-app) live behind the Dispatcher; the engine only states
// what happened and to whom.
type Event interface {
	Topic() string
	Payload() map[string]any
}

// ItemFiled is emitted when a new queue item enters the system.
type ItemFiled struct {
	ItemID   string
	Kind     string
	Priority string
	FiledAt  time.Time
}

func (e ItemFiled) Topic() string { return "queue.item_filed" }

func (e ItemFiled) Payload() map[string]any {
	return map[string]any{
		"item_id":  e.ItemID,
		"kind":     e.Kind,
		"priority": e.Priority,
		"filed_at": e.FiledAt.UTC(),
	}
}

// SLAWarning is emitted once per escalation level when an item crosses the
// warning threshold.
type SLAWarning struct {
	ItemID         string
	Kind           string
	Priority       string
	Level          int
	Deadline       time.Time
	ElapsedPercent float64
}

func (e SLAWarning) Topic() string { return "queue.sla_warning" }

func (e SLAWarning) Payload() map[string]any {
	return map[string]any{
		"item_id":          e.ItemID,
		"kind":             e.Kind,
		"priority":         e.Priority,
		"escalation_level": e.Level,
		"deadline":         e.Deadline.UTC(),
		"elapsed_percent":  e.ElapsedPercent,
	}
}

// Escalated is emitted once per level when an item breaches its SLA (or is
// manually escalated) and moves to a higher-tier reviewer.
type Escalated struct {
	ItemID       string
	Kind         string
	Priority     string
	Level        int
	Reason       string
	FromReviewer string
	ToReviewer   string
	OccurredAt   time.Time
}

func (e Escalated) Topic() string { return "queue.sla_escalated" }

func (e Escalated) Payload() map[string]any {
	return map[string]any{
		"item_id":          e.ItemID,
		"kind":             e.Kind,
		"priority":         e.Priority,
		"escalation_level": e.Level,
		"reason":           e.Reason,
		"from_reviewer":    e.FromReviewer,
		"to_reviewer":      e.ToReviewer,
		"occurred_at":      e.OccurredAt.UTC(),
	}
}

// Resolved is emitted once per interested party when a terminal outcome is
// applied. IsInFavor is party-relative.
type Resolved struct {
	ItemID      string
	Kind        string
	Outcome     string
	PartyID     string
	PartyRole   string
	IsInFavor   bool
	CreditCents int64
	Amended     bool
	ResolvedAt  time.Time
}

func (e Resolved) Topic() string { return "queue.resolved" }

func (e Resolved) Payload() map[string]any {
	return map[string]any{
		"item_id":      e.ItemID,
		"kind":         e.Kind,
		"outcome":      e.Outcome,
		"party_id":     e.PartyID,
		"party_role":   e.PartyRole,
		"is_in_favor":  e.IsInFavor,
		"credit_cents": e.CreditCents,
		"amended":      e.Amended,
		"resolved_at":  e.ResolvedAt.UTC(),
	}
}
