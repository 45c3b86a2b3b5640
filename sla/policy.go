package sla

import "time"

// Priority tiers shared across queue kinds, ordered from least to most
// urgent. Stored as text so the policy table can be driven by config.
const (
	PriorityLow      = "low"
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityUrgent   = "urgent"
	PriorityCritical = "critical"
)

// Policy holds the SLA parameters the engine runs against. It is built once
// at startup (from config) and passed in explicitly; nothing in this package
// reads ambient state.
type Policy struct {
	// Thresholds maps a priority tier to its review allotment. More urgent
	// tiers get shorter allotments.
	Thresholds map[string]time.Duration

	// WarningPercent is the elapsed percentage at which an at-risk warning
	// fires. Defaults to 80.
	WarningPercent float64

	// MaxEscalationLevel is the highest tier an item can be escalated to.
	MaxEscalationLevel int

	// EscalationRaisesPriority bumps the item's priority one tier on each
	// escalation, shortening the recomputed deadline.
	EscalationRaisesPriority bool

	// NotifyPreviousReviewer sends the outgoing reviewer an FYI copy of the
	// escalation event.
	NotifyPreviousReviewer bool
}

// DefaultPolicy returns the policy used when no configuration is supplied.
func DefaultPolicy() Policy {
	return Policy{
		Thresholds: map[string]time.Duration{
			PriorityLow:      168 * time.Hour,
			PriorityNormal:   120 * time.Hour,
			PriorityHigh:     72 * time.Hour,
			PriorityUrgent:   48 * time.Hour,
			PriorityCritical: 24 * time.Hour,
		},
		WarningPercent:           80,
		MaxEscalationLevel:       3,
		EscalationRaisesPriority: true,
		NotifyPreviousReviewer:   true,
	}
}

// Threshold returns the allotment for the given priority, falling back to
// the normal tier when the priority is unknown.
func (p Policy) Threshold(priority string) time.Duration {
	if d, ok := p.Thresholds[priority]; ok {
		return d
	}
	return p.Thresholds[PriorityNormal]
}

var priorityOrder = []string{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent, PriorityCritical}

// RaisePriority returns the next tier up, capped at critical. Unknown
// priorities are treated as normal.
func RaisePriority(priority string) string {
	for i, p := range priorityOrder {
		if p == priority {
			if i == len(priorityOrder)-1 {
				return p
			}
			return priorityOrder[i+1]
		}
	}
	return PriorityHigh
}

// ValidPriority reports whether priority names a known tier.
func ValidPriority(priority string) bool {
	for _, p := range priorityOrder {
		if p == priority {
			return true
		}
	}
	return false
}
