package sla

import "time"

// Snapshot is the derived SLA state of a queue item at a single instant.
// Nothing here is stored; every field is recomputed from (filed_at,
// priority, now) so concurrent readers never observe a stale percentage.
type Snapshot struct {
	Deadline       time.Time
	ElapsedPercent float64
	Remaining      time.Duration
	AtRisk         bool
	Breached       bool
}

// Deadline returns the instant by which the item must be reviewed.
func (p Policy) Deadline(filedAt time.Time, priority string) time.Time {
	return filedAt.Add(p.Threshold(priority))
}

// ElapsedPercent returns how much of the allotment has been consumed at
// now, clamped at 0 for clocks that run ahead of filed_at and unbounded
// above 100 after breach.
func (p Policy) ElapsedPercent(filedAt time.Time, priority string, now time.Time) float64 {
	threshold := p.Threshold(priority)
	if threshold <= 0 {
		return 100
	}
	elapsed := now.Sub(filedAt)
	if elapsed < 0 {
		return 0
	}
	return float64(elapsed) / float64(threshold) * 100
}

// AtRisk reports whether the item has crossed the warning threshold but
// has not yet breached.
func (p Policy) AtRisk(filedAt time.Time, priority string, now time.Time) bool {
	pct := p.ElapsedPercent(filedAt, priority, now)
	return pct >= p.WarningPercent && pct < 100
}

// Breached reports whether the allotment is fully consumed.
func (p Policy) Breached(filedAt time.Time, priority string, now time.Time) bool {
	return p.ElapsedPercent(filedAt, priority, now) >= 100
}

// Evaluate bundles the derived SLA state for dashboards and the sweep.
func (p Policy) Evaluate(filedAt time.Time, priority string, now time.Time) Snapshot {
	pct := p.ElapsedPercent(filedAt, priority, now)
	return Snapshot{
		Deadline:       p.Deadline(filedAt, priority),
		ElapsedPercent: pct,
		Remaining:      p.Deadline(filedAt, priority).Sub(now),
		AtRisk:         pct >= p.WarningPercent && pct < 100,
		Breached:       pct >= 100,
	}
}
