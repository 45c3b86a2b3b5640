package escalation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"reviewflow/notify"
	"reviewflow/queue"
	"reviewflow/reviewer"
	"reviewflow/sla"
)

var (
	// ErrTerminalEscalation signals an escalation past the highest
	// configured tier; the item stays escalated at max level and the case
	// goes to manual handling.
	ErrTerminalEscalation = errors.New("escalation: already at highest tier")

	// ErrNotBreached rejects an unforced manual escalation before breach.
	ErrNotBreached = errors.New("escalation: item has not breached its SLA")
)

const autoEscalationReason = "sla_breach"

// Store is the queue persistence surface the engine mutates through.
// Every mutation is a compare-and-set; the engine never holds item state
// across calls.
type Store interface {
	Get(ctx context.Context, id string) (queue.Item, error)
	ListOpen(ctx context.Context) ([]queue.Item, error)
	MarkWarned(ctx context.Context, id string, level int, now time.Time) (bool, error)
	Escalate(ctx context.Context, params queue.EscalateParams) (queue.EscalateResult, error)
}

// Engine runs the recurring SLA sweep and the manual escalation path.
type Engine struct {
	store      Store
	directory  reviewer.Directory
	dispatcher notify.Dispatcher
	policy     sla.Policy
	interval   time.Duration
	workers    int
	logger     *log.Logger
}

type Config struct {
	Policy        sla.Policy
	SweepInterval time.Duration
	SweepWorkers  int
	Logger        *log.Logger
}

func NewEngine(store Store, directory reviewer.Directory, dispatcher notify.Dispatcher, cfg Config) *Engine {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.SweepWorkers <= 0 {
		cfg.SweepWorkers = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Engine{
		store:      store,
		directory:  directory,
		dispatcher: dispatcher,
		policy:     cfg.Policy,
		interval:   cfg.SweepInterval,
		workers:    cfg.SweepWorkers,
		logger:     cfg.Logger,
	}
}

// Run drives Tick on a fixed interval until the context is cancelled.
// Sweep failures are logged and the loop keeps going; the clock derives
// from filed_at, so missed or late sweeps lose nothing.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.Tick(ctx, time.Now()); err != nil {
				e.logger.Printf("escalation: sweep failed: %v", err)
			}
		}
	}
}

// Tick evaluates every open item against the SLA clock at now. The warning
// check runs before the breach check so an item that crossed both
// thresholds between sweeps emits both events, in order.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	items, err := e.store.ListOpen(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, item := range items {
		g.Go(func() error {
			if err := e.sweepItem(ctx, item, now); err != nil {
				e.logger.Printf("escalation: item %s: %v", item.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) sweepItem(ctx context.Context, item queue.Item, now time.Time) error {
	snap := e.policy.Evaluate(item.FiledAt, string(item.Priority), now)

	if snap.AtRisk && item.WarnedAt == nil {
		if err := e.warn(ctx, item, snap, now); err != nil {
			return err
		}
	}

	if !snap.Breached {
		return nil
	}
	if item.EscalationLevel >= e.policy.MaxEscalationLevel {
		// Terminal tier: nothing left to escalate to. The item stays
		// escalated until a reviewer resolves it.
		return nil
	}
	_, err := e.escalate(ctx, item, autoEscalationReason, now)
	return err
}

func (e *Engine) warn(ctx context.Context, item queue.Item, snap sla.Snapshot, now time.Time) error {
	won, err := e.store.MarkWarned(ctx, item.ID, item.EscalationLevel, now)
	if err != nil {
		return err
	}
	if !won {
		// Another sweep got there first.
		return nil
	}

	event := notify.SLAWarning{
		ItemID:         item.ID,
		Kind:           string(item.Kind),
		Priority:       string(item.Priority),
		Level:          item.EscalationLevel,
		Deadline:       snap.Deadline,
		ElapsedPercent: snap.ElapsedPercent,
	}
	var recipients []string
	if item.AssignedReviewerID != nil {
		recipients = append(recipients, *item.AssignedReviewerID)
	}
	if err := e.dispatcher.Dispatch(ctx, event, recipients); err != nil {
		// The warning is committed; delivery retries are the dispatcher's
		// problem.
		e.logger.Printf("escalation: dispatch warning for %s: %v", item.ID, err)
	}
	return nil
}

func (e *Engine) escalate(ctx context.Context, item queue.Item, reason string, now time.Time) (queue.EscalateResult, error) {
	nextLevel := item.EscalationLevel + 1
	nextReviewer, err := e.directory.NextReviewer(ctx, string(item.Kind), nextLevel)
	if err != nil {
		return queue.EscalateResult{}, fmt.Errorf("escalation: next reviewer for %s level %d: %w", item.Kind, nextLevel, err)
	}

	params := queue.EscalateParams{
		ItemID:       item.ID,
		FromLevel:    item.EscalationLevel,
		Reason:       reason,
		ToReviewerID: nextReviewer,
		Now:          now,
	}
	if e.policy.EscalationRaisesPriority {
		params.RaisePriority = queue.Priority(sla.RaisePriority(string(item.Priority)))
	}

	result, err := e.store.Escalate(ctx, params)
	if err != nil {
		return queue.EscalateResult{}, err
	}
	if result.NoOp {
		return result, nil
	}

	event := notify.Escalated{
		ItemID:       result.Item.ID,
		Kind:         string(result.Item.Kind),
		Priority:     string(result.Item.Priority),
		Level:        result.Record.Level,
		Reason:       result.Record.Reason,
		ToReviewer:   result.Record.ToReviewerID,
		OccurredAt:   result.Record.OccurredAt,
	}
	recipients := []string{result.Record.ToReviewerID}
	if result.Record.FromReviewerID != nil {
		event.FromReviewer = *result.Record.FromReviewerID
		if e.policy.NotifyPreviousReviewer {
			recipients = append(recipients, *result.Record.FromReviewerID)
		}
	}
	if err := e.dispatcher.Dispatch(ctx, event, recipients); err != nil {
		e.logger.Printf("escalation: dispatch escalation for %s: %v", item.ID, err)
	}
	return result, nil
}

// Escalate is the manual path, used by senior reviewers to bump an item
// before breach (forced) or to retry a failed automatic escalation.
func (e *Engine) Escalate(ctx context.Context, itemID, reason string, forced bool, now time.Time) (queue.EscalateResult, error) {
	item, err := e.store.Get(ctx, itemID)
	if err != nil {
		return queue.EscalateResult{}, err
	}
	if item.Status.Terminal() {
		return queue.EscalateResult{}, queue.ErrInvalidTransition
	}
	if item.EscalationLevel >= e.policy.MaxEscalationLevel {
		return queue.EscalateResult{}, ErrTerminalEscalation
	}
	if !forced && !e.policy.Breached(item.FiledAt, string(item.Priority), now) {
		return queue.EscalateResult{}, ErrNotBreached
	}
	if reason == "" {
		reason = "manual"
	}
	return e.escalate(ctx, item, reason, now)
}
