package resolution

import (
	"context"
	"fmt"
	"log"
	"time"

	"reviewflow/notify"
	"reviewflow/queue"
)

// Ledger applies financial adjustments decided at resolution. Commission
// and payout mechanics live behind it.
type Ledger interface {
	ApplyAdjustment(ctx context.Context, partyID string, amountCents int64) error
}

// Store is the queue persistence surface the processor needs.
type Store interface {
	Get(ctx context.Context, id string) (queue.Item, error)
	Resolve(ctx context.Context, params queue.ResolveParams) (queue.Item, bool, error)
	Overturn(ctx context.Context, params queue.ResolveParams) (queue.Item, bool, error)
}

// Result is the terminal decision as stored. Repeated resolve calls return
// the identical Result without recomputing or re-crediting anything.
type Result struct {
	Item             queue.Item
	Outcome          queue.Outcome
	Notes            string
	AmountCents      int64
	RequesterCredit  int64
	RespondentCredit int64
	AlreadyResolved  bool
}

// Processor validates and applies terminal outcomes.
type Processor struct {
	store      Store
	ledger     Ledger
	dispatcher notify.Dispatcher
	logger     *log.Logger
	now        func() time.Time
}

func NewProcessor(store Store, ledger Ledger, dispatcher notify.Dispatcher) *Processor {
	return &Processor{
		store:      store,
		ledger:     ledger,
		dispatcher: dispatcher,
		logger:     log.Default(),
		now:        time.Now,
	}
}

func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

func (p *Processor) WithLogger(logger *log.Logger) *Processor {
	p.logger = logger
	return p
}

// credits returns (requester, respondent) credit for the outcome. Splits
// truncate to the cent and hand the remainder to the requester; no_action
// zeroes the adjustment regardless of the amount supplied.
func credits(outcome queue.Outcome, amountCents int64) (int64, int64) {
	switch outcome {
	case queue.OutcomeRequesterFavor:
		return amountCents, 0
	case queue.OutcomeSplit:
		half := amountCents / 2
		return amountCents - half, half
	default:
		return 0, 0
	}
}

// Resolve applies the terminal outcome to an item. Idempotent: resolving an
// already-resolved item returns its stored result unchanged, with no ledger
// calls and no events.
func (p *Processor) Resolve(ctx context.Context, itemID string, outcome queue.Outcome, notes string, amountCents int64) (Result, error) {
	return p.finalize(ctx, itemID, outcome, notes, amountCents, false)
}

// Overturn amends an already-resolved item: the original credits are
// reversed, the amended outcome applied, and the item lands in the
// overturned terminal sub-state. Only resolved items can be overturned.
func (p *Processor) Overturn(ctx context.Context, itemID string, outcome queue.Outcome, notes string, amountCents int64) (Result, error) {
	return p.finalize(ctx, itemID, outcome, notes, amountCents, true)
}

func (p *Processor) finalize(ctx context.Context, itemID string, outcome queue.Outcome, notes string, amountCents int64, amend bool) (Result, error) {
	if amountCents < 0 {
		return Result{}, fmt.Errorf("resolution: negative adjustment amount")
	}

	item, err := p.store.Get(ctx, itemID)
	if err != nil {
		return Result{}, err
	}
	if !queue.ValidOutcome(item.Kind, outcome) {
		return Result{}, fmt.Errorf("resolution: outcome %q not valid for kind %q", outcome, item.Kind)
	}

	requesterCredit, respondentCredit := credits(outcome, amountCents)
	params := queue.ResolveParams{
		ItemID:           itemID,
		Outcome:          outcome,
		Notes:            notes,
		AmountCents:      amountCents,
		RequesterCredit:  requesterCredit,
		RespondentCredit: respondentCredit,
		Now:              p.now().UTC(),
	}

	var (
		stored  queue.Item
		already bool
	)
	if amend {
		stored, already, err = p.store.Overturn(ctx, params)
	} else {
		stored, already, err = p.store.Resolve(ctx, params)
	}
	if err != nil {
		return Result{}, err
	}
	if already {
		return storedResult(stored), nil
	}

	if amend {
		// Back out the credits of the original resolution before applying
		// the amended ones.
		p.applyCredit(ctx, item.RequesterID, negate(item.RequesterCredit))
		p.applyCredit(ctx, item.RespondentID, negate(item.RespondentCredit))
	}
	p.applyCredit(ctx, stored.RequesterID, requesterCredit)
	p.applyCredit(ctx, stored.RespondentID, respondentCredit)

	p.dispatchResolved(ctx, stored, outcome, requesterCredit, respondentCredit, amend)

	return Result{
		Item:             stored,
		Outcome:          outcome,
		Notes:            notes,
		AmountCents:      amountCents,
		RequesterCredit:  requesterCredit,
		RespondentCredit: respondentCredit,
	}, nil
}

func (p *Processor) applyCredit(ctx context.Context, partyID string, amountCents int64) {
	if amountCents == 0 || p.ledger == nil {
		return
	}
	if err := p.ledger.ApplyAdjustment(ctx, partyID, amountCents); err != nil {
		// The resolution is committed; the ledger retries on its own
		// schedule and must not unwind the state transition.
		p.logger.Printf("resolution: apply adjustment %d to %s: %v", amountCents, partyID, err)
	}
}

func (p *Processor) dispatchResolved(ctx context.Context, item queue.Item, outcome queue.Outcome, requesterCredit, respondentCredit int64, amended bool) {
	if p.dispatcher == nil {
		return
	}
	resolvedAt := p.now().UTC()
	if item.ResolvedAt != nil {
		resolvedAt = *item.ResolvedAt
	}

	parties := []struct {
		id     string
		role   string
		credit int64
	}{
		{item.RequesterID, "requester", requesterCredit},
		{item.RespondentID, "respondent", respondentCredit},
	}
	for _, party := range parties {
		event := notify.Resolved{
			ItemID:      item.ID,
			Kind:        string(item.Kind),
			Outcome:     string(outcome),
			PartyID:     party.id,
			PartyRole:   party.role,
			IsInFavor:   inFavor(outcome, party.role),
			CreditCents: party.credit,
			Amended:     amended,
			ResolvedAt:  resolvedAt,
		}
		if err := p.dispatcher.Dispatch(ctx, event, []string{party.id}); err != nil {
			p.logger.Printf("resolution: dispatch resolved for %s to %s: %v", item.ID, party.id, err)
		}
	}
}

// inFavor computes the party-relative flag: a split favors both parties,
// no_action favors neither.
func inFavor(outcome queue.Outcome, role string) bool {
	switch outcome {
	case queue.OutcomeRequesterFavor:
		return role == "requester"
	case queue.OutcomeRespondentFavor:
		return role == "respondent"
	case queue.OutcomeSplit:
		return true
	}
	return false
}

func storedResult(item queue.Item) Result {
	res := Result{Item: item, AlreadyResolved: true}
	if item.ResolutionOutcome != nil {
		res.Outcome = *item.ResolutionOutcome
	}
	if item.ResolutionNotes != nil {
		res.Notes = *item.ResolutionNotes
	}
	if item.ResolutionAmount != nil {
		res.AmountCents = *item.ResolutionAmount
	}
	if item.RequesterCredit != nil {
		res.RequesterCredit = *item.RequesterCredit
	}
	if item.RespondentCredit != nil {
		res.RespondentCredit = *item.RespondentCredit
	}
	return res
}

func negate(v *int64) int64 {
	if v == nil {
		return 0
	}
	return -*v
}
