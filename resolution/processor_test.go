package resolution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reviewflow/notify"
	"reviewflow/queue"
)

var filedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func disputeItem() queue.Item {
	return queue.Item{
		ID:           "item-1",
		Kind:         queue.KindDispute,
		Priority:     queue.PriorityNormal,
		Status:       queue.StatusInReview,
		FiledAt:      filedAt,
		RequesterID:  "requester-1",
		RespondentID: "respondent-1",
		AmountCents:  10000,
	}
}

func newTestProcessor(store *fakeStore, ledger *fakeLedger, dispatcher *fakeDispatcher) *Processor {
	return NewProcessor(store, ledger, dispatcher).
		WithClock(func() time.Time { return filedAt.Add(10 * time.Hour) })
}

func TestResolveSplitHalvesWithRemainderToRequester(t *testing.T) {
	store := newFakeStore(disputeItem())
	ledger := &fakeLedger{}
	proc := newTestProcessor(store, ledger, &fakeDispatcher{})

	res, err := proc.Resolve(context.Background(), "item-1", queue.OutcomeSplit, "split it", 101)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.RequesterCredit != 51 || res.RespondentCredit != 50 {
		t.Fatalf("expected 51/50 split of 101, got %d/%d", res.RequesterCredit, res.RespondentCredit)
	}
	if got := ledger.total("requester-1"); got != 51 {
		t.Errorf("requester ledger = %d, want 51", got)
	}
	if got := ledger.total("respondent-1"); got != 50 {
		t.Errorf("respondent ledger = %d, want 50", got)
	}
}

// resolve(split, 100) yields 50/50; a second call returns the identical
// result without a new ledger call.
func TestResolveIdempotent(t *testing.T) {
	store := newFakeStore(disputeItem())
	ledger := &fakeLedger{}
	dispatcher := &fakeDispatcher{}
	proc := newTestProcessor(store, ledger, dispatcher)

	first, err := proc.Resolve(context.Background(), "item-1", queue.OutcomeSplit, "even split", 100)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if first.RequesterCredit != 50 || first.RespondentCredit != 50 {
		t.Fatalf("expected 50/50, got %d/%d", first.RequesterCredit, first.RespondentCredit)
	}

	calls := ledger.calls()
	events := len(dispatcher.events)

	second, err := proc.Resolve(context.Background(), "item-1", queue.OutcomeRequesterFavor, "changed my mind", 999)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if !second.AlreadyResolved {
		t.Fatalf("expected AlreadyResolved on replay")
	}
	if second.Outcome != queue.OutcomeSplit || second.AmountCents != 100 {
		t.Fatalf("replay must return the stored result, got %s/%d", second.Outcome, second.AmountCents)
	}
	if second.RequesterCredit != 50 || second.RespondentCredit != 50 {
		t.Fatalf("replay credits = %d/%d, want 50/50", second.RequesterCredit, second.RespondentCredit)
	}
	if ledger.calls() != calls {
		t.Fatalf("replay must not touch the ledger: %d -> %d calls", calls, ledger.calls())
	}
	if len(dispatcher.events) != events {
		t.Fatalf("replay must not re-emit events")
	}
}

// no_action zeroes the adjustment even when a nonzero amount is supplied.
func TestResolveNoActionZeroesAmount(t *testing.T) {
	store := newFakeStore(disputeItem())
	ledger := &fakeLedger{}
	proc := newTestProcessor(store, ledger, &fakeDispatcher{})

	res, err := proc.Resolve(context.Background(), "item-1", queue.OutcomeNoAction, "", 500)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.RequesterCredit != 0 || res.RespondentCredit != 0 {
		t.Fatalf("no_action credits = %d/%d, want 0/0", res.RequesterCredit, res.RespondentCredit)
	}
	if ledger.calls() != 0 {
		t.Fatalf("no_action must not touch the ledger")
	}
}

func TestResolveRespondentFavorNoAdjustment(t *testing.T) {
	store := newFakeStore(disputeItem())
	ledger := &fakeLedger{}
	proc := newTestProcessor(store, ledger, &fakeDispatcher{})

	res, err := proc.Resolve(context.Background(), "item-1", queue.OutcomeRespondentFavor, "claim rejected", 250)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.RequesterCredit != 0 || res.RespondentCredit != 0 {
		t.Fatalf("respondent_favor credits = %d/%d, want 0/0", res.RequesterCredit, res.RespondentCredit)
	}
	if res.Item.Status != queue.StatusResolved {
		t.Fatalf("expected resolved status, got %s", res.Item.Status)
	}
}

func TestResolveEmitsPartyRelativeEvents(t *testing.T) {
	store := newFakeStore(disputeItem())
	dispatcher := &fakeDispatcher{}
	proc := newTestProcessor(store, &fakeLedger{}, dispatcher)

	if _, err := proc.Resolve(context.Background(), "item-1", queue.OutcomeRequesterFavor, "upheld", 300); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(dispatcher.events) != 2 {
		t.Fatalf("expected one event per party, got %d", len(dispatcher.events))
	}
	byRole := map[string]notify.Resolved{}
	for _, ev := range dispatcher.events {
		resolved, ok := ev.(notify.Resolved)
		if !ok {
			t.Fatalf("unexpected event type %T", ev)
		}
		byRole[resolved.PartyRole] = resolved
	}
	if !byRole["requester"].IsInFavor {
		t.Errorf("requester_favor should favor the requester")
	}
	if byRole["respondent"].IsInFavor {
		t.Errorf("requester_favor should not favor the respondent")
	}
	if byRole["requester"].CreditCents != 300 {
		t.Errorf("requester credit in event = %d, want 300", byRole["requester"].CreditCents)
	}
}

func TestResolveRejectsSplitForVerification(t *testing.T) {
	item := disputeItem()
	item.Kind = queue.KindVerification
	store := newFakeStore(item)
	proc := newTestProcessor(store, &fakeLedger{}, &fakeDispatcher{})

	if _, err := proc.Resolve(context.Background(), "item-1", queue.OutcomeSplit, "", 100); err == nil {
		t.Fatalf("expected split to be rejected for verification items")
	}
}

func TestOverturnReversesOriginalCredits(t *testing.T) {
	store := newFakeStore(disputeItem())
	ledger := &fakeLedger{}
	proc := newTestProcessor(store, ledger, &fakeDispatcher{})

	if _, err := proc.Resolve(context.Background(), "item-1", queue.OutcomeRequesterFavor, "upheld", 100); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	res, err := proc.Overturn(context.Background(), "item-1", queue.OutcomeRespondentFavor, "appeal granted", 0)
	if err != nil {
		t.Fatalf("overturn: %v", err)
	}
	if res.Item.Status != queue.StatusOverturned {
		t.Fatalf("expected overturned status, got %s", res.Item.Status)
	}
	// +100 then -100: the requester nets zero.
	if got := ledger.total("requester-1"); got != 0 {
		t.Fatalf("requester net = %d, want 0 after reversal", got)
	}
}

func TestOverturnRequiresResolvedItem(t *testing.T) {
	store := newFakeStore(disputeItem())
	proc := newTestProcessor(store, &fakeLedger{}, &fakeDispatcher{})

	if _, err := proc.Overturn(context.Background(), "item-1", queue.OutcomeNoAction, "", 0); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

// fakeStore replicates the repository's terminal-state handling in memory.
type fakeStore struct {
	mu   sync.Mutex
	item queue.Item
}

func newFakeStore(item queue.Item) *fakeStore {
	return &fakeStore{item: item}
}

func (f *fakeStore) Get(ctx context.Context, id string) (queue.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.item.ID != id {
		return queue.Item{}, queue.ErrNotFound
	}
	return f.item, nil
}

func (f *fakeStore) Resolve(ctx context.Context, params queue.ResolveParams) (queue.Item, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.item.ID != params.ItemID {
		return queue.Item{}, false, queue.ErrNotFound
	}
	if f.item.Status.Terminal() {
		return f.item, true, nil
	}
	f.apply(params, queue.StatusResolved)
	return f.item, false, nil
}

func (f *fakeStore) Overturn(ctx context.Context, params queue.ResolveParams) (queue.Item, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.item.ID != params.ItemID {
		return queue.Item{}, false, queue.ErrNotFound
	}
	if f.item.Status == queue.StatusOverturned {
		return f.item, true, nil
	}
	if f.item.Status != queue.StatusResolved {
		return queue.Item{}, false, queue.ErrInvalidTransition
	}
	f.apply(params, queue.StatusOverturned)
	return f.item, false, nil
}

func (f *fakeStore) apply(params queue.ResolveParams, status queue.Status) {
	outcome := params.Outcome
	notes := params.Notes
	amount := params.AmountCents
	requester := params.RequesterCredit
	respondent := params.RespondentCredit
	now := params.Now

	f.item.Status = status
	f.item.ResolutionOutcome = &outcome
	f.item.ResolutionNotes = &notes
	f.item.ResolutionAmount = &amount
	f.item.RequesterCredit = &requester
	f.item.RespondentCredit = &respondent
	f.item.ResolvedAt = &now
}

type fakeLedger struct {
	mu      sync.Mutex
	entries map[string]int64
	n       int
}

func (f *fakeLedger) ApplyAdjustment(ctx context.Context, partyID string, amountCents int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries == nil {
		f.entries = make(map[string]int64)
	}
	f.entries[partyID] += amountCents
	f.n++
	return nil
}

func (f *fakeLedger) total(partyID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[partyID]
}

func (f *fakeLedger) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

type fakeDispatcher struct {
	events []notify.Event
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, event notify.Event, recipients []string) error {
	f.events = append(f.events, event)
	return nil
}
