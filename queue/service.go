package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reviewflow/notify"
	"reviewflow/sla"
)

// Store is the persistence surface the service needs. *Repository satisfies
// it; tests substitute a fake.
type Store interface {
	Create(ctx context.Context, item Item) (Item, error)
	Get(ctx context.Context, id string) (Item, error)
	Assign(ctx context.Context, id, reviewerID string) (Item, error)
	Records(ctx context.Context, itemID string) ([]EscalationRecord, error)
}

// Service exposes intake and read operations on the queue. Escalation and
// resolution have their own engines; the service covers everything before
// and around them.
type Service struct {
	store       Store
	dispatcher  notify.Dispatcher
	policy      sla.Policy
	idGenerator func() string
	now         func() time.Time
}

func NewService(store Store, dispatcher notify.Dispatcher, policy sla.Policy) *Service {
	return &Service{
		store:       store,
		dispatcher:  dispatcher,
		policy:      policy,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateParams captures one dispute filing or verification submission.
type CreateParams struct {
	Kind         Kind
	Priority     Priority
	RequesterID  string
	RespondentID string
	AmountCents  int64
}

// Create files a new queue item. The SLA clock starts implicitly at
// filed_at; there is no pause and no cancellation once filed.
func (s *Service) Create(ctx context.Context, params CreateParams) (Item, error) {
	if params.Kind != KindDispute && params.Kind != KindVerification {
		return Item{}, fmt.Errorf("queue: unknown kind %q", params.Kind)
	}
	if params.RequesterID == "" || params.RespondentID == "" {
		return Item{}, fmt.Errorf("queue: both parties are required")
	}
	if params.AmountCents < 0 {
		return Item{}, fmt.Errorf("queue: negative amount")
	}
	priority := params.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if !sla.ValidPriority(string(priority)) {
		return Item{}, fmt.Errorf("queue: unknown priority %q", priority)
	}

	item := Item{
		ID:           s.idGenerator(),
		Kind:         params.Kind,
		Priority:     priority,
		FiledAt:      s.now().UTC(),
		RequesterID:  params.RequesterID,
		RespondentID: params.RespondentID,
		AmountCents:  params.AmountCents,
	}

	created, err := s.store.Create(ctx, item)
	if err != nil {
		return Item{}, err
	}

	if s.dispatcher != nil {
		event := notify.ItemFiled{
			ItemID:   created.ID,
			Kind:     string(created.Kind),
			Priority: string(created.Priority),
			FiledAt:  created.FiledAt,
		}
		// Notification failures never undo the filed item.
		_ = s.dispatcher.Dispatch(ctx, event, []string{created.RequesterID, created.RespondentID})
	}

	return created, nil
}

// Assign moves a pending item into review under the given reviewer.
func (s *Service) Assign(ctx context.Context, itemID, reviewerID string) (Item, error) {
	if itemID == "" || reviewerID == "" {
		return Item{}, fmt.Errorf("queue: assign requires item and reviewer ids")
	}
	return s.store.Assign(ctx, itemID, reviewerID)
}

// Get returns a single item.
func (s *Service) Get(ctx context.Context, itemID string) (Item, error) {
	return s.store.Get(ctx, itemID)
}

// History returns the item's escalation records, oldest level first.
func (s *Service) History(ctx context.Context, itemID string) ([]EscalationRecord, error) {
	return s.store.Records(ctx, itemID)
}

// SLAStatus derives the item's clock state for dashboards. Read-only; the
// percentage is computed from filed_at and priority, never cached.
func (s *Service) SLAStatus(ctx context.Context, itemID string) (sla.Snapshot, error) {
	item, err := s.store.Get(ctx, itemID)
	if err != nil {
		return sla.Snapshot{}, err
	}
	return s.policy.Evaluate(item.FiledAt, string(item.Priority), s.now()), nil
}
