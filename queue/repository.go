package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound          = errors.New("queue: item not found")
	ErrInvalidTransition = errors.New("queue: invalid status transition")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `
	id, kind::text, priority::text, status::text, filed_at,
	requester_id::text, respondent_id::text, amount_cents,
	assigned_reviewer_id::text, escalation_level, warned_at,
	resolution_outcome, resolution_notes, resolution_amount_cents,
	requester_credit_cents, respondent_credit_cents, resolved_at,
	created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(
		&it.ID, &it.Kind, &it.Priority, &it.Status, &it.FiledAt,
		&it.RequesterID, &it.RespondentID, &it.AmountCents,
		&it.AssignedReviewerID, &it.EscalationLevel, &it.WarnedAt,
		&it.ResolutionOutcome, &it.ResolutionNotes, &it.ResolutionAmount,
		&it.RequesterCredit, &it.RespondentCredit, &it.ResolvedAt,
		&it.CreatedAt, &it.UpdatedAt,
	)
	return it, err
}

func (r *Repository) Create(ctx context.Context, item Item) (Item, error) {
	const query = `
		INSERT INTO queue_items (id, kind, priority, status, filed_at, requester_id, respondent_id, amount_cents)
		VALUES ($1, $2::queue_kind, $3::queue_priority, 'pending', $4, $5, $6, $7)
		RETURNING` + itemColumns

	row := r.pool.QueryRow(ctx, query,
		item.ID, item.Kind, item.Priority, item.FiledAt,
		item.RequesterID, item.RespondentID, item.AmountCents,
	)
	created, err := scanItem(row)
	if err != nil {
		return Item{}, fmt.Errorf("queue: create: %w", err)
	}
	return created, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Item, error) {
	query := `SELECT` + itemColumns + ` FROM queue_items WHERE id = $1`
	item, err := scanItem(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, fmt.Errorf("queue: get: %w", err)
	}
	return item, nil
}

// ListOpen returns every non-terminal item, oldest first, for the sweep.
func (r *Repository) ListOpen(ctx context.Context) ([]Item, error) {
	query := `
		SELECT` + itemColumns + `
		FROM queue_items
		WHERE status NOT IN ('resolved', 'overturned')
		ORDER BY filed_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("queue: list open: %w", err)
	}
	defer rows.Close()

	out := make([]Item, 0, 16)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("queue: scan open item: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue: iterate open items: %w", err)
	}
	return out, nil
}

// Assign sets the reviewer on a pending or in-review item. Escalated items
// keep their directory-chosen reviewer and terminal items reject the call.
func (r *Repository) Assign(ctx context.Context, id, reviewerID string) (Item, error) {
	query := `
		UPDATE queue_items
		SET assigned_reviewer_id = $2,
		    status = 'in_review',
		    updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'in_review')
		RETURNING` + itemColumns

	item, err := scanItem(r.pool.QueryRow(ctx, query, id, reviewerID))
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Item{}, fmt.Errorf("queue: assign: %w", err)
	}

	// Zero rows: distinguish a missing item from a bad state.
	if _, err := r.Get(ctx, id); err != nil {
		return Item{}, err
	}
	return Item{}, ErrInvalidTransition
}

// MarkWarned records the at-risk warning timestamp. The warned_at IS NULL
// guard plus the level match make this a compare-and-set: of N concurrent
// sweeps, exactly one sees true.
func (r *Repository) MarkWarned(ctx context.Context, id string, level int, now time.Time) (bool, error) {
	const query = `
		UPDATE queue_items
		SET warned_at = $3, updated_at = now()
		WHERE id = $1
		  AND escalation_level = $2
		  AND warned_at IS NULL
		  AND status NOT IN ('resolved', 'overturned')`

	tag, err := r.pool.Exec(ctx, query, id, level, now)
	if err != nil {
		return false, fmt.Errorf("queue: mark warned: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// EscalateParams carries one escalation attempt. FromLevel is the level the
// caller observed; if the item has moved past it the attempt is a no-op.
type EscalateParams struct {
	ItemID        string
	FromLevel     int
	Reason        string
	ToReviewerID  string
	RaisePriority Priority // empty means keep the current priority
	Now           time.Time
}

// EscalateResult reports what an escalation attempt did. NoOp means another
// writer already escalated past FromLevel; Record then holds the existing
// record for FromLevel+1 when one exists.
type EscalateResult struct {
	Item   Item
	Record EscalationRecord
	NoOp   bool
}

// Escalate raises the item one level, reassigns it, and appends exactly one
// EscalationRecord. The row lock plus the expected-level check make
// concurrent attempts first-writer-wins; losers get a benign no-op.
func (r *Repository) Escalate(ctx context.Context, params EscalateParams) (EscalateResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return EscalateResult{}, fmt.Errorf("queue: escalate begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	lockQuery := `SELECT` + itemColumns + ` FROM queue_items WHERE id = $1 FOR UPDATE`
	item, err := scanItem(tx.QueryRow(ctx, lockQuery, params.ItemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EscalateResult{}, ErrNotFound
		}
		return EscalateResult{}, fmt.Errorf("queue: escalate lock: %w", err)
	}
	if item.Status.Terminal() {
		return EscalateResult{}, ErrInvalidTransition
	}

	target := params.FromLevel + 1
	if item.EscalationLevel != params.FromLevel {
		// Another sweep won the race. Surface the record it wrote, if any.
		rec, err := r.recordAt(ctx, tx, params.ItemID, target)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return EscalateResult{}, err
		}
		return EscalateResult{Item: item, Record: rec, NoOp: true}, nil
	}

	const insertRecord = `
		INSERT INTO escalation_records (queue_item_id, level, reason, escalated_from_reviewer_id, escalated_to_reviewer_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (queue_item_id, level) DO NOTHING
		RETURNING id, queue_item_id::text, level, reason, escalated_from_reviewer_id::text, escalated_to_reviewer_id::text, occurred_at`

	var rec EscalationRecord
	err = tx.QueryRow(ctx, insertRecord,
		params.ItemID, target, params.Reason, item.AssignedReviewerID, params.ToReviewerID, params.Now,
	).Scan(&rec.ID, &rec.QueueItemID, &rec.Level, &rec.Reason, &rec.FromReviewerID, &rec.ToReviewerID, &rec.OccurredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			rec, err = r.recordAt(ctx, tx, params.ItemID, target)
			if err != nil {
				return EscalateResult{}, err
			}
			return EscalateResult{Item: item, Record: rec, NoOp: true}, nil
		}
		return EscalateResult{}, fmt.Errorf("queue: insert escalation record: %w", err)
	}

	priority := item.Priority
	if params.RaisePriority != "" {
		priority = params.RaisePriority
	}

	updateQuery := `
		UPDATE queue_items
		SET escalation_level = $2,
		    priority = $3::queue_priority,
		    status = 'escalated',
		    assigned_reviewer_id = $4,
		    warned_at = NULL,
		    updated_at = now()
		WHERE id = $1
		RETURNING` + itemColumns

	updated, err := scanItem(tx.QueryRow(ctx, updateQuery, params.ItemID, target, priority, params.ToReviewerID))
	if err != nil {
		return EscalateResult{}, fmt.Errorf("queue: escalate update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return EscalateResult{}, fmt.Errorf("queue: escalate commit: %w", err)
	}
	return EscalateResult{Item: updated, Record: rec}, nil
}

func (r *Repository) recordAt(ctx context.Context, tx pgx.Tx, itemID string, level int) (EscalationRecord, error) {
	const query = `
		SELECT id, queue_item_id::text, level, reason, escalated_from_reviewer_id::text, escalated_to_reviewer_id::text, occurred_at
		FROM escalation_records
		WHERE queue_item_id = $1 AND level = $2`

	var rec EscalationRecord
	err := tx.QueryRow(ctx, query, itemID, level).
		Scan(&rec.ID, &rec.QueueItemID, &rec.Level, &rec.Reason, &rec.FromReviewerID, &rec.ToReviewerID, &rec.OccurredAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return EscalationRecord{}, fmt.Errorf("queue: fetch escalation record: %w", err)
	}
	return rec, err
}

// Records returns the append-only escalation history for an item.
func (r *Repository) Records(ctx context.Context, itemID string) ([]EscalationRecord, error) {
	const query = `
		SELECT id, queue_item_id::text, level, reason, escalated_from_reviewer_id::text, escalated_to_reviewer_id::text, occurred_at
		FROM escalation_records
		WHERE queue_item_id = $1
		ORDER BY level`

	rows, err := r.pool.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("queue: list records: %w", err)
	}
	defer rows.Close()

	out := make([]EscalationRecord, 0, 4)
	for rows.Next() {
		var rec EscalationRecord
		if err := rows.Scan(&rec.ID, &rec.QueueItemID, &rec.Level, &rec.Reason, &rec.FromReviewerID, &rec.ToReviewerID, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("queue: scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue: iterate records: %w", err)
	}
	return out, nil
}

// ResolveParams carries the terminal decision and the credits the caller
// computed from it.
type ResolveParams struct {
	ItemID           string
	Outcome          Outcome
	Notes            string
	AmountCents      int64
	RequesterCredit  int64
	RespondentCredit int64
	Now              time.Time
}

// Resolve applies the terminal outcome under a row lock. If the item is
// already terminal the stored item is returned with already=true and nothing
// is written, which gives resolve its idempotence.
func (r *Repository) Resolve(ctx context.Context, params ResolveParams) (Item, bool, error) {
	return r.finalize(ctx, params, false)
}

// Overturn amends an already-resolved item into the overturned terminal
// sub-state. Items that were never resolved reject the call; an already
// overturned item returns its stored result with already=true.
func (r *Repository) Overturn(ctx context.Context, params ResolveParams) (Item, bool, error) {
	return r.finalize(ctx, params, true)
}

func (r *Repository) finalize(ctx context.Context, params ResolveParams, amend bool) (Item, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Item{}, false, fmt.Errorf("queue: resolve begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	lockQuery := `SELECT` + itemColumns + ` FROM queue_items WHERE id = $1 FOR UPDATE`
	item, err := scanItem(tx.QueryRow(ctx, lockQuery, params.ItemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, false, ErrNotFound
		}
		return Item{}, false, fmt.Errorf("queue: resolve lock: %w", err)
	}

	if amend {
		if item.Status == StatusOverturned {
			return item, true, nil
		}
		if item.Status != StatusResolved {
			return Item{}, false, ErrInvalidTransition
		}
	} else if item.Status.Terminal() {
		return item, true, nil
	}

	status := StatusResolved
	if amend {
		status = StatusOverturned
	}

	updateQuery := `
		UPDATE queue_items
		SET status = $2::queue_status,
		    resolution_outcome = $3,
		    resolution_notes = $4,
		    resolution_amount_cents = $5,
		    requester_credit_cents = $6,
		    respondent_credit_cents = $7,
		    resolved_at = $8,
		    updated_at = now()
		WHERE id = $1
		RETURNING` + itemColumns

	updated, err := scanItem(tx.QueryRow(ctx, updateQuery,
		params.ItemID, status, params.Outcome, params.Notes,
		params.AmountCents, params.RequesterCredit, params.RespondentCredit, params.Now,
	))
	if err != nil {
		return Item{}, false, fmt.Errorf("queue: resolve update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Item{}, false, fmt.Errorf("queue: resolve commit: %w", err)
	}
	return updated, false, nil
}
