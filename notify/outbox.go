package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxDispatcher records events in the outbox table for downstream
// delivery workers to drain. One row is written per dispatch; the recipient
// set rides inside the payload.
type OutboxDispatcher struct {
	pool *pgxpool.Pool
}

func NewOutboxDispatcher(pool *pgxpool.Pool) *OutboxDispatcher {
	return &OutboxDispatcher{pool: pool}
}

func (d *OutboxDispatcher) Dispatch(ctx context.Context, event Event, recipients []string) error {
	payload := event.Payload()
	payload["recipients"] = recipients

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := d.pool.Exec(ctx, q, event.Topic(), body); err != nil {
		return fmt.Errorf("notify: enqueue outbox: %w", err)
	}
	return nil
}
