package pg

import (
	"context"
	"fmt"
)

// GraphOp is a recorded intent to mutate the graph store.
type GraphOp struct {
	ID       int64
	Op       string
	Payload  []byte
	Attempts int
}

// EnqueueGraphOp records a graph mutation intent and returns its id.
// The row starts pending; the caller attempts the write immediately and
// the reconciler retries whatever stays pending.
func (c *Client) EnqueueGraphOp(ctx context.Context, op string, payload []byte) (int64, error) {
	var id int64
	err := c.pool.QueryRow(ctx, `
		INSERT INTO graph_outbox (op, payload) VALUES ($1, $2)
		RETURNING id
	`, op, payload).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue graph op: %w", err)
	}
	return id, nil
}

// PendingGraphOps returns up to limit pending ops, oldest first. Ordering
// matters: a message op must not be replayed before its episode op.
func (c *Client) PendingGraphOps(ctx context.Context, limit int) ([]GraphOp, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, op, payload, attempts
		FROM graph_outbox
		WHERE status = 'pending'
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending graph ops: %w", err)
	}
	defer rows.Close()

	var ops []GraphOp
	for rows.Next() {
		var op GraphOp
		if err := rows.Scan(&op.ID, &op.Op, &op.Payload, &op.Attempts); err != nil {
			return nil, fmt.Errorf("scan graph op: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending graph ops: %w", err)
	}
	return ops, nil
}

// MarkGraphOpDone records a successful replay.
func (c *Client) MarkGraphOpDone(ctx context.Context, id int64) error {
	_, err := c.pool.Exec(ctx, `
		UPDATE graph_outbox
		SET status = 'done', updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark graph op done: %w", err)
	}
	return nil
}

// MarkGraphOpFailed records a failed attempt. The op stays pending until
// maxAttempts is reached, then flips to failed and is left for manual
// reconciliation.
func (c *Client) MarkGraphOpFailed(ctx context.Context, id int64, maxAttempts int, cause string) error {
	_, err := c.pool.Exec(ctx, `
		UPDATE graph_outbox
		SET attempts = attempts + 1,
		    last_error = $2,
		    status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END,
		    updated_at = now()
		WHERE id = $1
	`, id, cause, maxAttempts)
	if err != nil {
		return fmt.Errorf("mark graph op failed: %w", err)
	}
	return nil
}
