package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/slopbot/internal/metrics"
)

// Outbox op kinds. The payload schema of each is fixed: rows written by an
// old process must replay on a new one.
const (
	opEnsureAgent   = "ensure_agent"
	opCreateEpisode = "create_episode"
	opAddMessage    = "add_message"
)

const (
	defaultMaxAttempts = 5
	defaultInterval    = 30 * time.Second
	defaultBatchSize   = 50
)

type ensureAgentPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type createEpisodePayload struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`
	Kind    string `json:"kind"`
	Summary string `json:"summary"`
}

type addMessagePayload struct {
	ID                string `json:"id"`
	EpisodeID         string `json:"episode_id"`
	Role              string `json:"role"`
	Content           string `json:"content"`
	TokenCount        int    `json:"token_count"`
	PreviousMessageID string `json:"previous_message_id,omitempty"`
}

func encodePayload(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode graph payload: %w", err)
	}
	return data, nil
}

// applyGraphOp decodes an outbox payload and performs the mutation. Shared
// by the inline write path and the reconciler so both replay identically.
func applyGraphOp(ctx context.Context, graph GraphStore, op string, payload []byte) error {
	switch op {
	case opEnsureAgent:
		var p ensureAgentPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", op, err)
		}
		return graph.EnsureAgent(ctx, p.ID, p.Name)

	case opCreateEpisode:
		var p createEpisodePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", op, err)
		}
		return graph.CreateEpisode(ctx, p.ID, p.AgentID, p.Kind, p.Summary)

	case opAddMessage:
		var p addMessagePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", op, err)
		}
		return graph.AddMessage(ctx, p.ID, p.EpisodeID, p.Role, p.Content, p.TokenCount, p.PreviousMessageID)

	default:
		return fmt.Errorf("unknown graph op %q", op)
	}
}

// Reconciler replays pending outbox rows against the graph store until it
// converges with Postgres.
type Reconciler struct {
	store   RelationalStore
	graph   GraphStore
	logger  *slog.Logger
	metrics *metrics.Collector

	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// NewReconciler creates a reconciler with default pacing.
func NewReconciler(store RelationalStore, graph GraphStore, logger *slog.Logger, collector *metrics.Collector) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:       store,
		graph:       graph,
		logger:      logger,
		metrics:     collector,
		Interval:    defaultInterval,
		BatchSize:   defaultBatchSize,
		MaxAttempts: defaultMaxAttempts,
	}
}

// Run replays pending ops on a ticker until ctx is cancelled. Intended to
// run in its own goroutine for the process lifetime.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.RunOnce(ctx); err != nil {
				r.logger.Warn("outbox reconciliation pass failed", "replayed", n, "error", err)
			} else if n > 0 {
				r.logger.Info("outbox reconciliation pass", "replayed", n)
			}
		}
	}
}

// RunOnce replays one batch of pending ops in insertion order and returns
// how many succeeded. It stops at the first failure: replaying a message
// before its episode would only burn attempts on a guaranteed no-match.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	ops, err := r.store.PendingGraphOps(ctx, r.BatchSize)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, op := range ops {
		start := time.Now()
		if err := applyGraphOp(ctx, r.graph, op.Op, op.Payload); err != nil {
			if merr := r.store.MarkGraphOpFailed(ctx, op.ID, r.MaxAttempts, err.Error()); merr != nil {
				return replayed, merr
			}
			return replayed, fmt.Errorf("replay op %d (%s): %w", op.ID, op.Op, err)
		}
		if r.metrics != nil {
			r.metrics.RecordTiming(metrics.OpOutboxRetry, time.Since(start))
		}
		if err := r.store.MarkGraphOpDone(ctx, op.ID); err != nil {
			return replayed, err
		}
		replayed++
	}
	return replayed, nil
}
