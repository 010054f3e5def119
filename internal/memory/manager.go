// Package memory owns episode continuity and the dual write of every
// conversation turn to Postgres and the graph store.
//
// Postgres is the source of truth: the relational insert for a turn always
// happens first, and graph mutations are recorded as outbox intents before
// they are attempted, so a failed graph write is retried by the reconciler
// instead of silently diverging the two stores.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/slopbot/internal/metrics"
	"github.com/raphaelgruber/slopbot/internal/models"
	"github.com/raphaelgruber/slopbot/internal/pg"
)

// ErrNoAgent is returned when a store operation runs before agent identity
// has been resolved.
var ErrNoAgent = errors.New("memory: agent identity not resolved")

// errIntentNotRecorded marks a graph write whose outbox row could not be
// written. Without the intent row nothing will ever replay the mutation,
// so this failure must not be deferred to the reconciler.
var errIntentNotRecorded = errors.New("memory: graph intent not recorded")

// RelationalStore is the subset of the Postgres client the manager needs.
type RelationalStore interface {
	GetAgentByName(ctx context.Context, name string) (models.Agent, error)
	InsertAgent(ctx context.Context, name string) (models.Agent, error)
	InsertEpisode(ctx context.Context, ep models.Episode) (models.Episode, error)
	GetOpenEpisodeByChannel(ctx context.Context, channelID string) (models.Episode, error)
	InsertMessage(ctx context.Context, msg models.Message) (models.Message, error)
	LastMessageID(ctx context.Context, episodeID string) (string, error)
	EnqueueGraphOp(ctx context.Context, op string, payload []byte) (int64, error)
	PendingGraphOps(ctx context.Context, limit int) ([]pg.GraphOp, error)
	MarkGraphOpDone(ctx context.Context, id int64) error
	MarkGraphOpFailed(ctx context.Context, id int64, maxAttempts int, cause string) error
}

// GraphStore is the subset of the graph client the manager needs.
type GraphStore interface {
	EnsureAgent(ctx context.Context, id, name string) error
	CreateEpisode(ctx context.Context, id, agentID, kind, summary string) error
	AddMessage(ctx context.Context, id, episodeID, role, content string, tokenCount int, previousMessageID string) error
}

// channelState tracks the active episode and chronology pointer for one
// channel. Its mutex serializes all episode/message operations on the
// channel so concurrent events cannot double-mint an episode or fork the
// NEXT chain.
type channelState struct {
	mu            sync.Mutex
	episodeID     string
	lastMessageID string
}

// Manager maps channels to episodes and appends turns to both stores.
type Manager struct {
	store   RelationalStore
	graph   GraphStore
	logger  *slog.Logger
	metrics *metrics.Collector

	maxAttempts int

	agentID   string
	agentName string

	mu       sync.Mutex
	channels map[string]*channelState
}

// NewManager creates a manager. The collector may be nil.
func NewManager(store RelationalStore, graph GraphStore, logger *slog.Logger, collector *metrics.Collector) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:       store,
		graph:       graph,
		logger:      logger,
		metrics:     collector,
		maxAttempts: defaultMaxAttempts,
		channels:    make(map[string]*channelState),
	}
}

// AgentID returns the resolved agent id, empty before ResolveAgent.
func (m *Manager) AgentID() string {
	return m.agentID
}

// ResolveAgent ensures exactly one agent row/node exists for name and
// adopts its id. Must be called once at startup before any episode or
// message operation; any error is fatal for the caller since the agent
// cannot operate without an identity anchor.
func (m *Manager) ResolveAgent(ctx context.Context, name string) (string, error) {
	agent, err := m.store.GetAgentByName(ctx, name)
	if errors.Is(err, pg.ErrNotFound) {
		agent, err = m.store.InsertAgent(ctx, name)
	}
	if err != nil {
		return "", fmt.Errorf("resolve agent %q: %w", name, err)
	}

	// The graph node carries the same id so it is a valid anchor in both
	// stores. Identity resolution does not tolerate a diverged graph, so a
	// failed write here propagates instead of being left to the reconciler.
	if err := m.writeGraph(ctx, opEnsureAgent, ensureAgentPayload{ID: agent.ID, Name: agent.Name}); err != nil {
		return "", fmt.Errorf("resolve agent %q: %w", name, err)
	}

	m.agentID = agent.ID
	m.agentName = agent.Name
	m.logger.Info("agent identity resolved", "agent_id", agent.ID, "name", agent.Name)
	return agent.ID, nil
}

// channel returns the state entry for channelID, creating it on first use.
// Entries live for the process lifetime.
func (m *Manager) channel(channelID string) *channelState {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.channels[channelID]
	if !ok {
		cs = &channelState{}
		m.channels[channelID] = cs
	}
	return cs
}

// GetOrCreateEpisode returns the active episode id for a channel. A cache
// hit costs no store access. On a miss it first tries to recover an open
// episode from Postgres (so a restart continues the conversation instead
// of abandoning it), then mints a fresh one.
func (m *Manager) GetOrCreateEpisode(ctx context.Context, channelID string) (string, error) {
	cs := m.channel(channelID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return m.getOrCreateEpisodeLocked(ctx, channelID, cs)
}

func (m *Manager) getOrCreateEpisodeLocked(ctx context.Context, channelID string, cs *channelState) (string, error) {
	if cs.episodeID != "" {
		return cs.episodeID, nil
	}
	if m.agentID == "" {
		return "", ErrNoAgent
	}

	ep, err := m.store.GetOpenEpisodeByChannel(ctx, channelID)
	switch {
	case err == nil:
		lastID, lerr := m.store.LastMessageID(ctx, ep.ID)
		if lerr != nil && !errors.Is(lerr, pg.ErrNotFound) {
			return "", lerr
		}
		cs.episodeID = ep.ID
		cs.lastMessageID = lastID
		m.logger.Info("recovered open episode", "channel_id", channelID, "episode_id", ep.ID)
		return ep.ID, nil
	case !errors.Is(err, pg.ErrNotFound):
		return "", err
	}

	episode := models.Episode{
		ID:        uuid.NewString(),
		AgentID:   m.agentID,
		ChannelID: channelID,
		Kind:      models.EpisodeChat,
		Summary:   "discord channel " + channelID,
	}

	start := time.Now()
	if _, err := m.store.InsertEpisode(ctx, episode); err != nil {
		return "", err
	}
	m.recordTiming(metrics.OpPGWrite, start)

	if err := m.writeGraph(ctx, opCreateEpisode, createEpisodePayload{
		ID:      episode.ID,
		AgentID: episode.AgentID,
		Kind:    string(episode.Kind),
		Summary: episode.Summary,
	}); err != nil {
		if errors.Is(err, errIntentNotRecorded) {
			// Enqueue shares the turn's relational store; its failure
			// means Postgres itself is failing and nothing will heal
			// the graph. Fail the turn instead of diverging silently.
			return "", err
		}
		// The row exists and the intent is queued; the reconciler will
		// replay the node creation.
		m.logger.Warn("graph episode write deferred to reconciler",
			"episode_id", episode.ID, "error", err)
	}

	cs.episodeID = episode.ID
	m.logger.Info("episode created", "channel_id", channelID, "episode_id", episode.ID)
	return episode.ID, nil
}

// AppendMessage persists one turn to both stores and advances the
// channel's chronology pointer. The relational insert comes first and its
// failure fails the turn; a graph failure is deferred to the reconciler.
// The pointer advances exactly once per turn, after both writes have been
// attempted.
func (m *Manager) AppendMessage(ctx context.Context, channelID string, role models.Role, content string) (models.Message, error) {
	cs := m.channel(channelID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	episodeID, err := m.getOrCreateEpisodeLocked(ctx, channelID, cs)
	if err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		ID:         uuid.NewString(),
		EpisodeID:  episodeID,
		Role:       role,
		Content:    content,
		TokenCount: models.EstimateTokens(content),
	}

	start := time.Now()
	msg, err = m.store.InsertMessage(ctx, msg)
	if err != nil {
		return models.Message{}, err
	}
	m.recordTiming(metrics.OpPGWrite, start)

	if err := m.writeGraph(ctx, opAddMessage, addMessagePayload{
		ID:                msg.ID,
		EpisodeID:         msg.EpisodeID,
		Role:              string(msg.Role),
		Content:           msg.Content,
		TokenCount:        msg.TokenCount,
		PreviousMessageID: cs.lastMessageID,
	}); err != nil {
		if errors.Is(err, errIntentNotRecorded) {
			return models.Message{}, err
		}
		m.logger.Warn("graph message write deferred to reconciler",
			"message_id", msg.ID, "error", err)
	}

	cs.lastMessageID = msg.ID
	return msg, nil
}

// writeGraph records the mutation intent in the outbox, attempts it, and
// settles the outbox row. The enqueue shares the turn's relational store,
// so losing the intent means the relational write failed too.
func (m *Manager) writeGraph(ctx context.Context, op string, payload any) error {
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}

	outboxID, err := m.store.EnqueueGraphOp(ctx, op, data)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", errIntentNotRecorded, op, err)
	}

	start := time.Now()
	if err := applyGraphOp(ctx, m.graph, op, data); err != nil {
		if merr := m.store.MarkGraphOpFailed(ctx, outboxID, m.maxAttempts, err.Error()); merr != nil {
			m.logger.Error("failed to record graph op failure", "outbox_id", outboxID, "error", merr)
		}
		return err
	}
	m.recordTiming(metrics.OpGraphWrite, start)

	return m.store.MarkGraphOpDone(ctx, outboxID)
}

func (m *Manager) recordTiming(op string, start time.Time) {
	if m.metrics != nil {
		m.metrics.RecordTiming(op, time.Since(start))
	}
}
