package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/raphaelgruber/slopbot/internal/models"
	"github.com/raphaelgruber/slopbot/internal/pg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory RelationalStore.
type fakeStore struct {
	mu       sync.Mutex
	agents   map[string]models.Agent // by name
	episodes map[string]models.Episode
	messages []models.Message

	outbox     []pg.GraphOp
	outboxDone map[int64]bool
	nextOutbox int64

	insertEpisodeCalls int
	openLookupCalls    int

	failInsertMessage bool
	failEnqueue       bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		agents:     make(map[string]models.Agent),
		episodes:   make(map[string]models.Episode),
		outboxDone: make(map[int64]bool),
	}
}

func (s *fakeStore) GetAgentByName(_ context.Context, name string) (models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.agents[name]; ok {
		return a, nil
	}
	return models.Agent{}, pg.ErrNotFound
}

func (s *fakeStore) InsertAgent(_ context.Context, name string) (models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[name]; ok {
		return models.Agent{}, errors.New("duplicate agent name")
	}
	a := models.Agent{ID: fmt.Sprintf("agent-%d", len(s.agents)+1), Name: name}
	s.agents[name] = a
	return a, nil
}

func (s *fakeStore) InsertEpisode(_ context.Context, ep models.Episode) (models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertEpisodeCalls++
	s.episodes[ep.ID] = ep
	return ep, nil
}

func (s *fakeStore) GetOpenEpisodeByChannel(_ context.Context, channelID string) (models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openLookupCalls++
	for _, ep := range s.episodes {
		if ep.ChannelID == channelID && ep.EndedAt == nil {
			return ep, nil
		}
	}
	return models.Episode{}, pg.ErrNotFound
}

func (s *fakeStore) InsertMessage(_ context.Context, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsertMessage {
		return models.Message{}, errors.New("pg down")
	}
	if _, ok := s.episodes[msg.EpisodeID]; !ok {
		return models.Message{}, errors.New("foreign key violation: episode")
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *fakeStore) LastMessageID(_ context.Context, episodeID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].EpisodeID == episodeID {
			return s.messages[i].ID, nil
		}
	}
	return "", pg.ErrNotFound
}

func (s *fakeStore) EnqueueGraphOp(_ context.Context, op string, payload []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failEnqueue {
		return 0, errors.New("pg down")
	}
	s.nextOutbox++
	s.outbox = append(s.outbox, pg.GraphOp{ID: s.nextOutbox, Op: op, Payload: payload})
	return s.nextOutbox, nil
}

func (s *fakeStore) PendingGraphOps(_ context.Context, limit int) ([]pg.GraphOp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []pg.GraphOp
	for _, op := range s.outbox {
		if !s.outboxDone[op.ID] {
			pending = append(pending, op)
			if len(pending) == limit {
				break
			}
		}
	}
	return pending, nil
}

func (s *fakeStore) MarkGraphOpDone(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outboxDone[id] = true
	return nil
}

func (s *fakeStore) MarkGraphOpFailed(_ context.Context, id int64, _ int, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			s.outbox[i].Attempts++
		}
	}
	return nil
}

func (s *fakeStore) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, op := range s.outbox {
		if !s.outboxDone[op.ID] {
			n++
		}
	}
	return n
}

type graphMessage struct {
	id, episodeID, role, content, prev string
	tokenCount                         int
}

// fakeGraph mimics the match-then-create store, including ErrNoMatch when
// a prerequisite node is absent.
type fakeGraph struct {
	mu       sync.Mutex
	agents   map[string]string // id -> name
	episodes map[string]string // id -> agent id
	messages []graphMessage

	down bool
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		agents:   make(map[string]string),
		episodes: make(map[string]string),
	}
}

func (g *fakeGraph) EnsureAgent(_ context.Context, id, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return errors.New("graph down")
	}
	g.agents[id] = name
	return nil
}

func (g *fakeGraph) CreateEpisode(_ context.Context, id, agentID, _, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return errors.New("graph down")
	}
	if _, ok := g.agents[agentID]; !ok {
		return ErrFakeNoMatch
	}
	g.episodes[id] = agentID
	return nil
}

func (g *fakeGraph) AddMessage(_ context.Context, id, episodeID, role, content string, tokenCount int, prev string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return errors.New("graph down")
	}
	if _, ok := g.episodes[episodeID]; !ok {
		return ErrFakeNoMatch
	}
	if prev != "" && !g.hasMessageLocked(prev) {
		return ErrFakeNoMatch
	}
	g.messages = append(g.messages, graphMessage{id, episodeID, role, content, prev, tokenCount})
	return nil
}

func (g *fakeGraph) hasMessageLocked(id string) bool {
	for _, m := range g.messages {
		if m.id == id {
			return true
		}
	}
	return false
}

var ErrFakeNoMatch = errors.New("prerequisite node not found")

func newTestManager(t *testing.T) (*Manager, *fakeStore, *fakeGraph) {
	t.Helper()
	store := newFakeStore()
	graph := newFakeGraph()
	m := NewManager(store, graph, nil, nil)
	return m, store, graph
}

func resolvedManager(t *testing.T) (*Manager, *fakeStore, *fakeGraph) {
	t.Helper()
	m, store, graph := newTestManager(t)
	_, err := m.ResolveAgent(context.Background(), "slopbot")
	require.NoError(t, err)
	return m, store, graph
}

func TestResolveAgentIdempotent(t *testing.T) {
	m, store, graph := newTestManager(t)
	ctx := context.Background()

	first, err := m.ResolveAgent(ctx, "slopbot")
	require.NoError(t, err)
	second, err := m.ResolveAgent(ctx, "slopbot")
	require.NoError(t, err)

	assert.Equal(t, first, second, "both resolutions should adopt the same id")
	assert.Len(t, store.agents, 1, "exactly one agent row")
	assert.Len(t, graph.agents, 1, "exactly one agent node")
	assert.Equal(t, "slopbot", graph.agents[first])
}

func TestResolveAgentGraphFailureIsFatal(t *testing.T) {
	m, _, graph := newTestManager(t)
	graph.down = true

	_, err := m.ResolveAgent(context.Background(), "slopbot")
	require.Error(t, err, "identity resolution must not tolerate a diverged graph")
	assert.Empty(t, m.AgentID())
}

func TestGetOrCreateEpisode(t *testing.T) {
	m, store, graph := resolvedManager(t)
	ctx := context.Background()

	first, err := m.GetOrCreateEpisode(ctx, "c1")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := m.GetOrCreateEpisode(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.insertEpisodeCalls, "exactly one episode row")
	assert.Len(t, graph.episodes, 1, "exactly one episode node")
	assert.Equal(t, 1, store.openLookupCalls, "cache hit must not touch the store")
}

func TestGetOrCreateEpisodeDistinctChannels(t *testing.T) {
	m, store, _ := resolvedManager(t)
	ctx := context.Background()

	e1, err := m.GetOrCreateEpisode(ctx, "c1")
	require.NoError(t, err)
	e2, err := m.GetOrCreateEpisode(ctx, "c2")
	require.NoError(t, err)

	assert.NotEqual(t, e1, e2)
	assert.Equal(t, 2, store.insertEpisodeCalls)
}

func TestGetOrCreateEpisodeRequiresAgent(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.GetOrCreateEpisode(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrNoAgent)
}

func TestGetOrCreateEpisodeRecoversOpen(t *testing.T) {
	m, store, graph := resolvedManager(t)
	ctx := context.Background()

	episodeID, err := m.GetOrCreateEpisode(ctx, "c1")
	require.NoError(t, err)
	msg, err := m.AppendMessage(ctx, "c1", models.RoleUser, "hello")
	require.NoError(t, err)

	// Fresh manager, same stores: simulates a process restart.
	m2 := NewManager(store, graph, nil, nil)
	_, err = m2.ResolveAgent(ctx, "slopbot")
	require.NoError(t, err)

	recovered, err := m2.GetOrCreateEpisode(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, episodeID, recovered, "open episode should be recovered, not re-minted")
	assert.Equal(t, 1, store.insertEpisodeCalls)

	// The NEXT chain must continue from the pre-restart message.
	reply, err := m2.AppendMessage(ctx, "c1", models.RoleAssistant, "hi there")
	require.NoError(t, err)
	last := graph.messages[len(graph.messages)-1]
	assert.Equal(t, reply.ID, last.id)
	assert.Equal(t, msg.ID, last.prev)
}

func TestAppendMessageChain(t *testing.T) {
	m, store, graph := resolvedManager(t)
	ctx := context.Background()

	user, err := m.AppendMessage(ctx, "c1", models.RoleUser, "hello")
	require.NoError(t, err)
	assistant, err := m.AppendMessage(ctx, "c1", models.RoleAssistant, "hi there")
	require.NoError(t, err)

	assert.Equal(t, 2, user.TokenCount)
	assert.Equal(t, 2, assistant.TokenCount)
	assert.Equal(t, user.EpisodeID, assistant.EpisodeID)

	require.Len(t, store.messages, 2)
	require.Len(t, graph.messages, 2)
	assert.Equal(t, "", graph.messages[0].prev, "first message has no predecessor")
	assert.Equal(t, user.ID, graph.messages[1].prev, "NEXT edge links user -> assistant")

	// Relational insertion order matches the graph chain.
	assert.Equal(t, store.messages[0].ID, graph.messages[0].id)
	assert.Equal(t, store.messages[1].ID, graph.messages[1].id)
}

func TestAppendMessageRelationalFailureFailsTurn(t *testing.T) {
	m, store, graph := resolvedManager(t)
	ctx := context.Background()

	_, err := m.GetOrCreateEpisode(ctx, "c1")
	require.NoError(t, err)

	store.failInsertMessage = true
	_, err = m.AppendMessage(ctx, "c1", models.RoleUser, "hello")
	require.Error(t, err)
	assert.Empty(t, graph.messages, "graph must not be written when the relational insert fails")
}

func TestAppendMessageGraphFailureDefersToOutbox(t *testing.T) {
	m, store, graph := resolvedManager(t)
	ctx := context.Background()

	_, err := m.GetOrCreateEpisode(ctx, "c1")
	require.NoError(t, err)

	graph.down = true
	msg, err := m.AppendMessage(ctx, "c1", models.RoleUser, "hello")
	require.NoError(t, err, "a graph outage must not fail the turn")

	assert.Len(t, store.messages, 1, "relational row persisted")
	assert.Empty(t, graph.messages, "graph write failed")
	assert.Equal(t, 1, store.pendingCount(), "intent stays pending for the reconciler")

	// The chronology pointer advanced exactly once despite the failure.
	graph.down = false
	reply, err := m.AppendMessage(ctx, "c1", models.RoleAssistant, "hi")
	require.NoError(t, err)
	require.NotEmpty(t, graph.messages)
	assert.Equal(t, msg.ID, graph.messages[len(graph.messages)-1].prev)
	assert.Equal(t, reply.ID, graph.messages[len(graph.messages)-1].id)
}

func TestAppendMessageEnqueueFailureFailsTurn(t *testing.T) {
	m, store, graph := resolvedManager(t)
	ctx := context.Background()

	_, err := m.GetOrCreateEpisode(ctx, "c1")
	require.NoError(t, err)

	// A lost intent has no outbox row, so the reconciler can never heal
	// it; the turn must fail rather than claim deferral.
	store.failEnqueue = true
	_, err = m.AppendMessage(ctx, "c1", models.RoleUser, "hello")
	require.Error(t, err)
	assert.Empty(t, graph.messages)
	assert.Equal(t, 0, store.pendingCount(), "no intent row exists to replay")

	// The chronology pointer must not have advanced past the failed turn.
	store.failEnqueue = false
	msg, err := m.AppendMessage(ctx, "c1", models.RoleUser, "hello again")
	require.NoError(t, err)
	require.Len(t, graph.messages, 1)
	assert.Equal(t, msg.ID, graph.messages[0].id)
	assert.Equal(t, "", graph.messages[0].prev, "failed turn must not be a predecessor")
}

func TestGetOrCreateEpisodeEnqueueFailureFailsTurn(t *testing.T) {
	m, store, _ := resolvedManager(t)
	ctx := context.Background()

	store.failEnqueue = true
	_, err := m.GetOrCreateEpisode(ctx, "c1")
	require.Error(t, err)
	assert.Equal(t, 0, store.pendingCount())
}

func TestConcurrentSameChannelSingleEpisode(t *testing.T) {
	m, store, _ := resolvedManager(t)
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := m.GetOrCreateEpisode(ctx, "c1")
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, store.insertEpisodeCalls, "racing callers must not double-mint an episode")
}

func TestConcurrentAppendKeepsChainLinear(t *testing.T) {
	m, _, graph := resolvedManager(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := m.AppendMessage(ctx, "c1", models.RoleUser, fmt.Sprintf("msg %d", i)); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, graph.messages, n)

	// Each message's predecessor is the previous message: a single path,
	// never a fork.
	seen := map[string]int{}
	for _, gm := range graph.messages {
		seen[gm.prev]++
	}
	for prev, count := range seen {
		assert.Equal(t, 1, count, "predecessor %q claimed %d times", prev, count)
	}
}
