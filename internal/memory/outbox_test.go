package memory

import (
	"context"
	"testing"

	"github.com/raphaelgruber/slopbot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilerReplaysPendingOps(t *testing.T) {
	m, store, graph := resolvedManager(t)
	ctx := context.Background()

	graph.down = true
	_, err := m.GetOrCreateEpisode(ctx, "c1")
	require.NoError(t, err)
	_, err = m.AppendMessage(ctx, "c1", models.RoleUser, "hello")
	require.NoError(t, err)
	require.Equal(t, 2, store.pendingCount(), "episode and message ops pending")

	graph.down = false
	r := NewReconciler(store, graph, nil, nil)
	replayed, err := r.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, replayed)
	assert.Equal(t, 0, store.pendingCount())
	assert.Len(t, graph.episodes, 1, "episode node healed")
	assert.Len(t, graph.messages, 1, "message node healed")
}

func TestReconcilerStopsAtFirstFailure(t *testing.T) {
	m, store, graph := resolvedManager(t)
	ctx := context.Background()

	graph.down = true
	_, err := m.GetOrCreateEpisode(ctx, "c1")
	require.NoError(t, err)
	_, err = m.AppendMessage(ctx, "c1", models.RoleUser, "hello")
	require.NoError(t, err)

	// Still down: the first op fails and the batch stops so the message
	// op is not replayed ahead of its episode.
	r := NewReconciler(store, graph, nil, nil)
	replayed, err := r.RunOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, replayed)
	assert.Equal(t, 2, store.pendingCount())
}

func TestReconcilerNothingPending(t *testing.T) {
	_, store, graph := resolvedManager(t)

	r := NewReconciler(store, graph, nil, nil)
	replayed, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, replayed)
}

func TestApplyGraphOpUnknownOp(t *testing.T) {
	graph := newFakeGraph()
	err := applyGraphOp(context.Background(), graph, "drop_everything", []byte(`{}`))
	require.Error(t, err)
}
