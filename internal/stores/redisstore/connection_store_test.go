package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/tidegate/tidegate/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConnectionState(tenantID, sourceType string, connected bool) *domain.ConnectionState {
	now := time.Now().UTC()
	state := &domain.ConnectionState{
		TenantID:     tenantID,
		SourceType:   sourceType,
		Connected:    connected,
		LastActivity: now,
	}
	if connected {
		state.ConnectedAt = &now
	} else {
		state.DisconnectedAt = &now
	}
	return state
}

func TestConnectionStateStore_PutAndGet(t *testing.T) {
	client, _ := setupRedis(t)
	store := NewConnectionStateStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testConnectionState("ctx-1", "slack-mcp", true)))

	state, err := store.Get(ctx, "ctx-1", "slack-mcp")
	require.NoError(t, err)
	assert.True(t, state.Connected)
	assert.NotNil(t, state.ConnectedAt)
}

func TestConnectionStateStore_AbsenceMeansDisconnected(t *testing.T) {
	client, _ := setupRedis(t)
	store := NewConnectionStateStore(client)

	_, err := store.Get(context.Background(), "ctx-1", "slack-mcp")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConnectionStateStore_LastWriteWins(t *testing.T) {
	client, _ := setupRedis(t)
	store := NewConnectionStateStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testConnectionState("ctx-1", "slack-mcp", true)))
	require.NoError(t, store.Put(ctx, testConnectionState("ctx-1", "slack-mcp", false)))

	state, err := store.Get(ctx, "ctx-1", "slack-mcp")
	require.NoError(t, err)
	assert.False(t, state.Connected)
}

func TestConnectionStateStore_List(t *testing.T) {
	client, _ := setupRedis(t)
	store := NewConnectionStateStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testConnectionState("ctx-1", "slack-mcp", true)))
	require.NoError(t, store.Put(ctx, testConnectionState("ctx-1", "google", false)))
	require.NoError(t, store.Put(ctx, testConnectionState("ctx-2", "slack-mcp", true)))

	states, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, states, 3)
}

func TestConnectionStateStore_Delete(t *testing.T) {
	client, _ := setupRedis(t)
	store := NewConnectionStateStore(client)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testConnectionState("ctx-1", "slack-mcp", true)))
	require.NoError(t, store.Delete(ctx, "ctx-1", "slack-mcp"))

	_, err := store.Get(ctx, "ctx-1", "slack-mcp")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConnectionStateStore_Delete_MissingIsNotAnError(t *testing.T) {
	client, _ := setupRedis(t)
	store := NewConnectionStateStore(client)

	assert.NoError(t, store.Delete(context.Background(), "ctx-1", "never-existed"))
}
