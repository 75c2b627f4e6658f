package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func queued(id, content string, at time.Time) domain.QueuedMessage {
	return domain.QueuedMessage{
		ID:             id,
		AgentID:        "a1",
		ConversationID: "c1",
		Content:        content,
		QueuedAt:       at,
	}
}

func TestQueueEnqueueListFIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	require.NoError(t, s.Enqueue(ctx, queued("01A", "first", base)))
	require.NoError(t, s.Enqueue(ctx, queued("01B", "second", base.Add(time.Second))))
	require.NoError(t, s.Enqueue(ctx, queued("01C", "third", base.Add(2*time.Second))))

	msgs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, "third", msgs[2].Content)
	assert.WithinDuration(t, base, msgs[0].QueuedAt, time.Millisecond)
}

func TestQueueRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, queued("01A", "x", time.Now())))
	require.NoError(t, s.Remove(ctx, "01A"))

	depth, err := s.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)

	err = s.Remove(ctx, "01A")
	assert.ErrorIs(t, err, domain.ErrQueueNotFound)
}

func TestQueueIncrementRetry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, queued("01A", "x", time.Now())))
	require.NoError(t, s.IncrementRetry(ctx, "01A"))
	require.NoError(t, s.IncrementRetry(ctx, "01A"))

	msgs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 2, msgs[0].RetryCount)

	assert.ErrorIs(t, s.IncrementRetry(ctx, "nope"), domain.ErrQueueNotFound)
}

func TestQueueDepth(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	depth, err := s.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)

	for i, id := range []string{"01A", "01B"} {
		require.NoError(t, s.Enqueue(ctx, queued(id, "x", time.Now())))
		depth, err = s.Depth(ctx)
		require.NoError(t, err)
		assert.Equal(t, i+1, depth)
	}
}

func TestConversationAppendAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	turns := []domain.Message{
		{Role: domain.RoleUser, Content: "hi", Timestamp: time.Now()},
		{Role: domain.RoleAssistant, Content: "hello", Timestamp: time.Now()},
		{Role: domain.RoleUser, Content: "how are you", Timestamp: time.Now()},
	}
	for _, m := range turns {
		require.NoError(t, s.AppendMessage(ctx, "c1", m))
	}
	require.NoError(t, s.AppendMessage(ctx, "c2", domain.Message{Role: domain.RoleUser, Content: "other"}))

	msgs, err := s.Messages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Equal(t, turns[i].Role, m.Role)
		assert.Equal(t, turns[i].Content, m.Content)
	}

	msgs, err = s.Messages(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestStoreReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persist.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(ctx, queued("01A", "survives", time.Now())))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	msgs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "survives", msgs[0].Content)
}
