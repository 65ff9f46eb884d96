package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webpilot/internal/models"
)

func newTestQueue(active bool) *RunQueue {
	return NewRunQueue(func() bool { return active })
}

func TestEnqueueRejectsEmptyMessage(t *testing.T) {
	t.Parallel()

	q := newTestQueue(true)
	_, err := q.Enqueue("", nil, models.QueueModeAfterCompletion)
	require.Error(t, err)

	_, err = q.Enqueue("   ", nil, models.QueueModeAfterCompletion)
	require.Error(t, err)

	// Attachment-only messages are allowed.
	queued, err := q.Enqueue("", []string{"att-1"}, models.QueueModeAfterCompletion)
	require.NoError(t, err)
	assert.Equal(t, []string{"att-1"}, queued.AttachmentIDs)
}

func TestEnqueueAfterToolResultRequiresActiveRun(t *testing.T) {
	t.Parallel()

	q := newTestQueue(false)
	_, err := q.Enqueue("hello", nil, models.QueueModeAfterToolResult)
	require.ErrorIs(t, err, ErrNoActiveRun)

	// The completion queue has no such requirement.
	_, err = q.Enqueue("hello", nil, models.QueueModeAfterCompletion)
	require.NoError(t, err)
}

func TestEnqueueRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	q := newTestQueue(true)
	_, err := q.Enqueue("hello", nil, models.QueueMode("immediately"))
	require.Error(t, err)
}

func TestDrainAfterToolResultIsFIFO(t *testing.T) {
	t.Parallel()

	q := newTestQueue(true)
	for _, text := range []string{"first", "second", "third"} {
		_, err := q.Enqueue(text, nil, models.QueueModeAfterToolResult)
		require.NoError(t, err)
	}

	drained := q.DrainAfterToolResult()
	require.Len(t, drained, 3)
	assert.Equal(t, "first", drained[0].Text)
	assert.Equal(t, "second", drained[1].Text)
	assert.Equal(t, "third", drained[2].Text)

	assert.Empty(t, q.DrainAfterToolResult())
}

func TestDequeueAfterCompletionPopsOldestFirst(t *testing.T) {
	t.Parallel()

	q := newTestQueue(false)
	_, err := q.Enqueue("first", nil, models.QueueModeAfterCompletion)
	require.NoError(t, err)
	_, err = q.Enqueue("second", nil, models.QueueModeAfterCompletion)
	require.NoError(t, err)

	assert.Equal(t, "first", q.DequeueAfterCompletion().Text)
	assert.Equal(t, "second", q.DequeueAfterCompletion().Text)
	assert.Nil(t, q.DequeueAfterCompletion())
}

func TestPromoteLeftoversMovesToCompletionQueue(t *testing.T) {
	t.Parallel()

	q := newTestQueue(true)
	_, err := q.Enqueue("missed one", nil, models.QueueModeAfterToolResult)
	require.NoError(t, err)
	_, err = q.Enqueue("missed two", nil, models.QueueModeAfterToolResult)
	require.NoError(t, err)
	_, err = q.Enqueue("already waiting", nil, models.QueueModeAfterCompletion)
	require.NoError(t, err)

	q.PromoteLeftovers()

	assert.Empty(t, q.DrainAfterToolResult())

	// Promoted messages go ahead of the completion queue, in order.
	first := q.DequeueAfterCompletion()
	require.NotNil(t, first)
	assert.Equal(t, "missed one", first.Text)
	assert.Equal(t, models.QueueModeAfterCompletion, first.Mode)
	assert.Equal(t, "missed two", q.DequeueAfterCompletion().Text)
	assert.Equal(t, "already waiting", q.DequeueAfterCompletion().Text)
}

func TestRemoveQueuedMessage(t *testing.T) {
	t.Parallel()

	q := newTestQueue(true)
	first, err := q.Enqueue("first", nil, models.QueueModeAfterToolResult)
	require.NoError(t, err)
	_, err = q.Enqueue("second", nil, models.QueueModeAfterToolResult)
	require.NoError(t, err)

	assert.True(t, q.Remove(models.QueueModeAfterToolResult, first.ID))
	assert.False(t, q.Remove(models.QueueModeAfterToolResult, first.ID))
	assert.False(t, q.Remove(models.QueueModeAfterCompletion, first.ID))

	drained := q.DrainAfterToolResult()
	require.Len(t, drained, 1)
	assert.Equal(t, "second", drained[0].Text)
}

func TestClearQueue(t *testing.T) {
	t.Parallel()

	q := newTestQueue(true)
	_, err := q.Enqueue("splice", nil, models.QueueModeAfterToolResult)
	require.NoError(t, err)
	_, err = q.Enqueue("later", nil, models.QueueModeAfterCompletion)
	require.NoError(t, err)

	q.Clear(models.QueueModeAfterToolResult)
	assert.Empty(t, q.DrainAfterToolResult())

	// The other queue is untouched.
	require.NotNil(t, q.DequeueAfterCompletion())
}

func TestDumpAllReturnsTextAndClears(t *testing.T) {
	t.Parallel()

	q := newTestQueue(true)
	_, err := q.Enqueue("splice one", nil, models.QueueModeAfterToolResult)
	require.NoError(t, err)
	_, err = q.Enqueue("splice two", nil, models.QueueModeAfterToolResult)
	require.NoError(t, err)
	_, err = q.Enqueue("after", nil, models.QueueModeAfterCompletion)
	require.NoError(t, err)
	_, err = q.Enqueue("", []string{"att-1"}, models.QueueModeAfterCompletion)
	require.NoError(t, err)

	dump := q.DumpAll()
	assert.Equal(t, "splice one\n\nsplice two\n\nafter", dump)

	assert.Empty(t, q.DrainAfterToolResult())
	assert.Nil(t, q.DequeueAfterCompletion())
	assert.Empty(t, q.Snapshot())
}

func TestSnapshotReturnsDetachedCopies(t *testing.T) {
	t.Parallel()

	q := newTestQueue(true)
	_, err := q.Enqueue("splice", nil, models.QueueModeAfterToolResult)
	require.NoError(t, err)
	_, err = q.Enqueue("later", nil, models.QueueModeAfterCompletion)
	require.NoError(t, err)

	snapshot := q.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, models.QueueModeAfterToolResult, snapshot[0].Mode)
	assert.Equal(t, models.QueueModeAfterCompletion, snapshot[1].Mode)

	snapshot[0].Text = "mutated"
	drained := q.DrainAfterToolResult()
	require.Len(t, drained, 1)
	assert.Equal(t, "splice", drained[0].Text)
}
