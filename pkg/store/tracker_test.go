package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequirementTracker(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	processed, err := store.IsRequirementProcessed(ctx, "hash-1")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, store.MarkRequirementProcessed(ctx, "hash-1", "REQ001", 3))
	require.NoError(t, store.MarkRequirementProcessed(ctx, "hash-2", "REQ002", 4))
	// Upsert does not add a row.
	require.NoError(t, store.MarkRequirementProcessed(ctx, "hash-1", "REQ001", 5))

	processed, err = store.IsRequirementProcessed(ctx, "hash-1")
	require.NoError(t, err)
	assert.True(t, processed)

	count, err := store.GetProcessedRequirementCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, store.ClearProcessedRequirements(ctx))
	count, err = store.GetProcessedRequirementCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestClearProcessedRequirements_KeepsCases(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run, err := store.BeginRun(ctx, "default", 1)
	require.NoError(t, err)
	require.NoError(t, store.SaveTestCases(ctx, run.ID, sampleCases()))
	require.NoError(t, store.MarkRequirementProcessed(ctx, "hash-1", "REQ001", 2))

	require.NoError(t, store.ClearProcessedRequirements(ctx))

	cases, err := store.ListTestCases(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, cases, 2)
}
