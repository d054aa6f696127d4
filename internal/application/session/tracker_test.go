package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "shakespeare-quote-api/pkg/errors"
)

func TestMarkUsedIdempotentSetAppendOnlyHistory(t *testing.T) {
	tr := NewTracker("s1")

	tr.MarkUsed("a", map[string]string{"query": "love"})
	tr.MarkUsed("a", map[string]string{"query": "love again"})
	tr.MarkUsed("b", nil)

	assert.True(t, tr.IsUsed("a"))
	assert.True(t, tr.IsUsed("b"))
	assert.False(t, tr.IsUsed("c"))

	// 集合幂等，历史非幂等
	assert.Equal(t, 2, tr.UsageCount())
	require.Len(t, tr.History(), 3)
	assert.Equal(t, "love again", tr.History()[1].Metadata["query"])
}

func TestExclusionSetReturnsCopy(t *testing.T) {
	tr := NewTracker("s1")
	tr.MarkUsed("a", nil)

	set := tr.ExclusionSet()
	set["injected"] = struct{}{}
	delete(set, "a")

	assert.True(t, tr.IsUsed("a"))
	assert.False(t, tr.IsUsed("injected"))
}

func TestResetClearsStateKeepsID(t *testing.T) {
	tr := NewTracker("scene-1")
	tr.MarkUsed("a", nil)
	tr.MarkUsed("b", nil)

	tr.Reset()

	assert.Equal(t, "scene-1", tr.ID())
	assert.Zero(t, tr.UsageCount())
	assert.Empty(t, tr.History())
	assert.False(t, tr.IsUsed("a"))
}

func TestMergeUnionsSetsAndConcatenatesHistory(t *testing.T) {
	a := NewTracker("a")
	a.MarkUsed("x", nil)
	a.MarkUsed("y", nil)

	b := NewTracker("b")
	b.MarkUsed("y", nil)
	b.MarkUsed("z", nil)

	a.Merge(b)

	assert.Equal(t, 3, a.UsageCount())
	assert.True(t, a.IsUsed("x"))
	assert.True(t, a.IsUsed("y"))
	assert.True(t, a.IsUsed("z"))

	// 历史拼接：自身在前，重复 id 条目保留
	history := a.History()
	require.Len(t, history, 4)
	assert.Equal(t, "x", history[0].ChunkID)
	assert.Equal(t, "y", history[1].ChunkID)
	assert.Equal(t, "y", history[2].ChunkID)
	assert.Equal(t, "z", history[3].ChunkID)

	// 被合并方不受影响
	assert.Equal(t, 2, b.UsageCount())
}

func TestMergeSelfAndNilAreNoOps(t *testing.T) {
	tr := NewTracker("a")
	tr.MarkUsed("x", nil)

	tr.Merge(nil)
	tr.Merge(tr)

	assert.Equal(t, 1, tr.UsageCount())
	assert.Len(t, tr.History(), 1)
}

func TestSnapshotSortsIDsAndCountsDistinct(t *testing.T) {
	tr := NewTracker("s1")
	tr.MarkUsed("b", nil)
	tr.MarkUsed("a", nil)
	tr.MarkUsed("a", nil)

	snap := tr.Snapshot()
	assert.Equal(t, "s1", snap.SessionID)
	assert.Equal(t, []string{"a", "b"}, snap.UsedChunkIDs)
	assert.Equal(t, 2, snap.UsageCount)
	assert.Len(t, snap.UsageHistory, 3)
}

func TestRestoreReplacesState(t *testing.T) {
	tr := NewTracker("old")
	tr.MarkUsed("stale", nil)

	err := tr.Restore(context.Background(), &Snapshot{
		SessionID:    "restored",
		UsedChunkIDs: []string{"a", "b"},
		UsageHistory: []UsageRecord{{ChunkID: "a", Timestamp: time.Now()}},
		UsageCount:   2,
	})
	require.NoError(t, err)

	assert.Equal(t, "restored", tr.ID())
	assert.False(t, tr.IsUsed("stale"))
	assert.True(t, tr.IsUsed("a"))
	assert.True(t, tr.IsUsed("b"))
}

func TestRestoreMissingSessionIDKeepsCurrent(t *testing.T) {
	tr := NewTracker("current")

	err := tr.Restore(context.Background(), &Snapshot{
		UsedChunkIDs: []string{"a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "current", tr.ID())
	assert.True(t, tr.IsUsed("a"))
}

func TestRestoreRebuildsSetFromHistory(t *testing.T) {
	tr := NewTracker("s1")

	// 只带历史不带集合的快照：集合从历史重建
	err := tr.Restore(context.Background(), &Snapshot{
		SessionID:    "s1",
		UsageHistory: []UsageRecord{{ChunkID: "h1"}, {ChunkID: "h2"}, {ChunkID: "h1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, tr.UsageCount())
	assert.True(t, tr.IsUsed("h1"))
	assert.True(t, tr.IsUsed("h2"))
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	ctx := context.Background()

	tr := NewTracker("round-trip")
	tr.MarkUsed("a", map[string]string{"query": "love", "chunk_text": "shall I compare thee"})
	tr.MarkUsed("b", nil)

	require.NoError(t, tr.Persist(ctx, store))

	loaded := NewTracker("")
	require.NoError(t, loaded.LoadFrom(ctx, store, "round-trip"))

	assert.Equal(t, "round-trip", loaded.ID())
	assert.Equal(t, 2, loaded.UsageCount())
	assert.True(t, loaded.IsUsed("a"))
	require.Len(t, loaded.History(), 2)
	assert.Equal(t, "love", loaded.History()[0].Metadata["query"])
}

func TestFileStorePersistedFormat(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	ctx := context.Background()

	tr := NewTracker("fmt")
	tr.MarkUsed("a", nil)
	require.NoError(t, tr.Persist(ctx, store))

	data, err := os.ReadFile(filepath.Join(dir, "fmt.json"))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "session_id")
	assert.Contains(t, raw, "used_chunk_ids")
	assert.Contains(t, raw, "usage_history")
	assert.Contains(t, raw, "usage_count")
}

func TestLoadMissingSessionLeavesStateUntouched(t *testing.T) {
	store := NewFileStore(t.TempDir())

	tr := NewTracker("keep")
	tr.MarkUsed("a", nil)

	err := tr.LoadFrom(context.Background(), store, "no-such-session")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeSessionLoad))

	assert.Equal(t, "keep", tr.ID())
	assert.True(t, tr.IsUsed("a"))
}

func TestLoadMalformedSessionLeavesStateUntouched(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))

	tr := NewTracker("keep")
	tr.MarkUsed("a", nil)

	err := tr.LoadFrom(context.Background(), store, "bad")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeSessionLoad))
	assert.True(t, tr.IsUsed("a"))
	assert.Equal(t, "keep", tr.ID())
}

func TestStatisticsTimestamps(t *testing.T) {
	tr := NewTracker("stats")

	empty := tr.Statistics()
	assert.Equal(t, "stats", empty.SessionID)
	assert.Zero(t, empty.TotalChunksUsed)
	assert.Empty(t, empty.StartTime)

	tr.MarkUsed("a", nil)
	tr.MarkUsed("a", nil)

	s := tr.Statistics()
	assert.Equal(t, 1, s.TotalChunksUsed)
	assert.Equal(t, 2, s.UsageEvents)

	start, err := time.Parse(time.RFC3339, s.StartTime)
	require.NoError(t, err)
	last, err := time.Parse(time.RFC3339, s.LastUsage)
	require.NoError(t, err)
	assert.False(t, last.Before(start))
}
