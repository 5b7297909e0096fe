package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCanTransitionAllowsDocumentedMoves(t *testing.T) {
	cases := []struct {
		from, to Status
	}{
		{StatusTodo, StatusPendingEnhancement},
		{StatusTodo, StatusPendingDecomposition},
		{StatusTodo, StatusInProgress},
		{StatusTodo, StatusArchived},
		{StatusPendingEnhancement, StatusPendingComprehensionTest},
		{StatusPendingEnhancement, StatusErrored},
		{StatusPendingDecomposition, StatusDecomposed},
		{StatusPendingDecomposition, StatusErrored},
		{StatusPendingComprehensionTest, StatusOrchestrationComplete},
		{StatusPendingComprehensionTest, StatusErrored},
		{StatusOrchestrationComplete, StatusCompleted},
		{StatusOrchestrationComplete, StatusArchived},
		{StatusDecomposed, StatusCompleted},
		{StatusDecomposed, StatusArchived},
		{StatusCompleted, StatusArchived},
		{StatusErrored, StatusTodo},
		{StatusErrored, StatusArchived},
	}
	for _, c := range cases {
		require.True(t, CanTransition(c.from, c.to), "%s -> %s should be legal", c.from, c.to)
	}
}

func TestCanTransitionRejectsUndocumentedMoves(t *testing.T) {
	cases := []struct {
		from, to Status
	}{
		{StatusTodo, StatusCompleted},
		{StatusTodo, StatusOrchestrationComplete},
		{StatusPendingEnhancement, StatusTodo},
		{StatusCompleted, StatusTodo},
		{StatusArchived, StatusTodo},
		{StatusDecomposed, StatusPendingEnhancement},
	}
	for _, c := range cases {
		require.False(t, CanTransition(c.from, c.to), "%s -> %s should be illegal", c.from, c.to)
	}
}

func TestCanTransitionRejectsSelfLoop(t *testing.T) {
	require.False(t, CanTransition(StatusTodo, StatusTodo))
	require.False(t, CanTransition(StatusErrored, StatusErrored))
}

func TestCanTransitionRejectsUnknownFromStatus(t *testing.T) {
	require.False(t, CanTransition(Status("NotAStatus"), StatusTodo))
}

func TestTaskCloneDoesNotAliasSlices(t *testing.T) {
	original := Task{
		ID:           "t1",
		SubtaskIDs:   []string{"a", "b"},
		Dependencies: []string{"c"},
		Enhancements: []Enhancement{{Content: "x"}},
	}
	clone := original.Clone()
	clone.SubtaskIDs[0] = "mutated"
	clone.Enhancements[0].Content = "mutated"

	require.Equal(t, "a", original.SubtaskIDs[0])
	require.Equal(t, "x", original.Enhancements[0].Content)
}

func TestFileFingerprintMatchesIgnoresModifiedAt(t *testing.T) {
	a := FileFingerprint{ContentHash: "h1", SizeBytes: 10, ModifiedAt: time.Unix(1000, 0)}
	b := FileFingerprint{ContentHash: "h1", SizeBytes: 10, ModifiedAt: time.Unix(2000, 0)}
	require.True(t, a.Matches(b))

	c := FileFingerprint{ContentHash: "h2", SizeBytes: 10}
	require.False(t, a.Matches(c))
}
