package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rigger/core/internal/types"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveTaskRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveTask(ctx, types.Task{Title: "Fix typo in README", Status: types.StatusTodo})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	got, ok, err := s.FindOneTask(ctx, ByID(EntityTask, saved.ID))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, saved.Title, got.Title)
	require.Equal(t, saved.Status, got.Status)
}

func TestSaveTaskUpsertByID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveTask(ctx, types.Task{Title: "v1", Status: types.StatusTodo})
	require.NoError(t, err)

	saved.Title = "v2"
	saved.Status = types.StatusInProgress
	_, err = s.SaveTask(ctx, saved)
	require.NoError(t, err)

	all, err := s.FindTasks(ctx, All(EntityTask), FindOptions{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "v2", all[0].Title)
}

func TestSaveProjectResolvesAndPersistsScanConfig(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveProject(ctx, types.Project{Name: "acme", Dimension: 512})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ScanConfig.AllowedExtensions)
	require.Equal(t, 512, saved.ScanConfig.VectorDimension)

	got, ok, err := s.FindOneProject(ctx, ByID(EntityProject, saved.ID))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, saved.ScanConfig, got.ScanConfig)
}

func TestSaveProjectHonorsExplicitScanConfig(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	custom := types.ScanConfig{
		AllowedExtensions:  []string{".md"},
		MaxFileSizeBytes:   1024,
		RespectIgnoreFiles: false,
		VectorDimension:    256,
	}
	saved, err := s.SaveProject(ctx, types.Project{Name: "docs-only", Dimension: 256, ScanConfig: custom})
	require.NoError(t, err)

	got, ok, err := s.FindOneProject(ctx, ByID(EntityProject, saved.ID))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, custom, got.ScanConfig)
}

func TestDeleteTaskCascadesLinks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	task, err := s.SaveTask(ctx, types.Task{Title: "t", Status: types.StatusTodo})
	require.NoError(t, err)
	art, err := s.SaveArtifact(ctx, types.Artifact{SourceID: "user:1", SourceType: types.SourceUserInput, Content: "x"})
	require.NoError(t, err)
	require.NoError(t, s.SaveLink(ctx, types.TaskArtifact{TaskID: task.ID, ArtifactID: art.ID, RelevanceScore: 0.9}))

	require.NoError(t, s.DeleteTask(ctx, task.ID))

	_, ok, err := s.FindOneTask(ctx, ByID(EntityTask, task.ID))
	require.NoError(t, err)
	require.False(t, ok)

	var links int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_artifacts WHERE task_id = ?`, task.ID).Scan(&links))
	require.Zero(t, links)
}

func TestFindSimilarOrdersByAscendingDistance(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	proj, err := s.SaveProject(ctx, types.Project{Name: "p1", Dimension: 4})
	require.NoError(t, err)

	vectors := [][]float32{
		{1, 0, 0, 0},
		{0.9, 0.1, 0, 0},
		{0, 0, 1, 0},
	}
	var ids []string
	for i, v := range vectors {
		a, err := s.SaveArtifact(ctx, types.Artifact{
			ProjectID: proj.ID, SourceID: "user:" + string(rune('a'+i)),
			SourceType: types.SourceUserInput, Content: "c", Embedding: v,
		})
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	results, err := s.FindSimilar(ctx, []float32{0.95, 0.05, 0, 0}, 2, nil, proj.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, ids[0], results[0].Artifact.ID)
	require.Equal(t, ids[1], results[1].Artifact.ID)
	require.LessOrEqual(t, results[0].Distance, results[1].Distance)
}

func TestFindSimilarZeroLimitReturnsEmpty(t *testing.T) {
	s := openTestStore(t)
	results, err := s.FindSimilar(context.Background(), []float32{1, 0}, 0, nil, "")
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestFindSimilarAppliesThreshold(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	proj, err := s.SaveProject(ctx, types.Project{Name: "p2", Dimension: 2})
	require.NoError(t, err)

	_, err = s.SaveArtifact(ctx, types.Artifact{ProjectID: proj.ID, SourceID: "user:near", SourceType: types.SourceUserInput, Content: "near", Embedding: []float32{1, 0}})
	require.NoError(t, err)
	_, err = s.SaveArtifact(ctx, types.Artifact{ProjectID: proj.ID, SourceID: "user:far", SourceType: types.SourceUserInput, Content: "far", Embedding: []float32{0, 1}})
	require.NoError(t, err)

	threshold := 0.5
	results, err := s.FindSimilar(ctx, []float32{1, 0}, 10, &threshold, proj.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "near", results[0].Artifact.Content)
}

func TestFingerprintMatchesIgnoresModifiedAt(t *testing.T) {
	a := types.FileFingerprint{ContentHash: "abc", SizeBytes: 10, ModifiedAt: time.Unix(1000, 0)}
	b := types.FileFingerprint{ContentHash: "abc", SizeBytes: 10, ModifiedAt: time.Unix(2000, 0)}
	require.True(t, a.Matches(b))
}
