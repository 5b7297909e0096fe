package orchestrate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rigger/core/internal/artifact"
	"github.com/rigger/core/internal/config"
	"github.com/rigger/core/internal/provider"
	"github.com/rigger/core/internal/store"
	"github.com/rigger/core/internal/types"
)

type memStore struct {
	tasks map[string]types.Task
}

func newMemStore() *memStore { return &memStore{tasks: map[string]types.Task{}} }

func (s *memStore) SaveTask(ctx context.Context, t types.Task) (types.Task, error) {
	if t.ID == "" {
		t.ID = "generated-" + t.Title
	}
	s.tasks[t.ID] = t
	return t, nil
}
func (s *memStore) SaveProject(ctx context.Context, p types.Project) (types.Project, error) {
	return p, nil
}
func (s *memStore) SaveArtifact(ctx context.Context, a types.Artifact) (types.Artifact, error) {
	return a, nil
}
func (s *memStore) SaveLink(ctx context.Context, l types.TaskArtifact) error { return nil }
func (s *memStore) FindOneTask(ctx context.Context, f store.Filter) (types.Task, bool, error) {
	t, ok := s.tasks[f.ById]
	return t, ok, nil
}
func (s *memStore) FindTasks(ctx context.Context, f store.Filter, opts store.FindOptions) ([]types.Task, error) {
	var out []types.Task
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out, nil
}
func (s *memStore) FindOneProject(ctx context.Context, f store.Filter) (types.Project, bool, error) {
	return types.Project{}, false, nil
}
func (s *memStore) FindProjects(ctx context.Context, f store.Filter, opts store.FindOptions) ([]types.Project, error) {
	return nil, nil
}
func (s *memStore) FindOneArtifact(ctx context.Context, f store.Filter) (types.Artifact, bool, error) {
	return types.Artifact{}, false, nil
}
func (s *memStore) FindArtifacts(ctx context.Context, f store.Filter, opts store.FindOptions) ([]types.Artifact, error) {
	return nil, nil
}
func (s *memStore) DeleteTask(ctx context.Context, id string) error     { return nil }
func (s *memStore) DeleteProject(ctx context.Context, id string) error  { return nil }
func (s *memStore) DeleteArtifact(ctx context.Context, id string) error { return nil }
func (s *memStore) FindSimilar(ctx context.Context, q []float32, limit int, threshold *float64, projectID string) ([]store.SimilarityResult, error) {
	return nil, nil
}
func (s *memStore) IndexDimension(projectID string) int { return 768 }
func (s *memStore) Close() error                        { return nil }

type erroringExtraction struct{}

func (erroringExtraction) Extract(ctx context.Context, prompt string, schema provider.Schema) (map[string]any, error) {
	return nil, types.NewError(types.CodeProviderUnavailable, "extraction provider down")
}

type erroringEnhancement struct{}

func (erroringEnhancement) Enhance(ctx context.Context, task types.Task, ragContext string) (types.Enhancement, error) {
	return types.Enhancement{}, types.NewError(types.CodeProviderUnavailable, "enhancement provider down")
}

type scriptedExtraction struct {
	result map[string]any
}

func (s scriptedExtraction) Extract(ctx context.Context, prompt string, schema provider.Schema) (map[string]any, error) {
	return s.result, nil
}

func newTestEngine(t *testing.T) (*Engine, *memStore) {
	t.Helper()
	cfg := config.Default()
	st := newMemStore()
	set := provider.NewSet(cfg)
	artifacts := artifact.NewEngine(st, set)
	return NewEngine(st, set, artifacts, cfg, 4), st
}

func TestRunSimpleTaskEnhancesAndCompletes(t *testing.T) {
	engine, st := newTestEngine(t)
	task := types.Task{ID: "t1", Title: "Fix typo", Status: types.StatusTodo}
	st.tasks[task.ID] = task

	err := engine.Run(context.Background(), task.ID)
	require.NoError(t, err)

	saved := st.tasks[task.ID]
	require.Equal(t, types.StatusOrchestrationComplete, saved.Status)
	require.Len(t, saved.Enhancements, 1)
	require.Equal(t, "fallback", saved.Enhancements[0].Source)
	require.Len(t, saved.ComprehensionTests, 1)
}

func TestRunComplexTaskDecomposesIntoSubtasks(t *testing.T) {
	engine, st := newTestEngine(t)
	task := types.Task{
		ID:         "t2",
		Title:      "Refactor and migrate the billing service with a full rearchitect",
		Complexity: 8,
		Status:     types.StatusTodo,
	}
	st.tasks[task.ID] = task

	err := engine.Run(context.Background(), task.ID)
	require.NoError(t, err)

	saved := st.tasks[task.ID]
	require.Equal(t, types.StatusDecomposed, saved.Status)
	require.Len(t, saved.SubtaskIDs, 4)

	for _, id := range saved.SubtaskIDs {
		sub, ok := st.tasks[id]
		require.True(t, ok)
		require.Equal(t, "t2", sub.ParentTaskID)
		require.Equal(t, 6, sub.Complexity)
		require.Equal(t, types.StatusTodo, sub.Status)
	}
}

func TestRunDecomposeUsesScriptedExtractionWhenAvailable(t *testing.T) {
	cfg := config.Default()
	st := newMemStore()
	set := provider.NewSet(cfg)
	set.RegisterExtraction(cfg.DefaultModel.Model, scriptedExtraction{result: map[string]any{
		"items": []any{
			map[string]any{"title": "Design schema", "description": "Plan the tables"},
			map[string]any{"title": "Write migration", "description": "Apply the schema change"},
			map[string]any{"title": "Backfill data", "description": "Run the backfill job"},
		},
	}})
	artifacts := artifact.NewEngine(st, set)
	engine := NewEngine(st, set, artifacts, cfg, 4)

	task := types.Task{
		ID:         "t3",
		Title:      "Refactor and migrate the billing service with a rearchitect",
		Complexity: 5,
		Status:     types.StatusTodo,
	}
	st.tasks[task.ID] = task

	require.NoError(t, engine.Run(context.Background(), task.ID))

	saved := st.tasks[task.ID]
	require.Equal(t, types.StatusDecomposed, saved.Status)
	require.Len(t, saved.SubtaskIDs, 3)
}

func TestRunDecomposeFallsBackWhenExtractionCountOutOfRange(t *testing.T) {
	cfg := config.Default()
	st := newMemStore()
	set := provider.NewSet(cfg)
	set.RegisterExtraction(cfg.DefaultModel.Model, scriptedExtraction{result: map[string]any{
		"items": []any{
			map[string]any{"title": "Design schema", "description": "Plan the tables"},
			map[string]any{"title": "Write migration", "description": "Apply the schema change"},
		},
	}})
	artifacts := artifact.NewEngine(st, set)
	engine := NewEngine(st, set, artifacts, cfg, 4)

	task := types.Task{
		ID:         "t3b",
		Title:      "Refactor and migrate the billing service with a rearchitect",
		Complexity: 5,
		Status:     types.StatusTodo,
	}
	st.tasks[task.ID] = task

	require.NoError(t, engine.Run(context.Background(), task.ID))

	saved := st.tasks[task.ID]
	require.Equal(t, types.StatusDecomposed, saved.Status)
	require.Len(t, saved.SubtaskIDs, 4) // out-of-range (2) rejected, deterministic four-item template used instead
}

func TestRunEnhanceFallsBackOnProviderFailure(t *testing.T) {
	cfg := config.Default()
	st := newMemStore()
	set := provider.NewSet(cfg)
	set.RegisterTextEnhancement(cfg.DefaultModel.Model, erroringEnhancement{})
	set.RegisterExtraction(cfg.DefaultModel.Model, erroringExtraction{})
	artifacts := artifact.NewEngine(st, set)
	engine := NewEngine(st, set, artifacts, cfg, 4)

	task := types.Task{ID: "t4", Title: "Tidy up the README", Status: types.StatusTodo}
	st.tasks[task.ID] = task

	require.NoError(t, engine.Run(context.Background(), task.ID))

	saved := st.tasks[task.ID]
	require.Equal(t, types.StatusOrchestrationComplete, saved.Status)
	require.Len(t, saved.Enhancements, 1)
	require.Equal(t, "fallback", saved.Enhancements[0].Source)
}

func TestRunMissingTaskReturnsNotFound(t *testing.T) {
	engine, _ := newTestEngine(t)
	err := engine.Run(context.Background(), "does-not-exist")
	require.Error(t, err)
	var rerr *types.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, types.CodeNotFound, rerr.Code)
}

func TestSubmitReportsResultOnChannel(t *testing.T) {
	engine, st := newTestEngine(t)
	task := types.Task{ID: "t5", Title: "Bump a dependency", Status: types.StatusTodo}
	st.tasks[task.ID] = task

	resultCh := engine.Submit(context.Background(), task.ID)
	select {
	case err := <-resultCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Submit result")
	}
}

func TestEventsEmittedDuringRun(t *testing.T) {
	engine, st := newTestEngine(t)
	task := types.Task{ID: "t6", Title: "Patch a small bug", Status: types.StatusTodo}
	st.tasks[task.ID] = task

	sub := engine.Events().Subscribe()
	defer engine.Events().Unsubscribe(sub)

	require.NoError(t, engine.Run(context.Background(), task.ID))

	var seen []types.EventType
	draining := true
	for draining {
		select {
		case ev := <-sub:
			seen = append(seen, ev.EventType)
		default:
			draining = false
		}
	}
	require.Contains(t, seen, types.EventOrchestrated)
}
