package rpc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rigger/core/internal/artifact"
	"github.com/rigger/core/internal/config"
	"github.com/rigger/core/internal/orchestrate"
	"github.com/rigger/core/internal/provider"
	"github.com/rigger/core/internal/store"
	"github.com/rigger/core/internal/types"
)

type memStore struct {
	tasks     map[string]types.Task
	projects  map[string]types.Project
	artifacts map[string]types.Artifact
}

func newMemStore() *memStore {
	return &memStore{
		tasks:     map[string]types.Task{},
		projects:  map[string]types.Project{},
		artifacts: map[string]types.Artifact{},
	}
}

func (s *memStore) SaveTask(ctx context.Context, t types.Task) (types.Task, error) {
	if t.ID == "" {
		t.ID = "id-" + t.Title
	}
	s.tasks[t.ID] = t
	return t, nil
}
func (s *memStore) SaveProject(ctx context.Context, p types.Project) (types.Project, error) {
	if p.ID == "" {
		p.ID = "proj-" + p.Name
	}
	s.projects[p.ID] = p
	return p, nil
}
func (s *memStore) SaveArtifact(ctx context.Context, a types.Artifact) (types.Artifact, error) {
	if a.ID == "" {
		a.ID = "art-" + a.SourceID
	}
	s.artifacts[a.ID] = a
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
		if f.ByStatus != "" && t.Status != f.ByStatus {
			continue
		}
		if f.ByProjectID != "" && t.SourcePRDID != f.ByProjectID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
func (s *memStore) FindOneProject(ctx context.Context, f store.Filter) (types.Project, bool, error) {
	p, ok := s.projects[f.ById]
	return p, ok, nil
}
func (s *memStore) FindProjects(ctx context.Context, f store.Filter, opts store.FindOptions) ([]types.Project, error) {
	var out []types.Project
	for _, p := range s.projects {
		out = append(out, p)
	}
	return out, nil
}
func (s *memStore) FindOneArtifact(ctx context.Context, f store.Filter) (types.Artifact, bool, error) {
	a, ok := s.artifacts[f.ById]
	return a, ok, nil
}
func (s *memStore) FindArtifacts(ctx context.Context, f store.Filter, opts store.FindOptions) ([]types.Artifact, error) {
	var out []types.Artifact
	for _, a := range s.artifacts {
		if f.ByProjectID != "" && a.ProjectID != f.ByProjectID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
func (s *memStore) DeleteTask(ctx context.Context, id string) error     { return nil }
func (s *memStore) DeleteProject(ctx context.Context, id string) error  { return nil }
func (s *memStore) DeleteArtifact(ctx context.Context, id string) error { return nil }
func (s *memStore) FindSimilar(ctx context.Context, q []float32, limit int, threshold *float64, projectID string) ([]store.SimilarityResult, error) {
	return nil, nil
}
func (s *memStore) IndexDimension(projectID string) int { return 768 }
func (s *memStore) Close() error                        { return nil }

func newTestService(t *testing.T) (*service, *memStore) {
	t.Helper()
	cfg := config.Default()
	st := newMemStore()
	set := provider.NewSet(cfg)
	artifacts := artifact.NewEngine(st, set)
	orch := orchestrate.NewEngine(st, set, artifacts, cfg, 4)
	svc := New(st, set, artifacts, orch, cfg).(*service)
	return svc, st
}

func TestAddTaskRejectsMissingTitle(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.AddTask(context.Background(), AddTaskInput{})
	require.Error(t, err)
}

func TestAddTaskRejectsUnknownParent(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.AddTask(context.Background(), AddTaskInput{Title: "child", ParentTaskID: "missing"})
	require.Error(t, err)
}

func TestAddAndGetTask(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.AddTask(context.Background(), AddTaskInput{Title: "Write docs"})
	require.NoError(t, err)
	require.Equal(t, types.StatusTodo, created.Status)

	fetched, err := svc.GetTask(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, fetched.ID)
}

func TestUpdateTaskEnforcesTransitionTable(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.AddTask(context.Background(), AddTaskInput{Title: "Ship it"})
	require.NoError(t, err)

	completed := types.StatusCompleted
	_, err = svc.UpdateTask(context.Background(), UpdateTaskInput{TaskID: created.ID, Status: &completed})
	require.Error(t, err)

	inProgress := types.StatusInProgress
	updated, err := svc.UpdateTask(context.Background(), UpdateTaskInput{TaskID: created.ID, Status: &inProgress})
	require.NoError(t, err)
	require.Equal(t, types.StatusInProgress, updated.Status)
}

func TestUpdateTaskRejectsCyclicDependency(t *testing.T) {
	svc, st := newTestService(t)
	a, err := svc.AddTask(context.Background(), AddTaskInput{Title: "A"})
	require.NoError(t, err)
	b, err := svc.AddTask(context.Background(), AddTaskInput{Title: "B"})
	require.NoError(t, err)

	bTask := st.tasks[b.ID]
	bTask.Dependencies = []string{a.ID}
	st.tasks[b.ID] = bTask

	deps := []string{b.ID}
	_, err = svc.UpdateTask(context.Background(), UpdateTaskInput{TaskID: a.ID, Dependencies: &deps})
	require.Error(t, err)
}

func TestDeleteTaskArchives(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.AddTask(context.Background(), AddTaskInput{Title: "Retire me"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTask(context.Background(), created.ID))
	fetched, err := svc.GetTask(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusArchived, fetched.Status)
}

func TestOrchestrateTaskSimpleEnhancesAndReportsRouting(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.AddTask(context.Background(), AddTaskInput{Title: "Fix typo"})
	require.NoError(t, err)

	out, err := svc.OrchestrateTask(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, types.RouteEnhance, out.RoutingDecision)
	require.NotNil(t, out.Enhancement)
	require.NotNil(t, out.ComprehensionTest)
	require.Equal(t, types.StatusOrchestrationComplete, out.Task.Status)
}

func TestOrchestrateTaskComplexDecomposesIntoSubtasks(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.AddTask(context.Background(), AddTaskInput{
		Title: "Refactor and migrate the billing service with a full rearchitect",
	})
	require.NoError(t, err)

	out, err := svc.OrchestrateTask(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, types.RouteDecompose, out.RoutingDecision)
	require.Len(t, out.Subtasks, 4)
	require.Equal(t, types.StatusDecomposed, out.Task.Status)
}

func TestParsePRDExtractsHeadingsAndLists(t *testing.T) {
	svc, _ := newTestService(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "prd.md")
	content := "# Checkout Revamp\n\n## Objectives\n\n- Reduce cart abandonment\n- Support guest checkout\n\n## Tech Stack\n\n- Go\n- Postgres\n\n## Constraints\n\n- Must ship by Q3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	prd, err := svc.ParsePRD(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, "Checkout Revamp", prd.Title)
	require.Equal(t, []string{"Reduce cart abandonment", "Support guest checkout"}, prd.Objectives)
	require.Equal(t, []string{"Go", "Postgres"}, prd.TechStack)
	require.Equal(t, []string{"Must ship by Q3"}, prd.Constraints)
}

func TestGenerateTasksFromPRDUnknownIDErrors(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GenerateTasksFromPRD(context.Background(), GenerateTasksFromPRDInput{PRDID: "nope"})
	require.Error(t, err)
}

func TestGenerateTasksFromPRDFallsBackToOneTaskPerObjective(t *testing.T) {
	svc, _ := newTestService(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "prd.md")
	content := "# Onboarding Flow\n\n## Objectives\n\n- Add SSO login\n- Add email verification\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	prd, err := svc.ParsePRD(context.Background(), path)
	require.NoError(t, err)

	tasks, err := svc.GenerateTasksFromPRD(context.Background(), GenerateTasksFromPRDInput{PRDID: prd.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		require.Equal(t, prd.ID, task.SourcePRDID)
		require.Equal(t, types.StatusTodo, task.Status)
	}
}

func TestSubscribeToTaskEventsReceivesOrchestrationEvents(t *testing.T) {
	svc, _ := newTestService(t)
	created, err := svc.AddTask(context.Background(), AddTaskInput{Title: "Patch a small bug"})
	require.NoError(t, err)

	ch, cancel := svc.SubscribeToTaskEvents(context.Background())
	defer cancel()

	_, err = svc.OrchestrateTask(context.Background(), created.ID)
	require.NoError(t, err)

	var sawOrchestrated bool
	draining := true
	for draining {
		select {
		case ev := <-ch:
			if ev.EventType == types.EventOrchestrated {
				sawOrchestrated = true
			}
		default:
			draining = false
		}
	}
	require.True(t, sawOrchestrated)
}
