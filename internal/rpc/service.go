// Package rpc implements the abstract external interface from spec §6: one
// operation per row of its table, returning the same structures a transport
// layer (gRPC/HTTP/stdio-JSON, none of which are implemented here) would
// marshal on the wire. Service wires together C1 (store), C3 (providers),
// C4 (artifacts), C5 (dependency graph), and C6 (orchestration) behind a
// single facade: a narrow interface plus one concrete implementation, no
// transport framing mixed in.
package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rigger/core/internal/artifact"
	"github.com/rigger/core/internal/config"
	"github.com/rigger/core/internal/dependency"
	"github.com/rigger/core/internal/logging"
	"github.com/rigger/core/internal/orchestrate"
	"github.com/rigger/core/internal/provider"
	"github.com/rigger/core/internal/scanner"
	"github.com/rigger/core/internal/store"
	"github.com/rigger/core/internal/types"
)

// ListTasksInput filters and paginates ListTasks.
type ListTasksInput struct {
	Status       *types.Status
	AgentPersona string
	ProjectID    string
	Limit        int
	Offset       int
}

// AddTaskInput creates a task in Todo.
type AddTaskInput struct {
	Title        string
	AgentPersona string
	DueDate      *time.Time
	ParentTaskID string
	SourcePRDID  string
}

// UpdateTaskInput patches a task, enforcing the status transition table
// when Status is set and the acyclic-dependency invariant when Dependencies
// is set.
type UpdateTaskInput struct {
	TaskID       string
	Status       *types.Status
	AgentPersona *string
	DueDate      *time.Time
	Dependencies *[]string
}

// GenerateArtifactsInput drives C4 ingestion. Source is a filesystem path
// (file or directory), an http(s) URL to crawl, or literal text treated as
// UserInput content, disambiguated by Kind.
type GenerateArtifactsInput struct {
	Source        string
	Kind          SourceKind
	ProjectID     string
	ChunkStrategy scanner.StrategyKind
	ChunkSize     int
}

// SourceKind disambiguates GenerateArtifacts' Source field.
type SourceKind string

const (
	SourceKindFile      SourceKind = "file"
	SourceKindDirectory SourceKind = "directory"
	SourceKindWeb       SourceKind = "web"
	SourceKindText      SourceKind = "text"
)

// ArtifactMatch pairs an artifact with its similarity to the search query.
type ArtifactMatch struct {
	Artifact   types.Artifact
	Similarity float64
}

// SearchArtifactsInput drives C4's similarity search.
type SearchArtifactsInput struct {
	Query     string
	Limit     int
	Threshold *float64
	ProjectID string
}

// OrchestrateTaskOutput mirrors spec §6's OrchestrateTask response shape.
type OrchestrateTaskOutput struct {
	Task              types.Task
	RoutingDecision   types.RoutingDecision
	Enhancement       *types.Enhancement
	ComprehensionTest *types.ComprehensionTest
	Subtasks          []types.Task
}

// GenerateTasksFromPRDInput drives GenerateTasksFromPRD.
type GenerateTasksFromPRDInput struct {
	PRDID     string
	ProjectID string
}

// Service is the abstract RPC surface from spec §6, implemented with no
// transport framing: every method is a plain Go call a future gRPC/HTTP/
// stdio-JSON layer would wrap.
type Service interface {
	ListTasks(ctx context.Context, in ListTasksInput) ([]types.Task, error)
	AddTask(ctx context.Context, in AddTaskInput) (types.Task, error)
	UpdateTask(ctx context.Context, in UpdateTaskInput) (types.Task, error)
	GetTask(ctx context.Context, taskID string) (types.Task, error)
	DeleteTask(ctx context.Context, taskID string) error

	ParsePRD(ctx context.Context, prdFilePath string) (types.PRD, error)
	GenerateTasksFromPRD(ctx context.Context, in GenerateTasksFromPRDInput) ([]types.Task, error)

	CreateProject(ctx context.Context, name, description string) (types.Project, error)
	GetProjectContext(ctx context.Context, projectID string) (types.ProjectContext, error)

	OrchestrateTask(ctx context.Context, taskID string) (OrchestrateTaskOutput, error)
	SubscribeToTaskEvents(ctx context.Context) (<-chan types.TaskEvent, func())

	GenerateArtifacts(ctx context.Context, in GenerateArtifactsInput) (types.GenerationReport, error)
	SearchArtifacts(ctx context.Context, in SearchArtifactsInput) ([]ArtifactMatch, error)
}

// service is Service's sole implementation.
type service struct {
	store        store.Store
	providers    *provider.Set
	artifacts    *artifact.Engine
	orchestrator *orchestrate.Engine
	cfg          config.Config

	prdCache *prdCache
}

// New constructs a Service over an already-initialized store, provider set,
// artifact engine, and orchestration engine.
func New(s store.Store, providers *provider.Set, artifacts *artifact.Engine, orchestrator *orchestrate.Engine, cfg config.Config) Service {
	return &service{
		store:        s,
		providers:    providers,
		artifacts:    artifacts,
		orchestrator: orchestrator,
		cfg:          cfg,
		prdCache:     newPRDCache(),
	}
}

func (s *service) ListTasks(ctx context.Context, in ListTasksInput) ([]types.Task, error) {
	var filter store.Filter
	switch {
	case in.Status != nil:
		filter = store.ByStatus(*in.Status)
	case in.AgentPersona != "":
		filter = store.ByAgentPersona(in.AgentPersona)
	case in.ProjectID != "":
		filter = store.ByProjectID(store.EntityTask, in.ProjectID)
	default:
		filter = store.All(store.EntityTask)
	}
	opts := store.FindOptions{Sort: []store.SortKey{store.SortCreatedAtDesc}, Limit: in.Limit, Offset: in.Offset}
	return s.store.FindTasks(ctx, filter, opts)
}

func (s *service) AddTask(ctx context.Context, in AddTaskInput) (types.Task, error) {
	if in.Title == "" {
		return types.Task{}, types.NewError(types.CodeInvalidArgument, "title is required")
	}
	if in.ParentTaskID != "" {
		if _, found, err := s.store.FindOneTask(ctx, store.ByID(store.EntityTask, in.ParentTaskID)); err != nil {
			return types.Task{}, err
		} else if !found {
			return types.Task{}, types.NewError(types.CodeInvalidArgument, "parent_task_id does not exist: "+in.ParentTaskID)
		}
	}

	now := time.Now()
	task := types.Task{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Status:       types.StatusTodo,
		AgentPersona: in.AgentPersona,
		DueDate:      in.DueDate,
		ParentTaskID: in.ParentTaskID,
		SourcePRDID:  in.SourcePRDID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	saved, err := s.store.SaveTask(ctx, task)
	if err != nil {
		return types.Task{}, err
	}
	s.emit(types.EventCreated, saved)
	return saved, nil
}

func (s *service) UpdateTask(ctx context.Context, in UpdateTaskInput) (types.Task, error) {
	task, found, err := s.store.FindOneTask(ctx, store.ByID(store.EntityTask, in.TaskID))
	if err != nil {
		return types.Task{}, err
	}
	if !found {
		return types.Task{}, types.NewError(types.CodeNotFound, "task not found: "+in.TaskID)
	}

	if in.Status != nil && *in.Status != task.Status {
		if !types.CanTransition(task.Status, *in.Status) {
			return types.Task{}, types.NewError(types.CodeInvalidArgument,
				fmt.Sprintf("illegal transition from %s to %s", task.Status, *in.Status))
		}
		task.Status = *in.Status
	}
	if in.AgentPersona != nil {
		task.AgentPersona = *in.AgentPersona
	}
	if in.DueDate != nil {
		task.DueDate = in.DueDate
	}
	if in.Dependencies != nil {
		task.Dependencies = *in.Dependencies
		if err := s.checkAcyclic(ctx, task); err != nil {
			return types.Task{}, err
		}
	}
	task.UpdatedAt = time.Now()

	saved, err := s.store.SaveTask(ctx, task)
	if err != nil {
		return types.Task{}, err
	}
	s.emit(types.EventUpdated, saved)
	return saved, nil
}

func (s *service) GetTask(ctx context.Context, taskID string) (types.Task, error) {
	task, found, err := s.store.FindOneTask(ctx, store.ByID(store.EntityTask, taskID))
	if err != nil {
		return types.Task{}, err
	}
	if !found {
		return types.Task{}, types.NewError(types.CodeNotFound, "task not found: "+taskID)
	}
	return task, nil
}

// DeleteTask soft-deletes by transitioning to Archived (spec §6).
func (s *service) DeleteTask(ctx context.Context, taskID string) error {
	task, found, err := s.store.FindOneTask(ctx, store.ByID(store.EntityTask, taskID))
	if err != nil {
		return err
	}
	if !found {
		return types.NewError(types.CodeNotFound, "task not found: "+taskID)
	}
	if !types.CanTransition(task.Status, types.StatusArchived) {
		return types.NewError(types.CodeInvalidArgument,
			fmt.Sprintf("cannot archive task from status %s", task.Status))
	}
	task.Status = types.StatusArchived
	task.UpdatedAt = time.Now()
	saved, err := s.store.SaveTask(ctx, task)
	if err != nil {
		return err
	}
	s.emit(types.EventDeleted, saved)
	return nil
}

// OrchestrateTask invokes C6, then reconstructs the response from the
// persisted task's latest audit entries. The routing decision is
// recomputed with the same pure, deterministic SemanticRouter scoring C6
// used internally, rather than threaded back out of Run's private
// GraphState, avoiding a second return path on orchestrate.Engine.Run.
func (s *service) OrchestrateTask(ctx context.Context, taskID string) (OrchestrateTaskOutput, error) {
	before, found, err := s.store.FindOneTask(ctx, store.ByID(store.EntityTask, taskID))
	if err != nil {
		return OrchestrateTaskOutput{}, err
	}
	if !found {
		return OrchestrateTaskOutput{}, types.NewError(types.CodeNotFound, "task not found: "+taskID)
	}
	decision, _ := orchestrate.Route(before, s.cfg.Routing)

	if err := s.orchestrator.Run(ctx, taskID); err != nil {
		return OrchestrateTaskOutput{}, err
	}

	after, found, err := s.store.FindOneTask(ctx, store.ByID(store.EntityTask, taskID))
	if err != nil {
		return OrchestrateTaskOutput{}, err
	}
	if !found {
		return OrchestrateTaskOutput{}, types.NewError(types.CodeInternal, "task vanished during orchestration: "+taskID)
	}

	out := OrchestrateTaskOutput{Task: after, RoutingDecision: decision}
	if len(after.Enhancements) > 0 {
		last := after.Enhancements[len(after.Enhancements)-1]
		out.Enhancement = &last
	}
	if len(after.ComprehensionTests) > 0 {
		last := after.ComprehensionTests[len(after.ComprehensionTests)-1]
		out.ComprehensionTest = &last
	}
	for _, id := range after.SubtaskIDs {
		sub, found, err := s.store.FindOneTask(ctx, store.ByID(store.EntityTask, id))
		if err != nil {
			return OrchestrateTaskOutput{}, err
		}
		if found {
			out.Subtasks = append(out.Subtasks, sub)
		}
	}
	return out, nil
}

func (s *service) SubscribeToTaskEvents(ctx context.Context) (<-chan types.TaskEvent, func()) {
	ch := s.orchestrator.Events().Subscribe()
	return ch, func() { s.orchestrator.Events().Unsubscribe(ch) }
}

func (s *service) GenerateArtifacts(ctx context.Context, in GenerateArtifactsInput) (types.GenerationReport, error) {
	strategy, err := scanner.NewStrategy(in.ChunkStrategy, in.ChunkSize)
	if err != nil {
		return types.GenerationReport{}, err
	}

	switch in.Kind {
	case SourceKindDirectory:
		result, err := scanner.ScanDirectory(in.Source, s.cfg.ScanLimits)
		if err != nil {
			return types.GenerationReport{}, err
		}
		report, err := s.artifacts.IngestFiles(ctx, in.ProjectID, result.Files, strategy)
		for _, fe := range result.Errors {
			report.Errors = append(report.Errors, fe.Error())
		}
		return report, err
	case SourceKindWeb:
		result, err := scanner.Crawl(ctx, in.Source, s.cfg.ScanLimits)
		if err != nil {
			return types.GenerationReport{}, err
		}
		report, err := s.artifacts.IngestPages(ctx, in.ProjectID, result.Pages, strategy)
		for _, ce := range result.Errors {
			report.Errors = append(report.Errors, ce.Error())
		}
		return report, err
	case SourceKindFile:
		fp, err := scanner.Fingerprint(in.Source)
		if err != nil {
			return types.GenerationReport{}, err
		}
		file := types.ScannedFile{Path: in.Source, RelPath: in.Source, Fingerprint: fp}
		return s.artifacts.IngestFiles(ctx, in.ProjectID, []types.ScannedFile{file}, strategy)
	case SourceKindText:
		key := fmt.Sprintf("%s:%d", in.ProjectID, len(in.Source))
		return s.artifacts.IngestText(ctx, in.ProjectID, key, in.Source, strategy)
	default:
		return types.GenerationReport{}, types.NewError(types.CodeInvalidArgument, "unsupported source kind: "+string(in.Kind))
	}
}

func (s *service) SearchArtifacts(ctx context.Context, in SearchArtifactsInput) ([]ArtifactMatch, error) {
	thresholds := s.cfg.Retrieval
	results, err := s.artifacts.Search(ctx, in.ProjectID, in.Query, artifact.CallSiteSearch, thresholds)
	if err != nil {
		return nil, err
	}
	matches := make([]ArtifactMatch, 0, len(results))
	for _, r := range results {
		if in.Threshold != nil && r.Similarity() < *in.Threshold {
			continue
		}
		matches = append(matches, ArtifactMatch{Artifact: r.Artifact, Similarity: r.Similarity()})
	}
	if in.Limit > 0 && len(matches) > in.Limit {
		matches = matches[:in.Limit]
	}
	return matches, nil
}

func (s *service) emit(eventType types.EventType, task types.Task) {
	logging.RPC.Debug("%s task %s", eventType, task.ID)
	s.orchestrator.Events().Emit(types.TaskEvent{
		EventID:   uuid.NewString(),
		Timestamp: time.Now(),
		EventType: eventType,
		Task:      task,
	})
}

// checkAcyclic rebuilds the full task graph with candidate's proposed
// Dependencies substituted in and rejects the change if it introduces a
// cycle (spec §3 Task invariant: "dependencies must not introduce a cycle
// in the closed task graph"), surfacing C5's Conflict as a CodeConflict
// RPC error instead of a bare graph-internal type.
func (s *service) checkAcyclic(ctx context.Context, candidate types.Task) error {
	all, err := s.store.FindTasks(ctx, store.All(store.EntityTask), store.FindOptions{})
	if err != nil {
		return err
	}
	replaced := false
	for i, t := range all {
		if t.ID == candidate.ID {
			all[i] = candidate
			replaced = true
			break
		}
	}
	if !replaced {
		all = append(all, candidate)
	}

	g := dependency.Build(all)
	if _, err := g.TopoSort(); err != nil {
		return types.Wrap(types.CodeConflict, "dependency cycle detected", err)
	}
	return nil
}
