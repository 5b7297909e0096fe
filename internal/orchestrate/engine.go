// Package orchestrate implements C6: the task orchestration graph. A task
// enters at SemanticRouter, is routed to either Enhance or Decompose, and
// exits at Terminal with its status advanced exactly as far as the legal
// transition table in internal/types allows (spec §4.6).
package orchestrate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rigger/core/internal/artifact"
	"github.com/rigger/core/internal/config"
	"github.com/rigger/core/internal/logging"
	"github.com/rigger/core/internal/provider"
	"github.com/rigger/core/internal/store"
	"github.com/rigger/core/internal/types"
)

// Engine runs tasks through the orchestration graph, enforcing the
// per-run wall-clock budget and bounding concurrent runs (spec §5, §9).
type Engine struct {
	store     store.Store
	providers *provider.Set
	artifacts *artifact.Engine
	cfg       config.Config
	events    *Bus

	group *errgroup.Group
}

// NewEngine constructs an orchestration Engine. maxConcurrentRuns bounds how
// many Run calls may execute simultaneously via an errgroup.Group's
// bounded fan-out.
func NewEngine(s store.Store, providers *provider.Set, artifacts *artifact.Engine, cfg config.Config, maxConcurrentRuns int) *Engine {
	group := &errgroup.Group{}
	if maxConcurrentRuns > 0 {
		group.SetLimit(maxConcurrentRuns)
	}
	return &Engine{
		store:     s,
		providers: providers,
		artifacts: artifacts,
		cfg:       cfg,
		events:    NewBus(cfg.Limits.BroadcastChannelCapacity),
		group:     group,
	}
}

// Events returns the engine's event bus for subscribing to task transitions
// (spec §6 SubscribeToTaskEvents).
func (e *Engine) Events() *Bus { return e.events }

// Submit runs taskID through the orchestration graph on a pooled goroutine,
// bounded by the engine's concurrency limit. Errors are reported through the
// returned channel rather than via errgroup.Wait, so callers can track each
// run individually.
func (e *Engine) Submit(ctx context.Context, taskID string) <-chan error {
	resultCh := make(chan error, 1)
	e.group.Go(func() error {
		err := e.Run(ctx, taskID)
		resultCh <- err
		return nil // never fail the shared group; callers inspect resultCh
	})
	return resultCh
}

// Run drives one task through the full graph synchronously, bounded by the
// configured per-run wall-clock budget (spec §5's 10 minute default).
func (e *Engine) Run(ctx context.Context, taskID string) error {
	budget := time.Duration(e.cfg.Limits.RunWallClockBudgetSeconds) * time.Second
	if budget <= 0 {
		budget = 10 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	task, found, err := e.store.FindOneTask(runCtx, store.ByID(store.EntityTask, taskID))
	if err != nil {
		return err
	}
	if !found {
		return types.NewError(types.CodeNotFound, "task not found: "+taskID)
	}

	state := newGraphState(task)

	for _, step := range []func(context.Context, GraphState) (GraphState, error){
		e.semanticRouterNode,
		e.dispatchNode,
		e.terminalNode,
	} {
		select {
		case <-runCtx.Done():
			taxErr := contextError(runCtx)
			e.markErrored(runCtx, state.Task, taxErr)
			return taxErr
		default:
		}

		next, err := step(runCtx, state)
		if err != nil {
			e.markErrored(runCtx, state.Task, err)
			return err
		}
		state = next
		if state.Done {
			break
		}
	}

	return nil
}

// contextError classifies runCtx's termination reason into the error
// taxonomy (spec §7): a wall-clock budget breach is CodeTimeout, any other
// cancellation (parent context cancelled, Submit's caller gave up) is
// CodeCancelled. Plain context.Canceled/DeadlineExceeded values would fail
// types.CodeOf/errors.As(*types.Error) for every downstream caller that
// inspects the code, so the raw error is never returned as-is.
func contextError(runCtx context.Context) error {
	if runCtx.Err() == context.DeadlineExceeded {
		return types.Wrap(types.CodeTimeout, "orchestration run exceeded its wall-clock budget", runCtx.Err())
	}
	return types.Wrap(types.CodeCancelled, "orchestration run was cancelled", runCtx.Err())
}

// markErrored best-effort transitions task to Errored and emits an event,
// swallowing its own failures since the caller already has the original
// error to report.
func (e *Engine) markErrored(ctx context.Context, task types.Task, cause error) {
	if !types.CanTransition(task.Status, types.StatusErrored) {
		logging.Orchestrate.Warn("cannot transition %s from %s to Errored: %v", task.ID, task.Status, cause)
		return
	}
	task.Status = types.StatusErrored
	task.UpdatedAt = time.Now()
	saved, err := e.store.SaveTask(ctx, task)
	if err != nil {
		logging.Orchestrate.Error("failed to persist Errored status for %s: %v", task.ID, err)
		return
	}
	e.emit(types.EventUpdated, saved)
}

func (e *Engine) emit(eventType types.EventType, task types.Task) {
	e.events.Emit(types.TaskEvent{
		EventID:   uuid.NewString(),
		Timestamp: time.Now(),
		EventType: eventType,
		Task:      task,
	})
}

func (e *Engine) transition(ctx context.Context, task types.Task, to types.Status) (types.Task, error) {
	if !types.CanTransition(task.Status, to) {
		return task, fmt.Errorf("illegal transition from %s to %s for task %s", task.Status, to, task.ID)
	}
	task.Status = to
	task.UpdatedAt = time.Now()
	saved, err := e.store.SaveTask(ctx, task)
	if err != nil {
		return task, err
	}
	e.emit(types.EventUpdated, saved)
	return saved, nil
}
