package orchestrate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rigger/core/internal/artifact"
	"github.com/rigger/core/internal/config"
	"github.com/rigger/core/internal/logging"
	"github.com/rigger/core/internal/provider"
	"github.com/rigger/core/internal/types"
)

// minDecomposedSubtasks and maxDecomposedSubtasks bound how many subtasks a
// single Decompose pass may produce (spec §4.6, §8: "3 ≤ n ≤ 5" for every
// decomposition). A real extraction that returns a count outside this range
// is rejected outright and replaced with the deterministic four-item
// template, the same as any other unusable extraction result — it is never
// truncated or padded into range.
const (
	minDecomposedSubtasks = 3
	maxDecomposedSubtasks = 5
)

// semanticRouterNode scores the task, records the routing decision and its
// reasoning, and retrieves the RAG context the downstream node will use
// (spec §4.4, §4.6).
func (e *Engine) semanticRouterNode(ctx context.Context, state GraphState) (GraphState, error) {
	decision, score := Route(state.Task, e.cfg.Routing)
	state.RoutingDecision = decision
	state.Task.Reasoning = fmt.Sprintf("complexity score %.2f vs threshold %.2f -> %s", score, e.cfg.Routing.Threshold, decision)

	site := artifact.CallSiteEnhancement
	if decision == types.RouteDecompose {
		site = artifact.CallSiteDecomposition
	}
	query := state.Task.Title + " " + state.Task.Description
	results, err := e.artifacts.Search(ctx, projectOf(state.Task), query, site, e.cfg.Retrieval)
	if err != nil {
		logging.Orchestrate.Warn("retrieval failed for task %s, proceeding with empty context: %v", state.Task.ID, err)
		results = nil
	}
	state.RAGContext = artifact.ContextBlock(results)

	logging.Orchestrate.Debug("routed task %s to %s (score=%.2f)", state.Task.ID, decision, score)
	return state, nil
}

// projectOf resolves the project scope for artifact retrieval. Tasks carry
// no direct project reference beyond their originating PRD/transcript in
// this data model, so it always returns "" and retrieval is unscoped; kept
// as its own function so a scoped lookup can replace it without touching
// call sites.
func projectOf(task types.Task) string { return "" }

// dispatchNode runs the Enhance or Decompose subflow chosen by
// semanticRouterNode.
func (e *Engine) dispatchNode(ctx context.Context, state GraphState) (GraphState, error) {
	switch state.RoutingDecision {
	case types.RouteDecompose:
		return e.decomposePath(ctx, state)
	default:
		return e.enhancePath(ctx, state)
	}
}

// enhancePath runs Todo -> PendingEnhancement -> PendingComprehensionTest ->
// OrchestrationComplete, producing one Enhancement and one ComprehensionTest
// audit entry. Both steps fall back to a deterministic output on any
// provider failure so a run never stalls (spec §8 scenario 6).
func (e *Engine) enhancePath(ctx context.Context, state GraphState) (GraphState, error) {
	task, err := e.transition(ctx, state.Task, types.StatusPendingEnhancement)
	if err != nil {
		return state, err
	}
	state.Task = task

	enh := e.runEnhance(ctx, state.Task, state.RAGContext)
	state.Task.Enhancements = append(state.Task.Enhancements, enh)

	task, err = e.transition(ctx, state.Task, types.StatusPendingComprehensionTest)
	if err != nil {
		return state, err
	}
	state.Task = task

	test := e.runComprehensionTest(ctx, state.Task)
	state.Task.ComprehensionTests = append(state.Task.ComprehensionTests, test)

	task, err = e.transition(ctx, state.Task, types.StatusOrchestrationComplete)
	if err != nil {
		return state, err
	}
	state.Task = task
	state.TerminalStatus = types.StatusOrchestrationComplete
	return state, nil
}

func (e *Engine) runEnhance(ctx context.Context, task types.Task, ragContext string) types.Enhancement {
	enhancer, err := e.providers.TextEnhancementFor(config.RoleEnhancer)
	if err != nil {
		logging.Orchestrate.Warn("no TextEnhancement adapter for task %s, using fallback: %v", task.ID, err)
		return provider.FallbackEnhancement(task)
	}
	enh, err := enhancer.Enhance(ctx, task, ragContext)
	if err != nil {
		logging.Orchestrate.Warn("TextEnhancement failed for task %s, using fallback: %v", task.ID, err)
		return provider.FallbackEnhancement(task)
	}
	enh.CreatedAt = time.Now()
	return enh
}

func (e *Engine) runComprehensionTest(ctx context.Context, task types.Task) types.ComprehensionTest {
	extractor, err := e.providers.ExtractionFor(config.RoleTester)
	if err != nil {
		return provider.FallbackComprehensionTest(task)
	}
	prompt := fmt.Sprintf("Write one short-answer comprehension question verifying understanding of: %s\n%s", task.Title, task.Description)
	schema := provider.Schema{Name: "comprehension_test", Fields: []string{"prompt", "answer"}}
	result, err := extractor.Extract(ctx, prompt, schema)
	if err != nil {
		logging.Orchestrate.Warn("comprehension test extraction failed for task %s, using fallback: %v", task.ID, err)
		return provider.FallbackComprehensionTest(task)
	}
	q, _ := result["prompt"].(string)
	a, _ := result["answer"].(string)
	if q == "" {
		return provider.FallbackComprehensionTest(task)
	}
	return types.ComprehensionTest{
		Type:      types.TestShortAnswer,
		Prompt:    q,
		Answer:    a,
		Source:    "llm",
		CreatedAt: time.Now(),
	}
}

// decomposePath runs Todo -> PendingDecomposition -> Decomposed, creating
// 3-5 child tasks.
func (e *Engine) decomposePath(ctx context.Context, state GraphState) (GraphState, error) {
	task, err := e.transition(ctx, state.Task, types.StatusPendingDecomposition)
	if err != nil {
		return state, err
	}
	state.Task = task

	subtasks := e.runDecompose(ctx, state.Task)

	subtaskIDs := make([]string, 0, len(subtasks))
	for _, st := range subtasks {
		st.ID = uuid.NewString()
		st.CreatedAt = time.Now()
		st.UpdatedAt = st.CreatedAt
		saved, err := e.store.SaveTask(ctx, st)
		if err != nil {
			logging.Orchestrate.Error("failed to save subtask of %s: %v", state.Task.ID, err)
			continue
		}
		subtaskIDs = append(subtaskIDs, saved.ID)
		e.emit(types.EventCreated, saved)
	}
	state.SubtaskIDs = subtaskIDs
	state.Task.SubtaskIDs = append(append([]string(nil), state.Task.SubtaskIDs...), subtaskIDs...)

	task, err = e.transition(ctx, state.Task, types.StatusDecomposed)
	if err != nil {
		return state, err
	}
	state.Task = task
	state.TerminalStatus = types.StatusDecomposed
	return state, nil
}

func (e *Engine) runDecompose(ctx context.Context, task types.Task) []types.Task {
	extractor, err := e.providers.ExtractionFor(config.RoleDecomposer)
	if err != nil {
		logging.Orchestrate.Warn("no StructuredExtraction adapter for task %s, using fallback decomposition: %v", task.ID, err)
		return withParent(provider.FallbackSubtasks(task), task.ID)
	}

	prompt := fmt.Sprintf("Decompose this task into 3 to 5 concrete subtasks, each with a title and description.\nTitle: %s\nDescription: %s", task.Title, task.Description)
	schema := provider.Schema{Name: "subtasks", Fields: []string{"items"}}
	result, err := extractor.Extract(ctx, prompt, schema)
	if err != nil {
		logging.Orchestrate.Warn("decomposition extraction failed for task %s, using fallback: %v", task.ID, err)
		return withParent(provider.FallbackSubtasks(task), task.ID)
	}

	subtasks, err := decodeSubtasks(result, task)
	if err != nil {
		logging.Orchestrate.Warn("decomposition response unusable for task %s, using fallback: %v", task.ID, err)
		return withParent(provider.FallbackSubtasks(task), task.ID)
	}
	if len(subtasks) < minDecomposedSubtasks || len(subtasks) > maxDecomposedSubtasks {
		logging.Orchestrate.Warn("decomposition for task %s returned %d subtasks, outside [%d,%d], using fallback",
			task.ID, len(subtasks), minDecomposedSubtasks, maxDecomposedSubtasks)
		return withParent(provider.FallbackSubtasks(task), task.ID)
	}
	return withParent(subtasks, task.ID)
}

func withParent(subtasks []types.Task, parentID string) []types.Task {
	for i := range subtasks {
		subtasks[i].ParentTaskID = parentID
	}
	return subtasks
}

// decodeSubtasks converts a parsed extraction result (expected shape:
// {"items": [{"title": ..., "description": ...}, ...]}) into Tasks, each
// inheriting a complexity of max(1, parent.Complexity-2) (spec §4.6).
func decodeSubtasks(result map[string]any, parent types.Task) ([]types.Task, error) {
	raw, ok := result["items"].([]any)
	if !ok {
		return nil, fmt.Errorf("extraction result missing \"items\" array")
	}
	complexity := parent.Complexity - 2
	if complexity < 1 {
		complexity = 1
	}

	subtasks := make([]types.Task, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title, _ := m["title"].(string)
		if title == "" {
			continue
		}
		desc, _ := m["description"].(string)
		subtasks = append(subtasks, types.Task{
			Title:       title,
			Description: desc,
			Status:      types.StatusTodo,
			Complexity:  complexity,
		})
	}
	return subtasks, nil
}

// terminalNode emits the final Orchestrated event and marks the run done.
func (e *Engine) terminalNode(ctx context.Context, state GraphState) (GraphState, error) {
	e.emit(types.EventOrchestrated, state.Task)
	state.Done = true
	logging.Orchestrate.Info("task %s orchestration finished at status %s", state.Task.ID, state.TerminalStatus)
	return state, nil
}
