package orchestrate

import "github.com/rigger/core/internal/types"

// GraphState is threaded through the orchestration graph one node at a
// time. Each node function consumes the GraphState it is given and returns
// a new one; no node may retain or mutate a GraphState value it has already
// returned (spec §9's linear-ownership discipline, enforced by convention
// rather than by the type system, matching Go's lack of move semantics).
// The task is cloned once, in newGraphState; nodes then pass the state on by
// value without cloning it again.
type GraphState struct {
	Task              types.Task
	RoutingDecision   types.RoutingDecision
	RAGContext        string
	SubtaskIDs        []string
	Done              bool
	TerminalStatus    types.Status
	TerminalError     error
}

// newGraphState starts a fresh, owned GraphState for task.
func newGraphState(task types.Task) GraphState {
	return GraphState{Task: task.Clone()}
}

// withTask returns a new GraphState that owns a cloned copy of t, leaving
// the receiver otherwise untouched for the caller to discard.
func (s GraphState) withTask(t types.Task) GraphState {
	s.Task = t.Clone()
	return s
}
