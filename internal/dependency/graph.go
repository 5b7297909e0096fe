// Package dependency implements C5: building the task dependency DAG from
// Task.Dependencies, cycle detection, and a stable topological sort (spec
// §4.5), adapted from a generic entity-graph traversal idiom to a task-ID
// dependency graph with cycle rejection rather than path search.
package dependency

import (
	"fmt"
	"strings"

	"github.com/rigger/core/internal/logging"
	"github.com/rigger/core/internal/types"
)

// Graph is an in-memory dependency DAG over a set of tasks, keyed by task ID.
type Graph struct {
	nodes map[string]types.Task
	edges map[string][]string // taskID -> dependency task IDs, input order preserved
	order []string            // insertion order, used as the stable tie-break
}

// Build constructs a Graph from tasks. A dependency referencing a task ID
// not present in tasks is kept as an edge but has no corresponding node;
// TopoSort still orders it (it simply has no dependencies of its own).
func Build(tasks []types.Task) *Graph {
	g := &Graph{
		nodes: make(map[string]types.Task, len(tasks)),
		edges: make(map[string][]string, len(tasks)),
	}
	for _, t := range tasks {
		g.nodes[t.ID] = t
		g.order = append(g.order, t.ID)
		g.edges[t.ID] = append([]string(nil), t.Dependencies...)
	}
	return g
}

// color marks a node's DFS visitation state for cycle detection.
type color int

const (
	white color = iota // unvisited
	gray                // on the current DFS stack
	black               // fully explored
)

// Conflict reports one or more dependency cycles discovered during
// TopoSort (spec §4.5, §8 "cycle rejection").
type Conflict struct {
	Cycles [][]string // each cycle as the ordered sequence of task IDs, first repeated at the end
}

func (c *Conflict) Error() string {
	parts := make([]string, len(c.Cycles))
	for i, cycle := range c.Cycles {
		parts[i] = strings.Join(cycle, " -> ")
	}
	return fmt.Sprintf("dependency cycle(s) detected: %s", strings.Join(parts, "; "))
}

// TopoSort returns task IDs in dependency order (a dependency always
// precedes its dependents), breaking ties by input order. If the graph
// contains one or more cycles, it returns a *Conflict naming each one,
// reporting the path from the cycle's first repeated node back to itself
// (spec §4.5 "multiple independent cycles supported").
func (g *Graph) TopoSort() ([]string, error) {
	colors := make(map[string]color, len(g.order))
	var stack []string
	var result []string
	var cycles [][]string

	var visit func(id string)
	visit = func(id string) {
		switch colors[id] {
		case black:
			return
		case gray:
			// Found a back-edge: report the cycle from its first occurrence
			// on the stack through to id.
			start := 0
			for i, s := range stack {
				if s == id {
					start = i
					break
				}
			}
			cycle := append([]string(nil), stack[start:]...)
			cycle = append(cycle, id)
			cycles = append(cycles, cycle)
			return
		}

		colors[id] = gray
		stack = append(stack, id)
		logging.Dependency.Debug("visiting %s, stack depth=%d", id, len(stack))

		for _, dep := range g.edges[id] {
			visit(dep)
		}

		stack = stack[:len(stack)-1]
		colors[id] = black
		result = append(result, id)
	}

	for _, id := range g.order {
		if colors[id] == white {
			visit(id)
		}
	}

	if len(cycles) > 0 {
		return nil, &Conflict{Cycles: cycles}
	}
	return result, nil
}

// HasCycle reports whether the graph contains any dependency cycle, without
// constructing a full Conflict.
func (g *Graph) HasCycle() bool {
	_, err := g.TopoSort()
	return err != nil
}
