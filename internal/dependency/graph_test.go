package dependency

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rigger/core/internal/types"
)

func task(id string, deps ...string) types.Task {
	return types.Task{ID: id, Title: id, Dependencies: deps}
}

func TestTopoSortOrdersDependenciesBeforeDependents(t *testing.T) {
	g := Build([]types.Task{
		task("A"),
		task("B", "A"),
		task("C", "A", "B"),
	})
	order, err := g.TopoSort()
	require.NoError(t, err)
	index := map[string]int{}
	for i, id := range order {
		index[id] = i
	}
	require.Less(t, index["A"], index["B"])
	require.Less(t, index["B"], index["C"])
}

func TestTopoSortStableTieBreakOnIndependentTasks(t *testing.T) {
	g := Build([]types.Task{
		task("X"),
		task("Y"),
		task("Z"),
	})
	order, err := g.TopoSort()
	require.NoError(t, err)
	require.Equal(t, []string{"X", "Y", "Z"}, order)
}

func TestTopoSortDetectsDirectCycle(t *testing.T) {
	g := Build([]types.Task{
		task("A", "B"),
		task("B", "A"),
	})
	_, err := g.TopoSort()
	require.Error(t, err)
	var conflict *Conflict
	require.ErrorAs(t, err, &conflict)
	require.NotEmpty(t, conflict.Cycles)
}

func TestTopoSortDetectsThreeNodeCycle(t *testing.T) {
	// A -> B -> C -> A
	g := Build([]types.Task{
		task("A", "B"),
		task("B", "C"),
		task("C", "A"),
	})
	_, err := g.TopoSort()
	require.Error(t, err)
	var conflict *Conflict
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Cycles, 1)
	require.Equal(t, conflict.Cycles[0][0], conflict.Cycles[0][len(conflict.Cycles[0])-1])
}

func TestHasCycleFalseForAcyclicGraph(t *testing.T) {
	g := Build([]types.Task{task("A"), task("B", "A")})
	require.False(t, g.HasCycle())
}

func TestHasCycleTrueForSelfDependency(t *testing.T) {
	g := Build([]types.Task{task("A", "A")})
	require.True(t, g.HasCycle())
}
