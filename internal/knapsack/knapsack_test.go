package knapsack

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(xs []int, idx []int) int {
	s := 0
	for _, i := range idx {
		s += xs[i]
	}
	return s
}

func TestSolveEmpty(t *testing.T) {
	assert.Empty(t, Solve(nil, nil, 10, 0))
}

func TestSolveNonPositiveCapacity(t *testing.T) {
	w := []int{1, 2, 3}
	v := []int{1, 2, 3}
	assert.Empty(t, Solve(w, v, 0, 0))
	assert.Empty(t, Solve(w, v, -5, 0))
}

func TestSolveTakesEverythingWhenCapacityCoversAll(t *testing.T) {
	w := []int{1, 2, 3}
	v := []int{10, 20, 30}
	got := Solve(w, v, 6, 0)
	sort.Ints(got)
	require.Len(t, got, 3, "Solve(capacity>=sum) should take all indices")
}

func TestSolveFeasibility(t *testing.T) {
	weights := []int{21, 11, 15, 9, 34, 25, 41, 52}
	values := []int{22, 12, 16, 10, 35, 26, 42, 53}
	got := Solve(weights, values, 100, 0)
	require.LessOrEqual(t, sum(weights, got), 100, "solution weight must not exceed capacity")
	assert.Equal(t, 105, sum(values, got), "optimal value")
}

func TestSolveMaxCellsScaling(t *testing.T) {
	weights := []int{21, 11, 15, 9, 34, 25, 41, 52}
	values := []int{22, 12, 16, 10, 35, 26, 42, 53}
	got := Solve(weights, values, 100, 1<<20)
	require.LessOrEqual(t, sum(weights, got), 100, "scaled solution weight must not exceed capacity")
}

func TestSolveFeasibilityProperty(t *testing.T) {
	weightsList := [][]int{
		{5, 10, 15, 20},
		{1, 1, 1, 1, 1},
		{100, 200, 300},
	}
	valuesList := [][]int{
		{1, 2, 3, 4},
		{5, 4, 3, 2, 1},
		{10, 20, 30},
	}
	capacities := []int{23, 3, 250}
	for i := range weightsList {
		got := Solve(weightsList[i], valuesList[i], capacities[i], 0)
		assert.LessOrEqualf(t, sum(weightsList[i], got), capacities[i], "case %d", i)
	}
}
