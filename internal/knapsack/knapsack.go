// Package knapsack implements the 0/1 knapsack DP the storage manager uses
// to pick which seeded torrents to keep when it must free space but wants to
// preserve the most leecher value among survivors.
package knapsack

// Solve returns the indices of items to include in a maximum-value 0/1
// knapsack selection under capacity. weights and values must be the same
// length; weights and capacity are non-negative.
//
// All items are returned iff capacity >= sum(weights); an empty set is
// returned iff capacity <= 0. maxCells, if positive, bounds the DP table
// size by scaling weights up (ceiling) and capacity down (floor); the
// returned indices' total scaled weight never exceeds the scaled capacity,
// and because weights are rounded up, the unscaled weight sum is also
// guaranteed to respect the original capacity.
func Solve(weights, values []int, capacity int, maxCells int) []int {
	n := len(weights)
	if capacity <= 0 {
		return nil
	}

	total := 0
	for _, w := range weights {
		total += w
	}
	if capacity >= total {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}

	if maxCells > 0 {
		if maxCells < 2*(n+1) {
			maxCells = 2 * (n + 1)
		}
		// Target: (capacity/scale + 1) * (n + 1) ~= maxCells.
		denom := float64(maxCells - (n + 1))
		if denom < float64(n+1) {
			denom = float64(n + 1)
		}
		scale := float64(capacity) * float64(n+1) / denom
		if scale > 1 {
			scaledWeights := make([]int, n)
			for i, w := range weights {
				scaledWeights[i] = ceilDiv(w, scale)
			}
			weights = scaledWeights
			capacity = int(float64(capacity) / scale)
			if capacity <= 0 {
				return nil
			}
		}
	}

	// dp[i][w] = best value achievable using the first i items with
	// capacity w. Kept as a full table (not rolled) so we can backtrack.
	dp := make([][]int, n+1)
	dp[0] = make([]int, capacity+1)
	for i := 1; i <= n; i++ {
		wt := weights[i-1]
		vl := values[i-1]
		prev := dp[i-1]
		cur := make([]int, capacity+1)
		copy(cur, prev)
		for w := wt; w <= capacity; w++ {
			if cand := prev[w-wt] + vl; cand > cur[w] {
				cur[w] = cand
			}
		}
		dp[i] = cur
	}

	var chosen []int
	w := capacity
	for i := n; i > 0; i-- {
		if dp[i][w] != dp[i-1][w] {
			chosen = append(chosen, i-1)
			w -= weights[i-1]
		}
	}
	return chosen
}

func ceilDiv(w int, scale float64) int {
	v := float64(w) / scale
	i := int(v)
	if float64(i) < v {
		i++
	}
	return i
}
