package split

import "math/rand/v2"

// choose marks k distinct positions out of n, drawn uniformly without
// replacement. It runs a partial Fisher-Yates shuffle over position indices.
func choose(r *rand.Rand, n, k int) []bool {
	picked := make([]bool, n)
	if k >= n {
		for i := range picked {
			picked[i] = true
		}
		return picked
	}
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := range k {
		j := i + r.IntN(n-i)
		perm[i], perm[j] = perm[j], perm[i]
		picked[perm[i]] = true
	}
	return picked
}

// floorFraction returns floor(n * ratio), matching truncating integer conversion.
func floorFraction(n int, ratio float64) int {
	return int(float64(n) * ratio)
}
