package track

import "math"

// Optimal assignment for the association cost matrices. The
// Kuhn–Munkres algorithm (Jonker–Volgenant potentials variant) solves
// the balanced problem in O(n³); greedy matching can lock in a
// suboptimal pairing when two detections compete for the same track,
// which matters for crossing vehicles.
//
// Cost entries at or above forbiddenCost are treated as impossible:
// the solver may route through them while padding, but such pairs are
// stripped from the returned assignment.

// forbiddenCost marks an (row, column) pair the solver must not return.
const forbiddenCost = 1e18

// assignMinCost solves the rectangular min-cost assignment problem.
// It returns assigned[i] = column matched to row i, or -1 when row i
// is unassigned (matrix wider than tall, or only forbidden columns).
func assignMinCost(cost [][]float64) []int {
	rows := len(cost)
	if rows == 0 {
		return nil
	}
	cols := len(cost[0])
	assigned := make([]int, rows)
	for i := range assigned {
		assigned[i] = -1
	}
	if cols == 0 {
		return assigned
	}

	// Square the matrix by padding with forbidden entries so excess
	// rows or columns simply stay unmatched.
	dim := max(rows, cols)
	c := make([][]float64, dim)
	for i := range c {
		c[i] = make([]float64, dim)
		for j := range c[i] {
			if i < rows && j < cols {
				c[i][j] = cost[i][j]
			} else {
				c[i][j] = forbiddenCost
			}
		}
	}

	const inf = math.MaxFloat64 / 2

	// 1-indexed potentials; column 0 is the virtual source column.
	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	matchedRow := make([]int, dim+1) // matchedRow[j] = row held by column j
	way := make([]int, dim+1)        // predecessor column on the augmenting path
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		matchedRow[0] = i
		j0 := 0
		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := matchedRow[j0]
			delta := inf
			j1 := -1

			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				reduced := c[i0-1][j-1] - u[i0] - v[j]
				if reduced < minv[j] {
					minv[j] = reduced
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				break
			}

			for j := 0; j <= dim; j++ {
				if used[j] {
					u[matchedRow[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			j0 = j1
			if matchedRow[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			matchedRow[j0] = matchedRow[way[j0]]
			j0 = way[j0]
		}
	}

	for j := 1; j <= dim; j++ {
		i := matchedRow[j]
		if i < 1 || i > rows || j > cols {
			continue
		}
		if cost[i-1][j-1] < forbiddenCost {
			assigned[i-1] = j - 1
		}
	}
	return assigned
}
