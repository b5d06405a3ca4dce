package cluster

import "math"

// wardLabels runs agglomerative hierarchical clustering with Ward linkage
// over Euclidean distances and returns one integer label per input point.
//
// Merging stops once the smallest pending linkage distance exceeds
// threshold; the surviving clusters become the labels. The update rule is
// the Lance-Williams recurrence in its Ward form: for clusters s and t
// merged into u, the distance to any other cluster v is
//
//	d(u,v) = sqrt(((|v|+|s|)*d(v,s)^2 + (|v|+|t|)*d(v,t)^2 - |v|*d(s,t)^2) / (|s|+|t|+|v|))
//
// with singleton distances initialized to plain Euclidean distance. The
// implementation is O(n^3) time, O(n^2) memory, which is comfortable for
// attribute counts (hundreds, not millions).
//
// Labels are arbitrary: a rerun over the same input produces the same
// partition but possibly different integers.
func wardLabels(points [][]float64, threshold float64) []int {
	n := len(points)
	labels := make([]int, n)
	if n == 0 {
		return labels
	}
	if n == 1 {
		return labels
	}

	// Pairwise distance matrix between active clusters.
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := euclidean(points[i], points[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}

	size := make([]int, n)
	active := make([]bool, n)
	members := make([][]int, n)
	for i := range size {
		size[i] = 1
		active[i] = true
		members[i] = []int{i}
	}

	for {
		// Find the closest active pair.
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if dist[i][j] < best {
					best = dist[i][j]
					bi, bj = i, j
				}
			}
		}
		if bi < 0 || best > threshold {
			break
		}

		// Update distances from the merged cluster (kept at bi) to every
		// other active cluster, using sizes from before the merge.
		ns, nt := float64(size[bi]), float64(size[bj])
		dst := dist[bi][bj]
		for v := 0; v < n; v++ {
			if !active[v] || v == bi || v == bj {
				continue
			}
			nv := float64(size[v])
			ds := dist[v][bi]
			dt := dist[v][bj]
			sq := ((nv+ns)*ds*ds + (nv+nt)*dt*dt - nv*dst*dst) / (ns + nt + nv)
			if sq < 0 {
				sq = 0
			}
			d := math.Sqrt(sq)
			dist[v][bi] = d
			dist[bi][v] = d
		}

		size[bi] += size[bj]
		members[bi] = append(members[bi], members[bj]...)
		active[bj] = false
		members[bj] = nil
	}

	next := 0
	for i := 0; i < n; i++ {
		if !active[i] {
			continue
		}
		for _, pt := range members[i] {
			labels[pt] = next
		}
		next++
	}
	return labels
}

func euclidean(a, b []float64) float64 {
	var sq float64
	for i := range a {
		d := a[i] - b[i]
		sq += d * d
	}
	return math.Sqrt(sq)
}
