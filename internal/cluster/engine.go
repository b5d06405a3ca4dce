// Package cluster groups profiled attributes by metric similarity.
//
// Clustering is always a full, non-incremental recomputation over the
// profile batch it is given: features are extracted in a fixed order,
// standardized against this batch only, and fed to agglomerative Ward
// clustering with a tunable distance threshold. Cluster ids are arbitrary
// labels; callers must not assume id stability across runs.
package cluster

import (
	"fmt"
	"time"

	"dataprofiler/internal/metrics"
	"dataprofiler/internal/profile"
)

// Cluster assigns a cluster id to every non-error profile in the batch.
//
// distanceThreshold is the single tunable control: merging stops once the
// next merge's Ward linkage distance would exceed it. It must be >= 0.
//
// Edge cases:
//   - An empty batch returns an empty map.
//   - Fewer than 2 usable profiles skips the algorithm entirely; each
//     attribute gets its own singleton cluster id.
//   - Error records (Profile.IsError) are excluded from the feature matrix
//     and absent from the returned map.
func Cluster(profiles []profile.Profile, distanceThreshold float64) (map[string]int, error) {
	if distanceThreshold < 0 {
		return nil, fmt.Errorf("cluster: distance threshold must be >= 0, got %v", distanceThreshold)
	}

	start := time.Now()

	keys := make([]string, 0, len(profiles))
	vectors := make([][]float64, 0, len(profiles))
	for i := range profiles {
		p := &profiles[i]
		if p.IsError() || p.AttributeKey == "" {
			continue
		}
		keys = append(keys, p.AttributeKey)
		vectors = append(vectors, featureVector(p))
	}

	assignments := make(map[string]int, len(keys))

	if len(keys) < 2 {
		for i, k := range keys {
			assignments[k] = i
		}
		return assignments, nil
	}

	standardize(vectors)
	labels := wardLabels(vectors, distanceThreshold)
	for i, k := range keys {
		assignments[k] = labels[i]
	}

	found := 0
	seen := make(map[int]bool, len(labels))
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			found++
		}
	}

	metrics.IncCounter("cluster_runs_total", 1, nil)
	metrics.ObserveHistogram("cluster_count", float64(found), nil)
	metrics.ObserveHistogram("cluster_duration_seconds", time.Since(start).Seconds(), nil)

	return assignments, nil
}
