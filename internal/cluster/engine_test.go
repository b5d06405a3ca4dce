package cluster

import (
	"reflect"
	"testing"

	"dataprofiler/internal/profile"
)

func numericProfile(key string, mean, median, stdDev float64) profile.Profile {
	return profile.Profile{
		AttributeKey:       key,
		DataType:           profile.TypeNumeric,
		DistinctPercentage: 50,
		Numeric:            &profile.NumericMetrics{Mean: mean, Median: median, StdDev: stdDev},
	}
}

func stringProfile(key string, avgLen float64, ssn bool) profile.Profile {
	return profile.Profile{
		AttributeKey: key,
		DataType:     profile.TypeString,
		String:       &profile.StringMetrics{AvgLength: avgLen, SSNCandidate: ssn},
	}
}

// TestCluster_SimilarAttributesGrouped verifies that two well-separated
// metric shapes land in two clusters, with near-identical attributes
// sharing a label.
func TestCluster_SimilarAttributesGrouped(t *testing.T) {
	t.Parallel()

	profiles := []profile.Profile{
		numericProfile("db:t.a", 10, 10, 1),
		numericProfile("db:t.b", 10.5, 10.2, 1.1),
		stringProfile("db:t.ssn1", 11, true),
		stringProfile("db:t.ssn2", 11, true),
	}

	got, err := Cluster(profiles, 5.0)
	if err != nil {
		t.Fatalf("Cluster() err=%v", err)
	}
	if len(got) != 4 {
		t.Fatalf("assignments.len=%d, want 4", len(got))
	}
	if got["db:t.a"] != got["db:t.b"] {
		t.Fatalf("similar numeric attributes split: %v", got)
	}
	if got["db:t.ssn1"] != got["db:t.ssn2"] {
		t.Fatalf("identical string attributes split: %v", got)
	}
	if got["db:t.a"] == got["db:t.ssn1"] {
		t.Fatalf("numeric and SSN attributes merged: %v", got)
	}
}

// TestCluster_IdenticalVectorsShareLabel verifies the degenerate case of an
// all-identical batch: every column is zero-variance, every point collapses
// to the origin, and all attributes share one cluster.
func TestCluster_IdenticalVectorsShareLabel(t *testing.T) {
	t.Parallel()

	profiles := []profile.Profile{
		numericProfile("a", 3, 3, 1),
		numericProfile("b", 3, 3, 1),
		numericProfile("c", 3, 3, 1),
	}

	got, err := Cluster(profiles, 0.5)
	if err != nil {
		t.Fatalf("Cluster() err=%v", err)
	}
	if got["a"] != got["b"] || got["b"] != got["c"] {
		t.Fatalf("identical profiles split: %v", got)
	}
}

// TestCluster_FewerThanTwo verifies singleton handling without running the
// algorithm.
func TestCluster_FewerThanTwo(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		got, err := Cluster(nil, 5.0)
		if err != nil {
			t.Fatalf("Cluster() err=%v", err)
		}
		if len(got) != 0 {
			t.Fatalf("assignments=%v, want empty", got)
		}
	})

	t.Run("single", func(t *testing.T) {
		t.Parallel()

		got, err := Cluster([]profile.Profile{numericProfile("only", 1, 1, 0)}, 5.0)
		if err != nil {
			t.Fatalf("Cluster() err=%v", err)
		}
		want := map[string]int{"only": 0}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("assignments=%v, want %v", got, want)
		}
	})
}

// TestCluster_ErrorRecordsExcluded verifies error records never receive an
// assignment.
func TestCluster_ErrorRecordsExcluded(t *testing.T) {
	t.Parallel()

	profiles := []profile.Profile{
		numericProfile("good1", 1, 1, 0),
		{AttributeKey: "broken", Error: "connection refused"},
		numericProfile("good2", 2, 2, 0),
	}

	got, err := Cluster(profiles, 5.0)
	if err != nil {
		t.Fatalf("Cluster() err=%v", err)
	}
	if _, ok := got["broken"]; ok {
		t.Fatalf("error record got an assignment: %v", got)
	}
	if len(got) != 2 {
		t.Fatalf("assignments.len=%d, want 2", len(got))
	}
}

// TestCluster_NegativeThreshold verifies input validation.
func TestCluster_NegativeThreshold(t *testing.T) {
	t.Parallel()

	if _, err := Cluster([]profile.Profile{numericProfile("a", 1, 1, 0)}, -1); err == nil {
		t.Fatalf("Cluster() err=nil for negative threshold, want error")
	}
}

// TestCluster_ZeroThresholdSingletons verifies that threshold 0 still merges
// coincident points but keeps distinct points apart.
func TestCluster_ZeroThresholdSingletons(t *testing.T) {
	t.Parallel()

	profiles := []profile.Profile{
		numericProfile("a", 1, 1, 0),
		numericProfile("b", 1, 1, 0),
		numericProfile("c", 100, 100, 50),
	}

	got, err := Cluster(profiles, 0)
	if err != nil {
		t.Fatalf("Cluster() err=%v", err)
	}
	if got["a"] != got["b"] {
		t.Fatalf("coincident points split at threshold 0: %v", got)
	}
	if got["a"] == got["c"] {
		t.Fatalf("distinct points merged at threshold 0: %v", got)
	}
}

// TestCluster_Deterministic verifies identical partitions across reruns of
// the same batch.
func TestCluster_Deterministic(t *testing.T) {
	t.Parallel()

	profiles := []profile.Profile{
		numericProfile("a", 10, 10, 1),
		numericProfile("b", 11, 10, 1),
		stringProfile("c", 30, false),
		stringProfile("d", 31, false),
		numericProfile("e", 500, 480, 90),
	}

	first, err := Cluster(profiles, 5.0)
	if err != nil {
		t.Fatalf("first Cluster() err=%v", err)
	}
	second, err := Cluster(profiles, 5.0)
	if err != nil {
		t.Fatalf("second Cluster() err=%v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("partitions differ across reruns:\n%v\n%v", first, second)
	}
}
