package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"dataprofiler/internal/profile"
	"dataprofiler/internal/storage"
)

func openStore(t *testing.T) storage.Store {
	t.Helper()

	st, err := storage.New(context.Background(), storage.Config{
		Kind: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "profiles.db"),
	})
	if err != nil {
		t.Fatalf("storage.New() err=%v", err)
	}
	t.Cleanup(st.Close)

	if err := st.EnsureTable(context.Background()); err != nil {
		t.Fatalf("EnsureTable() err=%v", err)
	}
	// Idempotent on an existing table.
	if err := st.EnsureTable(context.Background()); err != nil {
		t.Fatalf("second EnsureTable() err=%v", err)
	}
	return st
}

func testProfiles() []profile.Profile {
	at := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	return []profile.Profile{
		{
			AttributeKey:       "db:public.users.age",
			ProfiledAt:         at,
			DataType:           profile.TypeNumeric,
			TotalRecords:       100,
			NullCount:          5,
			NullPercentage:     5,
			DistinctCount:      42,
			DistinctPercentage: 44.21,
			Numeric: &profile.NumericMetrics{
				Min: 18, Max: 90, Mean: 44.5, Median: 41, StdDev: 12.3, Variance: 151.29,
				Quantiles: []profile.Quantile{{Percentile: 25, Value: 30}},
				Histogram: []profile.Bin{{Low: 18, High: 90, Count: 95}},
			},
		},
		{
			AttributeKey:       "db:public.users.ssn",
			ProfiledAt:         at,
			DataType:           profile.TypeString,
			TotalRecords:       100,
			NullCount:          0,
			DistinctCount:      100,
			DistinctPercentage: 100,
			IsUnique:           true,
			String: &profile.StringMetrics{
				MinLength: 11, MaxLength: 11, AvgLength: 11,
				TopValues:    []profile.ValueCount{{Value: "123-45-6789", Count: 1}},
				SSNCandidate: true,
			},
		},
		{
			AttributeKey: "db:public.users.broken",
			ProfiledAt:   at,
			Error:        "connection refused",
		},
	}
}

// TestUpsertAndListCurrent verifies the write/read round trip, including
// metric blocks and the attribute-key ordering of ListCurrent.
func TestUpsertAndListCurrent(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	ctx := context.Background()

	in := testProfiles()
	if err := st.Upsert(ctx, in); err != nil {
		t.Fatalf("Upsert() err=%v", err)
	}

	got, err := st.ListCurrent(ctx)
	if err != nil {
		t.Fatalf("ListCurrent() err=%v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListCurrent().len=%d, want 3", len(got))
	}

	wantOrder := []string{"db:public.users.age", "db:public.users.broken", "db:public.users.ssn"}
	for i, w := range wantOrder {
		if got[i].AttributeKey != w {
			t.Fatalf("ListCurrent()[%d].AttributeKey=%q, want %q", i, got[i].AttributeKey, w)
		}
	}

	age := got[0]
	if !age.ProfiledAt.Equal(in[0].ProfiledAt) {
		t.Fatalf("ProfiledAt=%v, want %v", age.ProfiledAt, in[0].ProfiledAt)
	}
	if age.ClusterID != nil {
		t.Fatalf("fresh profile ClusterID=%v, want nil", *age.ClusterID)
	}
	if !reflect.DeepEqual(age.Numeric, in[0].Numeric) {
		t.Fatalf("Numeric round trip:\ngot  %+v\nwant %+v", age.Numeric, in[0].Numeric)
	}

	ssn := got[2]
	if !ssn.IsUnique || ssn.String == nil || !ssn.String.SSNCandidate {
		t.Fatalf("ssn profile round trip: %+v", ssn)
	}

	broken := got[1]
	if !broken.IsError() || broken.Error != "connection refused" {
		t.Fatalf("error record round trip: %+v", broken)
	}
	if broken.Numeric != nil || broken.String != nil {
		t.Fatalf("error record carries metric blocks: %+v", broken)
	}
}

// TestUpsert_OverwritesAndResetsCluster verifies the single-current-row
// contract: re-profiling an attribute replaces its row and clears any
// cluster assignment.
func TestUpsert_OverwritesAndResetsCluster(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	ctx := context.Background()

	in := testProfiles()
	if err := st.Upsert(ctx, in); err != nil {
		t.Fatalf("Upsert() err=%v", err)
	}
	if err := st.UpdateClusterAssignments(ctx, map[string]int{
		"db:public.users.age": 0,
		"db:public.users.ssn": 1,
	}); err != nil {
		t.Fatalf("UpdateClusterAssignments() err=%v", err)
	}

	listed, err := st.ListCurrent(ctx)
	if err != nil {
		t.Fatalf("ListCurrent() err=%v", err)
	}
	if listed[0].ClusterID == nil || *listed[0].ClusterID != 0 {
		t.Fatalf("age ClusterID=%v, want 0", listed[0].ClusterID)
	}
	if listed[2].ClusterID == nil || *listed[2].ClusterID != 1 {
		t.Fatalf("ssn ClusterID=%v, want 1", listed[2].ClusterID)
	}

	// Re-profile "age" with new metrics.
	updated := in[0]
	updated.ProfiledAt = updated.ProfiledAt.Add(time.Hour)
	updated.TotalRecords = 200
	updated.Numeric = &profile.NumericMetrics{Min: 18, Max: 95, Mean: 46}
	if err := st.Upsert(ctx, []profile.Profile{updated}); err != nil {
		t.Fatalf("second Upsert() err=%v", err)
	}

	got, err := st.ListCurrent(ctx)
	if err != nil {
		t.Fatalf("ListCurrent() err=%v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListCurrent().len=%d after overwrite, want 3", len(got))
	}

	age := got[0]
	if age.TotalRecords != 200 {
		t.Fatalf("TotalRecords=%d after overwrite, want 200", age.TotalRecords)
	}
	if !age.ProfiledAt.Equal(updated.ProfiledAt) {
		t.Fatalf("ProfiledAt=%v, want %v", age.ProfiledAt, updated.ProfiledAt)
	}
	if age.ClusterID != nil {
		t.Fatalf("ClusterID=%v after re-profiling, want nil (assignment invalidated)", *age.ClusterID)
	}
	// The untouched attribute keeps its assignment.
	if got[2].ClusterID == nil || *got[2].ClusterID != 1 {
		t.Fatalf("ssn ClusterID=%v, want untouched 1", got[2].ClusterID)
	}
}

// TestUpdateClusterAssignments_StaleKeysIgnored verifies that assignments
// for keys no longer present do not fail the transaction.
func TestUpdateClusterAssignments_StaleKeysIgnored(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	ctx := context.Background()

	if err := st.Upsert(ctx, testProfiles()[:1]); err != nil {
		t.Fatalf("Upsert() err=%v", err)
	}

	err := st.UpdateClusterAssignments(ctx, map[string]int{
		"db:public.users.age": 3,
		"gone:missing.key":    7,
	})
	if err != nil {
		t.Fatalf("UpdateClusterAssignments() err=%v, want stale keys ignored", err)
	}

	got, err := st.ListCurrent(ctx)
	if err != nil {
		t.Fatalf("ListCurrent() err=%v", err)
	}
	if len(got) != 1 || got[0].ClusterID == nil || *got[0].ClusterID != 3 {
		t.Fatalf("assignments=%+v, want age=3 only", got)
	}
}

// TestUpsert_Empty verifies the no-op path.
func TestUpsert_Empty(t *testing.T) {
	t.Parallel()

	st := openStore(t)
	if err := st.Upsert(context.Background(), nil); err != nil {
		t.Fatalf("Upsert(nil) err=%v", err)
	}
	if err := st.UpdateClusterAssignments(context.Background(), nil); err != nil {
		t.Fatalf("UpdateClusterAssignments(nil) err=%v", err)
	}
}
