package profiler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"dataprofiler/internal/profile"
	"dataprofiler/internal/source"
)

// cell is one stored value of the fake accessor; null wins over v.
type cell struct {
	v    string
	null bool
}

// fakeAccessor is an in-memory source.Accessor for engine tests. failOp
// injects an error into the named operation ("rowcount", "nullcount",
// "distinct", "sample", "aggregate", "scan").
type fakeAccessor struct {
	cols   []source.Column
	data   map[string][]cell
	failOp string
}

var _ source.Accessor = (*fakeAccessor)(nil)

var errInjected = errors.New("injected failure")

func (f *fakeAccessor) fail(op string) error {
	if f.failOp == op {
		return errInjected
	}
	return nil
}

func (f *fakeAccessor) column(name string) ([]cell, error) {
	c, ok := f.data[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", source.ErrNoColumn, name)
	}
	return c, nil
}

func (f *fakeAccessor) Columns(ctx context.Context) ([]source.Column, error) {
	return f.cols, nil
}

func (f *fakeAccessor) RowCount(ctx context.Context) (int64, error) {
	if err := f.fail("rowcount"); err != nil {
		return 0, err
	}
	for _, cells := range f.data {
		return int64(len(cells)), nil
	}
	return 0, nil
}

func (f *fakeAccessor) NullCount(ctx context.Context, column string) (int64, error) {
	if err := f.fail("nullcount"); err != nil {
		return 0, err
	}
	cells, err := f.column(column)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, c := range cells {
		if c.null {
			n++
		}
	}
	return n, nil
}

func (f *fakeAccessor) DistinctCount(ctx context.Context, column string) (int64, error) {
	if err := f.fail("distinct"); err != nil {
		return 0, err
	}
	cells, err := f.column(column)
	if err != nil {
		return 0, err
	}
	seen := map[string]struct{}{}
	for _, c := range cells {
		if !c.null {
			seen[c.v] = struct{}{}
		}
	}
	return int64(len(seen)), nil
}

func (f *fakeAccessor) Sample(ctx context.Context, column string, n int) ([]string, error) {
	if err := f.fail("sample"); err != nil {
		return nil, err
	}
	cells, err := f.column(column)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, c := range cells {
		if c.null {
			continue
		}
		out = append(out, c.v)
		if len(out) == n {
			break
		}
	}
	return out, nil
}

func (f *fakeAccessor) Aggregate(ctx context.Context, column string, op source.AggOp) (string, error) {
	if err := f.fail("aggregate"); err != nil {
		return "", err
	}
	cells, err := f.column(column)
	if err != nil {
		return "", err
	}
	var vals []float64
	for _, c := range cells {
		if c.null {
			continue
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(c.v), 64); err == nil {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return "", nil
	}
	sort.Float64s(vals)
	switch op {
	case source.AggMin:
		return strconv.FormatFloat(vals[0], 'g', -1, 64), nil
	case source.AggMax:
		return strconv.FormatFloat(vals[len(vals)-1], 'g', -1, 64), nil
	case source.AggMean:
		var sum float64
		for _, v := range vals {
			sum += v
		}
		return strconv.FormatFloat(sum/float64(len(vals)), 'g', -1, 64), nil
	}
	return "", fmt.Errorf("unsupported op %q", op)
}

func (f *fakeAccessor) Scan(ctx context.Context, column string, fn func(value string, null bool) error) error {
	if err := f.fail("scan"); err != nil {
		return err
	}
	cells, err := f.column(column)
	if err != nil {
		return err
	}
	for _, c := range cells {
		if err := fn(c.v, c.null); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAccessor) Close() error { return nil }

func cellsOf(values ...string) []cell {
	out := make([]cell, len(values))
	for i, v := range values {
		if v == "\x00" {
			out[i] = cell{null: true}
		} else {
			out[i] = cell{v: v}
		}
	}
	return out
}

// null is the sentinel cellsOf treats as NULL.
const null = "\x00"

func fixedClock() func() time.Time {
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// TestProfile_Numeric verifies the NUMERIC block end to end.
func TestProfile_Numeric(t *testing.T) {
	t.Parallel()

	acc := &fakeAccessor{
		data: map[string][]cell{
			"amount": cellsOf("10", "20", "30", "40", null),
		},
	}
	eng := New(Options{Now: fixedClock()})

	p, err := eng.Profile(context.Background(), profile.Ref{Source: "test", Column: "amount"}, acc)
	if err != nil {
		t.Fatalf("Profile() err=%v", err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	if p.AttributeKey != "test:amount" {
		t.Fatalf("AttributeKey=%q, want %q", p.AttributeKey, "test:amount")
	}
	if p.DataType != profile.TypeNumeric {
		t.Fatalf("DataType=%v, want NUMERIC", p.DataType)
	}
	if p.TotalRecords != 5 || p.NullCount != 1 || p.DistinctCount != 4 {
		t.Fatalf("counts=(%d,%d,%d), want (5,1,4)", p.TotalRecords, p.NullCount, p.DistinctCount)
	}
	if !almostEqual(p.NullPercentage, 20) {
		t.Fatalf("NullPercentage=%v, want 20", p.NullPercentage)
	}
	if !almostEqual(p.DistinctPercentage, 100) {
		t.Fatalf("DistinctPercentage=%v, want 100", p.DistinctPercentage)
	}
	if !p.IsUnique {
		t.Fatalf("IsUnique=false, want true")
	}

	m := p.Numeric
	if m == nil {
		t.Fatalf("Numeric block missing")
	}
	if m.Min != 10 || m.Max != 40 || !almostEqual(m.Mean, 25) {
		t.Fatalf("min/max/mean=(%v,%v,%v), want (10,40,25)", m.Min, m.Max, m.Mean)
	}
	if !almostEqual(m.Median, 25) {
		t.Fatalf("Median=%v, want 25", m.Median)
	}
	// Population variance of {10,20,30,40} is 125.
	if !almostEqual(m.Variance, 125) || !almostEqual(m.StdDev, math.Sqrt(125)) {
		t.Fatalf("Variance=%v StdDev=%v, want 125 / sqrt(125)", m.Variance, m.StdDev)
	}
	if len(m.Quantiles) != 4 {
		t.Fatalf("Quantiles.len=%d, want 4", len(m.Quantiles))
	}
	if m.Quantiles[1].Percentile != 25 || !almostEqual(m.Quantiles[1].Value, 17.5) {
		t.Fatalf("p25=%+v, want value 17.5", m.Quantiles[1])
	}

	var binTotal int64
	for _, b := range m.Histogram {
		binTotal += b.Count
	}
	if binTotal != 4 {
		t.Fatalf("histogram counts sum=%d, want 4", binTotal)
	}
}

// TestProfile_String verifies the STRING block, including frequency shares
// and pattern flags.
func TestProfile_String(t *testing.T) {
	t.Parallel()

	acc := &fakeAccessor{
		data: map[string][]cell{
			"ssn": cellsOf("123-45-6789", "001-23-4567", "123-45-6789", null),
		},
	}
	eng := New(Options{Now: fixedClock()})

	p, err := eng.Profile(context.Background(), profile.Ref{Source: "test", Column: "ssn"}, acc)
	if err != nil {
		t.Fatalf("Profile() err=%v", err)
	}
	if p.DataType != profile.TypeString {
		t.Fatalf("DataType=%v, want STRING", p.DataType)
	}

	m := p.String
	if m == nil {
		t.Fatalf("String block missing")
	}
	if m.MinLength != 11 || m.MaxLength != 11 || !almostEqual(m.AvgLength, 11) {
		t.Fatalf("lengths=(%d,%d,%v), want (11,11,11)", m.MinLength, m.MaxLength, m.AvgLength)
	}

	wantTop := []profile.ValueCount{
		{Value: "123-45-6789", Count: 2},
		{Value: "001-23-4567", Count: 1},
	}
	if !reflect.DeepEqual(m.TopValues, wantTop) {
		t.Fatalf("TopValues=%v, want %v", m.TopValues, wantTop)
	}
	// 2 of 3 non-null values, then all 3.
	if !almostEqual(m.Top1FrequencyPct, 200.0/3) {
		t.Fatalf("Top1FrequencyPct=%v, want %v", m.Top1FrequencyPct, 200.0/3)
	}
	if !almostEqual(m.Top5FrequencyPct, 100) {
		t.Fatalf("Top5FrequencyPct=%v, want 100", m.Top5FrequencyPct)
	}

	if !m.SSNCandidate {
		t.Fatalf("SSNCandidate=false, want true")
	}
	if m.DOBCandidate {
		t.Fatalf("DOBCandidate=true, want false")
	}
}

// TestProfile_DateTime verifies the DATETIME block.
func TestProfile_DateTime(t *testing.T) {
	t.Parallel()

	acc := &fakeAccessor{
		data: map[string][]cell{
			"created": cellsOf("2020-01-01", "2020-12-31", "2021-06-15", null),
		},
	}
	eng := New(Options{Now: fixedClock()})

	p, err := eng.Profile(context.Background(), profile.Ref{Source: "test", Column: "created"}, acc)
	if err != nil {
		t.Fatalf("Profile() err=%v", err)
	}
	if p.DataType != profile.TypeDateTime {
		t.Fatalf("DataType=%v, want DATETIME", p.DataType)
	}

	m := p.DateTime
	if m == nil {
		t.Fatalf("DateTime block missing")
	}
	if got, want := m.Min, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("Min=%v, want %v", got, want)
	}
	if got, want := m.Max, time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("Max=%v, want %v", got, want)
	}
	if !almostEqual(m.RangeDays, 531) {
		t.Fatalf("RangeDays=%v, want 531", m.RangeDays)
	}
	if len(m.Formats) != 1 || m.Formats[0].Layout != "2006-01-02" || m.Formats[0].Count != 3 {
		t.Fatalf("Formats=%v, want one 2006-01-02 x3", m.Formats)
	}
	wantYears := []profile.YearCount{{Year: 2020, Count: 2}, {Year: 2021, Count: 1}}
	if !reflect.DeepEqual(m.ByYear, wantYears) {
		t.Fatalf("ByYear=%v, want %v", m.ByYear, wantYears)
	}
}

// TestProfile_Boolean verifies the BOOLEAN block and true-share basis.
func TestProfile_Boolean(t *testing.T) {
	t.Parallel()

	acc := &fakeAccessor{
		data: map[string][]cell{
			"active": cellsOf("1", "0", "1", "1", null),
		},
	}
	eng := New(Options{Now: fixedClock()})

	p, err := eng.Profile(context.Background(), profile.Ref{Source: "test", Column: "active"}, acc)
	if err != nil {
		t.Fatalf("Profile() err=%v", err)
	}
	if p.DataType != profile.TypeBoolean {
		t.Fatalf("DataType=%v, want BOOLEAN", p.DataType)
	}

	m := p.Boolean
	if m == nil {
		t.Fatalf("Boolean block missing")
	}
	if m.TrueCount != 3 || m.FalseCount != 1 {
		t.Fatalf("counts=(%d,%d), want (3,1)", m.TrueCount, m.FalseCount)
	}
	if !almostEqual(m.TruePercentage, 75) {
		t.Fatalf("TruePercentage=%v, want 75", m.TruePercentage)
	}
}

// TestProfile_AllNull verifies the all-null column edge case: STRING
// fallback, zero percentages, not unique.
func TestProfile_AllNull(t *testing.T) {
	t.Parallel()

	acc := &fakeAccessor{
		data: map[string][]cell{
			"empty": cellsOf(null, null, null),
		},
	}
	eng := New(Options{Now: fixedClock()})

	p, err := eng.Profile(context.Background(), profile.Ref{Source: "test", Column: "empty"}, acc)
	if err != nil {
		t.Fatalf("Profile() err=%v", err)
	}
	if p.DataType != profile.TypeString {
		t.Fatalf("DataType=%v, want STRING fallback", p.DataType)
	}
	if !almostEqual(p.NullPercentage, 100) {
		t.Fatalf("NullPercentage=%v, want 100", p.NullPercentage)
	}
	if p.DistinctPercentage != 0 {
		t.Fatalf("DistinctPercentage=%v, want 0", p.DistinctPercentage)
	}
	if p.IsUnique {
		t.Fatalf("IsUnique=true for an all-null column, want false")
	}
	if p.String == nil {
		t.Fatalf("String block missing")
	}
	if p.String.MinLength != 0 || p.String.MaxLength != 0 || p.String.AvgLength != 0 {
		t.Fatalf("length stats=%+v for all-null column, want zeros", p.String)
	}
}

// TestProfile_DeclaredTypeWins verifies declared-type precedence over value
// probing.
func TestProfile_DeclaredTypeWins(t *testing.T) {
	t.Parallel()

	acc := &fakeAccessor{
		data: map[string][]cell{
			"code": cellsOf("1", "2", "3"),
		},
	}
	eng := New(Options{Now: fixedClock()})

	p, err := eng.Profile(context.Background(),
		profile.Ref{Source: "test", Column: "code", DeclaredType: "varchar(8)"}, acc)
	if err != nil {
		t.Fatalf("Profile() err=%v", err)
	}
	if p.DataType != profile.TypeString {
		t.Fatalf("DataType=%v, want STRING from declared type", p.DataType)
	}
}

// TestProfile_Deterministic verifies that re-profiling the same unchanged
// source yields an identical profile once the clock is pinned.
func TestProfile_Deterministic(t *testing.T) {
	t.Parallel()

	acc := &fakeAccessor{
		data: map[string][]cell{
			"v": cellsOf("a", "b", "a", "c", null, "b", "a"),
		},
	}
	eng := New(Options{Now: fixedClock()})
	ref := profile.Ref{Source: "test", Column: "v"}

	p1, err := eng.Profile(context.Background(), ref, acc)
	if err != nil {
		t.Fatalf("first Profile() err=%v", err)
	}
	p2, err := eng.Profile(context.Background(), ref, acc)
	if err != nil {
		t.Fatalf("second Profile() err=%v", err)
	}
	if !reflect.DeepEqual(p1, p2) {
		t.Fatalf("profiles differ across runs:\n%+v\n%+v", p1, p2)
	}
}

// TestProfile_AccessorFailure verifies the error path: a failing accessor
// operation surfaces as a wrapped error, never a half-filled profile.
func TestProfile_AccessorFailure(t *testing.T) {
	t.Parallel()

	for _, op := range []string{"rowcount", "nullcount", "distinct", "sample", "scan"} {
		op := op
		t.Run(op, func(t *testing.T) {
			t.Parallel()

			acc := &fakeAccessor{
				failOp: op,
				data: map[string][]cell{
					"v": cellsOf("1", "2"),
				},
			}
			eng := New(Options{Now: fixedClock()})

			p, err := eng.Profile(context.Background(), profile.Ref{Source: "test", Column: "v"}, acc)
			if err == nil {
				t.Fatalf("Profile() err=nil, want injected failure")
			}
			if !errors.Is(err, errInjected) {
				t.Fatalf("err=%v, want wrapped errInjected", err)
			}
			if p.Numeric != nil || p.String != nil || p.DateTime != nil || p.Boolean != nil {
				t.Fatalf("failed profile carries a metric block: %+v", p)
			}
		})
	}
}

// TestProfile_MissingColumn verifies ErrNoColumn propagation.
func TestProfile_MissingColumn(t *testing.T) {
	t.Parallel()

	acc := &fakeAccessor{
		data: map[string][]cell{
			"v": cellsOf("1"),
		},
	}
	eng := New(Options{Now: fixedClock()})

	_, err := eng.Profile(context.Background(), profile.Ref{Source: "test", Column: "missing"}, acc)
	if !errors.Is(err, source.ErrNoColumn) {
		t.Fatalf("err=%v, want wrapped ErrNoColumn", err)
	}
}

// TestPercentileInterp verifies linear interpolation between closest ranks.
func TestPercentileInterp(t *testing.T) {
	t.Parallel()

	sorted := []float64{10, 20, 30, 40}

	tests := []struct {
		p    float64
		want float64
	}{
		{p: 0, want: 10},
		{p: 50, want: 25},
		{p: 100, want: 40},
		{p: 25, want: 17.5},
		{p: 75, want: 32.5},
	}
	for _, tc := range tests {
		if got := percentileInterp(sorted, tc.p); !almostEqual(got, tc.want) {
			t.Fatalf("percentileInterp(%v)=%v, want %v", tc.p, got, tc.want)
		}
	}

	if got := percentileInterp([]float64{7}, 95); got != 7 {
		t.Fatalf("percentileInterp single=%v, want 7", got)
	}
}

// TestFixedWidthHistogram verifies bin edges and the constant-column
// collapse.
func TestFixedWidthHistogram(t *testing.T) {
	t.Parallel()

	t.Run("constant_column_single_bin", func(t *testing.T) {
		t.Parallel()

		bins := fixedWidthHistogram([]float64{5, 5, 5}, 10)
		want := []profile.Bin{{Low: 5, High: 5, Count: 3}}
		if !reflect.DeepEqual(bins, want) {
			t.Fatalf("bins=%v, want %v", bins, want)
		}
	})

	t.Run("max_lands_in_last_bin", func(t *testing.T) {
		t.Parallel()

		bins := fixedWidthHistogram([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 5)
		if len(bins) != 5 {
			t.Fatalf("bins.len=%d, want 5", len(bins))
		}
		if bins[4].Count != 3 { // 8, 9, 10
			t.Fatalf("last bin count=%d, want 3", bins[4].Count)
		}
		var total int64
		for _, b := range bins {
			total += b.Count
		}
		if total != 11 {
			t.Fatalf("bin counts sum=%d, want 11", total)
		}
	})
}
