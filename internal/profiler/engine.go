// Package profiler computes per-attribute statistical profiles over a
// tabular data source.
//
// The engine consumes a source.Accessor (it does not own it) and resolves a
// logical type per attribute, then fills exactly one type-specific metric
// block. Scalar aggregates (row/null/distinct counts, numeric min/max/mean)
// go through accessor-level aggregation; order statistics and frequency
// tables stream column values instead of materializing rows.
package profiler

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"dataprofiler/internal/pattern"
	"dataprofiler/internal/profile"
	"dataprofiler/internal/source"
)

// Options control sampling depth and per-type metric shape. Zero values
// mean defaults; New fills them in.
type Options struct {
	// SampleSize bounds the value sample used for type probing and pattern
	// detection. Default 100.
	SampleSize int

	// TopK bounds the most-frequent-values list for string attributes.
	// Default 10.
	TopK int

	// Percentiles selects the quantiles reported for numeric attributes.
	// Default 5, 25, 75, 95. Median is always reported separately.
	Percentiles []int

	// HistogramBins is the fixed-width bin count for numeric histograms.
	// Default 10.
	HistogramBins int

	// DateConfidence is the minimum fraction of sampled values that must
	// parse as dates for an undeclared column to resolve as DATETIME.
	// Default 0.9.
	DateConfidence float64

	// Pattern configures SSN/DOB detection thresholds.
	Pattern pattern.Config

	// Now is a clock seam; profiles are stamped with Now(). Default time.Now.
	Now func() time.Time
}

const (
	defaultSampleSize    = 100
	defaultTopK          = 10
	defaultHistogramBins = 10
	defaultDateConf      = 0.9
)

var defaultPercentiles = []int{5, 25, 75, 95}

func (o Options) withDefaults() Options {
	if o.SampleSize <= 0 {
		o.SampleSize = defaultSampleSize
	}
	if o.TopK <= 0 {
		o.TopK = defaultTopK
	}
	if len(o.Percentiles) == 0 {
		o.Percentiles = defaultPercentiles
	}
	if o.HistogramBins <= 0 {
		o.HistogramBins = defaultHistogramBins
	}
	if o.DateConfidence <= 0 {
		o.DateConfidence = defaultDateConf
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Engine computes attribute profiles. It is stateless apart from Options
// and safe for concurrent use.
type Engine struct {
	opts Options
}

// New constructs an Engine with defaults applied.
func New(opts Options) *Engine {
	return &Engine{opts: opts.withDefaults()}
}

// Profile computes the full profile for one attribute.
//
// Any accessor failure is returned as an error; Profile never produces a
// half-filled record. The batch Runner converts errors into error records
// so one attribute's failure cannot abort its siblings.
func (e *Engine) Profile(ctx context.Context, ref profile.Ref, acc source.Accessor) (profile.Profile, error) {
	key := ref.Key()

	p := profile.Profile{
		AttributeKey: key,
		ProfiledAt:   e.opts.Now(),
	}

	total, err := acc.RowCount(ctx)
	if err != nil {
		return p, fmt.Errorf("profile %s: row count: %w", key, err)
	}
	nulls, err := acc.NullCount(ctx, ref.Column)
	if err != nil {
		return p, fmt.Errorf("profile %s: null count: %w", key, err)
	}
	distinct, err := acc.DistinctCount(ctx, ref.Column)
	if err != nil {
		return p, fmt.Errorf("profile %s: distinct count: %w", key, err)
	}

	p.TotalRecords = total
	p.NullCount = nulls
	p.DistinctCount = distinct

	nonNull := total - nulls
	if total > 0 {
		p.NullPercentage = float64(nulls) / float64(total) * 100
	}
	if nonNull > 0 {
		p.DistinctPercentage = float64(distinct) / float64(nonNull) * 100
	}
	p.IsUnique = distinct == nonNull && distinct > 0

	sample, err := acc.Sample(ctx, ref.Column, e.opts.SampleSize)
	if err != nil {
		return p, fmt.Errorf("profile %s: sample: %w", key, err)
	}

	p.DataType = resolveType(ref.DeclaredType, sample, e.opts.DateConfidence)

	switch p.DataType {
	case profile.TypeNumeric:
		m, err := e.numericMetrics(ctx, ref.Column, acc)
		if err != nil {
			return p, fmt.Errorf("profile %s: numeric metrics: %w", key, err)
		}
		p.Numeric = m

	case profile.TypeString:
		m, err := e.stringMetrics(ctx, ref.Column, acc, nonNull, sample)
		if err != nil {
			return p, fmt.Errorf("profile %s: string metrics: %w", key, err)
		}
		p.String = m

	case profile.TypeDateTime:
		m, err := e.dateTimeMetrics(ctx, ref.Column, acc)
		if err != nil {
			return p, fmt.Errorf("profile %s: datetime metrics: %w", key, err)
		}
		p.DateTime = m

	case profile.TypeBoolean:
		m, err := e.booleanMetrics(ctx, ref.Column, acc)
		if err != nil {
			return p, fmt.Errorf("profile %s: boolean metrics: %w", key, err)
		}
		p.Boolean = m
	}

	return p, nil
}

// numericMetrics computes the NUMERIC block. Min/max/mean come from the
// accessor so SQL backends can push them down; the order statistics need
// the parsed values and are computed from a single streaming scan.
func (e *Engine) numericMetrics(ctx context.Context, column string, acc source.Accessor) (*profile.NumericMetrics, error) {
	m := &profile.NumericMetrics{}

	var values []float64
	err := acc.Scan(ctx, column, func(v string, null bool) error {
		if null {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			// A column can resolve NUMERIC from its declared type and
			// still carry stray unparseable values; skip them the same
			// way aggregation skips NULLs.
			return nil
		}
		values = append(values, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return m, nil
	}

	minV, err := e.numericAggregate(ctx, column, acc, source.AggMin)
	if err != nil {
		return nil, err
	}
	maxV, err := e.numericAggregate(ctx, column, acc, source.AggMax)
	if err != nil {
		return nil, err
	}
	meanV, err := e.numericAggregate(ctx, column, acc, source.AggMean)
	if err != nil {
		return nil, err
	}
	m.Min, m.Max, m.Mean = minV, maxV, meanV

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	m.Median = percentileInterp(sorted, 50)

	var sq float64
	for _, v := range values {
		d := v - m.Mean
		sq += d * d
	}
	m.Variance = sq / float64(len(values))
	m.StdDev = math.Sqrt(m.Variance)

	m.Quantiles = make([]profile.Quantile, 0, len(e.opts.Percentiles))
	for _, pct := range e.opts.Percentiles {
		m.Quantiles = append(m.Quantiles, profile.Quantile{
			Percentile: pct,
			Value:      percentileInterp(sorted, float64(pct)),
		})
	}

	m.Histogram = fixedWidthHistogram(sorted, e.opts.HistogramBins)
	return m, nil
}

func (e *Engine) numericAggregate(ctx context.Context, column string, acc source.Accessor, op source.AggOp) (float64, error) {
	s, err := acc.Aggregate(ctx, column, op)
	if err != nil {
		return 0, err
	}
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("aggregate %s: parse %q: %w", op, s, err)
	}
	return f, nil
}

// stringMetrics computes the STRING block, including pattern flags over the
// bounded sample. nonNull is the accessor-reported non-null count, the base
// for the frequency percentages.
func (e *Engine) stringMetrics(ctx context.Context, column string, acc source.Accessor, nonNull int64, sample []string) (*profile.StringMetrics, error) {
	m := &profile.StringMetrics{}

	counts := make(map[string]int64)
	first := true
	var lenSum int64
	var scanned int64

	err := acc.Scan(ctx, column, func(v string, null bool) error {
		if null {
			return nil
		}
		scanned++
		n := len([]rune(v))
		lenSum += int64(n)
		if first || n < m.MinLength {
			m.MinLength = n
		}
		if n > m.MaxLength {
			m.MaxLength = n
		}
		first = false
		counts[v]++
		return nil
	})
	if err != nil {
		return nil, err
	}

	if scanned > 0 {
		m.AvgLength = float64(lenSum) / float64(scanned)
	}

	top := rankValueCounts(counts)
	if len(top) > e.opts.TopK {
		top = top[:e.opts.TopK]
	}
	m.TopValues = top

	if nonNull > 0 && len(top) > 0 {
		m.Top1FrequencyPct = float64(top[0].Count) / float64(nonNull) * 100
		var top5 int64
		for i, vc := range top {
			if i == 5 {
				break
			}
			top5 += vc.Count
		}
		m.Top5FrequencyPct = float64(top5) / float64(nonNull) * 100
	}

	flags := pattern.Detect(column, sample, e.opts.Pattern)
	m.SSNCandidate = flags.SSNCandidate
	m.DOBCandidate = flags.DOBCandidate

	return m, nil
}

// dateTimeMetrics computes the DATETIME block from one streaming scan.
// The calendar-year histogram needs every value anyway, so min/max are
// taken from the same pass instead of extra aggregate round-trips.
func (e *Engine) dateTimeMetrics(ctx context.Context, column string, acc source.Accessor) (*profile.DateTimeMetrics, error) {
	m := &profile.DateTimeMetrics{}

	layoutCounts := make(map[string]int64)
	yearCounts := make(map[int]int64)
	var parsed int64

	err := acc.Scan(ctx, column, func(v string, null bool) error {
		if null {
			return nil
		}
		t, layout, ok := parseTimeLoose(v)
		if !ok {
			return nil
		}
		if parsed == 0 || t.Before(m.Min) {
			m.Min = t
		}
		if parsed == 0 || t.After(m.Max) {
			m.Max = t
		}
		parsed++
		layoutCounts[layout]++
		yearCounts[t.Year()]++
		return nil
	})
	if err != nil {
		return nil, err
	}
	if parsed == 0 {
		return m, nil
	}

	m.RangeDays = m.Max.Sub(m.Min).Hours() / 24

	m.Formats = make([]profile.FormatCount, 0, len(layoutCounts))
	for lay, n := range layoutCounts {
		m.Formats = append(m.Formats, profile.FormatCount{Layout: lay, Count: n})
	}
	sort.Slice(m.Formats, func(i, j int) bool {
		if m.Formats[i].Count != m.Formats[j].Count {
			return m.Formats[i].Count > m.Formats[j].Count
		}
		return m.Formats[i].Layout < m.Formats[j].Layout
	})

	m.ByYear = make([]profile.YearCount, 0, len(yearCounts))
	for y, n := range yearCounts {
		m.ByYear = append(m.ByYear, profile.YearCount{Year: y, Count: n})
	}
	sort.Slice(m.ByYear, func(i, j int) bool { return m.ByYear[i].Year < m.ByYear[j].Year })

	return m, nil
}

// booleanMetrics computes the BOOLEAN block. Percentages are over values
// that actually parsed as booleans, not over all non-null values.
func (e *Engine) booleanMetrics(ctx context.Context, column string, acc source.Accessor) (*profile.BooleanMetrics, error) {
	m := &profile.BooleanMetrics{}

	err := acc.Scan(ctx, column, func(v string, null bool) error {
		if null {
			return nil
		}
		b, ok := parseBoolLoose(v)
		if !ok {
			return nil
		}
		if b {
			m.TrueCount++
		} else {
			m.FalseCount++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if n := m.TrueCount + m.FalseCount; n > 0 {
		m.TruePercentage = float64(m.TrueCount) / float64(n) * 100
	}
	return m, nil
}

// percentileInterp returns the pth percentile of sorted with linear
// interpolation between closest ranks. sorted must be non-empty, ascending.
func percentileInterp(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// fixedWidthHistogram bins sorted values into equal-width buckets across
// [min, max]. A constant column collapses to a single bucket.
func fixedWidthHistogram(sorted []float64, bins int) []profile.Bin {
	if len(sorted) == 0 {
		return nil
	}
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		return []profile.Bin{{Low: lo, High: hi, Count: int64(len(sorted))}}
	}

	width := (hi - lo) / float64(bins)
	out := make([]profile.Bin, bins)
	for i := range out {
		out[i].Low = lo + float64(i)*width
		out[i].High = lo + float64(i+1)*width
	}
	out[bins-1].High = hi

	for _, v := range sorted {
		ix := int((v - lo) / width)
		if ix >= bins {
			ix = bins - 1
		}
		out[ix].Count++
	}
	return out
}

// rankValueCounts orders a frequency map by descending count, breaking ties
// by value so the output is deterministic.
func rankValueCounts(counts map[string]int64) []profile.ValueCount {
	out := make([]profile.ValueCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, profile.ValueCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}
