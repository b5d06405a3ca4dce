// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// Profiling runs range from one-shot CLI invocations to long scheduled
// batches, so the backend buffers observations in memory, flushes on a
// ticker (default once per minute), and flushes one final time on Close.
// Long runs get a real time series; short runs still get their tail flush.
//
// Concurrency model:
//   - profiling goroutines call IncCounter/ObserveHistogram at any time
//   - Flush snapshots and resets buffers under a mutex, then submits
//     out-of-lock
//   - the flush loop calls Flush periodically; Close stops the loop
//
// If the process dies with SIGKILL/OOM, Close never runs; no backend can
// fix that.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"dataprofiler/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to
	// "profiler".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// <=0 means 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets them; unit tests
	// use them to avoid real clocks, tickers, and network submission.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal interface needed to submit metrics.
// The SDK exposes a concrete *datadogV2.MetricsApi; depending on this tiny
// private interface instead keeps the backend testable without real HTTP.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	// now and newTicker are injected for deterministic tests.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	// attrCounts counts profiled attributes by status (ok/error).
	attrCounts map[string]float64
	// attrDur collects per-attribute durations keyed by detected type.
	attrDur map[string][]float64

	batchCount float64
	batchDur   []float64

	clusterRuns   float64
	clusterCounts []float64
	clusterDur    []float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client. It
// starts its own periodic flush goroutine; stop it with Close.
//
// Edge cases:
//   - FlushEvery <= 0 defaults to 60s.
//   - JobName "" defaults to "profiler".
//   - Environment tag selection uses ENV then DD_ENV, else env:unknown.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "profiler"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		cfg := dd.NewConfiguration()
		client := dd.NewAPIClient(cfg)
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,

		attrCounts: make(map[string]float64),
		attrDur:    make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush.
// Call once; a second Close panics on the closed stop channel, the usual
// "close once" contract for process-lifetime backends.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case "profiler_attributes_total":
		status := labels["status"]
		if status == "" {
			status = "unknown"
		}
		b.attrCounts[status] += delta

	case "profiler_batches_total":
		b.batchCount += delta

	case "cluster_runs_total":
		b.clusterRuns += delta

	default:
		// Unknown metrics are ignored rather than guessed at.
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case "profiler_attribute_duration_seconds":
		typ := labels["type"]
		if typ == "" {
			typ = "unknown"
		}
		b.attrDur[typ] = append(b.attrDur[typ], value)

	case "profiler_batch_duration_seconds":
		b.batchDur = append(b.batchDur, value)

	case "cluster_count":
		b.clusterCounts = append(b.clusterCounts, value)

	case "cluster_duration_seconds":
		b.clusterDur = append(b.clusterDur, value)

	default:
		// Unknown histograms are ignored rather than guessed at.
	}
}

// snapshot is the detached buffered state a single Flush submits.
// Flush must reset buffers under the lock but submit out-of-lock;
// snapshot separates the two cleanly.
type snapshot struct {
	attrCounts map[string]float64
	attrDur    map[string][]float64

	batchCount float64
	batchDur   []float64

	clusterRuns   float64
	clusterCounts []float64
	clusterDur    []float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		attrCounts:    b.attrCounts,
		attrDur:       b.attrDur,
		batchCount:    b.batchCount,
		batchDur:      b.batchDur,
		clusterRuns:   b.clusterRuns,
		clusterCounts: b.clusterCounts,
		clusterDur:    b.clusterDur,
	}

	b.attrCounts = make(map[string]float64)
	b.attrDur = make(map[string][]float64)
	b.batchCount = 0
	b.batchDur = nil
	b.clusterRuns = 0
	b.clusterCounts = nil
	b.clusterDur = nil

	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.attrCounts) == 0 &&
		len(s.attrDur) == 0 &&
		s.batchCount == 0 &&
		len(s.batchDur) == 0 &&
		s.clusterRuns == 0 &&
		len(s.clusterCounts) == 0 &&
		len(s.clusterDur) == 0
}

// Flush submits buffered metrics to Datadog and resets local buffers.
//
// Buffers are reset even if submission fails, keeping the hot path fast
// and never blocking future writes; at-least-once delivery would be a
// different architecture.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	nowUnix := b.now().Unix()
	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, nowUnix)}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries constructs Datadog series for a snapshot at a fixed
// timestamp. It is pure (no locks, no network, no clocks), which is what
// makes the naming/tagging contract unit-testable.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, 16)

	for status, v := range s.attrCounts {
		if v == 0 {
			continue
		}
		tags := withTags(b.baseTags, "status:"+status)
		series = append(series, countSeries("profiler.attributes.total", v, tags, nowUnix))
	}

	if s.batchCount != 0 {
		series = append(series, countSeries("profiler.batches.total", s.batchCount, b.baseTags, nowUnix))
	}
	if s.clusterRuns != 0 {
		series = append(series, countSeries("profiler.cluster.runs.total", s.clusterRuns, b.baseTags, nowUnix))
	}

	for typ, samples := range s.attrDur {
		tags := withTags(b.baseTags, "type:"+typ)
		appendPercentiles(&series, "profiler.attribute.duration_seconds", samples, tags, nowUnix)
	}
	appendPercentiles(&series, "profiler.batch.duration_seconds", s.batchDur, b.baseTags, nowUnix)
	appendPercentiles(&series, "profiler.cluster.duration_seconds", s.clusterDur, b.baseTags, nowUnix)
	appendPercentiles(&series, "profiler.cluster.count", s.clusterCounts, b.baseTags, nowUnix)

	return series
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

// appendPercentiles publishes a fixed percentile set for a sample slice.
// Empty samples produce nothing. The input is not mutated.
func appendPercentiles(series *[]datadogV2.MetricSeries, metricPrefix string, samples []float64, tags []string, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series, gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix))
}

// percentileNearestRank returns the nearest-rank percentile of sorted
// (ascending) samples. q is in (0, 1].
func percentileNearestRank(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	ix := int(q*float64(len(sorted))+0.5) - 1
	if ix < 0 {
		ix = 0
	}
	if ix >= len(sorted) {
		ix = len(sorted) - 1
	}
	return sorted[ix]
}

func withTags(base []string, extra ...string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	out = append(out, extra...)
	return out
}

// ParseTagsCSV splits a comma-separated tag list ("env:prod,team:data")
// into a slice, dropping empty entries.
func ParseTagsCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var _ metrics.Backend = (*Backend)(nil)
