package profiler

import (
	"context"
	"log"
	"sync"
	"time"

	"dataprofiler/internal/metrics"
	"dataprofiler/internal/profile"
	"dataprofiler/internal/source"
)

// Logger is the minimal logging interface used by the batch runner.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Job is one attribute to profile against its data source.
type Job struct {
	Ref      profile.Ref
	Accessor source.Accessor
}

// Runner executes a batch of profiling jobs with a bounded worker pool.
//
// Results are disjoint by attribute key, so workers share no mutable state
// beyond the accessor, which the source package requires to be safe for
// concurrent reads. One attribute's failure never aborts its siblings: the
// failure becomes an error record and the batch continues.
type Runner struct {
	Engine *Engine

	// Workers bounds concurrent profiling jobs. <=0 means 1 (sequential).
	Workers int

	Logger Logger
}

func (r *Runner) logger() func(format string, v ...any) {
	if r.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return r.Logger.Printf
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Run profiles every job and returns full profiles plus error records for
// the failures, preserving job order within each slice.
//
// Context cancellation stops the batch early: jobs not yet started are
// skipped, jobs in flight finish, and the partial results are returned.
// Cancellation is not an error.
func (r *Runner) Run(ctx context.Context, jobs []Job) (profiles, errRecords []profile.Profile) {
	if len(jobs) == 0 {
		return nil, nil
	}

	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	logf := r.logger()
	start := time.Now()

	results := make([]batchResult, len(jobs))

	jobCh := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for ix := range jobCh {
				results[ix] = r.runOne(ctx, jobs[ix])
			}
		}()
	}

feed:
	for ix := range jobs {
		select {
		case <-ctx.Done():
			break feed
		case jobCh <- ix:
		}
	}
	close(jobCh)
	wg.Wait()

	for _, s := range results {
		if !s.done {
			continue
		}
		if s.isErr {
			errRecords = append(errRecords, s.p)
		} else {
			profiles = append(profiles, s.p)
		}
	}

	metrics.IncCounter("profiler_batches_total", 1, nil)
	metrics.ObserveHistogram("profiler_batch_duration_seconds", time.Since(start).Seconds(), nil)

	logf("batch complete: profiled=%d errors=%d skipped=%d duration=%s",
		len(profiles), len(errRecords), len(jobs)-len(profiles)-len(errRecords),
		time.Since(start).Truncate(time.Millisecond))

	return profiles, errRecords
}

type batchResult struct {
	p     profile.Profile
	isErr bool
	done  bool
}

func (r *Runner) runOne(ctx context.Context, j Job) (s batchResult) {
	start := time.Now()

	p, err := r.Engine.Profile(ctx, j.Ref, j.Accessor)
	s.done = true
	if err != nil {
		p.Error = err.Error()
		s.p = p
		s.isErr = true
		metrics.IncCounter("profiler_attributes_total", 1, metrics.Labels{"status": "error"})
		r.logger()("attribute %s failed: %v", j.Ref.Key(), err)
		return s
	}

	s.p = p
	metrics.IncCounter("profiler_attributes_total", 1, metrics.Labels{"status": "ok"})
	metrics.ObserveHistogram("profiler_attribute_duration_seconds", time.Since(start).Seconds(),
		metrics.Labels{"type": string(p.DataType)})
	return s
}
