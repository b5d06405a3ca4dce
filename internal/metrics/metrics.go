// Package metrics is a minimal metrics facade: the profiling and clustering
// code records counters and histogram observations against whatever Backend
// is installed, and stays oblivious to the vendor behind it.
//
// The default backend is a nop, so library code can instrument
// unconditionally. Binaries install a real backend (see metrics/datadog)
// at startup and flush it at shutdown.
package metrics

import "sync"

// Labels are free-form key/value tags attached to an observation.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use; the profiling worker pool calls these from many goroutines.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs the process-wide backend. Pass nil to restore the nop.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a named counter on the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample of a named distribution.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush forces the installed backend to submit buffered data.
func Flush() error { return current().Flush() }
