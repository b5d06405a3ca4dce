// Package storage defines the backend-agnostic profile store and the
// factory registry its backends plug into.
//
// A Store persists one current row per attribute key (overwrite semantics),
// lists the current profile set for clustering, and writes cluster
// assignments back in a single transaction so a clustering run never lands
// against a half-updated batch.
package storage

import (
	"context"
	"fmt"
	"sync"

	"dataprofiler/internal/profile"
)

// DefaultTable is the results table name used when Config.Table is empty.
const DefaultTable = "attribute_profiles"

// Config is the minimal configuration needed to create a profile store.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
//   - Table defaults to DefaultTable when empty.
type Config struct {
	Kind  string
	DSN   string
	Table string
}

// Store is the backend-agnostic profile persistence interface.
//
// IMPORTANT: the interface is intentionally minimal and focused on what the
// profiling and clustering engines need. Each backend implements the
// semantics in its own idiomatic way (Postgres ON CONFLICT, SQLite upsert,
// MSSQL delete+insert in a transaction).
type Store interface {
	// Close releases backend resources. Treat as "call once".
	Close()

	// EnsureTable creates the results table if it does not exist,
	// keeping startup idempotent.
	EnsureTable(ctx context.Context) error

	// Upsert writes profiles keyed by attribute_key with overwrite
	// semantics: after Upsert exactly one current row exists per key,
	// the one just written. Error records are stored the same way.
	Upsert(ctx context.Context, profiles []profile.Profile) error

	// ListCurrent returns every current profile, ordered by attribute key.
	ListCurrent(ctx context.Context) ([]profile.Profile, error)

	// UpdateClusterAssignments sets cluster_id for each listed attribute
	// key inside a single transaction. Keys not present in the table are
	// ignored (the clustering snapshot may be older than a concurrent
	// re-profiling run; stale keys must not fail the write-back).
	UpdateClusterAssignments(ctx context.Context, assignments map[string]int) error
}

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a store backend under a kind (e.g. "postgres").
//
// Call Register from an init() function in a backend package. Registering
// the same kind twice panics: failing fast beats ambiguous backend
// selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Store using the registered backend factory.
//
// Errors:
//   - If cfg.Kind is empty or not registered.
//   - Whatever the registered factory returns.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
