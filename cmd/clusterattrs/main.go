package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"dataprofiler/internal/cluster"
	"dataprofiler/internal/metrics"
	"dataprofiler/internal/metrics/datadog"
	"dataprofiler/internal/storage"

	// register all backends with the storage factory.
	_ "dataprofiler/internal/storage/all"
)

// main is the entry point for the clusterattrs binary. It loads the current
// profile set from the store, groups similar attributes by hierarchical
// clustering, and writes the assignments back in one transaction.
func main() {
	var (
		storeKind  string
		storeDSN   string
		storeTable string

		threshold float64
		dryRun    bool

		metricsBackendFlg string
	)

	flag.StringVar(&storeKind, "store-kind", "", "profile store backend (postgres, sqlite, mssql; overrides env STORE_KIND)")
	flag.StringVar(&storeDSN, "store-dsn", "", "profile store DSN (overrides env STORE_DSN)")
	flag.StringVar(&storeTable, "store-table", "", "profile store table (empty = attribute_profiles)")
	flag.Float64Var(&threshold, "threshold", 5.0, "merge distance threshold; lower means more, tighter clusters")
	flag.BoolVar(&dryRun, "dry-run", false, "print assignments as JSON instead of writing them back")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (datadog, none)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))

		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: "clusterattrs",
			Tags:    extraTags,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: backend=%v tags=%v", backendName, extraTags)
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}

	case "", "none":
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	kind := storeKind
	if kind == "" {
		kind = os.Getenv("STORE_KIND")
	}
	if kind == "" {
		fatalf("missing -store-kind (or env STORE_KIND)")
	}
	dsn := storeDSN
	if dsn == "" {
		dsn = os.Getenv("STORE_DSN")
	}

	ctx := context.Background()
	start := time.Now()

	st, err := storage.New(ctx, storage.Config{Kind: kind, DSN: dsn, Table: storeTable})
	if err != nil {
		fatalf("open store: %v", err)
	}
	defer st.Close()

	profiles, err := st.ListCurrent(ctx)
	if err != nil {
		fatalf("load profiles: %v", err)
	}
	if *verbose {
		log.Printf("loaded %d profiles from %s", len(profiles), kind)
	}

	assignments, err := cluster.Cluster(profiles, threshold)
	if err != nil {
		fatalf("cluster: %v", err)
	}

	clusters := map[int]int{}
	for _, id := range assignments {
		clusters[id]++
	}
	log.Printf("clustered %d attributes into %d clusters (threshold=%.2f)",
		len(assignments), len(clusters), threshold)

	if dryRun {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(assignments); err != nil {
			fatalf("encode assignments: %v", err)
		}
		return
	}

	if err := st.UpdateClusterAssignments(ctx, assignments); err != nil {
		fatalf("save assignments: %v", err)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
