package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/KhanhD1nh/export-data/internal/config"
	"github.com/KhanhD1nh/export-data/internal/metrics"
	"github.com/KhanhD1nh/export-data/internal/metrics/datadog"
	"github.com/KhanhD1nh/export-data/internal/metrics/prompush"
	"github.com/KhanhD1nh/export-data/internal/parser/cadastral"
	"github.com/KhanhD1nh/export-data/internal/pipeline"
	"github.com/KhanhD1nh/export-data/internal/schema"
	"github.com/KhanhD1nh/export-data/internal/stats"
	"github.com/KhanhD1nh/export-data/internal/storage"
	"github.com/KhanhD1nh/export-data/internal/storage/postgres"
	"github.com/KhanhD1nh/export-data/internal/storage/sqlite"
)

// main is the entry point for the exportdata binary. It assembles the run
// configuration from an optional run file plus flags and environment, builds
// the storage backend and metrics backend, and executes the ingestion run.
func main() {
	var (
		cfgPath       string
		xmlDir        string
		limit         int
		threads       int
		batchSize     int
		acquireSecs   int
		storageKind   string
		dsn           string
		sqlitePath    string
		metricsFlg    string
		pushGWURL     string
		dogstatsdAddr string
		validate      bool
	)

	flag.StringVar(&cfgPath, "config", "", "run config JSON path (flags override file values)")
	flag.StringVar(&xmlDir, "xml-dir", "", "export root directory holding <commune>/xml/*.xml")
	flag.IntVar(&limit, "limit", 0, "process only the first N files (0 = all)")
	flag.IntVar(&threads, "threads", 0, "parse worker count (0 = one per CPU)")
	flag.IntVar(&batchSize, "batch-size", 0, "per-table flush threshold (0 = default)")
	flag.IntVar(&acquireSecs, "acquire-timeout", 0, "connection acquire timeout in seconds (0 = default)")
	flag.StringVar(&storageKind, "storage", "", "storage backend: postgres or sqlite")
	flag.StringVar(&dsn, "dsn", "", "postgres DSN (overrides env DB_* settings)")
	flag.StringVar(&sqlitePath, "sqlite-path", "", "database file for the sqlite backend")
	flag.StringVar(&metricsFlg, "metrics-backend", "", "metrics backend to use (pushgateway, datadog, none)")
	flag.StringVar(&pushGWURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&dogstatsdAddr, "dogstatsd-addr", "", "DogStatsD address (overrides env DOGSTATSD_ADDR)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	var run config.Run
	if cfgPath != "" {
		var err error
		run, err = config.Load(cfgPath)
		if err != nil {
			fatalf("%v", err)
		}
	}

	// Flags and environment fill in whatever the run file left unset:
	// flag → env → file → default.
	if xmlDir != "" {
		run.Source.Root = xmlDir
	}
	if limit > 0 {
		run.Source.Limit = limit
	}
	if threads > 0 {
		run.Runtime.Workers = threads
	}
	if batchSize > 0 {
		run.Runtime.BatchSize = batchSize
	}
	if acquireSecs > 0 {
		run.Runtime.AcquireTimeoutSeconds = acquireSecs
	}
	if storageKind != "" {
		run.Storage.Kind = storageKind
	}
	if run.Storage.Kind == "" {
		run.Storage.Kind = "postgres"
	}
	if dsn != "" {
		run.Storage.DB.DSN = dsn
	}
	if sqlitePath != "" {
		run.Storage.DB.Path = sqlitePath
	}
	fillFromEnv(&run)

	issues := config.ValidateRun(run)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("configuration is invalid")
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid")
		os.Exit(0)
	}

	setupMetrics(run, metricsFlg, pushGWURL, dogstatsdAddr, *verbose)

	var (
		dial  storage.Dialer
		setup storage.SchemaSetup
		store *sqlite.Store
	)
	switch run.Storage.Kind {
	case "postgres":
		dial = postgres.NewDialer(run.Storage.DB.PostgresDSN())
		setup = postgres.Schema{}
	case "sqlite":
		store = sqlite.NewStore(run.Storage.DB.Path)
		dial = store.Dial
		setup = sqlite.Schema{}
	}

	p, err := pipeline.New(pipeline.Config{
		Root:           run.Source.Root,
		Dial:           dial,
		Setup:          setup,
		Parser:         cadastral.Parser{},
		Workers:        run.Runtime.Workers,
		BatchSize:      run.Runtime.BatchSize,
		AcquireTimeout: time.Duration(run.Runtime.AcquireTimeoutSeconds) * time.Second,
		Limit:          run.Source.Limit,
	})
	if err != nil {
		fatalf("%v", err)
	}

	// Ctrl-C stops dispatching; in-flight files and buffered rows still
	// drain to storage before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	snap, err := p.Run(ctx)
	if store != nil {
		if cerr := store.Close(); cerr != nil {
			log.Printf("sqlite: close: %v", cerr)
		}
	}
	if err != nil {
		fatalf("%v", err)
	}

	printSummary(snap, time.Since(start), p.Interrupted())
	if snap[stats.FilesFailed] > 0 {
		os.Exit(1)
	}
}

// fillFromEnv applies the DB_* and metrics environment variables to fields
// still empty after flags and the run file.
func fillFromEnv(run *config.Run) {
	db := &run.Storage.DB
	if db.Host == "" {
		db.Host = os.Getenv("DB_HOST")
	}
	if db.Port == 0 {
		if p, err := strconv.Atoi(os.Getenv("DB_PORT")); err == nil {
			db.Port = p
		}
	}
	if db.Database == "" {
		db.Database = os.Getenv("DB_DATABASE")
	}
	if db.User == "" {
		db.User = os.Getenv("DB_USER")
	}
	if db.Password == "" {
		db.Password = os.Getenv("DB_PASSWORD")
	}
	if run.Metrics.PushgatewayURL == "" {
		run.Metrics.PushgatewayURL = os.Getenv("PUSHGATEWAY_URL")
	}
	if run.Metrics.DogstatsdAddr == "" {
		run.Metrics.DogstatsdAddr = os.Getenv("DOGSTATSD_ADDR")
	}
}

// setupMetrics decides the metrics backend: flag → env → run file → none.
func setupMetrics(run config.Run, backendFlg, pushGWURL, dogstatsdAddr string, verbose bool) {
	backendName := backendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	if backendName == "" {
		backendName = run.Metrics.Backend
	}

	jobName := run.Job
	if jobName == "" {
		jobName = "export_data"
	}

	switch backendName {
	case "pushgateway":
		gwURL := pushGWURL
		if gwURL == "" {
			gwURL = run.Metrics.PushgatewayURL
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend(jobName, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backendName, jobName)
		metrics.SetBackend(b)

	case "datadog":
		addr := dogstatsdAddr
		if addr == "" {
			addr = run.Metrics.DogstatsdAddr
		}
		if addr == "" {
			addr = "localhost:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "export_data.",
			GlobalTags: []string{"job:" + jobName},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: addr=%v, backend=%v, job_name=%v", addr, backendName, jobName)
		metrics.SetBackend(b)

	case "", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
}

// printSummary writes the end-of-run report in a fixed, grep-friendly layout.
func printSummary(snap map[string]int64, elapsed time.Duration, interrupted bool) {
	fmt.Println("==================================================")
	if interrupted {
		fmt.Println("RUN INTERRUPTED (partial results below)")
	}
	fmt.Printf("files processed: %d\n", snap[stats.FilesProcessed])
	fmt.Printf("files failed:    %d\n", snap[stats.FilesFailed])
	fmt.Printf("batches failed:  %d\n", snap[stats.BatchesFailed])
	for _, t := range schema.DependencyOrder() {
		fmt.Printf("%-14s inserted=%d skipped=%d\n",
			t, snap[stats.Inserted(t.String())], snap[stats.Skipped(t.String())])
	}
	fmt.Printf("elapsed: %s\n", elapsed.Truncate(time.Millisecond))
	fmt.Println("==================================================")
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
