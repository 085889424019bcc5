// Package config defines the canonical, JSON-serializable configuration model
// for an ingestion run. It is intentionally small, explicit, and dependency-
// free so that a run can be loaded from disk (or assembled from flags) and
// passed through the program without additional glue code.
//
// Example (trimmed):
//
//	{
//	  "job":     "export-2026-08",
//	  "source":  { "root": "/data/exports", "limit": 0 },
//	  "storage": { "kind": "postgres", "db": { "host": "localhost", "database": "cadastral" } },
//	  "runtime": { "workers": 8, "batch_size": 500 },
//	  "metrics": { "backend": "pushgateway", "pushgateway_url": "http://localhost:9091" }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
)

// Run is the top-level object decoded from a run file or assembled by the CLI.
type Run struct {
	// Job names this run for logging and metrics labeling.
	Job string `json:"job"`

	Source  Source        `json:"source"`
	Storage Storage       `json:"storage"`
	Runtime RuntimeConfig `json:"runtime"`
	Metrics Metrics       `json:"metrics"`
}

// Source describes where the XML exports live.
type Source struct {
	// Root is the export directory; commune directories one level below it
	// hold the xml/ subdirectories to ingest.
	Root string `json:"root"`

	// Limit, when positive, caps the number of files processed. Used for
	// trial runs against a fresh database.
	Limit int `json:"limit"`
}

// RuntimeConfig controls concurrency and batching.
type RuntimeConfig struct {
	// Workers is the parse worker count. Zero means one per CPU.
	Workers int `json:"workers"`

	// BatchSize is the per-table flush threshold. Zero keeps the default.
	BatchSize int `json:"batch_size"`

	// AcquireTimeoutSeconds bounds each connection acquire from the pool.
	AcquireTimeoutSeconds int `json:"acquire_timeout_seconds"`
}

// Storage selects the database the rows are written to.
type Storage struct {
	// Kind selects the backend: "postgres" or "sqlite".
	Kind string `json:"kind"`

	DB DBConfig `json:"db"`
}

// DBConfig configures the selected backend. Postgres accepts either a full
// DSN or the discrete host fields; sqlite only uses Path.
type DBConfig struct {
	// DSN, when set, is used verbatim and the discrete fields are ignored.
	DSN string `json:"dsn"`

	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password"`

	// Path is the database file for the sqlite backend.
	Path string `json:"path"`
}

// Metrics selects the metrics backend for the run.
type Metrics struct {
	// Backend is "pushgateway", "datadog", or "none".
	Backend string `json:"backend"`

	PushgatewayURL string `json:"pushgateway_url"`
	DogstatsdAddr  string `json:"dogstatsd_addr"`
}

// Load reads and decodes a run file. Unknown fields are rejected so a typo in
// a config file fails loudly instead of silently falling back to defaults.
func Load(path string) (Run, error) {
	var r Run
	f, err := os.Open(path)
	if err != nil {
		return r, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return r, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return r, nil
}

// PostgresDSN returns the connection string for the postgres backend. An
// explicit DSN wins; otherwise one is assembled from the discrete fields.
func (db DBConfig) PostgresDSN() string {
	if db.DSN != "" {
		return db.DSN
	}
	host := db.Host
	if host == "" {
		host = "localhost"
	}
	port := db.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   "/" + db.Database,
	}
	if db.User != "" {
		if db.Password != "" {
			u.User = url.UserPassword(db.User, db.Password)
		} else {
			u.User = url.User(db.User)
		}
	}
	return u.String()
}
