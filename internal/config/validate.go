// This file adds a lightweight linter/validator for Run values. It performs
// static checks over a decoded Run and returns a list of issues (errors and
// warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Run.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "runtime.batch_size"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue in the slice is severity error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateRun performs static validation / linting of a Run.
//
// It does not mutate the run. Instead it returns a slice of Issue values;
// callers may decide whether to treat warnings as fatal or not.
func ValidateRun(r Run) []Issue {
	var issues []Issue

	if strings.TrimSpace(r.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "job",
			Message:  "job is empty; metrics from this run will carry the default job label",
		})
	}
	issues = append(issues, validateSource(r.Source)...)
	issues = append(issues, validateStorage(r.Storage)...)
	issues = append(issues, validateRuntime(r.Runtime)...)
	issues = append(issues, validateMetrics(r.Metrics)...)

	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Root) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.root",
			Message:  "source.root must not be empty",
		})
	}
	if s.Limit < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.limit",
			Message:  "limit must not be negative",
		})
	}

	return issues
}

// validateStorage validates storage configuration and DB settings.
func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
		return issues
	}

	switch s.Kind {
	case "postgres":
		db := s.DB
		if db.DSN == "" && strings.TrimSpace(db.Database) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.db",
				Message:  "postgres storage requires either a dsn or a database name",
			})
		}
		if db.DSN != "" && (db.Host != "" || db.Database != "" || db.User != "") {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "storage.db.dsn",
				Message:  "dsn is set; the discrete host/database/user fields are ignored",
			})
		}
	case "sqlite":
		if strings.TrimSpace(s.DB.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.db.path",
				Message:  "sqlite storage requires a database file path",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; expected postgres or sqlite", s.Kind),
		})
	}

	return issues
}

// validateRuntime validates RuntimeConfig for obvious misconfigurations
// (negative values, pathological batch sizes).
func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.workers",
			Message:  "workers must not be negative",
		})
	}
	if r.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  "batch_size must not be negative",
		})
	}
	if r.BatchSize == 1 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.batch_size",
			Message:  "batch_size=1 writes one transaction per row; throughput will suffer",
		})
	}
	if r.AcquireTimeoutSeconds < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.acquire_timeout_seconds",
			Message:  "acquire_timeout_seconds must not be negative",
		})
	}

	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "pushgateway backend requires a gateway URL",
			})
		}
	case "datadog":
		if strings.TrimSpace(m.DogstatsdAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.dogstatsd_addr",
				Message:  "dogstatsd_addr is empty; the client default (localhost:8125) will be used",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; expected pushgateway, datadog, or none", m.Backend),
		})
	}

	return issues
}
