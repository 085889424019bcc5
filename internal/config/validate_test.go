package config

import (
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func validRun() Run {
	return Run{
		Job:    "export-test",
		Source: Source{Root: "/data/exports"},
		Storage: Storage{
			Kind: "postgres",
			DB:   DBConfig{Database: "cadastral", User: "ingest"},
		},
		Runtime: RuntimeConfig{Workers: 4, BatchSize: 500},
	}
}

/*
TestValidateRun_ValidMinimal verifies that a well-formed run produces no
issues (errors or warnings).
*/
func TestValidateRun_ValidMinimal(t *testing.T) {
	issues := ValidateRun(validRun())
	if len(issues) != 0 {
		t.Fatalf("expected no issues; got: %+v", issues)
	}
}

/*
TestValidateRun_MissingJob verifies that an empty Job field produces a
SeverityWarning with path "job" rather than blocking the run.
*/
func TestValidateRun_MissingJob(t *testing.T) {
	r := validRun()
	r.Job = ""

	issues := ValidateRun(r)

	if !hasIssue(t, issues, SeverityWarning, "job", "job is empty") {
		t.Fatalf("expected SeverityWarning for job; got issues: %+v", issues)
	}
	if HasErrors(issues) {
		t.Fatalf("empty job must not be fatal; got issues: %+v", issues)
	}
}

func TestValidateRun_Source(t *testing.T) {
	r := validRun()
	r.Source.Root = "  "
	r.Source.Limit = -1

	issues := ValidateRun(r)

	if !hasIssue(t, issues, SeverityError, "source.root", "must not be empty") {
		t.Errorf("expected error for empty root; got: %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "source.limit", "negative") {
		t.Errorf("expected error for negative limit; got: %+v", issues)
	}
}

func TestValidateRun_Storage(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Run)
		sev     IssueSeverity
		path    string
		message string
	}{
		{
			name:    "empty kind",
			mutate:  func(r *Run) { r.Storage.Kind = "" },
			sev:     SeverityError,
			path:    "storage.kind",
			message: "must not be empty",
		},
		{
			name:    "unknown kind",
			mutate:  func(r *Run) { r.Storage.Kind = "oracle" },
			sev:     SeverityError,
			path:    "storage.kind",
			message: "unknown storage kind",
		},
		{
			name: "postgres without dsn or database",
			mutate: func(r *Run) {
				r.Storage.DB = DBConfig{}
			},
			sev:     SeverityError,
			path:    "storage.db",
			message: "requires either a dsn or a database",
		},
		{
			name: "dsn shadows discrete fields",
			mutate: func(r *Run) {
				r.Storage.DB.DSN = "postgres://u@h/db"
			},
			sev:     SeverityWarning,
			path:    "storage.db.dsn",
			message: "ignored",
		},
		{
			name: "sqlite without path",
			mutate: func(r *Run) {
				r.Storage.Kind = "sqlite"
				r.Storage.DB = DBConfig{}
			},
			sev:     SeverityError,
			path:    "storage.db.path",
			message: "requires a database file path",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := validRun()
			tc.mutate(&r)
			issues := ValidateRun(r)
			if !hasIssue(t, issues, tc.sev, tc.path, tc.message) {
				t.Fatalf("expected %s at %s containing %q; got: %+v",
					tc.sev, tc.path, tc.message, issues)
			}
		})
	}
}

func TestValidateRun_Runtime(t *testing.T) {
	r := validRun()
	r.Runtime = RuntimeConfig{Workers: -1, BatchSize: 1, AcquireTimeoutSeconds: -5}

	issues := ValidateRun(r)

	if !hasIssue(t, issues, SeverityError, "runtime.workers", "negative") {
		t.Errorf("expected error for negative workers; got: %+v", issues)
	}
	if !hasIssue(t, issues, SeverityWarning, "runtime.batch_size", "one transaction per row") {
		t.Errorf("expected warning for batch_size=1; got: %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "runtime.acquire_timeout_seconds", "negative") {
		t.Errorf("expected error for negative acquire timeout; got: %+v", issues)
	}
}

func TestValidateRun_Metrics(t *testing.T) {
	r := validRun()
	r.Metrics = Metrics{Backend: "pushgateway"}
	if !hasIssue(t, ValidateRun(r), SeverityError, "metrics.pushgateway_url", "requires a gateway URL") {
		t.Error("expected error for missing pushgateway URL")
	}

	r.Metrics = Metrics{Backend: "datadog"}
	if !hasIssue(t, ValidateRun(r), SeverityWarning, "metrics.dogstatsd_addr", "localhost:8125") {
		t.Error("expected warning for empty dogstatsd addr")
	}

	r.Metrics = Metrics{Backend: "graphite"}
	if !hasIssue(t, ValidateRun(r), SeverityError, "metrics.backend", "unknown metrics backend") {
		t.Error("expected error for unknown metrics backend")
	}

	r.Metrics = Metrics{Backend: "none"}
	if len(ValidateRun(r)) != 0 {
		t.Error("backend none must be accepted silently")
	}
}

func TestIssueError(t *testing.T) {
	iss := Issue{Severity: SeverityError, Path: "storage.kind", Message: "boom"}
	if got := iss.Error(); got != "error at storage.kind: boom" {
		t.Fatalf("Error() = %q", got)
	}
}
