// Command pdfreport reconciles each commune's scanned dossier PDFs with the
// PDFs its XML exports reference, and writes the result as a summary plus
// two CSV files.
//
// A delivery is one directory per commune: root/<commune>/xml holds the
// exports, root/<commune>/ho-so-quet holds the scans. The report answers the
// two questions asked of every delivery: which referenced scans are missing,
// and which delivered scans nothing references.
//
// Example usage:
//
//	pdfreport -xml-dir "/data/delivery-2026-08" -out reports
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/KhanhD1nh/export-data/internal/parser/cadastral"
	"github.com/KhanhD1nh/export-data/internal/report"
)

func main() {
	root := flag.String("xml-dir", "", "delivery root holding one directory per commune (required)")
	outDir := flag.String("out", "reports", "directory the report files are written to")
	flag.Parse()

	if *root == "" {
		fmt.Fprintln(os.Stderr, "usage: pdfreport -xml-dir <delivery root> [-out <dir>]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := &report.Builder{Parser: cadastral.Parser{}}
	communes, err := b.Build(ctx, *root)
	if err != nil {
		fatalf("pdfreport: %v", err)
	}
	if len(communes) == 0 {
		fatalf("pdfreport: no commune directories with an xml subdirectory under %s", *root)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fatalf("pdfreport: %v", err)
	}
	stamp := time.Now().Format("20060102_150405")
	summaryPath := filepath.Join(*outDir, "pdf_summary_"+stamp+".txt")
	matchedPath := filepath.Join(*outDir, "pdf_matched_"+stamp+".csv")
	unmatchedPath := filepath.Join(*outDir, "pdf_unmatched_"+stamp+".csv")

	if err := writeFile(summaryPath, communes, report.WriteSummary); err != nil {
		fatalf("pdfreport: %v", err)
	}
	if err := writeFile(matchedPath, communes, report.WriteMatchedCSV); err != nil {
		fatalf("pdfreport: %v", err)
	}
	if err := writeFile(unmatchedPath, communes, report.WriteUnmatchedCSV); err != nil {
		fatalf("pdfreport: %v", err)
	}

	if err := report.WriteSummary(os.Stdout, communes); err != nil {
		fatalf("pdfreport: %v", err)
	}
	fmt.Printf("\nreports written:\n  %s\n  %s\n  %s\n", summaryPath, matchedPath, unmatchedPath)
}

func writeFile(path string, communes []report.Commune, render func(w io.Writer, communes []report.Commune) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f, communes); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
