package report

import (
	"encoding/csv"
	"fmt"
	"io"
)

// utf8BOM prefixes the CSV outputs so spreadsheet tools decode the
// Vietnamese commune and file names correctly.
const utf8BOM = "\uFEFF"

// WriteSummary renders the per-commune totals and the delivery-wide rollup
// as plain text.
func WriteSummary(w io.Writer, communes []Commune) error {
	var totalXML, totalRefs, totalScans, totalMatched int
	for _, c := range communes {
		totalXML += c.XMLFiles
		totalRefs += c.ReferencedNames()
		totalScans += c.ScanNames()
		totalMatched += len(c.Matched)
	}

	if _, err := fmt.Fprintf(w, "communes: %d\nxml files: %d\npdfs referenced: %d\npdfs on disk: %d\nmatched: %d\n",
		len(communes), totalXML, totalRefs, totalScans, totalMatched); err != nil {
		return err
	}
	if totalRefs > 0 {
		if _, err := fmt.Fprintf(w, "match rate: %.1f%%\n", float64(totalMatched)/float64(totalRefs)*100); err != nil {
			return err
		}
	}

	for _, c := range communes {
		if _, err := fmt.Fprintf(w, "\n%s\n  xml files: %d\n  pdfs referenced: %d\n  pdfs on disk: %d\n  matched: %d\n",
			c.Name, c.XMLFiles, c.ReferencedNames(), c.ScanNames(), len(c.Matched)); err != nil {
			return err
		}
		if n := c.ReferencedNames(); n > 0 {
			if _, err := fmt.Fprintf(w, "  match rate: %.1f%%\n", float64(len(c.Matched))/float64(n)*100); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteMatchedCSV emits one row per (commune, pdf, referencing xml, scan
// path) combination for the PDFs found on disk.
func WriteMatchedCSV(w io.Writer, communes []Commune) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"commune", "pdf_name", "xml_file", "scan_path"}); err != nil {
		return err
	}
	for _, c := range communes {
		for _, m := range c.Matched {
			for _, xmlFile := range m.XMLFiles {
				for _, path := range m.DiskPaths {
					if err := cw.Write([]string{c.Name, m.Name, xmlFile, path}); err != nil {
						return err
					}
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteUnmatchedCSV emits the two failure directions: referenced PDFs with
// no scan on disk, and scans on disk no XML references.
func WriteUnmatchedCSV(w io.Writer, communes []Commune) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"commune", "pdf_name", "url", "xml_file", "scan_path", "problem"}); err != nil {
		return err
	}
	for _, c := range communes {
		for _, r := range c.MissingScans {
			if err := cw.Write([]string{c.Name, r.Name, r.URL, r.XMLFile, "", "missing scan"}); err != nil {
				return err
			}
		}
		for _, m := range c.Unreferenced {
			for _, path := range m.DiskPaths {
				if err := cw.Write([]string{c.Name, m.Name, "", "", path, "unreferenced scan"}); err != nil {
					return err
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
