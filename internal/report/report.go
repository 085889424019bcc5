// Package report reconciles the scanned dossier PDFs delivered alongside a
// commune's XML exports with the PDFs those exports actually reference.
//
// Deliveries place scans under root/<commune>/ho-so-quet while the XML lives
// under root/<commune>/xml. Exporters and scanning teams drift apart, so a
// delivery routinely contains scans no XML points at, and XML rows pointing
// at scans that never arrived. The report makes both gaps visible per
// commune before ingestion results are trusted.
package report

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/KhanhD1nh/export-data/internal/schema"
	"github.com/KhanhD1nh/export-data/pkg/records"
)

// scansDirName is the per-commune directory holding scanned dossier PDFs.
const scansDirName = "ho-so-quet"

// parseWorkers bounds the concurrent XML parses within one commune.
const parseWorkers = 4

// FileParser extracts table rows from one XML export file.
type FileParser interface {
	Parse(path string) (records.Set, error)
}

// Reference is one PDF mention inside an XML export: the dossier row's url
// (or, failing that, its tepTin) reduced to a bare file name.
type Reference struct {
	Name    string // file name, the part of the url after the last slash
	URL     string // url as written in the XML
	XMLFile string // export file containing the reference
}

// Match pairs a referenced PDF name with the scan files carrying that name.
type Match struct {
	Name      string
	XMLFiles  []string // exports referencing the name
	DiskPaths []string // scan files with that name under ho-so-quet
}

// Commune is the reconciliation result for one commune directory.
type Commune struct {
	Name     string
	XMLFiles int // export files parsed

	References []Reference // every PDF mention, including repeats of a name

	Matched      []Match     // names both referenced and present on disk
	MissingScans []Reference // referenced but absent from ho-so-quet
	Unreferenced []Match     // present on disk but never referenced (XMLFiles empty)
}

// ReferencedNames is the number of distinct PDF names the commune's XML
// references.
func (c *Commune) ReferencedNames() int {
	seen := make(map[string]struct{})
	for _, r := range c.References {
		seen[r.Name] = struct{}{}
	}
	return len(seen)
}

// ScanNames is the number of distinct PDF names found under ho-so-quet.
func (c *Commune) ScanNames() int {
	return len(c.Matched) + len(c.Unreferenced)
}

// Builder walks a delivery root and produces one Commune per commune
// directory that has an xml subdirectory.
type Builder struct {
	Parser FileParser
}

// Build reconciles every commune under root. Commune directories without an
// xml subdirectory are skipped, matching what ingestion would scan. Parse
// failures fail the whole report; a report built over half-read XML would
// misclassify scans as unreferenced.
func (b *Builder) Build(ctx context.Context, root string) ([]Commune, error) {
	if b.Parser == nil {
		return nil, fmt.Errorf("report: Parser is required")
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("report: read root %s: %w", root, err)
	}

	var communes []Commune
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if info, err := os.Stat(filepath.Join(dir, "xml")); err != nil || !info.IsDir() {
			continue
		}
		c, err := b.buildCommune(ctx, dir)
		if err != nil {
			return nil, err
		}
		log.Printf("report: commune=%s xml=%d referenced=%d scans=%d matched=%d",
			c.Name, c.XMLFiles, c.ReferencedNames(), c.ScanNames(), len(c.Matched))
		communes = append(communes, *c)
	}
	return communes, nil
}

func (b *Builder) buildCommune(ctx context.Context, dir string) (*Commune, error) {
	c := &Commune{Name: filepath.Base(dir)}

	files, err := listFiles(filepath.Join(dir, "xml"), ".xml")
	if err != nil {
		return nil, fmt.Errorf("report: list xml for %s: %w", c.Name, err)
	}
	c.XMLFiles = len(files)

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parseWorkers)
	for _, path := range files {
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			set, err := b.Parser.Parse(path)
			if err != nil {
				return fmt.Errorf("report: parse %s: %w", path, err)
			}
			refs := collectReferences(set, path)
			mu.Lock()
			c.References = append(c.References, refs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(c.References, func(i, j int) bool {
		if c.References[i].Name != c.References[j].Name {
			return c.References[i].Name < c.References[j].Name
		}
		return c.References[i].XMLFile < c.References[j].XMLFile
	})

	scans, err := listPDFsByName(filepath.Join(dir, scansDirName))
	if err != nil {
		return nil, fmt.Errorf("report: list scans for %s: %w", c.Name, err)
	}

	c.Matched, c.MissingScans, c.Unreferenced = reconcile(c.References, scans)
	return c, nil
}

// collectReferences pulls PDF references out of the dossier rows of one
// parsed export. The url column names the scan; rows without a url fall
// back to tepTin, which some exporters fill instead.
func collectReferences(set records.Set, xmlFile string) []Reference {
	var refs []Reference
	for _, row := range set[schema.TableHoSo.String()] {
		loc, _ := row["url"].(string)
		if loc == "" {
			loc, _ = row["tepTin"].(string)
		}
		name := pdfName(loc)
		if name == "" {
			continue
		}
		refs = append(refs, Reference{Name: name, URL: loc, XMLFile: xmlFile})
	}
	return refs
}

// pdfName reduces a url or path to its file name and keeps it only when it
// names a PDF. Exports write forward slashes even for local paths.
func pdfName(loc string) string {
	if loc == "" {
		return ""
	}
	name := loc
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return ""
	}
	return name
}

// reconcile splits references and scans into matched, missing, and
// unreferenced. Names match exactly; the scanning teams copy file names from
// the exports, so case differences mean a genuinely different file.
func reconcile(refs []Reference, scans map[string][]string) (matched []Match, missing []Reference, unreferenced []Match) {
	byName := make(map[string][]string) // name -> referencing XML files
	urls := make(map[string]string)
	seenFile := make(map[[2]string]struct{})
	for _, r := range refs {
		if _, dup := seenFile[[2]string{r.Name, r.XMLFile}]; !dup {
			seenFile[[2]string{r.Name, r.XMLFile}] = struct{}{}
			byName[r.Name] = append(byName[r.Name], r.XMLFile)
		}
		urls[r.Name] = r.URL
	}

	for name, xmlFiles := range byName {
		paths, ok := scans[name]
		if !ok {
			continue
		}
		matched = append(matched, Match{Name: name, XMLFiles: xmlFiles, DiskPaths: paths})
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	seen := make(map[string]struct{})
	for _, r := range refs {
		if _, ok := scans[r.Name]; ok {
			continue
		}
		if _, dup := seen[r.Name]; dup {
			continue
		}
		seen[r.Name] = struct{}{}
		missing = append(missing, Reference{Name: r.Name, URL: urls[r.Name], XMLFile: r.XMLFile})
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].Name < missing[j].Name })

	for name, paths := range scans {
		if _, ok := byName[name]; ok {
			continue
		}
		unreferenced = append(unreferenced, Match{Name: name, DiskPaths: paths})
	}
	sort.Slice(unreferenced, func(i, j int) bool { return unreferenced[i].Name < unreferenced[j].Name })
	return matched, missing, unreferenced
}

// listPDFsByName walks dir recursively and groups PDF paths by file name.
// A missing scans directory is an empty delivery, not an error.
func listPDFsByName(dir string) (map[string][]string, error) {
	byName := make(map[string][]string)
	paths, err := listFiles(dir, ".pdf")
	if os.IsNotExist(err) {
		return byName, nil
	}
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		name := filepath.Base(p)
		byName[name] = append(byName[name], p)
	}
	return byName, nil
}

func listFiles(dir, ext string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ext) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
