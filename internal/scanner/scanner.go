// Package scanner locates the XML input files for a run.
//
// Deliveries arrive as one directory per commune, each holding an "xml"
// subdirectory with the cadastral export files. Only those "xml"
// subdirectories are scanned; sibling material (scans, PDFs) is ignored.
package scanner

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
)

// defaultListWorkers bounds the parallel per-directory file listing.
const defaultListWorkers = 4

// XMLDirScanner enumerates *.xml files under directories named "xml" found
// one level below the root (root/<commune>/xml/...).
type XMLDirScanner struct {
	// ListWorkers bounds the number of directories listed concurrently.
	// Zero means a small default.
	ListWorkers int
}

// Enumerate returns the paths of all XML files found for root. Discovery
// order is not significant; the result is sorted for reproducible logs.
func (s *XMLDirScanner) Enumerate(ctx context.Context, root string) ([]string, error) {
	dirs, err := s.findXMLDirs(root)
	if err != nil {
		return nil, err
	}
	log.Printf("scanner: root=%s xml_dirs=%d", root, len(dirs))

	workers := s.ListWorkers
	if workers <= 0 {
		workers = defaultListWorkers
	}

	var (
		mu    sync.Mutex
		files []string
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, dir := range dirs {
		dir := dir
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found, err := listXMLFiles(dir)
			if err != nil {
				return fmt.Errorf("scanner: list %s: %w", dir, err)
			}
			mu.Lock()
			files = append(files, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(files)
	log.Printf("scanner: found %d xml files", len(files))
	return files, nil
}

// findXMLDirs checks each immediate subdirectory of root for an "xml" child.
// Contents are not read here; listing happens later, in parallel.
func (s *XMLDirScanner) findXMLDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scanner: read root %s: %w", root, err)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		xmlDir := filepath.Join(root, e.Name(), "xml")
		info, err := os.Stat(xmlDir)
		if err != nil || !info.IsDir() {
			continue
		}
		dirs = append(dirs, xmlDir)
	}
	return dirs, nil
}

func listXMLFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".xml") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
