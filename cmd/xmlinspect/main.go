// Command xmlinspect parses one cadastral XML export file and reports what
// would be ingested from it, without touching any database. It is the
// first tool to reach for when a file fails in a full run or when a new
// commune's exports look suspicious.
//
// Example usage:
//
//	# Human-readable row counts per table.
//	xmlinspect -i 00123/xml/hoso_001.xml
//
//	# Full extracted rows as JSON, e.g. to diff two exporter versions.
//	xmlinspect -i hoso_001.xml -json | jq '.thuadat[0]'
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/KhanhD1nh/export-data/internal/parser/cadastral"
	"github.com/KhanhD1nh/export-data/internal/schema"
)

func main() {
	input := flag.String("i", "", "XML file to inspect (required)")
	asJSON := flag.Bool("json", false, "print the extracted rows as JSON instead of a summary")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: xmlinspect -i <file.xml> [-json]")
		os.Exit(2)
	}

	set, err := cadastral.Parser{}.Parse(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "xmlinspect: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(set); err != nil {
			fmt.Fprintf(os.Stderr, "xmlinspect: encode: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("%s\n", *input)
	for _, t := range schema.DependencyOrder() {
		rows := set[t.String()]
		fmt.Printf("  %-14s %d rows\n", t, len(rows))
		if len(rows) > 0 {
			key := schema.Key(t)
			fmt.Printf("  %-14s first %s=%v\n", "", key, rows[0][key])
		}
	}
	fmt.Printf("  total: %d rows\n", set.Total())
}
