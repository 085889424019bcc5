// Package records defines the in-memory shape of data flowing through the
// pipeline: a Record is one row keyed by column name, and a Set groups the
// rows extracted from a single input file by target table.
//
// A Set is produced once per file by the parser and is read-only afterward;
// the batch accumulator consumes and discards it.
package records

// Record is a single row as a column name -> value mapping. Values are
// already coerced to their storage representation (string, int64, float64,
// bool; dates as formatted strings) or nil for absent fields.
type Record map[string]any

// Set maps a table name to the rows extracted for it from one input file.
type Set map[string][]Record

// Total returns the number of rows across all tables in the set.
func (s Set) Total() int {
	n := 0
	for _, rows := range s {
		n += len(rows)
	}
	return n
}
