// Package export renders tabular broadsheets to CSV and PDF.
package export

import "fmt"

// Dataset is a table with named columns. Rows are keyed by header.
type Dataset struct {
	Title   string
	Notes   []string
	Headers []string
	Rows    []map[string]string
}

func (d Dataset) validate() error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("dataset requires at least one header")
	}
	seen := make(map[string]struct{}, len(d.Headers))
	for _, header := range d.Headers {
		if _, dup := seen[header]; dup {
			return fmt.Errorf("duplicate header %q", header)
		}
		seen[header] = struct{}{}
	}
	return nil
}

func (d Dataset) record(row map[string]string) []string {
	out := make([]string, len(d.Headers))
	for i, header := range d.Headers {
		out[i] = row[header]
	}
	return out
}
