// Package tabular reads the delimited flow tables joined against stream
// rasters. A scientific-array reader can be plugged in for the
// multidimensional formats; without one those files degrade to a skip.
package tabular

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	pipeerrors "git.home.luguber.info/inful/tilepipe/internal/errors"
)

// Table is a simple column-named string table.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ArrayReader reads a multidimensional scientific array file into a flat
// table. Optional: a nil reader makes those formats unavailable.
type ArrayReader interface {
	Read(path string) (*Table, error)
}

// delimitedExtensions are the formats the built-in reader handles.
var delimitedExtensions = []string{".csv", ".txt"}

// arrayExtensions need an ArrayReader.
var arrayExtensions = []string{".nc", ".nc3", ".nc4"}

// Read loads a flow table, dispatching on extension. Array formats without a
// configured reader return a MissingDependencyError; unknown extensions a
// UnsupportedFormatError.
func Read(path string, arrayReader ArrayReader) (*Table, error) {
	lower := strings.ToLower(path)
	for _, ext := range delimitedExtensions {
		if strings.HasSuffix(lower, ext) {
			return readDelimited(path)
		}
	}
	for _, ext := range arrayExtensions {
		if strings.HasSuffix(lower, ext) {
			if arrayReader == nil {
				return nil, pipeerrors.MissingDependencyError("no scientific-array reader configured").
					WithContext("path", path)
			}
			return arrayReader.Read(path)
		}
	}
	return nil, pipeerrors.UnsupportedFormatError("unsupported flow file type").
		WithContext("path", path)
}

func readDelimited(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryFormat, pipeerrors.SeverityError, "parse delimited flow file").
			WithContext("path", path)
	}
	if len(records) == 0 {
		return &Table{}, nil
	}
	return &Table{Columns: records[0], Rows: records[1:]}, nil
}

// ColumnIndex returns the index of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// DedupeBy drops rows whose value in the named column repeats an earlier
// row's, and rows with any empty cell. First occurrence wins.
func (t *Table) DedupeBy(column string) *Table {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return t
	}
	seen := make(map[string]struct{}, len(t.Rows))
	out := &Table{Columns: t.Columns}
rows:
	for _, row := range t.Rows {
		for _, cell := range row {
			if cell == "" {
				continue rows
			}
		}
		if _, ok := seen[row[idx]]; ok {
			continue
		}
		seen[row[idx]] = struct{}{}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// Select returns a table containing only the named columns, in order.
func (t *Table) Select(columns []string) *Table {
	indices := make([]int, 0, len(columns))
	out := &Table{}
	for _, c := range columns {
		if i := t.ColumnIndex(c); i >= 0 {
			indices = append(indices, i)
			out.Columns = append(out.Columns, c)
		}
	}
	for _, row := range t.Rows {
		selected := make([]string, len(indices))
		for j, i := range indices {
			selected[j] = row[i]
		}
		out.Rows = append(out.Rows, selected)
	}
	return out
}

// IndexByID builds a row lookup keyed by the integer value of the named
// column. Rows whose key does not parse as an integer are skipped.
func (t *Table) IndexByID(column string) map[int64][]string {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return nil
	}
	m := make(map[int64][]string, len(t.Rows))
	for _, row := range t.Rows {
		id, err := strconv.ParseInt(strings.TrimSpace(row[idx]), 10, 64)
		if err != nil {
			continue
		}
		if _, ok := m[id]; !ok {
			m[id] = row
		}
	}
	return m
}

// Empty reports whether the table has no data rows.
func (t *Table) Empty() bool { return len(t.Rows) == 0 }
