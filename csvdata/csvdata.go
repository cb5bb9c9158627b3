// Package csvdata loads CSV files into an in-memory table keyed by an item
// identifier column. A Table is the usual preloaded payload of a dataset:
// batches look their rows up by id, nobody writes to it after Load returns,
// and it is safe to share between goroutines.
package csvdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"
)

// Options tunes Load.
type Options struct {
	// Columns restricts which value columns are parsed. If empty, every
	// column except the id column is used.
	Columns []string

	// Lenient stores NaN for cells that do not parse as numbers instead of
	// failing the load.
	Lenient bool
}

// Table holds numeric rows keyed by item id, in file order.
type Table struct {
	// Pattern used to find the CSV files (e.g., "assets/train/*.csv")
	Pattern string

	idColumn string
	ids      []string
	columns  []string
	rows     map[string][]float64
}

// commonIDColumns are tried, in order, when no id column is named.
var commonIDColumns = []string{"id", "item_id", "itemid", "index"}

// Load reads every CSV file matching pattern. All files must share the
// header of the first one. Ids must be unique across files.
func Load(pattern, idColumn string, opts Options) (*Table, error) {
	csvPaths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob pattern %s: %w", pattern, err)
	}
	if len(csvPaths) == 0 {
		return nil, fmt.Errorf("no CSV files found matching pattern: %s", pattern)
	}

	n := expectedRows(csvPaths)
	t := &Table{
		Pattern: pattern,
		ids:     make([]string, 0, n),
		rows:    make(map[string][]float64, n),
	}
	var idCol int
	var valueCols []int
	for i, path := range csvPaths {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open CSV %s: %w", path, err)
		}
		reader := csv.NewReader(file)
		header, err := reader.Read()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
		}
		colIndex := normalizeHeader(header)

		if i == 0 {
			idCol, valueCols, err = t.initializeColumns(colIndex, header, idColumn, opts.Columns)
			if err != nil {
				file.Close()
				return nil, err
			}
		} else if idx, ok := colIndex[t.idColumn]; !ok || idx != idCol || !sameHeader(colIndex, t.columns, valueCols) {
			file.Close()
			return nil, fmt.Errorf("header of %s does not match %s", path, csvPaths[0])
		}

		n, err := t.readRows(reader, idCol, valueCols, opts.Lenient)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		klog.V(1).Infof("csvdata: loaded %s rows from %s", humanize.Comma(int64(n)), path)
	}
	return t, nil
}

// normalizeHeader maps trimmed, lower-cased column names to their position.
func normalizeHeader(header []string) map[string]int {
	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.TrimSpace(strings.ToLower(col))] = i
	}
	return colIndex
}

// initializeColumns determines the id and value columns from the first file
func (t *Table) initializeColumns(colIndex map[string]int, header []string, idColumn string, want []string) (int, []int, error) {
	idCol := -1
	if idColumn != "" {
		idx, ok := colIndex[strings.ToLower(idColumn)]
		if !ok {
			return 0, nil, fmt.Errorf("id column %q not found", idColumn)
		}
		idCol = idx
	} else {
		for _, name := range commonIDColumns {
			if idx, ok := colIndex[name]; ok {
				idCol = idx
				break
			}
		}
	}
	if idCol == -1 {
		return 0, nil, fmt.Errorf("could not find id column")
	}
	t.idColumn = strings.TrimSpace(strings.ToLower(header[idCol]))

	var valueCols []int
	if len(want) == 0 {
		for i, col := range header {
			if i == idCol {
				continue
			}
			t.columns = append(t.columns, strings.TrimSpace(strings.ToLower(col)))
			valueCols = append(valueCols, i)
		}
		return idCol, valueCols, nil
	}
	for _, col := range want {
		name := strings.TrimSpace(strings.ToLower(col))
		idx, ok := colIndex[name]
		if !ok {
			return 0, nil, fmt.Errorf("column %q not found", col)
		}
		t.columns = append(t.columns, name)
		valueCols = append(valueCols, idx)
	}
	return idCol, valueCols, nil
}

func sameHeader(colIndex map[string]int, columns []string, valueCols []int) bool {
	for i, name := range columns {
		if idx, ok := colIndex[name]; !ok || idx != valueCols[i] {
			return false
		}
	}
	return true
}

func (t *Table) readRows(reader *csv.Reader, idCol int, valueCols []int, lenient bool) (int, error) {
	n := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		id := strings.TrimSpace(record[idCol])
		if _, dup := t.rows[id]; dup {
			return n, fmt.Errorf("duplicate id %q", id)
		}
		row := make([]float64, len(valueCols))
		for i, col := range valueCols {
			if col >= len(record) {
				return n, fmt.Errorf("row %q has %d fields, expected column %d", id, len(record), col)
			}
			val, err := parseFloat(record[col])
			if err != nil {
				if !lenient {
					return n, fmt.Errorf("failed to parse %s of %q: %w", t.columns[i], id, err)
				}
				val = math.NaN()
			}
			row[i] = val
		}
		t.rows[id] = row
		t.ids = append(t.ids, id)
		n++
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.ids)
}

// IDs returns the row ids in file order.
func (t *Table) IDs() []string {
	out := make([]string, len(t.ids))
	copy(out, t.ids)
	return out
}

// Columns returns the value column names.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Row returns the values of id keyed by column name.
func (t *Table) Row(id string) (map[string]float64, bool) {
	vals, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	row := make(map[string]float64, len(vals))
	for i, col := range t.columns {
		row[col] = vals[i]
	}
	return row, true
}

// Value returns a single cell.
func (t *Table) Value(id, column string) (float64, bool) {
	vals, ok := t.rows[id]
	if !ok {
		return 0, false
	}
	for i, col := range t.columns {
		if col == column {
			return vals[i], true
		}
	}
	return 0, false
}
