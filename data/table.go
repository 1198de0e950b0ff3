package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
)

// ErrUnknownColumn is returned when a column name is not part of the table.
var ErrUnknownColumn = errors.New("unknown column")

// Record is a single row keyed by column name.
type Record map[string]any

// Table is a row-oriented dataset with an ordered set of columns.
type Table struct {
	columns []string
	records []Record
}

// NewTable builds a table from column names and records. Records are copied,
// values missing from a record stay missing.
func NewTable(columns []string, records []Record) *Table {
	t := &Table{
		columns: append([]string(nil), columns...),
		records: make([]Record, len(records)),
	}
	for i, record := range records {
		t.records[i] = t.project(record, t.columns)
	}
	return t
}

func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

func (t *Table) Len() int {
	return len(t.records)
}

func (t *Table) HasColumn(name string) bool {
	return indexOf(t.columns, name) >= 0
}

// Row returns a copy of the i-th record.
func (t *Table) Row(i int) Record {
	return t.project(t.records[i], t.columns)
}

// Column returns the values of a column in row order.
func (t *Table) Column(name string) ([]any, error) {
	if !t.HasColumn(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	values := make([]any, len(t.records))
	for i, record := range t.records {
		values[i] = record[name]
	}
	return values, nil
}

// Select returns a new table restricted to the given columns in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	for _, name := range names {
		if !t.HasColumn(name) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}
	}
	return t.derive(names), nil
}

// Drop returns a new table without the given columns. Unknown names are ignored.
func (t *Table) Drop(names ...string) *Table {
	kept := make([]string, 0, len(t.columns))
	for _, column := range t.columns {
		if indexOf(names, column) < 0 {
			kept = append(kept, column)
		}
	}
	return t.derive(kept)
}

// Split shuffles rows with the given seed and returns train and test tables.
func (t *Table) Split(testRatio float64, seed int64) (train *Table, test *Table) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(len(t.records))

	split := int(float64(len(t.records)) * (1 - testRatio))
	train = &Table{columns: t.Columns()}
	test = &Table{columns: t.Columns()}
	for i, idx := range indices {
		if i < split {
			train.records = append(train.records, t.records[idx])
		} else {
			test.records = append(test.records, t.records[idx])
		}
	}
	return train, test
}

func (t *Table) derive(columns []string) *Table {
	out := &Table{
		columns: append([]string(nil), columns...),
		records: make([]Record, len(t.records)),
	}
	for i, record := range t.records {
		out.records[i] = t.project(record, columns)
	}
	return out
}

func (t *Table) project(record Record, columns []string) Record {
	out := make(Record, len(columns))
	for _, column := range columns {
		if value, ok := record[column]; ok {
			out[column] = value
		}
	}
	return out
}

// Float converts a numeric cell to float64. Strings are not coerced.
func Float(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func indexOf(values []string, name string) int {
	for i, value := range values {
		if value == name {
			return i
		}
	}
	return -1
}
