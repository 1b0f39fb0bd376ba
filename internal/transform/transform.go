package transform

import (
	"fmt"
	"strings"

	"github.com/cyderes/dummy-etl/internal/models"
)

const pathSeparator = "."

// Projection selects, drops and renames flattened record fields.
type Projection struct {
	// Columns are the flattened source paths to select, in output order.
	Columns []string
	// Drop lists selected source paths removed after selection.
	Drop []string
	// Rename maps source paths to target field names. Unmapped paths keep their name.
	Rename map[string]string
}

// Table is the positional output of a Projection.
type Table struct {
	Columns []string
	Rows    []models.Row
}

// MissingFieldError reports a record lacking the parent object of a selected nested path.
type MissingFieldError struct {
	Index int
	Path  string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("record %d: missing nested object for %q", e.Index, e.Path)
}

// Fields returns the target field names produced by Apply, in order.
func (p Projection) Fields() []string {
	dropped := make(map[string]struct{}, len(p.Drop))
	for _, column := range p.Drop {
		dropped[column] = struct{}{}
	}

	fields := make([]string, 0, len(p.Columns))
	for _, column := range p.Columns {
		if _, ok := dropped[column]; ok {
			continue
		}
		if renamed, ok := p.Rename[column]; ok {
			column = renamed
		}
		fields = append(fields, column)
	}
	return fields
}

// Apply flattens every record and projects it onto Fields. A missing leaf becomes nil, while
// a missing or non-object parent of a nested path fails the whole transform.
func (p Projection) Apply(records []models.Record) (Table, error) {
	dropped := make(map[string]struct{}, len(p.Drop))
	for _, column := range p.Drop {
		dropped[column] = struct{}{}
	}
	kept := make([]string, 0, len(p.Columns))
	for _, column := range p.Columns {
		if _, ok := dropped[column]; !ok {
			kept = append(kept, column)
		}
	}

	table := Table{
		Columns: p.Fields(),
		Rows:    make([]models.Row, len(records)),
	}

	for i, record := range records {
		flat := Flatten(record)
		for _, column := range p.Columns {
			if err := checkParents(record, column); err != nil {
				return Table{}, &MissingFieldError{Index: i, Path: column}
			}
		}

		row := make(models.Row, len(kept))
		for j, column := range kept {
			row[j] = flat[column]
		}
		table.Rows[i] = row
	}

	return table, nil
}

// Flatten converts nested objects into dotted keys. Arrays and scalars are kept as values.
func Flatten(record map[string]any) map[string]any {
	flat := make(map[string]any, len(record))
	flattenInto(flat, "", record)
	return flat
}

func flattenInto(flat map[string]any, prefix string, object map[string]any) {
	for key, value := range object {
		path := key
		if prefix != "" {
			path = prefix + pathSeparator + key
		}

		if nested, ok := asObject(value); ok {
			flattenInto(flat, path, nested)
			continue
		}
		flat[path] = value
	}
}

// checkParents verifies that every parent segment of path resolves to an object.
func checkParents(record map[string]any, path string) error {
	segments := strings.Split(path, pathSeparator)
	current := record
	for _, segment := range segments[:len(segments)-1] {
		next, ok := asObject(current[segment])
		if !ok {
			return fmt.Errorf("missing %s", segment)
		}
		current = next
	}
	return nil
}

func asObject(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case models.Record:
		return typed, true
	default:
		return nil, false
	}
}
