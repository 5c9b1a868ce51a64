package schema

import (
	"github.com/flockql/flockql/internal/fault"
)

// Field is one column of a file's native schema.
type Field struct {
	Name     string
	Type     Type
	Optional bool
}

// FileSchema is the native schema of one resolved file.
type FileSchema struct {
	Path   string
	Fields []Field
}

// Column is one column of the unified schema. Nullable is true when any
// contributing file marks the column optional or omits it entirely.
type Column struct {
	Name     string
	Type     Type
	Nullable bool
}

// Unified is the reconciled schema spanning all files of one request.
// Column order follows first appearance across files in FileSet order.
type Unified struct {
	Columns []Column
}

// Column returns the unified column with the given name.
func (u Unified) Column(name string) (Column, bool) {
	for _, column := range u.Columns {
		if column.Name == name {
			return column, true
		}
	}
	return Column{}, false
}

// Rule aligns one unified column with a file's native column. A nil
// Source means the file lacks the column and nulls are materialized in
// its place at execution time.
type Rule struct {
	Column Column
	Source *Field
}

// Projection is the complete per-file mapping into the unified schema,
// one rule per unified column in unified column order.
type Projection struct {
	Path  string
	Rules []Rule
}

// Unify folds file schemas left-to-right into one unified schema and
// derives each file's projection. A column whose types cannot be
// reconciled across files is a hard failure, never a silent cast.
func Unify(files []FileSchema) (Unified, []Projection, error) {
	unified := Unified{}
	index := map[string]int{}

	for fileOrder, file := range files {
		seen := map[string]bool{}
		for _, field := range file.Fields {
			seen[field.Name] = true
			at, ok := index[field.Name]
			if !ok {
				index[field.Name] = len(unified.Columns)
				unified.Columns = append(unified.Columns, Column{
					Name: field.Name,
					Type: field.Type,
					// Absent from at least one earlier file means the
					// column must be null-padded there.
					Nullable: field.Optional || fileOrder > 0,
				})
				continue
			}
			merged, ok := Reconcile(unified.Columns[at].Type, field.Type)
			if !ok {
				return Unified{}, nil, fault.New(fault.KindSchemaConflict,
					"column %q: %s is incompatible with %s in %s",
					field.Name, unified.Columns[at].Type, field.Type, file.Path)
			}
			unified.Columns[at].Type = merged
			if field.Optional {
				unified.Columns[at].Nullable = true
			}
		}
		for at := range unified.Columns {
			if !seen[unified.Columns[at].Name] {
				unified.Columns[at].Nullable = true
			}
		}
	}

	projections := make([]Projection, 0, len(files))
	for _, file := range files {
		fields := map[string]Field{}
		for _, field := range file.Fields {
			fields[field.Name] = field
		}
		projection := Projection{Path: file.Path, Rules: make([]Rule, 0, len(unified.Columns))}
		for _, column := range unified.Columns {
			rule := Rule{Column: column}
			if field, ok := fields[column.Name]; ok {
				source := field
				rule.Source = &source
			}
			projection.Rules = append(projection.Rules, rule)
		}
		projections = append(projections, projection)
	}
	return unified, projections, nil
}
