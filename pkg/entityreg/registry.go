// Package entityreg is the static entity/column metadata registry.
//
// Entities are declared once via RegisterEntity and looked up by name
// thereafter; there is no runtime reflection on the sender's or the state
// transaction's hot path. A column may declare a nested type, which is
// flattened into a flat set of columns using a parent_child naming
// convention computed with strcase.
package entityreg

import (
	"fmt"
	"sync"

	"github.com/iancoleman/strcase"

	"github.com/LerianStudio/outboxtx/v2/pkg/outboxerr"
)

// Column describes one field of an entity.
type Column struct {
	Name          string
	IsInt         bool
	IsBigInt      bool
	IsJSON        bool
	IsPreciseDate bool
	// SoftDelete marks the single timestamp column whose non-null value
	// means the row is soft-deleted. At most one column per entity may set this.
	SoftDelete bool
	// Nested declares this column as a nested type; when set, Name is used
	// only as the parent segment for the parent_child flattening and the
	// column itself is never emitted directly.
	Nested *Entity
}

// Entity is a static declaration of a table/collection's shape.
type Entity struct {
	Name       string
	Table      string
	PrimaryKey []string
	Columns    []Column
}

// FlatColumn is one leaf column after nested-type flattening.
type FlatColumn struct {
	Name          string
	IsInt         bool
	IsBigInt      bool
	IsJSON        bool
	IsPreciseDate bool
	SoftDelete    bool
}

// Registry holds every registered entity, keyed by name.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*Entity
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*Entity)}
}

// RegisterEntity validates e and adds it to the registry. It fails with
// InvalidEntityDefinition when e has no table name, no primary key, more
// than one softDelete column (recursively), or a primary-key field that
// doesn't resolve to a declared flat column.
func (r *Registry) RegisterEntity(e Entity) error {
	if e.Name == "" {
		return outboxerr.InvalidEntityDefinition("entity must have a name")
	}

	if e.Table == "" {
		return outboxerr.InvalidEntityDefinition(fmt.Sprintf("entity %q must declare a table", e.Name))
	}

	if len(e.PrimaryKey) == 0 {
		return outboxerr.InvalidEntityDefinition(fmt.Sprintf("entity %q must declare a primary key", e.Name))
	}

	flat := FlattenColumns(&e)

	softDeleteCount := 0

	byName := make(map[string]bool, len(flat))
	for _, c := range flat {
		byName[c.Name] = true

		if c.SoftDelete {
			softDeleteCount++
		}
	}

	if softDeleteCount > 1 {
		return outboxerr.InvalidEntityDefinition(fmt.Sprintf("entity %q declares %d softDelete columns, at most one is allowed", e.Name, softDeleteCount))
	}

	for _, pk := range e.PrimaryKey {
		if !byName[pk] {
			return outboxerr.InvalidEntityDefinition(fmt.Sprintf("entity %q primary key column %q is not a declared column", e.Name, pk))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[e.Name]; exists {
		return outboxerr.InvalidEntityDefinition(fmt.Sprintf("entity %q is already registered", e.Name))
	}

	r.entities[e.Name] = &e

	return nil
}

// Lookup returns the registered entity by name.
func (r *Registry) Lookup(name string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[name]

	return e, ok
}

// MustLookup returns the registered entity by name, panicking if absent.
// Intended for call sites where the entity name is a compile-time constant,
// not caller input.
func (r *Registry) MustLookup(name string) *Entity {
	e, ok := r.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("entityreg: entity %q is not registered", name))
	}

	return e
}

// FlattenColumns expands e's columns into their leaf flat-column form,
// recursing into nested types and joining parent and child field names with
// the parent_child snake_case convention.
func FlattenColumns(e *Entity) []FlatColumn {
	return flattenPrefixed("", e.Columns)
}

func flattenPrefixed(prefix string, cols []Column) []FlatColumn {
	out := make([]FlatColumn, 0, len(cols))

	for _, c := range cols {
		name := strcase.ToSnake(c.Name)
		if prefix != "" {
			name = prefix + "_" + name
		}

		if c.Nested != nil {
			out = append(out, flattenPrefixed(name, c.Nested.Columns)...)
			continue
		}

		out = append(out, FlatColumn{
			Name:          name,
			IsInt:         c.IsInt,
			IsBigInt:      c.IsBigInt,
			IsJSON:        c.IsJSON,
			IsPreciseDate: c.IsPreciseDate,
			SoftDelete:    c.SoftDelete,
		})
	}

	return out
}
