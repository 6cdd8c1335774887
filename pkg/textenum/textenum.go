// Package textenum maps enum values to display strings and back through a
// static table built once at package init.
package textenum

import (
	"fmt"
	"sort"
	"strings"
)

// Table is an immutable bidirectional mapping between values and names.
// Parsing is case-insensitive; names are returned as registered.
type Table[T comparable] struct {
	kind     string
	names    map[T]string
	values   map[string]T
	ordering []string
}

// New builds a table. kind names the enum in error messages. Duplicate names
// panic because tables are package-level constants.
func New[T comparable](kind string, names map[T]string) *Table[T] {
	t := &Table[T]{
		kind:   kind,
		names:  make(map[T]string, len(names)),
		values: make(map[string]T, len(names)),
	}
	for v, name := range names {
		key := strings.ToLower(name)
		if _, dup := t.values[key]; dup {
			panic(fmt.Sprintf("textenum: duplicate %s name %q", kind, name))
		}
		t.names[v] = name
		t.values[key] = v
		t.ordering = append(t.ordering, name)
	}
	sort.Strings(t.ordering)
	return t
}

// Name returns the display name for v.
func (t *Table[T]) Name(v T) (string, bool) {
	name, ok := t.names[v]
	return name, ok
}

// String returns the display name for v, or fallback when v is not in the table.
func (t *Table[T]) String(v T, fallback string) string {
	if name, ok := t.names[v]; ok {
		return name
	}
	return fallback
}

// Parse looks up a value by name.
func (t *Table[T]) Parse(name string) (T, error) {
	if v, ok := t.values[strings.ToLower(strings.TrimSpace(name))]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q (valid: %s)", t.kind, name, strings.Join(t.ordering, ", "))
}

// Names returns every registered name, sorted.
func (t *Table[T]) Names() []string {
	out := make([]string, len(t.ordering))
	copy(out, t.ordering)
	return out
}

// Marshal implements the body of encoding.TextMarshaler for a value.
func (t *Table[T]) Marshal(v T) ([]byte, error) {
	name, ok := t.names[v]
	if !ok {
		return nil, fmt.Errorf("invalid %s value %v", t.kind, v)
	}
	return []byte(name), nil
}
