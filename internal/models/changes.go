package models

import "sort"

// FieldChange holds the value of a field before and after an update.
type FieldChange struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// FieldChanges maps column names to their changes.
type FieldChanges map[string]FieldChange

// Has reports whether field changed.
func (c FieldChanges) Has(field string) bool {
	_, ok := c[field]
	return ok
}

// Fields returns the changed column names in stable order.
func (c FieldChanges) Fields() []string {
	fields := make([]string, 0, len(c))
	for field := range c {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// UpsertResult is the outcome of a create-or-update against the store.
type UpsertResult[T any] struct {
	Entity  *T
	Created bool
	Changes FieldChanges
}

// Changed reports whether an existing row was modified.
func (r UpsertResult[T]) Changed() bool {
	return len(r.Changes) > 0
}
