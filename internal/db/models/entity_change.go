// Package models - entity_change.go defines the two lower tiers of the change
// history: EntityChange (whole-entity before/after snapshots) and FieldChange
// (per-field old/new values owned by exactly one EntityChange).
package models

import (
	"encoding/json"
	"reflect"
	"time"
)

// ChangeKind classifies a recorded transition.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// EntityChange is one recorded transition of a domain entity. At most one row
// may exist per (EntityType, EntityID, ChangedAt); a collision is surfaced as
// a conflict, never merged. Rows are immutable apart from soft delete/restore.
type EntityChange struct {
	ID         string
	EntityType string
	EntityID   string
	Kind       ChangeKind
	ChangedAt  time.Time
	ActorID    *string // plain string reference, survives actor deletion
	Reason     *string
	Before     map[string]any // JSONB snapshot, nil for creates
	After      map[string]any // JSONB snapshot, nil for deletes
	Metadata   map[string]any // JSONB
	Active     bool
	DeletedAt  *time.Time

	// Fields is populated by history queries that join the child rows.
	Fields []FieldChange
}

// FieldChange is one field-level transition owned by its parent EntityChange.
// Deleting or soft-deleting the parent cascades to its children.
type FieldChange struct {
	ID        string
	ChangeID  string
	Field     string
	OldValue  any // JSONB
	NewValue  any // JSONB
	Kind      ChangeKind
	DeletedAt *time.Time
}

// HasChanged reports whether the field actually changed value. It is derived,
// never stored: no-op rows are legitimately recorded for completeness, so
// callers must not assume it is true. Values are compared through a JSON
// round-trip so int64(1) and float64(1) from different decode paths agree.
func (f *FieldChange) HasChanged() bool {
	return !jsonEqual(f.OldValue, f.NewValue)
}

func jsonEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}
