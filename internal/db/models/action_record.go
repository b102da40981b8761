// Package models - action_record.go defines the ActionRecord model: one row
// per audited HTTP request. Records are compliance-grade history — they are
// created once and never updated or deleted, so the actor reference is a
// nullable plain string that survives actor deletion.
package models

import "time"

// ActionKind classifies what an audited request did.
type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
	ActionOther  ActionKind = "other"
)

// ActionKindForMethod maps an HTTP method onto the action taxonomy.
func ActionKindForMethod(method string) ActionKind {
	switch method {
	case "POST":
		return ActionCreate
	case "PUT", "PATCH":
		return ActionUpdate
	case "DELETE":
		return ActionDelete
	default:
		return ActionOther
	}
}

// RequestContext is the fixed audit envelope stored with each ActionRecord.
// Body is the single open extension point and always holds the redacted,
// already-parsed request payload.
type RequestContext struct {
	Method        string `json:"method"`
	Path          string `json:"path"`
	Query         string `json:"query,omitempty"`
	TenantContext string `json:"tenant_context,omitempty"`
	Body          any    `json:"body,omitempty"`
}

// ActionRecord is one audited request. EntityType and EntityID are empty when
// route resolution failed; the record is persisted regardless.
type ActionRecord struct {
	ID         string
	ActorID    *string // nullable: actor may be deleted later
	Kind       ActionKind
	EntityType *string
	EntityID   *string
	Request    *RequestContext // JSONB
	IPAddress  *string
	UserAgent  *string
	StatusCode int
	ElapsedMS  int64
	CreatedAt  time.Time
}
