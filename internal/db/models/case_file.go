// Package models - case_file.go defines the CaseFile model, the
// tenant-scoped entity whose lifecycle exercises the authorization and
// change-history core.
package models

import "time"

// CaseFile is a managed case belonging to exactly one client.
type CaseFile struct {
	ID          string
	ClientID    string
	Title       string
	Status      string // open | in_progress | closed
	Description *string
	AssignedTo  *string // user id
	CreatedBy   string  // user id; owner for write checks
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TenantScope implements the authz capability interface.
func (c *CaseFile) TenantScope() (string, bool) {
	return c.ClientID, c.ClientID != ""
}

// Snapshot renders the case as a change-history snapshot. Keys are the
// wire/field names used by FieldChange rows. The tenant scope rides along so
// history rows stay scope-resolvable on their own.
func (c *CaseFile) Snapshot() map[string]any {
	m := map[string]any{
		"client_id": c.ClientID,
		"title":     c.Title,
		"status":    c.Status,
	}
	if c.Description != nil {
		m["description"] = *c.Description
	}
	if c.AssignedTo != nil {
		m["assigned_to"] = *c.AssignedTo
	}
	return m
}
