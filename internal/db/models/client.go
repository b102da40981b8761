// Package models - client.go defines the Client (tenant) model.
package models

import "time"

// Client is a tenant: the partition unit for all scope-based access checks.
type Client struct {
	ID        string
	Name      string
	Code      string // short human reference, unique
	Notes     *string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantScope implements the authz capability interface; a client is its own
// scope.
func (c *Client) TenantScope() (string, bool) {
	return c.ID, c.ID != ""
}
