// Package models - document.go defines the Document model for case
// attachments stored in a storage backend.
package models

import "time"

// Document is a file attached to a case. StoragePath is the backend key;
// Checksum is the SHA256 of the stored bytes.
type Document struct {
	ID          string
	CaseID      string
	ClientID    string
	FileName    string
	ContentType string
	StoragePath string
	SizeBytes   int64
	Checksum    string
	UploadedBy  string
	CreatedAt   time.Time
}

// TenantScope implements the authz capability interface.
func (d *Document) TenantScope() (string, bool) {
	return d.ClientID, d.ClientID != ""
}
