package models

import (
	"testing"
	"time"

	"github.com/caseflow/caseflow/internal/auth"
)

func TestActionKindForMethod(t *testing.T) {
	tests := []struct {
		method string
		want   ActionKind
	}{
		{"POST", ActionCreate},
		{"PUT", ActionUpdate},
		{"PATCH", ActionUpdate},
		{"DELETE", ActionDelete},
		{"GET", ActionOther},
		{"HEAD", ActionOther},
	}
	for _, tt := range tests {
		if got := ActionKindForMethod(tt.method); got != tt.want {
			t.Errorf("ActionKindForMethod(%q) = %q, want %q", tt.method, got, tt.want)
		}
	}
}

func TestFieldChange_HasChanged(t *testing.T) {
	tests := []struct {
		name     string
		old, new any
		want     bool
	}{
		{"differing strings", "a", "b", true},
		{"equal strings", "a", "a", false},
		{"nil to value", nil, "a", true},
		{"both nil", nil, nil, false},
		{"numeric across decode paths", int64(1), float64(1), false},
		{"equal maps", map[string]any{"k": "v"}, map[string]any{"k": "v"}, false},
		{"differing maps", map[string]any{"k": "v"}, map[string]any{"k": "w"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &FieldChange{OldValue: tt.old, NewValue: tt.new}
			if got := f.HasChanged(); got != tt.want {
				t.Errorf("HasChanged() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTenantGrant_Active(t *testing.T) {
	g := &TenantGrant{}
	if !g.Active() {
		t.Error("grant without RevokedAt should be active")
	}
	now := time.Now()
	g.RevokedAt = &now
	if g.Active() {
		t.Error("revoked grant should not be active")
	}
}

func TestTenantScopeImplementations(t *testing.T) {
	c := &Client{ID: "c1"}
	if id, ok := c.TenantScope(); !ok || id != "c1" {
		t.Errorf("Client.TenantScope() = (%q, %v), want (c1, true)", id, ok)
	}

	cf := &CaseFile{ClientID: "c2"}
	if id, ok := cf.TenantScope(); !ok || id != "c2" {
		t.Errorf("CaseFile.TenantScope() = (%q, %v), want (c2, true)", id, ok)
	}

	d := &Document{ClientID: "c3"}
	if id, ok := d.TenantScope(); !ok || id != "c3" {
		t.Errorf("Document.TenantScope() = (%q, %v), want (c3, true)", id, ok)
	}

	empty := &CaseFile{}
	if _, ok := empty.TenantScope(); ok {
		t.Error("empty CaseFile should not resolve a scope")
	}
}

func TestUser_ParsedRole(t *testing.T) {
	u := &User{Role: "manager"}
	if got := u.ParsedRole(); got != auth.RoleManager {
		t.Errorf("ParsedRole() = %v, want RoleManager", got)
	}
	u.Role = "nonsense"
	if got := u.ParsedRole(); got != auth.RoleUnknown {
		t.Errorf("ParsedRole() = %v, want RoleUnknown", got)
	}
}

func TestCaseFile_Snapshot(t *testing.T) {
	desc := "d"
	cf := &CaseFile{Title: "t", Status: "open", Description: &desc}
	snap := cf.Snapshot()
	if snap["title"] != "t" || snap["status"] != "open" || snap["description"] != "d" {
		t.Errorf("unexpected snapshot: %#v", snap)
	}
	if _, ok := snap["assigned_to"]; ok {
		t.Error("nil assigned_to should be absent from snapshot")
	}
}
