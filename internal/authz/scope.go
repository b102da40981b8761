// Package authz implements object-level authorization: tenant scope
// resolution over heterogeneous domain objects and the allow/deny decider
// built on top of it.
//
// Scope resolution is interface-first: domain types declare their tenant by
// implementing TenantScoped. The reflective strategies below it exist for
// values the type system cannot reach — decoded JSON payloads and legacy
// struct shapes — and are tried in a fixed order so resolution is
// deterministic regardless of object shape.
package authz

import "reflect"

// TenantScoped is the capability interface domain types implement to declare
// the client (tenant) they belong to. Implementations return ok=false when
// the object is not yet bound to a tenant.
type TenantScoped interface {
	TenantScope() (clientID string, ok bool)
}

// Field names probed, in order, for a directly attached tenant identifier.
var scopeIDFields = []string{"ClientID", "TenantID"}

// Field names probed for a relation to a tenant-shaped value (a struct or
// pointer with an ID field).
var scopeRelationFields = []string{"Client", "Tenant"}

// Field names probed for one level of indirection: a relation whose target is
// itself scope-resolvable.
var scopeIndirectFields = []string{"Case", "CaseFile", "Contract", "Staff", "Beneficiary", "Person"}

// Map keys probed on decoded JSON payloads.
var scopeMapKeys = []string{"client_id", "tenant_id"}
var scopeMapRelations = []string{"client", "tenant"}

// Resolve returns the client (tenant) identifier an object belongs to.
// Strategies, in order: the TenantScoped interface, a direct tenant-id field,
// a direct tenant relation, one hop through a named relation, and map-key
// probing for decoded payloads. Returns ok=false when nothing resolves;
// never panics, whatever the input.
func Resolve(obj any) (string, bool) {
	return resolve(obj, 1)
}

// maxHops bounds indirect resolution to a single level of indirection so
// resolution cost stays O(fields) and cyclic object graphs terminate.
func resolve(obj any, hops int) (string, bool) {
	if obj == nil {
		return "", false
	}

	if ts, ok := obj.(TenantScoped); ok {
		return ts.TenantScope()
	}

	if m, ok := obj.(map[string]any); ok {
		return resolveMap(m, hops)
	}

	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", false
	}

	for _, name := range scopeIDFields {
		if id, ok := stringField(v, name); ok {
			return id, true
		}
	}

	for _, name := range scopeRelationFields {
		f := v.FieldByName(name)
		if !f.IsValid() {
			continue
		}
		if id, ok := relationID(f); ok {
			return id, true
		}
	}

	if hops > 0 {
		for _, name := range scopeIndirectFields {
			f := v.FieldByName(name)
			if !f.IsValid() || !f.CanInterface() {
				continue
			}
			if f.Kind() == reflect.Pointer && f.IsNil() {
				continue
			}
			if id, ok := resolve(f.Interface(), hops-1); ok {
				return id, true
			}
		}
	}

	return "", false
}

func resolveMap(m map[string]any, hops int) (string, bool) {
	for _, key := range scopeMapKeys {
		if s, ok := m[key].(string); ok && s != "" {
			return s, true
		}
	}
	if hops > 0 {
		for _, key := range scopeMapRelations {
			if nested, ok := m[key].(map[string]any); ok {
				if s, ok := nested["id"].(string); ok && s != "" {
					return s, true
				}
			}
		}
	}
	return "", false
}

// stringField reads a non-empty exported string field by name.
func stringField(v reflect.Value, name string) (string, bool) {
	f := v.FieldByName(name)
	if !f.IsValid() || !f.CanInterface() {
		return "", false
	}
	if f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return "", false
		}
		f = f.Elem()
	}
	if f.Kind() != reflect.String {
		return "", false
	}
	if s := f.String(); s != "" {
		return s, true
	}
	return "", false
}

// relationID reads the ID field of a struct-shaped relation value.
func relationID(f reflect.Value) (string, bool) {
	if f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return "", false
		}
		f = f.Elem()
	}
	if f.Kind() != reflect.Struct {
		return "", false
	}
	return stringField(f, "ID")
}
