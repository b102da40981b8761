// entity.go maps HTTP routes onto the (entity type, entity id) pair recorded
// with each action record, so that audit rows can be joined against the
// change history of the entity they touched.
package audit

import "strings"

// EntityRef identifies the domain entity a request operated on. Either field
// may be empty when the request did not target a concrete entity (e.g. a
// collection POST before the created id is known).
type EntityRef struct {
	Type string
	ID   string
}

// routeBinding declares how a registered route template maps onto an entity.
type routeBinding struct {
	entityType string
	idParam    string
}

// EntityResolver resolves entity references from route templates. Resolution
// is best effort and never fails: an unknown route falls back to path-segment
// heuristics, and an unmatchable path yields an empty ref.
type EntityResolver struct {
	routes map[string]routeBinding
}

// NewEntityResolver returns a resolver preloaded with the API's route
// bindings.
func NewEntityResolver() *EntityResolver {
	r := &EntityResolver{routes: make(map[string]routeBinding)}

	r.Register("/api/v1/cases/:id", "case", "id")
	r.Register("/api/v1/cases/:id/documents", "case", "id")
	r.Register("/api/v1/documents/:id", "document", "id")
	r.Register("/api/v1/admin/clients/:id", "client", "id")
	r.Register("/api/v1/admin/users/:id", "user", "id")
	r.Register("/api/v1/admin/grants/:id", "grant", "id")
	r.Register("/api/v1/admin/changes/:id", "change", "id")
	r.Register("/api/v1/admin/changes/:id/restore", "change", "id")
	r.Register("/api/v1/cases", "case", "")
	r.Register("/api/v1/admin/clients", "client", "")
	r.Register("/api/v1/admin/users", "user", "")
	r.Register("/api/v1/admin/grants", "grant", "")

	return r
}

// Register binds a route template to an entity type. idParam names the route
// parameter carrying the entity id; empty means the route has no id (e.g. a
// collection endpoint).
func (r *EntityResolver) Register(template, entityType, idParam string) {
	r.routes[template] = routeBinding{entityType: entityType, idParam: idParam}
}

// Resolve returns the entity reference for a request. template is the
// matched route template (gin's FullPath, empty for unmatched routes), path
// is the raw request path, and param looks up a route parameter by name.
func (r *EntityResolver) Resolve(template, path string, param func(string) string) EntityRef {
	if b, ok := r.routes[template]; ok {
		ref := EntityRef{Type: b.entityType}
		if b.idParam != "" && param != nil {
			ref.ID = param(b.idParam)
		}
		return ref
	}
	return refFromPath(path)
}

// refFromPath derives an entity ref from raw path segments for routes that
// were never registered: /api/v1/<collection>[/<id>]. The collection name is
// singularized by trimming a trailing "s".
func refFromPath(path string) EntityRef {
	segs := splitPath(path)
	if len(segs) < 3 || segs[0] != "api" {
		return EntityRef{}
	}
	// segs[1] is the version segment
	collection := segs[2]
	// Administrative routes nest one level deeper.
	idx := 3
	if collection == "admin" && len(segs) > 3 {
		collection = segs[3]
		idx = 4
	}
	ref := EntityRef{Type: strings.TrimSuffix(collection, "s")}
	if len(segs) > idx {
		ref.ID = segs[idx]
	}
	return ref
}

func splitPath(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
