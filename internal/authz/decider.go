// decider.go implements the allow/deny predicate over (actor, action,
// object). The decider is pure apart from grant lookups: it holds no mutable
// state and is safe to share across concurrent requests.
package authz

import (
	"context"
	"log/slog"
	"reflect"
	"sync"

	"github.com/caseflow/caseflow/internal/auth"
)

// Actor is the authenticated principal a decision is made for.
type Actor struct {
	ID            string
	Role          auth.Role
	Authenticated bool
}

// GrantSource answers grant-existence questions; implemented by the tenant
// grant repository. Only unrevoked grants count.
type GrantSource interface {
	// HasActiveGrant reports whether the actor holds any active grant for
	// the client.
	HasActiveGrant(ctx context.Context, actorID, clientID string) (bool, error)
	// HasManagerGrant reports whether the actor holds an active
	// manager-level grant for the client.
	HasManagerGrant(ctx context.Context, actorID, clientID string) (bool, error)
}

// UnscopedPolicy controls the decision for objects with no resolvable tenant
// scope. The historical behavior is allow; deny is available for deployments
// that want scope-less objects locked down.
type UnscopedPolicy string

const (
	UnscopedAllow UnscopedPolicy = "allow"
	UnscopedDeny  UnscopedPolicy = "deny"
)

// Field names conventionally holding the owning actor's id.
var ownerFields = []string{"CreatedBy", "OwnerID", "AssignedTo"}
var ownerMapKeys = []string{"created_by", "owner_id", "assigned_to"}

// Decider decides read and write access for domain objects.
type Decider struct {
	grants   GrantSource
	unscoped UnscopedPolicy
	resolve  func(any) (string, bool)

	warnUnscoped sync.Once
}

// NewDecider builds a Decider. An empty policy defaults to UnscopedAllow.
func NewDecider(grants GrantSource, unscoped UnscopedPolicy) *Decider {
	if unscoped == "" {
		unscoped = UnscopedAllow
	}
	return &Decider{
		grants:   grants,
		unscoped: unscoped,
		resolve:  Resolve,
	}
}

// CanRead reports whether the actor may read the object. Grant lookup
// failures deny and return the error: an indeterminate authorization check is
// never downgraded to allow.
func (d *Decider) CanRead(ctx context.Context, actor Actor, obj any) (bool, error) {
	if !actor.Authenticated {
		return false, nil
	}
	if actor.Role.Elevated() {
		return true, nil
	}

	clientID, ok := d.resolve(obj)
	if !ok {
		return d.decideUnscoped(), nil
	}

	return d.grants.HasActiveGrant(ctx, actor.ID, clientID)
}

// CanWrite reports whether the actor may perform a state-changing action on
// the object. Read access is necessary but not sufficient: the actor must
// additionally own the object, hold an elevated role, or hold a
// manager-level grant for the object's tenant.
func (d *Decider) CanWrite(ctx context.Context, actor Actor, action string, obj any) (bool, error) {
	allowed, err := d.CanRead(ctx, actor, obj)
	if err != nil || !allowed {
		return false, err
	}
	if actor.Role.Elevated() {
		return true, nil
	}
	if isOwner(actor.ID, obj) {
		return true, nil
	}

	clientID, ok := d.resolve(obj)
	if !ok {
		// Read already passed the unscoped policy; without a scope there
		// is no grant to check, so the same policy decides the write.
		return d.decideUnscoped(), nil
	}

	return d.grants.HasManagerGrant(ctx, actor.ID, clientID)
}

func (d *Decider) decideUnscoped() bool {
	if d.unscoped == UnscopedDeny {
		return false
	}
	d.warnUnscoped.Do(func() {
		slog.Warn("authz: allowing access to object with no resolvable tenant scope (unscoped_policy=allow)")
	})
	return true
}

// isOwner probes the object for a conventionally named owner field matching
// the actor's id.
func isOwner(actorID string, obj any) bool {
	if actorID == "" || obj == nil {
		return false
	}

	if m, ok := obj.(map[string]any); ok {
		for _, key := range ownerMapKeys {
			if s, ok := m[key].(string); ok && s == actorID {
				return true
			}
		}
		return false
	}

	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return false
	}
	for _, name := range ownerFields {
		if s, ok := stringField(v, name); ok && s == actorID {
			return true
		}
	}
	return false
}
