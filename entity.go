package domain

import (
	"fmt"
	"time"
)

// AuditTrail records who created and last changed a persisted entity.
type AuditTrail struct {
	CreatedAt time.Time `json:"created_at,omitzero"`
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// IsZero reports whether nothing was recorded.
func (a AuditTrail) IsZero() bool {
	return a.CreatedAt.IsZero() && a.CreatedBy == "" && a.UpdatedAt.IsZero() && a.UpdatedBy == ""
}

// EntityNode is the identity surface of an Entity, independent of its type
// parameter. Persistence layers use it to walk mixed graphs.
type EntityNode interface {
	Node
	IsNew() bool
	IdentityKey() string
	AssignIdentityKey(key string) error
	Audit() AuditTrail
	RestoreAudit(audit AuditTrail)
	Touch(actor string, at time.Time)
}

// Entity is an Object with an identity. A nil identity means the entity has
// never been persisted.
//
//	type Invoice struct {
//		domain.Entity[Invoice]
//		number string
//	}
type Entity[T any] struct {
	Object
	id    *Identity[T]
	audit AuditTrail
}

// InitNew binds a new, unpersisted entity.
func (e *Entity[T]) InitNew(self any, provider ValidationEngineProvider, opts ...ObjectOption) error {
	e.id = nil
	e.audit = AuditTrail{}
	return e.Init(self, provider, opts...)
}

// InitPersisted binds an entity loaded from storage. The entity starts clean.
// A nil id fails with ErrMissingIdentity unless AllowMissingIdentity is set.
func (e *Entity[T]) InitPersisted(self any, id *Identity[T], audit AuditTrail, provider ValidationEngineProvider, opts ...ObjectOption) error {
	if id == nil || id.IsZero() {
		if !resolveObjectConfig(self, opts).allowMissingIdentity {
			return fmt.Errorf("%w: %s", ErrMissingIdentity, TypeName(self))
		}
		id = nil
	}
	if err := e.Init(self, provider, opts...); err != nil {
		return err
	}
	if id != nil {
		copied := *id
		e.id = &copied
	}
	e.audit = audit
	e.dirty = false
	e.containsNewData = false
	return nil
}

// ID returns a copy of the identity, or nil for a new entity.
func (e *Entity[T]) ID() *Identity[T] {
	if e.id == nil {
		return nil
	}
	copied := *e.id
	return &copied
}

// IsNew reports whether the entity has no identity yet.
func (e *Entity[T]) IsNew() bool {
	return e.id == nil
}

// IdentityKey returns the normalized identity key, empty for new entities.
func (e *Entity[T]) IdentityKey() string {
	if e.id == nil {
		return ""
	}
	return e.id.Key()
}

// AssignIdentity gives the entity its persisted identity, typically right
// after the first save.
func (e *Entity[T]) AssignIdentity(id Identity[T]) error {
	if id.IsZero() {
		return ErrInvalidIdentity
	}
	e.id = &id
	return nil
}

// AssignIdentityKey is AssignIdentity from a raw key.
func (e *Entity[T]) AssignIdentityKey(key string) error {
	id, err := NewIdentity[T](key)
	if err != nil {
		return err
	}
	return e.AssignIdentity(id)
}

// MarkNew drops the identity and resets the entity to the new state.
func (e *Entity[T]) MarkNew() {
	e.id = nil
	e.Object.MarkNew()
}

// Audit returns the audit trail.
func (e *Entity[T]) Audit() AuditTrail {
	return e.audit
}

// RestoreAudit replaces the audit trail, for example after loading.
func (e *Entity[T]) RestoreAudit(audit AuditTrail) {
	e.audit = audit
}

// Touch stamps the audit trail; the creation stamp is set only once.
func (e *Entity[T]) Touch(actor string, at time.Time) {
	if e.audit.CreatedAt.IsZero() {
		e.audit.CreatedAt = at
		e.audit.CreatedBy = actor
	}
	e.audit.UpdatedAt = at
	e.audit.UpdatedBy = actor
}
