// Package domain implements a stateful domain-object graph engine.
//
// Entities embed Object (or Entity[T]) and track their own dirty, new,
// deleted, valid and contains-new-data state. Child fields are declared once
// per type through DeclareChildren and wired per instance by a
// ChildrenManager, so aggregate queries such as IsDirty and IsValid always
// reflect the live shape of the graph. List[T] holds stateful children with
// deferred deletion and identity-keyed merging.
//
// Data flow:
//
//	constructor -> Object.Init -> ChildrenManager hooks -> setters -> rules -> events
//
// Rule evaluation is delegated to a ValidationEngineProvider (see the rules
// package for expr, CEL and struct-tag implementations). Graphs decoded from a
// serialized form must be passed through Reconstruct before use; the
// validation engine and event subscribers are never serialized.
package domain
