// Package state persists whole domain graphs.
//
// A Store keeps one serialized snapshot per Ref and knows nothing about the
// domain model; MemoryStore and SQLStore (sqlite or postgres) implement it.
// An Envelope is the snapshot format: the JSON of the graph plus the
// lifecycle flags, identities and audit trails of every node, keyed by the
// node's graph path, which JSON alone cannot carry.
//
// Repository ties the two to the domain model:
//
//	Save:  validate -> assign ids -> stamp audit -> mark clean -> Store.Save -> activity
//	Load:  Store.Load -> decode -> domain.Reconstruct -> restore flags
//
// A failed Store.Save rolls the graph back to its state before the save.
//
// Optimistic concurrency uses Meta.ETag: a save or delete that names an ETag
// fails with ErrETagMismatch when the stored snapshot has moved on.
package state
