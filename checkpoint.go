package domain

import "slices"

type checkpointer interface {
	checkpoint() func()
}

// Checkpoint remembers the state flags, identities, audit trails and deleted
// lists of a graph so a failed save can put them back.
type Checkpoint struct {
	restores []func()
}

// NewCheckpoint records every node reachable from root.
func NewCheckpoint(root Node) *Checkpoint {
	cp := &Checkpoint{}
	_ = Walk(root, func(v Visit) error {
		if holder, ok := v.Node.(Holder); ok {
			obj := holder.domainObject()
			state := obj.State()
			cp.restores = append(cp.restores, func() { obj.RestoreState(state) })
		}
		if node, ok := v.Node.(checkpointer); ok {
			cp.restores = append(cp.restores, node.checkpoint())
		}
		return nil
	})
	return cp
}

// Rollback restores the recorded state. Structural edits made after the
// checkpoint (added or removed items) are not undone.
func (c *Checkpoint) Rollback() {
	if c == nil {
		return
	}
	for i := len(c.restores) - 1; i >= 0; i-- {
		c.restores[i]()
	}
}

func (e *Entity[T]) checkpoint() func() {
	id, audit := e.id, e.audit
	return func() {
		e.id, e.audit = id, audit
	}
}

func (l *List[T]) checkpoint() func() {
	deleted := slices.Clone(l.deleted)
	return func() {
		l.deleted = deleted
	}
}

// MarkGraphClean cleans every node reachable from root and forgets the
// deleted items of every list, the state of a graph right after a save.
func MarkGraphClean(root Node) {
	var objects []*Object
	var lists []interface{ ClearDeleted() }
	_ = Walk(root, func(v Visit) error {
		if holder, ok := v.Node.(Holder); ok {
			objects = append(objects, holder.domainObject())
		}
		if list, ok := v.Node.(interface{ ClearDeleted() }); ok {
			lists = append(lists, list)
		}
		return nil
	})
	for _, list := range lists {
		list.ClearDeleted()
	}
	for _, obj := range objects {
		obj.MarkClean()
	}
}
