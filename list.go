package domain

import (
	"encoding/json"
	"fmt"
	"iter"
	"reflect"
)

// Item is the constraint on List elements: pointers to types embedding
// Object (or Entity).
type Item interface {
	Node
	Holder
}

// ListOption configures a List.
type ListOption[T Item] func(*List[T])

// AllowNew toggles AddNew and merge additions. Enabled by default.
func AllowNew[T Item](allowed bool) ListOption[T] {
	return func(l *List[T]) { l.denyNew = !allowed }
}

// AllowRemove toggles RemoveAt, Remove, Clear and merge removals. Enabled by
// default.
func AllowRemove[T Item](allowed bool) ListOption[T] {
	return func(l *List[T]) { l.denyRemove = !allowed }
}

// AllowEdit toggles every insertion and replacement. Enabled by default.
func AllowEdit[T Item](allowed bool) ListOption[T] {
	return func(l *List[T]) { l.denyEdit = !allowed }
}

// WithFactory sets the constructor used by AddNew and Merge.
func WithFactory[T Item](factory func() (T, error)) ListOption[T] {
	return func(l *List[T]) { l.factory = factory }
}

// List is an observable collection of stateful children with deferred
// deletion: removed items move to Deleted until the list is cleaned. The
// zero value is an empty list allowing every operation.
type List[T Item] struct {
	items   []T
	deleted []T
	hooks   map[*Object][]Subscription
	parent  any

	denyNew    bool
	denyRemove bool
	denyEdit   bool
	factory    func() (T, error)
	muted      bool
	quiet      int
	provider   ValidationEngineProvider

	listChanged       handlerList[ListChangedEvent]
	collectionChanged handlerList[CollectionChangedEvent]
	childChanged      handlerList[ChildChangedEvent]
}

// NewList builds an empty list.
func NewList[T Item](opts ...ListOption[T]) *List[T] {
	l := &List[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Configure applies options to an existing list, for example after decoding.
func (l *List[T]) Configure(opts ...ListOption[T]) {
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
}

// AllowsNew reports the AllowNew policy.
func (l *List[T]) AllowsNew() bool { return !l.denyNew }

// AllowsRemove reports the AllowRemove policy.
func (l *List[T]) AllowsRemove() bool { return !l.denyRemove }

// AllowsEdit reports the AllowEdit policy.
func (l *List[T]) AllowsEdit() bool { return !l.denyEdit }

// Len returns the number of visible items.
func (l *List[T]) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}

// At returns the visible item at index.
func (l *List[T]) At(index int) (T, bool) {
	var zero T
	if l == nil || index < 0 || index >= len(l.items) {
		return zero, false
	}
	return l.items[index], true
}

// Items returns a copy of the visible items.
func (l *List[T]) Items() []T {
	if l == nil {
		return nil
	}
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

// All iterates the visible items with their index.
func (l *List[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i, item := range l.Items() {
			if !yield(i, item) {
				return
			}
		}
	}
}

// IndexOf returns the visible index of item, or -1.
func (l *List[T]) IndexOf(item T) int {
	if l == nil || isNilItem(item) {
		return -1
	}
	target := item.domainObject()
	for i, candidate := range l.items {
		if candidate.domainObject() == target {
			return i
		}
	}
	return -1
}

// Deleted returns a copy of the items removed during this session.
func (l *List[T]) Deleted() []T {
	if l == nil {
		return nil
	}
	out := make([]T, len(l.deleted))
	copy(out, l.deleted)
	return out
}

// ClearDeleted forgets the deleted items, normally after they were persisted.
func (l *List[T]) ClearDeleted() {
	l.deleted = nil
}

// MarkClean forgets deleted items and cleans every visible item (not
// recursively).
func (l *List[T]) MarkClean() {
	l.ClearDeleted()
	for _, item := range l.items {
		item.domainObject().MarkClean()
	}
}

// SetRaiseEvents turns list notifications on or off.
func (l *List[T]) SetRaiseEvents(raise bool) {
	l.muted = !raise
}

// RaisesEvents reports whether list notifications are raised.
func (l *List[T]) RaisesEvents() bool {
	return !l.muted && l.quiet == 0
}

func (l *List[T]) suspendEvents() (resume func()) {
	l.quiet++
	return func() { l.quiet-- }
}

// Add appends item.
func (l *List[T]) Add(item T) error {
	return l.Insert(len(l.items), item)
}

// Insert places item at index. An item currently held in Deleted is restored.
func (l *List[T]) Insert(index int, item T) error {
	if l.denyEdit {
		return ErrEditNotAllowed
	}
	if isNilItem(item) {
		return fmt.Errorf("%w: list item", ErrMissingDependency)
	}
	if index < 0 || index > len(l.items) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	if l.IndexOf(item) >= 0 {
		return ErrDuplicateItem
	}
	l.undelete(item)
	l.items = append(l.items, item)
	copy(l.items[index+1:], l.items[index:])
	l.items[index] = item
	l.hook(item)
	l.raiseList(ListChangedEvent{Source: l, Type: ListItemAdded, NewIndex: index, OldIndex: -1, Item: item})
	l.raiseCollection(CollectionChangedEvent{Source: l, Action: CollectionAdd, NewItems: []any{item}, NewIndex: index, OldIndex: -1})
	return nil
}

func (l *List[T]) undelete(item T) {
	target := item.domainObject()
	for i, candidate := range l.deleted {
		if candidate.domainObject() == target {
			l.deleted = append(l.deleted[:i:i], l.deleted[i+1:]...)
			target.markUndeleted()
			return
		}
	}
}

// AddNew creates an item through the factory and appends it.
func (l *List[T]) AddNew() (T, error) {
	var zero T
	if l.denyNew {
		return zero, ErrNewNotAllowed
	}
	if l.factory == nil {
		return zero, ErrNoFactory
	}
	item, err := l.factory()
	if err != nil {
		return zero, err
	}
	if err := l.Add(item); err != nil {
		return zero, err
	}
	return item, nil
}

// AddRange appends items. With raiseResetAsOneEvent per-item notifications
// are replaced by a single reset.
func (l *List[T]) AddRange(items []T, raiseResetAsOneEvent bool) error {
	if raiseResetAsOneEvent {
		l.quiet++
		defer func() {
			l.quiet--
			l.raiseReset()
		}()
	}
	for _, item := range items {
		if err := l.Add(item); err != nil {
			return err
		}
	}
	return nil
}

// Set replaces the item at index; the old item moves to Deleted.
func (l *List[T]) Set(index int, item T) error {
	if l.denyEdit {
		return ErrEditNotAllowed
	}
	if isNilItem(item) {
		return fmt.Errorf("%w: list item", ErrMissingDependency)
	}
	if index < 0 || index >= len(l.items) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	old := l.items[index]
	if old.domainObject() == item.domainObject() {
		return nil
	}
	if l.IndexOf(item) >= 0 {
		return ErrDuplicateItem
	}
	l.retire(old)
	l.undelete(item)
	l.items[index] = item
	l.hook(item)
	l.raiseList(ListChangedEvent{Source: l, Type: ListItemDeleted, NewIndex: -1, OldIndex: index, Item: old})
	l.raiseList(ListChangedEvent{Source: l, Type: ListItemAdded, NewIndex: index, OldIndex: -1, Item: item})
	l.raiseCollection(CollectionChangedEvent{Source: l, Action: CollectionRemove, OldItems: []any{old}, NewIndex: -1, OldIndex: index})
	l.raiseCollection(CollectionChangedEvent{Source: l, Action: CollectionAdd, NewItems: []any{item}, NewIndex: index, OldIndex: -1})
	return nil
}

// RemoveAt removes the item at index and moves it to Deleted.
func (l *List[T]) RemoveAt(index int) (T, error) {
	var zero T
	if l.denyRemove {
		return zero, ErrRemoveNotAllowed
	}
	if index < 0 || index >= len(l.items) {
		return zero, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	item := l.items[index]
	l.items = append(l.items[:index:index], l.items[index+1:]...)
	l.retire(item)
	l.raiseList(ListChangedEvent{Source: l, Type: ListItemDeleted, NewIndex: -1, OldIndex: index, Item: item})
	l.raiseCollection(CollectionChangedEvent{Source: l, Action: CollectionRemove, OldItems: []any{item}, NewIndex: -1, OldIndex: index})
	return item, nil
}

// Remove removes item if present and reports whether it was.
func (l *List[T]) Remove(item T) (bool, error) {
	index := l.IndexOf(item)
	if index < 0 {
		return false, nil
	}
	if _, err := l.RemoveAt(index); err != nil {
		return false, err
	}
	return true, nil
}

// Clear removes every visible item and raises a single reset.
func (l *List[T]) Clear() error {
	if l.denyRemove {
		return ErrRemoveNotAllowed
	}
	items := l.items
	l.items = nil
	for _, item := range items {
		l.retire(item)
	}
	l.raiseReset()
	return nil
}

func (l *List[T]) retire(item T) {
	l.unhook(item)
	if item.Parent() == any(l) {
		item.SetParent(nil)
	}
	item.domainObject().MarkDeleted()
	l.deleted = append(l.deleted, item)
}

func (l *List[T]) hook(item T) {
	obj := item.domainObject()
	l.unhook(item)
	obj.MarkAsChild()
	item.SetParent(l)
	if l.provider != nil && obj.provider == nil {
		item.SetValidationEngine(l.provider)
	}
	if l.hooks == nil {
		l.hooks = map[*Object][]Subscription{}
	}
	l.hooks[obj] = []Subscription{
		obj.OnPropertyChanged(func(e PropertyChangeEvent) {
			index := l.IndexOf(item)
			l.raiseList(ListChangedEvent{Source: l, Type: ListItemChanged, NewIndex: index, OldIndex: index, Item: item})
			l.raiseChild(ChildChangedEvent{Child: item, Property: &e})
		}),
		obj.OnChildChanged(func(e ChildChangedEvent) {
			l.raiseChild(e)
		}),
	}
}

func (l *List[T]) unhook(item T) {
	obj := item.domainObject()
	for _, sub := range l.hooks[obj] {
		sub.Cancel()
	}
	delete(l.hooks, obj)
}

func (l *List[T]) raiseList(event ListChangedEvent) {
	if !l.RaisesEvents() {
		return
	}
	l.listChanged.emit(event)
}

func (l *List[T]) raiseCollection(event CollectionChangedEvent) {
	if !l.RaisesEvents() {
		return
	}
	l.collectionChanged.emit(event)
}

func (l *List[T]) raiseChild(event ChildChangedEvent) {
	if !l.RaisesEvents() {
		return
	}
	l.childChanged.emit(event)
}

func (l *List[T]) raiseReset() {
	l.raiseList(ListChangedEvent{Source: l, Type: ListReset, NewIndex: -1, OldIndex: -1})
	l.raiseCollection(CollectionChangedEvent{Source: l, Action: CollectionReset, NewIndex: -1, OldIndex: -1})
}

// OnListChanged subscribes to index-oriented notifications.
func (l *List[T]) OnListChanged(fn func(ListChangedEvent)) Subscription {
	return l.listChanged.add(fn)
}

// OnCollectionChanged subscribes to item-set notifications.
func (l *List[T]) OnCollectionChanged(fn func(CollectionChangedEvent)) Subscription {
	return l.collectionChanged.add(fn)
}

// OnChildChanged subscribes to changes raised by items.
func (l *List[T]) OnChildChanged(fn func(ChildChangedEvent)) Subscription {
	return l.childChanged.add(fn)
}

// Parent returns the owner of the list.
func (l *List[T]) Parent() any {
	return l.parent
}

// SetParent replaces the owner back-reference.
func (l *List[T]) SetParent(parent any) {
	l.parent = parent
}

// IsDirty reports whether items were removed or any visible item is dirty.
func (l *List[T]) IsDirty() bool {
	if l == nil {
		return false
	}
	if len(l.deleted) > 0 {
		return true
	}
	for _, item := range l.items {
		if item.IsDirty() {
			return true
		}
	}
	return false
}

// ContainsNewData reports whether items were removed or any visible item
// contains new data.
func (l *List[T]) ContainsNewData() bool {
	if l == nil {
		return false
	}
	if len(l.deleted) > 0 {
		return true
	}
	for _, item := range l.items {
		if item.ContainsNewData() {
			return true
		}
	}
	return false
}

// IsValid reports whether every visible item is valid.
func (l *List[T]) IsValid() bool {
	if l == nil {
		return true
	}
	for _, item := range l.items {
		if !item.IsValid() {
			return false
		}
	}
	return true
}

// HasWarnings reports whether any visible item has warnings.
func (l *List[T]) HasWarnings() bool {
	if l == nil {
		return false
	}
	for _, item := range l.items {
		if item.HasWarnings() {
			return true
		}
	}
	return false
}

// CheckRules re-checks every visible item.
func (l *List[T]) CheckRules(recurse bool) {
	for _, item := range l.items {
		item.CheckRules(recurse)
	}
}

// SetValidationEngine installs provider on every item, deleted ones included.
func (l *List[T]) SetValidationEngine(provider ValidationEngineProvider) {
	if provider == nil {
		return
	}
	l.provider = provider
	for _, item := range l.items {
		item.SetValidationEngine(provider)
	}
	for _, item := range l.deleted {
		item.SetValidationEngine(provider)
	}
}

// RestoreEventHooks re-wires every visible item and clears the parent of
// deleted ones.
func (l *List[T]) RestoreEventHooks() {
	for _, item := range l.items {
		item.RestoreEventHooks()
		l.hook(item)
	}
	for _, item := range l.deleted {
		item.RestoreEventHooks()
		l.unhook(item)
		item.SetParent(nil)
	}
}

// BrokenRulesTree has one sub-tree per invalid or warning item, tagged with
// its index. The item type is named by the owner's metadata.
func (l *List[T]) BrokenRulesTree(useInstanceDescription bool) *BrokenRulesNode {
	var zero T
	var metadata MetadataProvider = DefaultMetadata{}
	if owner, ok := l.parent.(Holder); ok {
		metadata = owner.domainObject().Metadata()
	}
	node := &BrokenRulesNode{Description: "List of " + metadata.TypeDisplayName(zero)}
	for i, item := range l.items {
		if item.IsValid() && !item.HasWarnings() {
			continue
		}
		sub := item.BrokenRulesTree(useInstanceDescription)
		sub.Field = fmt.Sprintf("[%d]", i)
		node.Add(sub)
	}
	return node
}

type listPayload[T any] struct {
	Items   []T `json:"items"`
	Deleted []T `json:"deleted,omitempty"`
}

// MarshalJSON encodes the visible and deleted items.
func (l *List[T]) MarshalJSON() ([]byte, error) {
	items := l.items
	if items == nil {
		items = []T{}
	}
	return json.Marshal(listPayload[T]{Items: items, Deleted: l.deleted})
}

// UnmarshalJSON replaces the items. Hooks and dependencies are restored by
// Reconstruct.
func (l *List[T]) UnmarshalJSON(data []byte) error {
	var payload listPayload[T]
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	for _, item := range l.items {
		l.unhook(item)
	}
	l.items = payload.Items
	l.deleted = payload.Deleted
	return nil
}

func (l *List[T]) bindGraph(provider ValidationEngineProvider) error {
	l.provider = provider
	for i, item := range l.items {
		if err := bindGraph(item, provider, true); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	for i, item := range l.deleted {
		if err := bindGraph(item, provider, true); err != nil {
			return fmt.Errorf("deleted[%d]: %w", i, err)
		}
		item.domainObject().deleted = true
	}
	return nil
}

func (l *List[T]) walkItems(fn func(index int, item Node, deleted bool) error) error {
	for i, item := range l.items {
		if err := fn(i, item, false); err != nil {
			return err
		}
	}
	for i, item := range l.deleted {
		if err := fn(i, item, true); err != nil {
			return err
		}
	}
	return nil
}

func isNilItem[T any](item T) bool {
	v := reflect.ValueOf(any(item))
	if !v.IsValid() {
		return true
	}
	return isNilableKind(v.Kind()) && v.IsNil()
}
