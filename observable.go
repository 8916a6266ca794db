package domain

// BindingMode selects how property change notifications are coalesced.
type BindingMode int

const (
	// NotifyPerProperty raises one event for every changed property.
	NotifyPerProperty BindingMode = iota
	// NotifyPerBatch raises one event carrying every changed property.
	NotifyPerBatch
)

func (m BindingMode) String() string {
	switch m {
	case NotifyPerBatch:
		return "per-batch"
	default:
		return "per-property"
	}
}

// PropertyChangeEvent describes an "about to change" or "changed" notification.
// A single empty property name is the wildcard: every property may have changed.
type PropertyChangeEvent struct {
	Source     any
	Properties []string
}

// Wildcard reports whether the event refers to every property.
func (e PropertyChangeEvent) Wildcard() bool {
	return len(e.Properties) == 1 && e.Properties[0] == ""
}

// Has reports whether property is named by the event (wildcards match all).
func (e PropertyChangeEvent) Has(property string) bool {
	if e.Wildcard() {
		return true
	}
	for _, name := range e.Properties {
		if name == property {
			return true
		}
	}
	return false
}

// PropertyHandler receives property change notifications.
type PropertyHandler func(PropertyChangeEvent)

// Subscription detaches a handler when cancelled. The zero value is inert.
type Subscription struct {
	cancel func()
}

// Cancel removes the handler. Calling Cancel more than once is harmless.
func (s Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

type handlerEntry[E any] struct {
	id uint64
	fn func(E)
}

// handlerList is an ordinary observer list; subscribers are never serialized.
type handlerList[E any] struct {
	next    uint64
	entries []handlerEntry[E]
}

func (l *handlerList[E]) add(fn func(E)) Subscription {
	if fn == nil {
		return Subscription{}
	}
	l.next++
	id := l.next
	l.entries = append(l.entries, handlerEntry[E]{id: id, fn: fn})
	return Subscription{cancel: func() { l.remove(id) }}
}

func (l *handlerList[E]) remove(id uint64) {
	for i, entry := range l.entries {
		if entry.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *handlerList[E]) emit(event E) {
	if len(l.entries) == 0 {
		return
	}
	snapshot := make([]handlerEntry[E], len(l.entries))
	copy(snapshot, l.entries)
	for _, entry := range snapshot {
		entry.fn(event)
	}
}

func (l *handlerList[E]) len() int {
	return len(l.entries)
}

// Notifier carries the two property notification channels shared by every
// stateful object, the binding mode and a nestable suspend scope.
type Notifier struct {
	source    any
	mode      BindingMode
	suspended int
	changing  handlerList[PropertyChangeEvent]
	changed   handlerList[PropertyChangeEvent]
}

// NewNotifier builds a notifier that reports source as the event origin.
func NewNotifier(source any, mode BindingMode) *Notifier {
	return &Notifier{source: source, mode: mode}
}

// OnPropertyChanging subscribes to "about to change" notifications.
func (n *Notifier) OnPropertyChanging(fn PropertyHandler) Subscription {
	return n.changing.add(fn)
}

// OnPropertyChanged subscribes to "changed" notifications.
func (n *Notifier) OnPropertyChanged(fn PropertyHandler) Subscription {
	return n.changed.add(fn)
}

// BindingMode returns the current coalescing mode.
func (n *Notifier) BindingMode() BindingMode {
	return n.mode
}

// SetBindingMode switches the coalescing mode.
func (n *Notifier) SetBindingMode(mode BindingMode) {
	n.mode = mode
}

// Suspend silences both channels until the returned resume func runs. Scopes
// nest; events raised while suspended are dropped, not replayed.
func (n *Notifier) Suspend() (resume func()) {
	n.suspended++
	done := false
	return func() {
		if done {
			return
		}
		done = true
		n.suspended--
	}
}

// Suspended reports whether a suspend scope is active.
func (n *Notifier) Suspended() bool {
	return n.suspended > 0
}

// NotifyChanging announces that properties are about to change.
func (n *Notifier) NotifyChanging(properties ...string) {
	n.dispatch(&n.changing, properties)
}

// NotifyChanged announces that properties changed.
func (n *Notifier) NotifyChanged(properties ...string) {
	n.dispatch(&n.changed, properties)
}

func (n *Notifier) dispatch(list *handlerList[PropertyChangeEvent], properties []string) {
	if n.suspended > 0 || list.len() == 0 || len(properties) == 0 {
		return
	}
	if n.mode == NotifyPerBatch {
		list.emit(PropertyChangeEvent{Source: n.source, Properties: append([]string(nil), properties...)})
		return
	}
	for _, property := range properties {
		list.emit(PropertyChangeEvent{Source: n.source, Properties: []string{property}})
	}
}

// ListChangeType classifies a list change notification.
type ListChangeType int

const (
	// ListItemAdded reports an insertion at NewIndex.
	ListItemAdded ListChangeType = iota
	// ListItemDeleted reports a removal from OldIndex.
	ListItemDeleted
	// ListReset reports that the whole list should be re-read.
	ListReset
	// ListItemChanged reports that the item at NewIndex changed in place.
	ListItemChanged
)

func (t ListChangeType) String() string {
	switch t {
	case ListItemAdded:
		return "added"
	case ListItemDeleted:
		return "deleted"
	case ListItemChanged:
		return "changed"
	default:
		return "reset"
	}
}

// ListChangedEvent is raised by lists for index-oriented consumers.
type ListChangedEvent struct {
	Source   any
	Type     ListChangeType
	NewIndex int
	OldIndex int
	Item     any
}

// CollectionAction classifies a collection change notification.
type CollectionAction int

const (
	// CollectionAdd reports new items.
	CollectionAdd CollectionAction = iota
	// CollectionRemove reports removed items.
	CollectionRemove
	// CollectionReset reports a drastic change.
	CollectionReset
)

func (a CollectionAction) String() string {
	switch a {
	case CollectionAdd:
		return "add"
	case CollectionRemove:
		return "remove"
	default:
		return "reset"
	}
}

// CollectionChangedEvent is raised by lists for item-set oriented consumers.
type CollectionChangedEvent struct {
	Source   any
	Action   CollectionAction
	NewItems []any
	OldItems []any
	NewIndex int
	OldIndex int
}

// ChildChangedEvent is the generalized bubbling notification. Child is the
// node whose state originally changed; Field is the child field on the
// receiving node and Path the chain of fields from the receiver to Child.
// Exactly one of Property, List or Collection is set.
type ChildChangedEvent struct {
	Child      any
	Field      string
	Path       []string
	Property   *PropertyChangeEvent
	List       *ListChangedEvent
	Collection *CollectionChangedEvent
}

func (e ChildChangedEvent) retag(field string) ChildChangedEvent {
	path := make([]string, 0, len(e.Path)+1)
	if field != "" {
		path = append(path, field)
	}
	path = append(path, e.Path...)
	e.Path = path
	e.Field = field
	return e
}

// PropertyNotifier is implemented by values raising property notifications.
type PropertyNotifier interface {
	OnPropertyChanged(fn PropertyHandler) Subscription
}

// ListNotifier is implemented by values raising list notifications.
type ListNotifier interface {
	OnListChanged(fn func(ListChangedEvent)) Subscription
}

// CollectionNotifier is implemented by values raising collection notifications.
type CollectionNotifier interface {
	OnCollectionChanged(fn func(CollectionChangedEvent)) Subscription
}

// ChildNotifier is implemented by values bubbling child notifications.
type ChildNotifier interface {
	OnChildChanged(fn func(ChildChangedEvent)) Subscription
}
