package domain

import (
	"fmt"
	"slices"
)

// Node is the state surface shared by every member of a graph: objects,
// entities and lists. Aggregate queries never panic on partially initialised
// graphs; absent children contribute nothing.
type Node interface {
	IsDirty() bool
	IsValid() bool
	HasWarnings() bool
	ContainsNewData() bool
	CheckRules(recurse bool)
	SetValidationEngine(provider ValidationEngineProvider)
	RestoreEventHooks()
	BrokenRulesTree(useInstanceDescription bool) *BrokenRulesNode
	Parent() any
	SetParent(parent any)
}

// Holder is implemented by every type embedding Object. It is how setters and
// lists reach the embedded state.
type Holder interface {
	domainObject() *Object
}

// Object carries the state of one stateful node. Embed it by value in a
// struct and call Init with a pointer to that struct before use. An Object
// must not be copied after Init.
type Object struct {
	self     any
	provider ValidationEngineProvider
	metadata MetadataProvider
	policy   WritePolicy
	locked   map[string]struct{}

	notifier     Notifier
	childChanged handlerList[ChildChangedEvent]
	rules        *BrokenRules
	children     *ChildrenManager
	parent       any

	dirty           bool
	deleted         bool
	containsNewData bool
	child           bool
}

func (o *Object) domainObject() *Object { return o }

// Init binds the object to self, the pointer to the embedding struct, and
// leaves it in the "new" state: dirty, not deleted. Rules are checked once
// without notification unless SkipInitialRuleCheck is given.
func (o *Object) Init(self any, provider ValidationEngineProvider, opts ...ObjectOption) error {
	cfg, err := o.bind(self, provider, opts)
	if err != nil {
		return err
	}
	o.dirty = true
	o.deleted = false
	o.containsNewData = false
	if !cfg.skipInitialCheck {
		o.rules.Check()
	}
	return nil
}

func (o *Object) bind(self any, provider ValidationEngineProvider, opts []ObjectOption) (objectConfig, error) {
	if self == nil {
		return objectConfig{}, fmt.Errorf("%w: self", ErrMissingDependency)
	}
	if provider == nil {
		return objectConfig{}, fmt.Errorf("%w: validation engine provider", ErrMissingDependency)
	}
	info, err := ChildrenInfoFor(self)
	if err != nil {
		return objectConfig{}, err
	}
	cfg := resolveObjectConfig(self, opts)

	o.self = self
	o.provider = provider
	o.notifier.source = self
	if cfg.modeSet {
		o.notifier.mode = cfg.mode
	}
	if cfg.metadata != nil {
		o.metadata = cfg.metadata
	}
	if cfg.policy != nil {
		o.policy = cfg.policy
	}
	if cfg.child {
		o.child = true
	}
	o.rules = NewBrokenRules(self, provider)
	if o.children != nil {
		o.children.unhookAll()
	}
	o.children = newChildrenManager(o, info)
	o.children.RestoreEventHooks()
	return cfg, nil
}

// Self returns the embedding struct pointer given to Init.
func (o *Object) Self() any {
	return o.self
}

// IsSelfDirty reports whether this node's own data changed.
func (o *Object) IsSelfDirty() bool {
	return o.dirty
}

// IsDirty reports whether this node or any tracked child changed.
func (o *Object) IsDirty() bool {
	return o.dirty || o.children.IsDirty()
}

// IsSelfValid reports whether this node has no error-severity broken rule.
func (o *Object) IsSelfValid() bool {
	return o.rules.ErrorCount() == 0
}

// IsValid reports whether this node and every tracked child are valid.
func (o *Object) IsValid() bool {
	return o.IsSelfValid() && o.children.IsValid()
}

// HasSelfWarnings reports whether this node has warning-severity broken rules.
func (o *Object) HasSelfWarnings() bool {
	return o.rules.WarningCount() > 0
}

// HasWarnings reports whether this node or any tracked child has warnings.
func (o *Object) HasWarnings() bool {
	return o.HasSelfWarnings() || o.children.HasWarnings()
}

// ContainsNewData reports whether any edit happened on this node or below
// since load, even one that nets out to the original value.
func (o *Object) ContainsNewData() bool {
	return o.containsNewData || o.children.ContainsNewData()
}

// IsSavable reports whether the graph is dirty and valid.
func (o *Object) IsSavable() bool {
	return o.IsDirty() && o.IsValid()
}

// IsDeleted reports whether the node is logically deleted.
func (o *Object) IsDeleted() bool {
	return o.deleted
}

// IsChild reports whether the node is owned by another node.
func (o *Object) IsChild() bool {
	return o.child
}

// Parent returns the non-owning back-reference to the owner, if any.
func (o *Object) Parent() any {
	return o.parent
}

// SetParent replaces the back-reference to the owner.
func (o *Object) SetParent(parent any) {
	o.parent = parent
}

// MarkAsChild flags the node as owned; owned nodes cannot Delete themselves.
func (o *Object) MarkAsChild() {
	o.child = true
}

func (o *Object) markAsRoot() {
	o.child = false
}

// MarkNew resets the node to the fresh "new, dirty, not deleted" state.
func (o *Object) MarkNew() {
	o.deleted = false
	o.MarkDirty(false)
}

// MarkDirty flags own data as changed. Unless suppressEvent is set a wildcard
// change notification is raised.
func (o *Object) MarkDirty(suppressEvent bool) {
	o.dirty = true
	o.containsNewData = true
	if !suppressEvent {
		o.notifier.NotifyChanged("")
	}
}

// MarkClean clears the dirty and contains-new-data flags of this node only
// and raises a wildcard change notification. Children are left untouched.
func (o *Object) MarkClean() {
	o.dirty = false
	o.containsNewData = false
	o.notifier.NotifyChanged("")
}

// MarkDeleted flags the node as logically deleted and dirty.
func (o *Object) MarkDeleted() {
	o.deleted = true
	o.MarkDirty(false)
}

func (o *Object) markUndeleted() {
	o.deleted = false
}

// Delete marks a root node as deleted. Children are deleted through their
// owning list.
func (o *Object) Delete() error {
	if o.child {
		return ErrChildDelete
	}
	o.MarkDeleted()
	return nil
}

// LockProperty vetoes writes to the named properties until unlocked.
func (o *Object) LockProperty(properties ...string) {
	if o.locked == nil {
		o.locked = map[string]struct{}{}
	}
	for _, property := range properties {
		o.locked[property] = struct{}{}
	}
}

// UnlockProperty lifts locks placed with LockProperty.
func (o *Object) UnlockProperty(properties ...string) {
	for _, property := range properties {
		delete(o.locked, property)
	}
}

// LockedProperties returns the explicitly locked property names, sorted.
func (o *Object) LockedProperties() []string {
	if len(o.locked) == 0 {
		return nil
	}
	out := make([]string, 0, len(o.locked))
	for property := range o.locked {
		out = append(out, property)
	}
	slices.Sort(out)
	return out
}

// CanWriteProperty reports whether a setter may change the property. Locks
// are consulted first, then the write policy.
func (o *Object) CanWriteProperty(property string) bool {
	if _, locked := o.locked[property]; locked {
		return false
	}
	if o.policy != nil {
		return o.policy.CanWrite(o.self, property)
	}
	return true
}

// SetWritePolicy replaces the write policy; nil removes it.
func (o *Object) SetWritePolicy(policy WritePolicy) {
	o.policy = policy
}

// BrokenRules exposes the node's own rule aggregator.
func (o *Object) BrokenRules() *BrokenRules {
	return o.rules
}

// Children exposes the node's child manager.
func (o *Object) Children() *ChildrenManager {
	return o.children
}

// CheckRules re-evaluates this node's rules and announces every affected
// property. With recurse set every tracked child is checked as well.
func (o *Object) CheckRules(recurse bool) {
	affected := o.rules.Check()
	if len(affected) > 0 {
		o.notifier.NotifyChanged(affected...)
	}
	if recurse {
		o.children.CheckRules()
	}
}

// CheckPropertyRules re-evaluates the rules touching properties and returns
// the affected names without notifying.
func (o *Object) CheckPropertyRules(properties ...string) []string {
	return o.rules.Check(properties...)
}

// SetValidationEngine installs provider on this node and every tracked child.
// A nil provider is ignored. Call it after reconstructing a graph.
func (o *Object) SetValidationEngine(provider ValidationEngineProvider) {
	if provider == nil {
		return
	}
	o.provider = provider
	if o.rules == nil {
		o.rules = NewBrokenRules(o.self, provider)
	} else {
		o.rules.SetProvider(provider)
	}
	o.children.SetValidationEngine(provider)
}

// ValidationEngine returns the installed provider.
func (o *Object) ValidationEngine() ValidationEngineProvider {
	return o.provider
}

// RestoreEventHooks re-wires parent back-references and change propagation
// for every child, recursively.
func (o *Object) RestoreEventHooks() {
	o.children.RestoreEventHooks()
}

// SetMetadataProvider replaces the provider used for display names.
func (o *Object) SetMetadataProvider(metadata MetadataProvider) {
	o.metadata = metadata
}

// Metadata returns the metadata provider, DefaultMetadata when unset.
func (o *Object) Metadata() MetadataProvider {
	if o.metadata == nil {
		return DefaultMetadata{}
	}
	return o.metadata
}

// BrokenRulesTree describes this node's broken rules plus one sub-tree per
// invalid or warning child. With useInstanceDescription a Describer self
// describes itself; otherwise the type display name is used.
func (o *Object) BrokenRulesTree(useInstanceDescription bool) *BrokenRulesNode {
	node := &BrokenRulesNode{Description: o.describe(useInstanceDescription)}
	metadata := o.Metadata()
	for _, rule := range o.rules.All() {
		if rule.Message == "" {
			subject := metadata.TypeDisplayName(o.self)
			if len(rule.Properties) > 0 {
				subject = metadata.DisplayName(o.self, rule.Properties[0])
			}
			rule.Message = subject + " is invalid"
		}
		node.Rules = append(node.Rules, rule)
	}
	o.children.AddChildrenBrokenRules(node, useInstanceDescription)
	return node
}

func (o *Object) describe(useInstanceDescription bool) string {
	if useInstanceDescription {
		if describer, ok := o.self.(Describer); ok {
			if description := describer.Describe(); description != "" {
				return description
			}
		}
	}
	return o.Metadata().TypeDisplayName(o.self)
}

// OnPropertyChanging subscribes to "about to change" notifications.
func (o *Object) OnPropertyChanging(fn PropertyHandler) Subscription {
	return o.notifier.OnPropertyChanging(fn)
}

// OnPropertyChanged subscribes to "changed" notifications.
func (o *Object) OnPropertyChanged(fn PropertyHandler) Subscription {
	return o.notifier.OnPropertyChanged(fn)
}

// OnChildChanged subscribes to notifications bubbling up from children.
func (o *Object) OnChildChanged(fn func(ChildChangedEvent)) Subscription {
	return o.childChanged.add(fn)
}

// NotifyChanging announces that properties are about to change.
func (o *Object) NotifyChanging(properties ...string) {
	o.notifier.NotifyChanging(properties...)
}

// NotifyChanged announces that properties changed.
func (o *Object) NotifyChanged(properties ...string) {
	o.notifier.NotifyChanged(properties...)
}

// Suspend silences every channel of this node until resume is called.
func (o *Object) Suspend() (resume func()) {
	return o.notifier.Suspend()
}

// BindingMode returns the notification coalescing mode.
func (o *Object) BindingMode() BindingMode {
	return o.notifier.BindingMode()
}

// SetBindingMode switches the notification coalescing mode.
func (o *Object) SetBindingMode(mode BindingMode) {
	o.notifier.SetBindingMode(mode)
}

func (o *Object) raiseChildChanged(event ChildChangedEvent) {
	if o.notifier.Suspended() {
		return
	}
	o.childChanged.emit(event)
}

// CopyStateFrom copies the flags and dependencies of src. Identity, parent
// and children are not copied.
func (o *Object) CopyStateFrom(src *Object) error {
	if src == nil {
		return fmt.Errorf("%w: source object", ErrMissingDependency)
	}
	o.dirty = src.dirty
	o.deleted = src.deleted
	o.containsNewData = src.containsNewData
	o.child = src.child
	o.metadata = src.metadata
	o.policy = src.policy
	o.notifier.mode = src.notifier.mode
	o.locked = nil
	for property := range src.locked {
		o.LockProperty(property)
	}
	if src.provider != nil {
		o.SetValidationEngine(src.provider)
	}
	return nil
}

// ObjectState is the serializable part of an Object's lifecycle flags.
type ObjectState struct {
	Dirty           bool `json:"dirty"`
	Deleted         bool `json:"deleted,omitempty"`
	ContainsNewData bool `json:"contains_new_data,omitempty"`
	Child           bool `json:"child,omitempty"`
}

// State snapshots the lifecycle flags.
func (o *Object) State() ObjectState {
	return ObjectState{
		Dirty:           o.dirty,
		Deleted:         o.deleted,
		ContainsNewData: o.containsNewData,
		Child:           o.child,
	}
}

// RestoreState overwrites the lifecycle flags without raising notifications.
func (o *Object) RestoreState(state ObjectState) {
	o.dirty = state.Dirty
	o.deleted = state.Deleted
	o.containsNewData = state.ContainsNewData
	o.child = state.Child
}
