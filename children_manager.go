package domain

// ChildrenManager wires the child fields of one owner instance. It hooks
// change propagation, maintains parent back-references and rolls child state
// up to the owner. All methods are safe on a nil manager.
type ChildrenManager struct {
	owner *Object
	info  *ChildrenInfo
	hooks map[string]*childHook
}

type childHook struct {
	value any
	subs  []Subscription
}

func newChildrenManager(owner *Object, info *ChildrenInfo) *ChildrenManager {
	return &ChildrenManager{owner: owner, info: info, hooks: map[string]*childHook{}}
}

// Fields returns the declared child fields of the owner type.
func (m *ChildrenManager) Fields() []ChildFieldInfo {
	if m == nil {
		return nil
	}
	return m.info.Fields()
}

// Info returns the cached child index of the owner type.
func (m *ChildrenManager) Info() *ChildrenInfo {
	if m == nil {
		return nil
	}
	return m.info
}

// RegisterChildValueFor hooks the current value of field name. Any previous
// hook for the field is released first. It reports whether a value was hooked.
func (m *ChildrenManager) RegisterChildValueFor(name string) bool {
	if m == nil {
		return false
	}
	field, ok := m.info.Field(name)
	if !ok {
		return false
	}
	m.UnregisterChildValueFor(name)
	value, ok := field.Value(m.owner.self)
	if !ok {
		return false
	}
	hook := &childHook{value: value}
	if holder, ok := value.(Holder); ok {
		holder.domainObject().MarkAsChild()
	}
	if node, ok := value.(Node); ok {
		node.SetParent(m.owner.self)
	}

	caps := field.Capabilities
	if caps.Has(CapPropertyChanged) {
		if notifier, ok := value.(PropertyNotifier); ok {
			hook.subs = append(hook.subs, notifier.OnPropertyChanged(func(e PropertyChangeEvent) {
				m.owner.raiseChildChanged(ChildChangedEvent{Child: value, Property: &e}.retag(name))
			}))
		}
	}
	if caps.Has(CapListChanged) {
		if notifier, ok := value.(ListNotifier); ok {
			hook.subs = append(hook.subs, notifier.OnListChanged(func(e ListChangedEvent) {
				// item edits arrive through the child channel
				if e.Type == ListItemChanged && caps.Has(CapChildChanged) {
					return
				}
				m.owner.raiseChildChanged(ChildChangedEvent{Child: value, List: &e}.retag(name))
			}))
		}
	} else if caps.Has(CapCollectionChanged) {
		if notifier, ok := value.(CollectionNotifier); ok {
			hook.subs = append(hook.subs, notifier.OnCollectionChanged(func(e CollectionChangedEvent) {
				m.owner.raiseChildChanged(ChildChangedEvent{Child: value, Collection: &e}.retag(name))
			}))
		}
	}
	if caps.Has(CapChildChanged) {
		if notifier, ok := value.(ChildNotifier); ok {
			hook.subs = append(hook.subs, notifier.OnChildChanged(func(e ChildChangedEvent) {
				m.owner.raiseChildChanged(e.retag(name))
			}))
		}
	}
	m.hooks[name] = hook
	return true
}

// UnregisterChildValueFor releases the hook of field name. A value still
// pointing at this owner loses its parent and becomes a root again.
func (m *ChildrenManager) UnregisterChildValueFor(name string) {
	if m == nil {
		return
	}
	hook, ok := m.hooks[name]
	if !ok {
		return
	}
	delete(m.hooks, name)
	for _, sub := range hook.subs {
		sub.Cancel()
	}
	node, ok := hook.value.(Node)
	if !ok || node.Parent() != m.owner.self {
		return
	}
	node.SetParent(nil)
	if holder, ok := hook.value.(Holder); ok {
		holder.domainObject().markAsRoot()
	}
}

func (m *ChildrenManager) unhookAll() {
	if m == nil {
		return
	}
	for name, hook := range m.hooks {
		for _, sub := range hook.subs {
			sub.Cancel()
		}
		delete(m.hooks, name)
	}
}

// RestoreEventHooks re-wires every child, restoring each child's own hooks
// first.
func (m *ChildrenManager) RestoreEventHooks() {
	if m == nil {
		return
	}
	for _, field := range m.info.fields {
		value, ok := field.Value(m.owner.self)
		if !ok {
			m.UnregisterChildValueFor(field.Name)
			continue
		}
		if node, ok := value.(Node); ok {
			node.RestoreEventHooks()
		}
		m.RegisterChildValueFor(field.Name)
	}
}

func (m *ChildrenManager) nodes(fn func(name string, node Node) bool) bool {
	if m == nil || m.owner == nil {
		return false
	}
	for _, field := range m.info.fields {
		if !field.Capabilities.Has(CapStateful) {
			continue
		}
		value, ok := field.Value(m.owner.self)
		if !ok {
			continue
		}
		node, ok := value.(Node)
		if !ok {
			continue
		}
		if fn(field.Name, node) {
			return true
		}
	}
	return false
}

// IsDirty reports whether any child is dirty.
func (m *ChildrenManager) IsDirty() bool {
	return m.nodes(func(_ string, node Node) bool { return node.IsDirty() })
}

// IsValid reports whether every child is valid.
func (m *ChildrenManager) IsValid() bool {
	return !m.nodes(func(_ string, node Node) bool { return !node.IsValid() })
}

// HasWarnings reports whether any child has warnings.
func (m *ChildrenManager) HasWarnings() bool {
	return m.nodes(func(_ string, node Node) bool { return node.HasWarnings() })
}

// ContainsNewData reports whether any child contains new data.
func (m *ChildrenManager) ContainsNewData() bool {
	return m.nodes(func(_ string, node Node) bool { return node.ContainsNewData() })
}

// CheckRules re-checks every child recursively.
func (m *ChildrenManager) CheckRules() {
	m.nodes(func(_ string, node Node) bool {
		node.CheckRules(true)
		return false
	})
}

// SetValidationEngine installs provider on every child.
func (m *ChildrenManager) SetValidationEngine(provider ValidationEngineProvider) {
	m.nodes(func(_ string, node Node) bool {
		node.SetValidationEngine(provider)
		return false
	})
}

// AddChildrenBrokenRules adds one sub-tree per child that is invalid or has
// warnings.
func (m *ChildrenManager) AddChildrenBrokenRules(tree *BrokenRulesNode, useInstanceDescription bool) {
	if tree == nil {
		return
	}
	m.nodes(func(name string, node Node) bool {
		if node.IsValid() && !node.HasWarnings() {
			return false
		}
		sub := node.BrokenRulesTree(useInstanceDescription)
		if sub != nil {
			sub.Field = name
			tree.Add(sub)
		}
		return false
	})
}
