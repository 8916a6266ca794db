package domain

import (
	"errors"
	"fmt"
	"strconv"
)

type graphBinder interface {
	bindGraph(provider ValidationEngineProvider) error
}

type itemWalker interface {
	walkItems(fn func(index int, item Node, deleted bool) error) error
}

// Reconstruct prepares a graph decoded from a serialized form: every node is
// bound to the provider, hooks and parent back-references are restored and
// rules are re-checked without notifications. Lifecycle flags are left as
// decoded.
func Reconstruct(root Holder, provider ValidationEngineProvider) error {
	if root == nil || isNilHolder(root) {
		return fmt.Errorf("%w: root", ErrMissingDependency)
	}
	if err := bindGraph(root, provider, false); err != nil {
		return err
	}
	obj := root.domainObject()
	obj.RestoreEventHooks()
	resume := suspendGraph(root)
	defer resume()
	obj.CheckRules(true)
	return nil
}

type eventSuspender interface {
	suspendEvents() (resume func())
}

// suspendGraph silences root and every node and list below it. The returned
// func resumes them in reverse order.
func suspendGraph(root Holder) func() {
	resumes := []func(){root.domainObject().Suspend()}
	if node, ok := root.(Node); ok {
		_ = Walk(node, func(v Visit) error {
			if v.Path == "" {
				return nil
			}
			switch n := v.Node.(type) {
			case Holder:
				resumes = append(resumes, n.domainObject().Suspend())
			case eventSuspender:
				resumes = append(resumes, n.suspendEvents())
			}
			return nil
		})
	}
	return func() {
		for i := len(resumes) - 1; i >= 0; i-- {
			resumes[i]()
		}
	}
}

func bindGraph(value any, provider ValidationEngineProvider, child bool) error {
	switch node := value.(type) {
	case Holder:
		obj := node.domainObject()
		var opts []ObjectOption
		if child {
			opts = append(opts, AsChild())
		}
		if _, err := obj.bind(node, provider, opts); err != nil {
			return err
		}
		for _, field := range obj.children.info.fields {
			fieldValue, ok := field.Value(node)
			if !ok {
				continue
			}
			if err := bindGraph(fieldValue, provider, true); err != nil {
				return fmt.Errorf("%s: %w", field.Name, err)
			}
		}
	case graphBinder:
		return node.bindGraph(provider)
	}
	return nil
}

// Visit is one stop of Walk. Path is "" for the root, then child field names
// joined with "." and list positions as "[i]"; deleted list items appear
// under "field~deleted[i]".
type Visit struct {
	Path    string
	Node    Node
	Deleted bool
	Depth   int
}

// SkipChildren returned from a Walk callback skips the node's descendants.
var SkipChildren = errors.New("domain: skip children")

// Walk visits root and every node below it depth-first, owners before
// children. Deleted list items are visited with Deleted set.
func Walk(root Node, fn func(Visit) error) error {
	if root == nil || fn == nil {
		return nil
	}
	return walk(Visit{Node: root}, fn)
}

func walk(visit Visit, fn func(Visit) error) error {
	if err := fn(visit); err != nil {
		if errors.Is(err, SkipChildren) {
			return nil
		}
		return err
	}
	switch node := visit.Node.(type) {
	case Holder:
		info, err := ChildrenInfoFor(node)
		if err != nil {
			return err
		}
		for _, field := range info.fields {
			value, ok := field.Value(node)
			if !ok {
				continue
			}
			child, ok := value.(Node)
			if !ok {
				continue
			}
			next := Visit{Path: joinPath(visit.Path, field.Name), Node: child, Deleted: visit.Deleted, Depth: visit.Depth + 1}
			if err := walk(next, fn); err != nil {
				return err
			}
		}
	case itemWalker:
		return node.walkItems(func(index int, item Node, deleted bool) error {
			path := visit.Path
			if deleted {
				path += "~deleted"
			}
			path += "[" + strconv.Itoa(index) + "]"
			return walk(Visit{Path: path, Node: item, Deleted: visit.Deleted || deleted, Depth: visit.Depth + 1}, fn)
		})
	}
	return nil
}

func joinPath(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}
