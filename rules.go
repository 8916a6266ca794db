package domain

import (
	"fmt"
	"slices"
)

// Severity classifies a broken rule.
type Severity int

const (
	// SeverityError blocks saving.
	SeverityError Severity = iota
	// SeverityWarning requires confirmation but does not block saving.
	SeverityWarning
	// SeverityInformation is advisory only.
	SeverityInformation
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "information"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity maps a severity name onto a Severity.
func ParseSeverity(name string) (Severity, error) {
	switch NormalizeKey(name) {
	case "", "error", "block":
		return SeverityError, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "information", "info", "log":
		return SeverityInformation, nil
	default:
		return SeverityError, fmt.Errorf("domain: unknown severity %q", name)
	}
}

// BrokenRule describes one violated business rule.
type BrokenRule struct {
	Rule       string   `json:"rule"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Properties []string `json:"properties,omitempty"`
}

// Affects reports whether the rule names property.
func (r BrokenRule) Affects(property string) bool {
	return slices.Contains(r.Properties, property)
}

// CheckResult is returned by a ValidationEngine. Evaluated lists every rule
// that ran (so stale results can be dropped), Broken the rules that failed and
// Affected every property whose computed state the check may have changed.
type CheckResult struct {
	Evaluated []string
	Broken    []BrokenRule
	Affected  []string
}

// ValidationEngine checks the rules registered for one concrete type.
type ValidationEngine interface {
	// Check evaluates the rules touching properties, or every rule when no
	// property is given.
	Check(target any, properties ...string) (CheckResult, error)
}

// ValidationEngineProvider resolves the engine for a target's concrete type.
type ValidationEngineProvider interface {
	EngineFor(target any) (ValidationEngine, error)
}

// ValidationEngineProviderFunc adapts a function to ValidationEngineProvider.
type ValidationEngineProviderFunc func(target any) (ValidationEngine, error)

// EngineFor implements ValidationEngineProvider.
func (f ValidationEngineProviderFunc) EngineFor(target any) (ValidationEngine, error) {
	return f(target)
}

// ValidationEngineFunc adapts a function to ValidationEngine.
type ValidationEngineFunc func(target any, properties ...string) (CheckResult, error)

// Check implements ValidationEngine.
func (f ValidationEngineFunc) Check(target any, properties ...string) (CheckResult, error) {
	return f(target, properties...)
}

// EngineFailureRule names the broken rule recorded when the engine itself fails.
const EngineFailureRule = "engine"

// BrokenRules is the per-instance rule state aggregator. It keeps the broken
// rules reported by the engine and replaces them rule by rule on every check.
type BrokenRules struct {
	target   any
	provider ValidationEngineProvider
	engine   ValidationEngine
	rules    []BrokenRule
}

// NewBrokenRules builds an aggregator for target.
func NewBrokenRules(target any, provider ValidationEngineProvider) *BrokenRules {
	return &BrokenRules{target: target, provider: provider}
}

// SetProvider swaps the provider and forgets the resolved engine.
func (b *BrokenRules) SetProvider(provider ValidationEngineProvider) {
	if b == nil {
		return
	}
	b.provider = provider
	b.engine = nil
}

// Check re-evaluates rules for properties (all rules when none are given) and
// returns the affected property names. Engine failures are recorded as an
// error-severity broken rule named EngineFailureRule.
func (b *BrokenRules) Check(properties ...string) []string {
	if b == nil || b.provider == nil || b.target == nil {
		return nil
	}
	if b.engine == nil {
		engine, err := b.provider.EngineFor(b.target)
		if err != nil {
			b.recordFailure(err)
			return nil
		}
		b.engine = engine
	}
	if b.engine == nil {
		return nil
	}
	result, err := b.engine.Check(b.target, properties...)
	if err != nil {
		b.recordFailure(err)
		return properties
	}
	b.drop(EngineFailureRule)
	for _, name := range result.Evaluated {
		b.drop(name)
	}
	for _, rule := range result.Broken {
		b.drop(rule.Rule)
		rule.Properties = append([]string(nil), rule.Properties...)
		b.rules = append(b.rules, rule)
	}
	return result.Affected
}

func (b *BrokenRules) recordFailure(err error) {
	b.drop(EngineFailureRule)
	b.rules = append(b.rules, BrokenRule{
		Rule:     EngineFailureRule,
		Severity: SeverityError,
		Message:  err.Error(),
	})
}

func (b *BrokenRules) drop(rule string) {
	b.rules = slices.DeleteFunc(b.rules, func(r BrokenRule) bool {
		return r.Rule == rule
	})
}

// Clear forgets every broken rule.
func (b *BrokenRules) Clear() {
	if b == nil {
		return
	}
	b.rules = nil
}

func (b *BrokenRules) count(severity Severity) int {
	if b == nil {
		return 0
	}
	total := 0
	for _, rule := range b.rules {
		if rule.Severity == severity {
			total++
		}
	}
	return total
}

// ErrorCount returns the number of error-severity broken rules.
func (b *BrokenRules) ErrorCount() int {
	return b.count(SeverityError)
}

// WarningCount returns the number of warning-severity broken rules.
func (b *BrokenRules) WarningCount() int {
	return b.count(SeverityWarning)
}

// InformationCount returns the number of information-severity broken rules.
func (b *BrokenRules) InformationCount() int {
	return b.count(SeverityInformation)
}

// Len returns the number of broken rules of any severity.
func (b *BrokenRules) Len() int {
	if b == nil {
		return 0
	}
	return len(b.rules)
}

// All returns a copy of the broken rules in the order they were recorded.
func (b *BrokenRules) All() []BrokenRule {
	if b == nil || len(b.rules) == 0 {
		return nil
	}
	out := make([]BrokenRule, len(b.rules))
	copy(out, b.rules)
	return out
}

// ForProperty returns the broken rules naming property.
func (b *BrokenRules) ForProperty(property string) []BrokenRule {
	if b == nil {
		return nil
	}
	var out []BrokenRule
	for _, rule := range b.rules {
		if rule.Affects(property) {
			out = append(out, rule)
		}
	}
	return out
}
