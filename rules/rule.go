package rules

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"

	domain "github.com/goliatone/go-domain"
)

// Descriptor is the static description of a rule.
type Descriptor struct {
	Name       string
	Engine     string
	Expression string
	Severity   domain.Severity
	Message    string
	// Properties are the inputs that trigger the rule and the properties a
	// broken rule is reported against.
	Properties []string
	// Affects lists extra properties whose computed state the rule changes.
	Affects []string
}

func (d Descriptor) triggeredBy(properties []string) bool {
	if len(properties) == 0 {
		return true
	}
	for _, property := range properties {
		if slices.Contains(d.Properties, property) {
			return true
		}
	}
	return false
}

func (d Descriptor) affected() []string {
	out := make([]string, 0, len(d.Properties)+len(d.Affects))
	out = append(out, d.Properties...)
	return append(out, d.Affects...)
}

func (d Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: rule name must not be empty", ErrInvalidDefinition)
	}
	return nil
}

// Rule is one business rule registered for a type.
type Rule interface {
	Descriptor() Descriptor
	// Evaluate reports whether the rule holds for ctx.
	Evaluate(ctx Context) (bool, error)
}

type funcRule struct {
	desc Descriptor
	fn   func(ctx Context) bool
}

// NewRule builds a rule from a Go predicate. The descriptor engine defaults
// to "go".
func NewRule(desc Descriptor, fn func(ctx Context) bool) (Rule, error) {
	if err := desc.validate(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: rule %q has no predicate", ErrInvalidDefinition, desc.Name)
	}
	if desc.Engine == "" {
		desc.Engine = "go"
	}
	return &funcRule{desc: desc, fn: fn}, nil
}

// Predicate adapts a typed check on the target to a NewRule predicate.
func Predicate[T any](fn func(target T) bool) func(ctx Context) bool {
	return func(ctx Context) bool {
		target, ok := ctx.Target.(T)
		return ok && fn(target)
	}
}

func (r *funcRule) Descriptor() Descriptor { return r.desc }

func (r *funcRule) Evaluate(ctx Context) (bool, error) {
	return r.fn(ctx), nil
}

type expressionRule struct {
	desc     Descriptor
	compiled CompiledExpression
}

// NewExpressionRule compiles desc.Expression with evaluator. The expression
// must produce a bool.
func NewExpressionRule(desc Descriptor, evaluator Evaluator) (Rule, error) {
	if err := desc.validate(); err != nil {
		return nil, err
	}
	if evaluator == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoEvaluator, desc.Engine)
	}
	compiled, err := evaluator.Compile(desc.Expression)
	if err != nil {
		return nil, wrapEvaluationError(desc.Engine, desc.Expression, desc.Name, err)
	}
	return &expressionRule{desc: desc, compiled: compiled}, nil
}

func (r *expressionRule) Descriptor() Descriptor { return r.desc }

func (r *expressionRule) Evaluate(ctx Context) (bool, error) {
	value, err := r.compiled.Evaluate(ctx)
	if err != nil {
		return false, err
	}
	passed, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %T", ErrNotBoolean, value)
	}
	return passed, nil
}

type tagRule struct {
	desc     Descriptor
	field    string
	validate *validator.Validate
}

// NewTagRule checks one snapshot field against a validator tag such as
// "required,min=3". field defaults to the first property.
func NewTagRule(desc Descriptor, field string, validate *validator.Validate) (Rule, error) {
	if err := desc.validate(); err != nil {
		return nil, err
	}
	if field == "" && len(desc.Properties) > 0 {
		field = desc.Properties[0]
	}
	if field == "" {
		return nil, fmt.Errorf("%w: tag rule %q names no field", ErrInvalidDefinition, desc.Name)
	}
	if desc.Expression == "" {
		return nil, fmt.Errorf("%w: tag rule %q has no tag", ErrInvalidDefinition, desc.Name)
	}
	if validate == nil {
		validate = validator.New()
	}
	desc.Engine = "tag"
	rule := &tagRule{desc: desc, field: field, validate: validate}
	// Undefined tags panic inside validator; surface them now.
	if _, err := rule.check(""); err != nil {
		return nil, wrapEvaluationError("tag", desc.Expression, desc.Name, err)
	}
	return rule, nil
}

func (r *tagRule) Descriptor() Descriptor { return r.desc }

func (r *tagRule) Evaluate(ctx Context) (bool, error) {
	return r.check(ctx.Snapshot[r.field])
}

func (r *tagRule) check(value any) (passed bool, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			passed, err = false, fmt.Errorf("%w: tag %q: %v", ErrInvalidDefinition, r.desc.Expression, recovered)
		}
	}()
	err = r.validate.Var(value, r.desc.Expression)
	if err == nil {
		return true, nil
	}
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return false, nil
	}
	return false, err
}
