package rules

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoEvaluator reports a rule naming an engine that is not configured.
	ErrNoEvaluator = errors.New("rules: evaluator not configured")
	// ErrEmptyExpression reports a blank expression.
	ErrEmptyExpression = errors.New("rules: expression must not be empty")
	// ErrNotBoolean reports an expression that did not produce a bool.
	ErrNotBoolean = errors.New("rules: expression did not return a bool")
	// ErrUnknownType reports a lookup for a type with no registered rules
	// when the engine runs with strict types.
	ErrUnknownType = errors.New("rules: no rules registered for type")
	// ErrDuplicateRule reports a rule name registered twice for one type.
	ErrDuplicateRule = errors.New("rules: rule already registered")
	// ErrInvalidDefinition reports a rule definition that cannot be compiled.
	ErrInvalidDefinition = errors.New("rules: invalid rule definition")
)

// EvaluationError captures evaluator metadata alongside the originating error.
type EvaluationError struct {
	Engine string
	Expr   string
	Rule   string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("rules: %s evaluator %s rule=%s: %v", e.Engine, describeExpression(e.Expr), describeRule(e.Rule), e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func describeRule(rule string) string {
	if rule == "" {
		return "<anonymous>"
	}
	return rule
}

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "rules:") {
		return err
	}
	return fmt.Errorf("rules: %s evaluator: %w", engine, err)
}

// wrapEvaluationError fills missing metadata on an existing EvaluationError in
// place, or wraps err in a new one.
func wrapEvaluationError(engine, expr, rule string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Rule == "" {
			evalErr.Rule = rule
		}
		return evalErr
	}

	return &EvaluationError{
		Engine: engine,
		Expr:   expr,
		Rule:   rule,
		Err:    err,
	}
}
