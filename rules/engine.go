package rules

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	domain "github.com/goliatone/go-domain"
)

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	logger     Logger
	cache      ProgramCache
	functions  *FunctionRegistry
	evaluators map[string]Evaluator
	validate   *validator.Validate
	strict     bool
	now        func() time.Time
}

// WithLogger attaches an evaluation logger.
func WithLogger(logger Logger) EngineOption {
	return func(cfg *engineConfig) {
		if logger == nil {
			cfg.logger = noopLogger{}
			return
		}
		cfg.logger = logger
	}
}

// WithProgramCache shares cache between the built-in evaluators.
func WithProgramCache(cache ProgramCache) EngineOption {
	return func(cfg *engineConfig) {
		cfg.cache = cache
	}
}

// WithFunctionRegistry exposes registry to the built-in evaluators.
func WithFunctionRegistry(registry *FunctionRegistry) EngineOption {
	return func(cfg *engineConfig) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithCustomFunction registers fn under name for the built-in evaluators.
func WithCustomFunction(name string, fn Function) EngineOption {
	return func(cfg *engineConfig) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		_ = cfg.functions.Register(name, fn)
	}
}

// WithEvaluator registers evaluator under name, replacing a built-in one.
func WithEvaluator(name string, evaluator Evaluator) EngineOption {
	return func(cfg *engineConfig) {
		if cfg.evaluators == nil {
			cfg.evaluators = map[string]Evaluator{}
		}
		cfg.evaluators[domain.NormalizeKey(name)] = evaluator
	}
}

// WithValidator sets the validator used by tag rules.
func WithValidator(validate *validator.Validate) EngineOption {
	return func(cfg *engineConfig) {
		cfg.validate = validate
	}
}

// WithStrictTypes makes EngineFor fail for types with no registered rules.
func WithStrictTypes() EngineOption {
	return func(cfg *engineConfig) {
		cfg.strict = true
	}
}

// WithClock overrides the time exposed to expressions as now.
func WithClock(now func() time.Time) EngineOption {
	return func(cfg *engineConfig) {
		cfg.now = now
	}
}

// Engine is a registry of rules per Go type. It implements
// domain.ValidationEngineProvider and is safe for concurrent use.
type Engine struct {
	mu      sync.RWMutex
	rules   map[reflect.Type][]Rule
	aliases map[string]reflect.Type

	evaluators map[string]Evaluator
	validate   *validator.Validate
	logger     Logger
	strict     bool
	now        func() time.Time
}

var _ domain.ValidationEngineProvider = (*Engine)(nil)

// NewEngine builds an engine with the expr and cel evaluators, plus js when
// built with the js_eval tag.
func NewEngine(opts ...EngineOption) *Engine {
	cfg := engineConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	evaluators := map[string]Evaluator{
		"expr": NewExprEvaluator(ExprWithProgramCache(cfg.cache), ExprWithFunctionRegistry(cfg.functions)),
		"cel":  NewCELEvaluator(CELWithProgramCache(cfg.cache), CELWithFunctionRegistry(cfg.functions)),
	}
	if js := NewJSEvaluator(JSWithProgramCache(cfg.cache), JSWithFunctionRegistry(cfg.functions)); js != nil {
		evaluators["js"] = js
	}
	for name, evaluator := range cfg.evaluators {
		if evaluator == nil {
			delete(evaluators, name)
			continue
		}
		evaluators[name] = evaluator
	}
	if cfg.logger == nil {
		cfg.logger = noopLogger{}
	}
	if cfg.validate == nil {
		cfg.validate = validator.New()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Engine{
		rules:      map[reflect.Type][]Rule{},
		aliases:    map[string]reflect.Type{},
		evaluators: evaluators,
		validate:   cfg.validate,
		logger:     cfg.logger,
		strict:     cfg.strict,
		now:        cfg.now,
	}
}

// Evaluator returns the evaluator registered under name.
func (e *Engine) Evaluator(name string) (Evaluator, error) {
	evaluator, ok := e.evaluators[domain.NormalizeKey(name)]
	if !ok || evaluator == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoEvaluator, name)
	}
	return evaluator, nil
}

// Compile turns desc into a Rule. "go" descriptors cannot be compiled; use
// NewRule. An empty engine means "expr"; "tag" builds a validator rule on
// field.
func (e *Engine) Compile(desc Descriptor, field string) (Rule, error) {
	engine := domain.NormalizeKey(desc.Engine)
	if engine == "" {
		engine = "expr"
	}
	desc.Engine = engine
	if engine == "tag" {
		return NewTagRule(desc, field, e.validate)
	}
	evaluator, err := e.Evaluator(engine)
	if err != nil {
		return nil, err
	}
	return NewExpressionRule(desc, evaluator)
}

// Alias registers name as a label for sample's type, used by rule documents.
func (e *Engine) Alias(name string, sample any) error {
	typ := reflect.TypeOf(sample)
	if typ == nil {
		return fmt.Errorf("rules: alias %q: nil sample", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aliases[domain.NormalizeKey(name)] = typ
	return nil
}

func (e *Engine) resolveAlias(name string) (reflect.Type, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	typ, ok := e.aliases[domain.NormalizeKey(name)]
	return typ, ok
}

// Register adds rules for the concrete type of sample. Rule names are unique
// per type.
func (e *Engine) Register(sample any, rules ...Rule) error {
	typ := reflect.TypeOf(sample)
	if typ == nil {
		return fmt.Errorf("rules: register: nil sample")
	}
	return e.register(typ, rules)
}

// RegisterFor adds rules for T.
func RegisterFor[T any](e *Engine, rules ...Rule) error {
	return e.register(reflect.TypeFor[T](), rules)
}

func (e *Engine) register(typ reflect.Type, rules []Rule) error {
	return e.registerBatch([]reflect.Type{typ}, map[reflect.Type][]Rule{typ: rules})
}

// registerBatch installs rules for several types at once. Duplicates are
// checked for every type before anything is appended.
func (e *Engine) registerBatch(order []reflect.Type, batch map[reflect.Type][]Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, typ := range order {
		existing := e.rules[typ]
		names := make(map[string]struct{}, len(existing)+len(batch[typ]))
		for _, rule := range existing {
			names[rule.Descriptor().Name] = struct{}{}
		}
		for _, rule := range batch[typ] {
			if rule == nil {
				return fmt.Errorf("rules: register %s: nil rule", typ)
			}
			name := rule.Descriptor().Name
			if _, dup := names[name]; dup {
				return fmt.Errorf("%w: %s.%s", ErrDuplicateRule, typ, name)
			}
			names[name] = struct{}{}
		}
	}
	for _, typ := range order {
		existing := e.rules[typ]
		updated := make([]Rule, 0, len(existing)+len(batch[typ]))
		updated = append(updated, existing...)
		e.rules[typ] = append(updated, batch[typ]...)
	}
	return nil
}

// Rules returns the rules registered for the type of sample.
func (e *Engine) Rules(sample any) []Rule {
	return e.rulesFor(reflect.TypeOf(sample))
}

func (e *Engine) rulesFor(typ reflect.Type) []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules[typ]
}

// EngineFor implements domain.ValidationEngineProvider. The returned engine
// reads the registry on every check, so rules registered later still apply.
func (e *Engine) EngineFor(target any) (domain.ValidationEngine, error) {
	typ := reflect.TypeOf(target)
	if typ == nil {
		return nil, fmt.Errorf("rules: engine for nil target")
	}
	if e.strict && len(e.rulesFor(typ)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}
	return &typeEngine{engine: e, typ: typ, name: domain.TypeName(target)}, nil
}

type typeEngine struct {
	engine *Engine
	typ    reflect.Type
	name   string
}

// Check evaluates the rules triggered by properties, or all of them.
func (t *typeEngine) Check(target any, properties ...string) (domain.CheckResult, error) {
	var result domain.CheckResult
	rules := t.engine.rulesFor(t.typ)
	if len(rules) == 0 {
		return result, nil
	}
	snapshot, err := Snapshot(target)
	if err != nil {
		return result, err
	}
	now := t.engine.now()
	ctx := Context{
		Target:   target,
		Snapshot: snapshot,
		Now:      &now,
		TypeName: t.name,
	}.withDefaults()

	for _, rule := range rules {
		desc := rule.Descriptor()
		if !desc.triggeredBy(properties) {
			continue
		}
		start := time.Now()
		passed, evalErr := rule.Evaluate(ctx)
		evalErr = wrapEvaluationError(desc.Engine, desc.Expression, desc.Name, evalErr)
		t.engine.logger.LogEvaluation(EvaluationEvent{
			Engine:   desc.Engine,
			Expr:     desc.Expression,
			Rule:     desc.Name,
			Type:     t.name,
			Passed:   passed && evalErr == nil,
			Duration: time.Since(start),
			Err:      evalErr,
		})
		if evalErr != nil {
			return domain.CheckResult{}, evalErr
		}
		result.Evaluated = append(result.Evaluated, desc.Name)
		for _, property := range desc.affected() {
			if !slices.Contains(result.Affected, property) {
				result.Affected = append(result.Affected, property)
			}
		}
		if !passed {
			result.Broken = append(result.Broken, domain.BrokenRule{
				Rule:       desc.Name,
				Severity:   desc.Severity,
				Message:    desc.Message,
				Properties: append([]string(nil), desc.Properties...),
			})
		}
	}
	return result, nil
}
