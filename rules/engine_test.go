package rules_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	domain "github.com/goliatone/go-domain"
	"github.com/goliatone/go-domain/rules"
)

type invoice struct {
	domain.Entity[invoice]
	number string
	amount float64
	status string
}

func (i *invoice) RuleSnapshot() map[string]any {
	return map[string]any{"number": i.number, "amount": i.amount, "status": i.status}
}

func (i *invoice) SetNumber(value string) bool {
	return domain.SetString(i, "Number", &i.number, value, domain.IgnoreSpace())
}

func (i *invoice) SetAmount(value float64) bool {
	return domain.SetFloat(i, "Amount", &i.amount, value)
}

func (i *invoice) SetStatus(value string) bool {
	return domain.SetString(i, "Status", &i.status, value)
}

func newInvoice(t *testing.T, provider domain.ValidationEngineProvider) *invoice {
	t.Helper()
	inv := &invoice{status: "draft"}
	if err := inv.InitNew(inv, provider); err != nil {
		t.Fatalf("init invoice: %v", err)
	}
	return inv
}

func mustCompile(t *testing.T, engine *rules.Engine, desc rules.Descriptor) rules.Rule {
	t.Helper()
	rule, err := engine.Compile(desc, "")
	if err != nil {
		t.Fatalf("compile %s: %v", desc.Name, err)
	}
	return rule
}

func invoiceEngine(t *testing.T, opts ...rules.EngineOption) *rules.Engine {
	t.Helper()
	engine := rules.NewEngine(opts...)
	numberRequired := mustCompile(t, engine, rules.Descriptor{
		Name:       "number_required",
		Expression: `number != ""`,
		Properties: []string{"Number"},
		Message:    "invoice number is required",
	})
	amountCheck, err := rules.NewRule(rules.Descriptor{
		Name:       "posted_amount_positive",
		Severity:   domain.SeverityWarning,
		Properties: []string{"Amount", "Status"},
		Message:    "posted invoices should carry an amount",
	}, rules.Predicate(func(inv *invoice) bool {
		return inv.status != "posted" || inv.amount > 0
	}))
	if err != nil {
		t.Fatalf("new rule: %v", err)
	}
	if err := rules.RegisterFor[*invoice](engine, numberRequired, amountCheck); err != nil {
		t.Fatalf("register: %v", err)
	}
	return engine
}

func TestEngineDrivesDomainObjectValidity(t *testing.T) {
	inv := newInvoice(t, invoiceEngine(t))

	if inv.IsValid() {
		t.Fatalf("expected new invoice without number to be invalid")
	}
	broken := inv.BrokenRules().ForProperty("Number")
	if len(broken) != 1 || broken[0].Message != "invoice number is required" {
		t.Fatalf("expected number_required to be broken, got %+v", broken)
	}

	inv.SetNumber("INV-1")
	if !inv.IsValid() || inv.HasWarnings() {
		t.Fatalf("expected valid invoice, got %+v", inv.BrokenRules().All())
	}

	inv.SetStatus("posted")
	if !inv.IsValid() || !inv.HasWarnings() {
		t.Fatalf("expected warning after posting without amount, got %+v", inv.BrokenRules().All())
	}
	if !inv.IsSavable() {
		t.Fatalf("expected warnings not to block saving")
	}

	inv.SetAmount(10)
	if inv.HasWarnings() {
		t.Fatalf("expected warning cleared, got %+v", inv.BrokenRules().All())
	}
}

func TestEngineReportsAffectedProperties(t *testing.T) {
	inv := newInvoice(t, invoiceEngine(t))

	var changed []string
	inv.OnPropertyChanged(func(e domain.PropertyChangeEvent) {
		changed = append(changed, e.Properties...)
	})
	inv.SetAmount(3)
	if strings.Join(changed, ",") != "Amount,Status" {
		t.Fatalf("expected Amount and Status change notifications, got %v", changed)
	}
}

func TestEngineRecordsEvaluationFailures(t *testing.T) {
	engine := rules.NewEngine()
	rule := mustCompile(t, engine, rules.Descriptor{
		Name:       "amount_plus_one",
		Expression: `amount + 1`,
		Properties: []string{"Amount"},
	})
	if err := engine.Register(&invoice{}, rule); err != nil {
		t.Fatalf("register: %v", err)
	}

	inv := newInvoice(t, engine)
	all := inv.BrokenRules().All()
	if len(all) != 1 || all[0].Rule != domain.EngineFailureRule {
		t.Fatalf("expected engine failure rule, got %+v", all)
	}
	if !strings.Contains(all[0].Message, "amount_plus_one") {
		t.Fatalf("expected rule name in failure message, got %q", all[0].Message)
	}
}

func TestEngineCheckReturnsEvaluationError(t *testing.T) {
	engine := rules.NewEngine()
	rule := mustCompile(t, engine, rules.Descriptor{Name: "not_bool", Expression: `amount`, Properties: []string{"Amount"}})
	if err := rules.RegisterFor[*invoice](engine, rule); err != nil {
		t.Fatalf("register: %v", err)
	}
	checker, err := engine.EngineFor(&invoice{})
	if err != nil {
		t.Fatalf("engine for: %v", err)
	}
	_, err = checker.Check(&invoice{amount: 1})
	var evalErr *rules.EvaluationError
	if !errors.As(err, &evalErr) || evalErr.Rule != "not_bool" || !errors.Is(err, rules.ErrNotBoolean) {
		t.Fatalf("expected EvaluationError wrapping ErrNotBoolean, got %v", err)
	}
}

func TestEngineCheckFiltersByProperty(t *testing.T) {
	engine := invoiceEngine(t)
	checker, err := engine.EngineFor(&invoice{})
	if err != nil {
		t.Fatalf("engine for: %v", err)
	}
	result, err := checker.Check(&invoice{status: "posted"}, "Number")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(result.Evaluated) != 1 || result.Evaluated[0] != "number_required" {
		t.Fatalf("expected only number_required evaluated, got %v", result.Evaluated)
	}
	result, err = checker.Check(&invoice{status: "posted"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(result.Evaluated) != 2 || len(result.Broken) != 2 {
		t.Fatalf("expected every rule evaluated and broken, got %+v", result)
	}
}

func TestEngineRejectsDuplicateRules(t *testing.T) {
	engine := invoiceEngine(t)
	rule := mustCompile(t, engine, rules.Descriptor{Name: "number_required", Expression: `true`})
	if err := rules.RegisterFor[*invoice](engine, rule); !errors.Is(err, rules.ErrDuplicateRule) {
		t.Fatalf("expected ErrDuplicateRule, got %v", err)
	}
	if len(engine.Rules(&invoice{})) != 2 {
		t.Fatalf("expected registry unchanged")
	}
}

func TestEngineStrictTypes(t *testing.T) {
	engine := rules.NewEngine(rules.WithStrictTypes())
	if _, err := engine.EngineFor(&invoice{}); !errors.Is(err, rules.ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	lenient := rules.NewEngine()
	checker, err := lenient.EngineFor(&invoice{})
	if err != nil {
		t.Fatalf("expected lenient engine, got %v", err)
	}
	result, err := checker.Check(&invoice{})
	if err != nil || len(result.Evaluated) != 0 {
		t.Fatalf("expected empty result, got %+v (%v)", result, err)
	}
}

func TestEngineUnknownEvaluator(t *testing.T) {
	engine := rules.NewEngine(rules.WithEvaluator("cel", nil))
	if _, err := engine.Compile(rules.Descriptor{Name: "x", Engine: "cel", Expression: "true"}, ""); !errors.Is(err, rules.ErrNoEvaluator) {
		t.Fatalf("expected ErrNoEvaluator, got %v", err)
	}
}

func TestEngineClockAndCustomFunctions(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	engine := rules.NewEngine(
		rules.WithClock(func() time.Time { return fixed }),
		rules.WithCustomFunction("prefixed", func(args ...any) (any, error) {
			value, _ := args[0].(string)
			return strings.HasPrefix(value, "INV-"), nil
		}),
	)
	rule := mustCompile(t, engine, rules.Descriptor{
		Name:       "number_format",
		Expression: `prefixed(number) && now.Year() == 2026 && typeName == "invoice"`,
		Properties: []string{"Number"},
	})
	if err := rules.RegisterFor[*invoice](engine, rule); err != nil {
		t.Fatalf("register: %v", err)
	}
	inv := newInvoice(t, engine)
	if inv.IsValid() {
		t.Fatalf("expected empty number to fail the format rule")
	}
	inv.SetNumber("INV-7")
	if !inv.IsValid() {
		t.Fatalf("expected prefixed number to pass, got %+v", inv.BrokenRules().All())
	}
}

func TestTagRules(t *testing.T) {
	engine := rules.NewEngine()
	rule, err := engine.Compile(rules.Descriptor{
		Name:       "number_length",
		Engine:     "tag",
		Expression: "required,min=3",
		Properties: []string{"Number"},
	}, "number")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if rule.Descriptor().Engine != "tag" {
		t.Fatalf("expected tag engine, got %q", rule.Descriptor().Engine)
	}
	if err := rules.RegisterFor[*invoice](engine, rule); err != nil {
		t.Fatalf("register: %v", err)
	}
	inv := newInvoice(t, engine)
	inv.SetNumber("I1")
	if inv.IsValid() {
		t.Fatalf("expected short number to be invalid")
	}
	inv.SetNumber("INV-1")
	if !inv.IsValid() {
		t.Fatalf("expected number to pass, got %+v", inv.BrokenRules().All())
	}

	_, err = engine.Compile(rules.Descriptor{Name: "bogus", Engine: "tag", Expression: "no_such_tag"}, "number")
	if !errors.Is(err, rules.ErrInvalidDefinition) {
		t.Fatalf("expected undefined tag to be rejected, got %v", err)
	}
}

func TestLoggers(t *testing.T) {
	var events []rules.EvaluationEvent
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	registry := prometheus.NewRegistry()

	engine := invoiceEngine(t, rules.WithLogger(rules.MultiLogger(
		rules.LoggerFunc(func(e rules.EvaluationEvent) { events = append(events, e) }),
		rules.NewSlogLogger(logger),
		rules.NewMetricsLogger(registry),
		nil,
	)))
	inv := newInvoice(t, engine)
	inv.SetNumber("INV-1")

	if len(events) != 3 {
		t.Fatalf("expected three evaluations, got %d", len(events))
	}
	if events[0].Rule != "number_required" || events[0].Outcome() != "broken" || events[0].Type != "invoice" {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[2].Outcome() != "passed" || events[2].Engine != "expr" {
		t.Fatalf("unexpected last event %+v", events[2])
	}
	if !strings.Contains(buf.String(), "rule=number_required") {
		t.Fatalf("expected slog output, got %q", buf.String())
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, family := range families {
		if family.GetName() != "domain_rules_evaluations_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	if total != 3 {
		t.Fatalf("expected 3 counted evaluations, got %v", total)
	}
}
