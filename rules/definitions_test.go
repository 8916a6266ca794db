package rules_test

import (
	"errors"
	"os"
	"strings"
	"testing"

	domain "github.com/goliatone/go-domain"
	"github.com/goliatone/go-domain/rules"
)

func loadInvoiceRules(t *testing.T, engine *rules.Engine) {
	t.Helper()
	file, err := os.Open("testdata/invoice_rules.yaml")
	if err != nil {
		t.Fatalf("open rules: %v", err)
	}
	defer file.Close()
	doc, err := rules.LoadDefinitions(file)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if err := engine.Alias("invoice", &invoice{}); err != nil {
		t.Fatalf("alias: %v", err)
	}
	if err := doc.Apply(engine); err != nil {
		t.Fatalf("apply rules: %v", err)
	}
}

func TestLoadDefinitionsAppliesRules(t *testing.T) {
	engine := rules.NewEngine()
	loadInvoiceRules(t, engine)

	registered := engine.Rules(&invoice{})
	if len(registered) != 3 {
		t.Fatalf("expected three rules, got %d", len(registered))
	}
	engines := []string{}
	for _, rule := range registered {
		engines = append(engines, rule.Descriptor().Engine)
	}
	if strings.Join(engines, ",") != "expr,cel,tag" {
		t.Fatalf("unexpected engines %v", engines)
	}

	inv := newInvoice(t, engine)
	inv.SetNumber("INV-1")
	if !inv.IsValid() || inv.HasWarnings() {
		t.Fatalf("expected clean invoice, got %+v", inv.BrokenRules().All())
	}

	inv.SetAmount(-1)
	warnings := inv.BrokenRules().ForProperty("Amount")
	if len(warnings) != 1 || warnings[0].Severity != domain.SeverityWarning {
		t.Fatalf("expected amount warning, got %+v", inv.BrokenRules().All())
	}

	inv.SetStatus("void")
	if inv.IsValid() {
		t.Fatalf("expected unknown status to be invalid")
	}
}

func TestLoadDefinitionsRejectsUnknownKeys(t *testing.T) {
	_, err := rules.ParseDefinitions([]byte("types:\n  - type: invoice\n    rulez: []\n"))
	if err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
	doc, err := rules.ParseDefinitions(nil)
	if err != nil || len(doc.Types) != 0 {
		t.Fatalf("expected empty document, got %+v (%v)", doc, err)
	}
}

func TestApplyValidatesBeforeRegistering(t *testing.T) {
	engine := rules.NewEngine()
	if err := engine.Alias("invoice", &invoice{}); err != nil {
		t.Fatalf("alias: %v", err)
	}

	doc, err := rules.ParseDefinitions([]byte(`
types:
  - type: invoice
    rules:
      - name: ok
        expression: 'true'
      - name: broken
        expression: 'number =='
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := doc.Apply(engine); err == nil {
		t.Fatalf("expected compile error")
	}
	if len(engine.Rules(&invoice{})) != 0 {
		t.Fatalf("expected nothing registered after a failed apply")
	}

	doc = rules.Document{Types: []rules.TypeDefinition{{Type: "order"}}}
	if err := doc.Apply(engine); !errors.Is(err, rules.ErrInvalidDefinition) {
		t.Fatalf("expected unknown alias error, got %v", err)
	}

	doc = rules.Document{Types: []rules.TypeDefinition{{Type: "invoice", Rules: []rules.Definition{{Name: "x", Expression: "true", Severity: "fatal"}}}}}
	if err := doc.Apply(engine); !errors.Is(err, rules.ErrInvalidDefinition) {
		t.Fatalf("expected severity error, got %v", err)
	}

	doc, err = rules.ParseDefinitions([]byte(`
types:
  - type: invoice
    rules:
      - name: a
        expression: 'true'
  - type: invoice
    rules:
      - name: a
        expression: 'true'
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := doc.Apply(engine); !errors.Is(err, rules.ErrDuplicateRule) {
		t.Fatalf("expected duplicate rule error, got %v", err)
	}
	if len(engine.Rules(&invoice{})) != 0 {
		t.Fatalf("expected nothing registered after a duplicate, got %d", len(engine.Rules(&invoice{})))
	}
}
