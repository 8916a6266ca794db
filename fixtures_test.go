package domain_test

import (
	"reflect"
	"slices"
	"testing"
	"time"

	domain "github.com/goliatone/go-domain"
)

type fakeRule struct {
	name       string
	properties []string
	severity   domain.Severity
	message    string
	ok         func(target any) bool
}

type fakeEngine struct {
	rules []fakeRule
	calls int
}

func (e *fakeEngine) Check(target any, properties ...string) (domain.CheckResult, error) {
	e.calls++
	var result domain.CheckResult
	for _, rule := range e.rules {
		if len(properties) > 0 && !overlaps(rule.properties, properties) {
			continue
		}
		result.Evaluated = append(result.Evaluated, rule.name)
		for _, property := range rule.properties {
			if !slices.Contains(result.Affected, property) {
				result.Affected = append(result.Affected, property)
			}
		}
		if !rule.ok(target) {
			result.Broken = append(result.Broken, domain.BrokenRule{
				Rule:       rule.name,
				Severity:   rule.severity,
				Message:    rule.message,
				Properties: rule.properties,
			})
		}
	}
	return result, nil
}

func overlaps(a, b []string) bool {
	for _, item := range a {
		if slices.Contains(b, item) {
			return true
		}
	}
	return false
}

type fakeProvider struct {
	engines map[reflect.Type]*fakeEngine
}

func (p *fakeProvider) EngineFor(target any) (domain.ValidationEngine, error) {
	if engine, ok := p.engines[reflect.TypeOf(target)]; ok {
		return engine, nil
	}
	return &fakeEngine{}, nil
}

func newProvider() *fakeProvider {
	return &fakeProvider{engines: map[reflect.Type]*fakeEngine{
		reflect.TypeFor[*Invoice](): {rules: []fakeRule{
			{
				name:       "number_required",
				properties: []string{"Number"},
				message:    "number is required",
				ok:         func(target any) bool { return target.(*Invoice).number != "" },
			},
			{
				name:       "amount_not_negative",
				properties: []string{"Amount", "Status"},
				severity:   domain.SeverityWarning,
				message:    "amount is negative",
				ok:         func(target any) bool { return target.(*Invoice).amount >= 0 },
			},
		}},
		reflect.TypeFor[*Address](): {rules: []fakeRule{
			{
				name:       "city_required",
				properties: []string{"City"},
				ok:         func(target any) bool { return target.(*Address).city != "" },
			},
		}},
		reflect.TypeFor[*InvoiceLine](): {rules: []fakeRule{
			{
				name:       "quantity_positive",
				properties: []string{"Quantity"},
				message:    "quantity must be positive",
				ok:         func(target any) bool { return target.(*InvoiceLine).quantity > 0 },
			},
		}},
	}}
}

type Address struct {
	domain.Object
	street string
	city   string
}

func newAddress(t *testing.T, provider domain.ValidationEngineProvider, street, city string) *Address {
	t.Helper()
	a := &Address{street: street, city: city}
	if err := a.Init(a, provider); err != nil {
		t.Fatalf("init address: %v", err)
	}
	return a
}

func (a *Address) SetStreet(value string) bool {
	return domain.SetString(a, "Street", &a.street, value, domain.IgnoreSpace())
}

func (a *Address) SetCity(value string) bool {
	return domain.SetString(a, "City", &a.city, value)
}

type InvoiceLine struct {
	domain.Entity[InvoiceLine]
	product  string
	quantity int
	price    float64
}

func newLine(t *testing.T, provider domain.ValidationEngineProvider, id, product string, quantity int) *InvoiceLine {
	t.Helper()
	line := &InvoiceLine{product: product, quantity: quantity}
	var err error
	if id == "" {
		err = line.InitNew(line, provider)
	} else {
		err = line.InitPersisted(line, ptr(domain.MustIdentity[InvoiceLine](id)), domain.AuditTrail{}, provider)
	}
	if err != nil {
		t.Fatalf("init line: %v", err)
	}
	return line
}

func (l *InvoiceLine) Describe() string { return "Line " + l.product }

func (l *InvoiceLine) SetProduct(value string) bool {
	return domain.SetString(l, "Product", &l.product, value)
}

func (l *InvoiceLine) SetQuantity(value int) bool {
	return domain.SetProperty(l, "Quantity", &l.quantity, value)
}

func (l *InvoiceLine) SetPrice(value float64) bool {
	return domain.SetFloat(l, "Price", &l.price, value, domain.Precision(6))
}

type Invoice struct {
	domain.Entity[Invoice]
	number   string
	amount   float64
	issued   time.Time
	status   string
	note     *string
	customer *Address
	lines    *domain.List[*InvoiceLine]
}

func (i *Invoice) DeclareChildren(b *domain.ChildrenBuilder) {
	domain.Child(b, "Customer", func(i *Invoice) *Address { return i.customer })
	domain.Child(b, "Lines", func(i *Invoice) *domain.List[*InvoiceLine] { return i.lines })
}

func (i *Invoice) Describe() string {
	if i.number == "" {
		return ""
	}
	return "Invoice " + i.number
}

func newInvoice(t *testing.T, provider domain.ValidationEngineProvider, opts ...domain.ObjectOption) *Invoice {
	t.Helper()
	inv := &Invoice{number: "INV-1", lines: domain.NewList[*InvoiceLine]()}
	if err := inv.InitNew(inv, provider, opts...); err != nil {
		t.Fatalf("init invoice: %v", err)
	}
	return inv
}

func (i *Invoice) SetNumber(value string) bool {
	return domain.SetString(i, "Number", &i.number, value, domain.IgnoreCase(), domain.IgnoreSpace())
}

func (i *Invoice) SetAmount(value float64) bool {
	return domain.SetFloat(i, "Amount", &i.amount, value, domain.Precision(4))
}

func (i *Invoice) SetIssued(value time.Time) bool {
	return domain.SetTime(i, "Issued", &i.issued, value, domain.DateOnly())
}

func (i *Invoice) SetNote(value *string) bool {
	return domain.SetNullable(i, "Note", &i.note, value)
}

func (i *Invoice) SetCustomer(value *Address) bool {
	return domain.SetChild(i, "Customer", &i.customer, value)
}

func (i *Invoice) Post() {
	if domain.SetProperty(i, "Status", &i.status, "posted") {
		i.LockProperty("Number", "Amount")
	}
}

type eventLog struct {
	entries []string
}

func (l *eventLog) changing(e domain.PropertyChangeEvent) {
	for _, property := range e.Properties {
		l.entries = append(l.entries, "changing:"+property)
	}
}

func (l *eventLog) changed(e domain.PropertyChangeEvent) {
	for _, property := range e.Properties {
		l.entries = append(l.entries, "changed:"+property)
	}
}

func watch(o interface {
	OnPropertyChanging(domain.PropertyHandler) domain.Subscription
	OnPropertyChanged(domain.PropertyHandler) domain.Subscription
}) *eventLog {
	log := &eventLog{}
	o.OnPropertyChanging(log.changing)
	o.OnPropertyChanged(log.changed)
	return log
}

func ptr[T any](value T) *T {
	return &value
}
