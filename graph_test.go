package domain_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	domain "github.com/goliatone/go-domain"
)

type Contact struct {
	domain.Object
	Email string `json:"email"`
}

type Parcel struct {
	domain.Object
	Weight float64 `json:"weight"`
}

func (p *Parcel) SetWeight(value float64) bool {
	return domain.SetFloat(p, "Weight", &p.Weight, value)
}

type Order struct {
	domain.Object
	Reference string                 `json:"reference"`
	Contact   *Contact               `json:"contact,omitempty"`
	Parcels   *domain.List[*Parcel] `json:"parcels"`
}

func (o *Order) DeclareChildren(b *domain.ChildrenBuilder) {
	domain.Child(b, "Contact", func(o *Order) *Contact { return o.Contact })
	domain.Child(b, "Parcels", func(o *Order) *domain.List[*Parcel] { return o.Parcels })
}

func orderProvider() *fakeProvider {
	provider := newProvider()
	provider.engines[reflect.TypeFor[*Parcel]()] = &fakeEngine{rules: []fakeRule{{
		name:       "weight_positive",
		properties: []string{"Weight"},
		message:    "weight must be positive",
		ok:         func(target any) bool { return target.(*Parcel).Weight > 0 },
	}}}
	return provider
}

func buildOrder(t *testing.T, provider domain.ValidationEngineProvider) *Order {
	t.Helper()
	order := &Order{Reference: "ORD-1", Contact: &Contact{Email: "ops@example.com"}, Parcels: domain.NewList[*Parcel]()}
	if err := order.Contact.Init(order.Contact, provider); err != nil {
		t.Fatalf("init contact: %v", err)
	}
	if err := order.Init(order, provider); err != nil {
		t.Fatalf("init order: %v", err)
	}
	for _, weight := range []float64{2, 0, 5} {
		parcel := &Parcel{Weight: weight}
		if err := parcel.Init(parcel, provider); err != nil {
			t.Fatalf("init parcel: %v", err)
		}
		if err := order.Parcels.Add(parcel); err != nil {
			t.Fatalf("add parcel: %v", err)
		}
	}
	if _, err := order.Parcels.RemoveAt(0); err != nil {
		t.Fatalf("remove parcel: %v", err)
	}
	return order
}

func TestInitHooksChildrenPresentAtConstruction(t *testing.T) {
	order := buildOrder(t, orderProvider())
	if order.Contact.Parent() != order || !order.Contact.IsChild() {
		t.Fatalf("expected contact to be owned by the order")
	}
	if order.Parcels.Parent() != order {
		t.Fatalf("expected parcels to be owned by the order")
	}
}

func TestReconstructRestoresGraph(t *testing.T) {
	provider := orderProvider()
	payload, err := json.Marshal(buildOrder(t, provider))
	if err != nil {
		t.Fatalf("marshal order: %v", err)
	}

	var decoded Order
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal order: %v", err)
	}
	if err := domain.Reconstruct(&decoded, provider); err != nil {
		t.Fatalf("reconstruct: %v", err)
	}

	if decoded.Reference != "ORD-1" || decoded.Parcels.Len() != 2 || len(decoded.Parcels.Deleted()) != 1 {
		t.Fatalf("expected decoded shape, got ref=%q len=%d deleted=%d", decoded.Reference, decoded.Parcels.Len(), len(decoded.Parcels.Deleted()))
	}
	if !decoded.Parcels.Deleted()[0].IsDeleted() {
		t.Fatalf("expected deleted parcel to be flagged deleted")
	}
	if decoded.Contact.Parent() != &decoded || decoded.Parcels.Parent() != &decoded {
		t.Fatalf("expected parent back-references to be restored")
	}
	first, _ := decoded.Parcels.At(0)
	if first.Parent() != decoded.Parcels || !first.IsChild() {
		t.Fatalf("expected parcel to be owned by the list")
	}
	if decoded.IsValid() {
		t.Fatalf("expected rules to be re-checked after reconstruction")
	}

	var events []domain.ChildChangedEvent
	decoded.OnChildChanged(func(e domain.ChildChangedEvent) { events = append(events, e) })
	first.SetWeight(1)
	if len(events) != 1 || !reflect.DeepEqual(events[0].Path, []string{"Parcels"}) {
		t.Fatalf("expected bubbling after reconstruction, got %+v", events)
	}
	if !decoded.IsValid() {
		t.Fatalf("expected order valid once parcel is fixed")
	}
}

func TestReconstructChecksRulesQuietly(t *testing.T) {
	provider := orderProvider()
	payload, err := json.Marshal(buildOrder(t, provider))
	if err != nil {
		t.Fatalf("marshal order: %v", err)
	}
	var decoded Order
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal order: %v", err)
	}

	var listEvents int
	decoded.Parcels.OnListChanged(func(domain.ListChangedEvent) { listEvents++ })
	if err := domain.Reconstruct(&decoded, provider); err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if listEvents != 0 {
		t.Fatalf("expected no list notifications while rules are re-checked, got %d", listEvents)
	}
	if decoded.IsValid() {
		t.Fatalf("expected rules to run during reconstruction")
	}

	first, _ := decoded.Parcels.At(0)
	first.SetWeight(3)
	if listEvents != 1 {
		t.Fatalf("expected notifications to resume after reconstruction, got %d", listEvents)
	}
}

func TestReconstructRequiresDependencies(t *testing.T) {
	var order *Order
	if err := domain.Reconstruct(order, orderProvider()); !errors.Is(err, domain.ErrMissingDependency) {
		t.Fatalf("expected ErrMissingDependency for nil root, got %v", err)
	}
	if err := domain.Reconstruct(&Order{}, nil); !errors.Is(err, domain.ErrMissingDependency) {
		t.Fatalf("expected ErrMissingDependency for nil provider, got %v", err)
	}
}

func TestWalkVisitsGraphDepthFirst(t *testing.T) {
	order := buildOrder(t, orderProvider())

	var paths []string
	var deleted []string
	err := domain.Walk(order, func(v domain.Visit) error {
		paths = append(paths, v.Path)
		if v.Deleted {
			deleted = append(deleted, v.Path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"", "Contact", "Parcels", "Parcels[0]", "Parcels[1]", "Parcels~deleted[0]"}
	if !reflect.DeepEqual(paths, want) {
		t.Fatalf("expected %v, got %v", want, paths)
	}
	if !reflect.DeepEqual(deleted, []string{"Parcels~deleted[0]"}) {
		t.Fatalf("expected deleted parcel flagged, got %v", deleted)
	}
}

func TestWalkSkipChildrenAndStop(t *testing.T) {
	order := buildOrder(t, orderProvider())

	var paths []string
	err := domain.Walk(order, func(v domain.Visit) error {
		paths = append(paths, v.Path)
		if v.Path == "Parcels" {
			return domain.SkipChildren
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(paths, []string{"", "Contact", "Parcels"}) {
		t.Fatalf("expected parcels to be skipped, got %v", paths)
	}

	stop := errors.New("stop")
	err = domain.Walk(order, func(v domain.Visit) error {
		if v.Path == "Contact" {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected walk to stop with callback error, got %v", err)
	}
}
