package state_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/goliatone/go-domain"
	"github.com/goliatone/go-domain/pkg/activity"
	"github.com/goliatone/go-domain/pkg/state"
	"github.com/goliatone/go-domain/rules"
)

type invoice struct {
	domain.Entity[invoice]
	Number string                     `json:"number"`
	Lines  *domain.List[*invoiceLine] `json:"lines"`
}

func (i *invoice) DeclareChildren(b *domain.ChildrenBuilder) {
	domain.Child(b, "Lines", func(i *invoice) *domain.List[*invoiceLine] { return i.Lines })
}

func (i *invoice) SetNumber(value string) bool {
	return domain.SetString(i, "Number", &i.Number, value)
}

type invoiceLine struct {
	domain.Entity[invoiceLine]
	SKU string  `json:"sku"`
	Qty float64 `json:"qty"`
}

func (l *invoiceLine) SetQty(value float64) bool {
	return domain.SetFloat(l, "Qty", &l.Qty, value)
}

var fixedNow = time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)

func invoiceRules(t *testing.T) *rules.Engine {
	t.Helper()
	engine := rules.NewEngine()
	numberRequired, err := rules.NewRule(rules.Descriptor{
		Name:       "number_required",
		Properties: []string{"Number"},
		Message:    "invoice number is required",
	}, rules.Predicate(func(inv *invoice) bool { return inv.Number != "" }))
	require.NoError(t, err)
	qtyPositive, err := rules.NewRule(rules.Descriptor{
		Name:       "qty_positive",
		Properties: []string{"Qty"},
		Message:    "quantity must be positive",
	}, rules.Predicate(func(line *invoiceLine) bool { return line.Qty > 0 }))
	require.NoError(t, err)
	require.NoError(t, rules.RegisterFor[*invoice](engine, numberRequired))
	require.NoError(t, rules.RegisterFor[*invoiceLine](engine, qtyPositive))
	return engine
}

func newInvoice(t *testing.T, provider domain.ValidationEngineProvider, number string, qtys ...float64) *invoice {
	t.Helper()
	inv := &invoice{Number: number, Lines: domain.NewList[*invoiceLine]()}
	require.NoError(t, inv.InitNew(inv, provider))
	for i, qty := range qtys {
		line := &invoiceLine{SKU: fmt.Sprintf("SKU-%d", i+1), Qty: qty}
		require.NoError(t, line.InitNew(line, provider))
		require.NoError(t, inv.Lines.Add(line))
	}
	return inv
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type harness struct {
	store    *state.MemoryStore
	provider *rules.Engine
	capture  *activity.CaptureHook
	repo     *state.Repository[*invoice]
}

func newHarness(t *testing.T, store state.Store) harness {
	t.Helper()
	h := harness{provider: invoiceRules(t), capture: &activity.CaptureHook{}}
	if store == nil {
		h.store = state.NewMemoryStore()
		store = h.store
	}
	repo, err := state.NewRepository(store, h.provider, func() *invoice { return &invoice{} },
		state.WithClock(func() time.Time { return fixedNow }),
		state.WithIDGenerator(sequentialIDs()),
		state.WithEmitter(activity.NewEmitter(activity.Hooks{h.capture}, activity.Config{Enabled: true})),
	)
	require.NoError(t, err)
	h.repo = repo
	return h
}

// flakyStore fails saves while fail is set.
type flakyStore struct {
	state.Store
	fail bool
}

var errStoreDown = errors.New("store down")

func (s *flakyStore) Save(ctx context.Context, ref state.Ref, payload []byte, meta state.Meta) (state.Meta, error) {
	if s.fail {
		return state.Meta{}, errStoreDown
	}
	return s.Store.Save(ctx, ref, payload, meta)
}
