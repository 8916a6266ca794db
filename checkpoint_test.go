package domain_test

import (
	"testing"
	"time"

	domain "github.com/goliatone/go-domain"
)

func TestMarkGraphCleanAndRollback(t *testing.T) {
	order := buildOrder(t, orderProvider())
	cp := domain.NewCheckpoint(order)

	domain.MarkGraphClean(order)
	if order.IsDirty() {
		t.Fatalf("expected clean graph")
	}
	if len(order.Parcels.Deleted()) != 0 {
		t.Fatalf("expected deleted parcels to be forgotten")
	}

	cp.Rollback()
	if !order.IsSelfDirty() || !order.IsDirty() {
		t.Fatalf("expected dirty flags restored")
	}
	deleted := order.Parcels.Deleted()
	if len(deleted) != 1 || !deleted[0].IsDeleted() {
		t.Fatalf("expected deleted parcel restored, got %d", len(deleted))
	}
	first, _ := order.Parcels.At(0)
	if !first.IsSelfDirty() {
		t.Fatalf("expected item flags restored")
	}
}

func TestCheckpointRestoresIdentityAndAudit(t *testing.T) {
	provider := newProvider()
	inv := newInvoice(t, provider)
	line := newLine(t, provider, "", "widget", 2)
	if err := inv.lines.Add(line); err != nil {
		t.Fatalf("add line: %v", err)
	}

	cp := domain.NewCheckpoint(inv)
	at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	if err := line.AssignIdentityKey("line-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	line.Touch("alice", at)
	inv.Touch("alice", at)

	cp.Rollback()
	if !line.IsNew() || line.IdentityKey() != "" {
		t.Fatalf("expected identity to be dropped, got %q", line.IdentityKey())
	}
	if !line.Audit().IsZero() || !inv.Audit().IsZero() {
		t.Fatalf("expected audit trails restored")
	}

	var nilCheckpoint *domain.Checkpoint
	nilCheckpoint.Rollback()
}
