package state

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

var (
	ErrETagMismatch  = errors.New("state: etag mismatch")
	ErrNotFound      = errors.New("state: snapshot not found")
	ErrInvalidRef    = errors.New("state: invalid ref")
	ErrNothingToSave = errors.New("state: nothing to save")
	ErrInvalidGraph  = errors.New("state: graph is not valid")
)

// Ref identifies one persisted graph: its root kind and root identity.
type Ref struct {
	Kind string
	ID   string
}

// Identifier returns the canonical storage key, "kind/id" lower-cased.
func (r Ref) Identifier() (string, error) {
	kind := strings.ToLower(strings.TrimSpace(r.Kind))
	id := strings.ToLower(strings.TrimSpace(r.ID))
	if kind == "" || id == "" {
		return "", fmt.Errorf("%w: kind %q id %q", ErrInvalidRef, r.Kind, r.ID)
	}
	if strings.Contains(kind, "/") {
		return "", fmt.Errorf("%w: kind %q contains a slash", ErrInvalidRef, r.Kind)
	}
	return kind + "/" + id, nil
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitzero"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store loads, saves and deletes one serialized snapshot per Ref.
//
// Save and Delete compare meta.ETag with the stored one when both are set.
// Save returns the stored Meta with a fresh SnapshotID and ETag.
type Store interface {
	Load(ctx context.Context, ref Ref) (payload []byte, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, payload []byte, meta Meta) (Meta, error)
	Delete(ctx context.Context, ref Ref, meta Meta) error
}

func checkETag(expected, current string) error {
	if expected != "" && current != "" && expected != current {
		return fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, expected, current)
	}
	return nil
}

// ETag derives the entity tag of a payload.
func ETag(payload []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(payload))
}

// nextMeta is the Meta a store records for a successful save.
func nextMeta(stored, requested Meta, payload []byte, now time.Time) Meta {
	out := stored
	if requested.Extra != nil {
		out.Extra = requested.Extra
	}
	out.Extra = cloneExtra(out.Extra)
	out.SnapshotID = uuid.NewString()
	out.ETag = ETag(payload)
	out.UpdatedAt = now.UTC()
	return out
}

func cloneMeta(meta Meta) Meta {
	out := meta
	out.Extra = cloneExtra(meta.Extra)
	return out
}

func cloneExtra(extra map[string]string) map[string]string {
	if extra == nil {
		return nil
	}
	return maps.Clone(extra)
}
