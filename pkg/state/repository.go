package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domain "github.com/goliatone/go-domain"
	"github.com/goliatone/go-domain/pkg/activity"
	"github.com/google/uuid"
)

// Root is the constraint on graphs a Repository persists: a pointer to a
// struct embedding domain.Entity.
type Root interface {
	domain.Holder
	domain.EntityNode
	IsDeleted() bool
	IsSelfDirty() bool
	MarkNew()
}

// InvalidGraphError is returned when a save is refused because rules are
// broken somewhere in the graph.
type InvalidGraphError struct {
	Kind string
	Tree *domain.BrokenRulesNode
}

func (e *InvalidGraphError) Error() string {
	if e.Tree == nil {
		return fmt.Sprintf("state: %s graph is not valid", e.Kind)
	}
	return fmt.Sprintf("state: %s graph is not valid:\n%s", e.Kind, e.Tree.String())
}

func (e *InvalidGraphError) Unwrap() error { return ErrInvalidGraph }

// SaveInput carries the caller side of a save: who saves, the ETag the
// caller last saw and extra event metadata.
type SaveInput struct {
	ActorID  string
	UserID   string
	TenantID string
	ETag     string
	Extra    map[string]string
	Metadata map[string]any
}

func (in SaveInput) eventInput(at time.Time) activity.EntityEventInput {
	return activity.EntityEventInput{
		ActorID:    in.ActorID,
		UserID:     in.UserID,
		TenantID:   in.TenantID,
		Metadata:   in.Metadata,
		OccurredAt: at,
	}
}

type repositoryConfig struct {
	kind    string
	logger  *slog.Logger
	emitter *activity.Emitter
	now     func() time.Time
	newID   func() string
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*repositoryConfig)

// WithKind overrides the stored kind, derived from the root type by default.
func WithKind(kind string) RepositoryOption {
	return func(c *repositoryConfig) { c.kind = kind }
}

// WithLogger logs save, load and delete outcomes.
func WithLogger(logger *slog.Logger) RepositoryOption {
	return func(c *repositoryConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithEmitter emits entity activity after every successful save or delete.
func WithEmitter(emitter *activity.Emitter) RepositoryOption {
	return func(c *repositoryConfig) { c.emitter = emitter }
}

// WithClock overrides the clock used for audit stamps and events.
func WithClock(now func() time.Time) RepositoryOption {
	return func(c *repositoryConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator overrides the identity keys given to new entities.
// Defaults to random UUIDs.
func WithIDGenerator(next func() string) RepositoryOption {
	return func(c *repositoryConfig) {
		if next != nil {
			c.newID = next
		}
	}
}

// Repository saves and loads whole graphs rooted at T.
type Repository[T Root] struct {
	store    Store
	provider domain.ValidationEngineProvider
	newRoot  func() T
	repositoryConfig
}

// NewRepository builds a repository. newRoot returns an empty root to
// decode into, for example func() *Invoice { return &Invoice{} }.
func NewRepository[T Root](store Store, provider domain.ValidationEngineProvider, newRoot func() T, opts ...RepositoryOption) (*Repository[T], error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store", domain.ErrMissingDependency)
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: validation engine provider", domain.ErrMissingDependency)
	}
	if newRoot == nil {
		return nil, fmt.Errorf("%w: root factory", domain.ErrMissingDependency)
	}
	cfg := repositoryConfig{
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.kind == "" {
		cfg.kind = activity.ObjectType(newRoot())
	}
	return &Repository[T]{store: store, provider: provider, newRoot: newRoot, repositoryConfig: cfg}, nil
}

// Kind returns the kind under which graphs are stored.
func (r *Repository[T]) Kind() string { return r.kind }

// Save persists root. A deleted root is removed from the store. Otherwise
// the graph must be valid and dirty; new entities get identities, changed
// ones an audit stamp, and the whole graph is marked clean with deleted
// list items dropped. If the store fails the graph is rolled back.
func (r *Repository[T]) Save(ctx context.Context, root T, input SaveInput) (Meta, error) {
	if root.IsDeleted() {
		return Meta{}, r.deleteRoot(ctx, root, input)
	}
	if !root.IsValid() {
		err := &InvalidGraphError{Kind: r.kind, Tree: root.BrokenRulesTree(false)}
		r.logger.Warn("save refused", "kind", r.kind, "id", root.IdentityKey(), "error", err)
		return Meta{}, err
	}
	if !root.IsNew() && !root.IsDirty() {
		return Meta{}, ErrNothingToSave
	}

	cp := domain.NewCheckpoint(root)
	changes := activity.CollectChanges(root)
	now := r.now()

	meta, err := r.persist(ctx, root, input, now)
	if err != nil {
		cp.Rollback()
		r.logger.Error("save failed", "kind", r.kind, "error", err)
		return Meta{}, err
	}

	r.logger.Info("graph saved",
		"kind", r.kind,
		"id", root.IdentityKey(),
		"snapshot_id", meta.SnapshotID,
		"changes", len(changes),
	)
	r.emit(ctx, activity.Events(changes, input.eventInput(now)))
	return meta, nil
}

func (r *Repository[T]) persist(ctx context.Context, root T, input SaveInput, now time.Time) (Meta, error) {
	if err := r.stamp(root, input.ActorID, now); err != nil {
		return Meta{}, err
	}
	domain.MarkGraphClean(root)

	env, err := Capture(r.kind, root)
	if err != nil {
		return Meta{}, err
	}
	payload, err := env.Marshal()
	if err != nil {
		return Meta{}, fmt.Errorf("state: encode envelope: %w", err)
	}
	ref := Ref{Kind: r.kind, ID: root.IdentityKey()}
	return r.store.Save(ctx, ref, payload, Meta{ETag: input.ETag, Extra: input.Extra})
}

// stamp assigns identities to new entities and touches the audit trail of
// every entity that is new or changed. Deleted items are skipped.
func (r *Repository[T]) stamp(root T, actor string, now time.Time) error {
	return domain.Walk(root, func(v domain.Visit) error {
		if v.Deleted {
			return domain.SkipChildren
		}
		entity, ok := v.Node.(domain.EntityNode)
		if !ok {
			return nil
		}
		switch {
		case entity.IsNew():
			if err := entity.AssignIdentityKey(r.newID()); err != nil {
				return fmt.Errorf("state: assign identity at %q: %w", v.Path, err)
			}
			entity.Touch(actor, now)
		case isSelfDirty(entity):
			entity.Touch(actor, now)
		}
		return nil
	})
}

func isSelfDirty(node domain.Node) bool {
	d, ok := node.(interface{ IsSelfDirty() bool })
	return ok && d.IsSelfDirty()
}

func (r *Repository[T]) deleteRoot(ctx context.Context, root T, input SaveInput) error {
	if root.IsNew() {
		return ErrNothingToSave
	}
	id := root.IdentityKey()
	if err := r.store.Delete(ctx, Ref{Kind: r.kind, ID: id}, Meta{ETag: input.ETag}); err != nil {
		r.logger.Error("delete failed", "kind", r.kind, "id", id, "error", err)
		return err
	}
	events := activity.Events(activity.CollectChanges(root), input.eventInput(r.now()))
	root.MarkNew()
	r.logger.Info("graph deleted", "kind", r.kind, "id", id)
	r.emit(ctx, events)
	return nil
}

// Delete removes a stored graph without loading it.
func (r *Repository[T]) Delete(ctx context.Context, id string, input SaveInput) error {
	if err := r.store.Delete(ctx, Ref{Kind: r.kind, ID: id}, Meta{ETag: input.ETag}); err != nil {
		r.logger.Error("delete failed", "kind", r.kind, "id", id, "error", err)
		return err
	}
	r.logger.Info("graph deleted", "kind", r.kind, "id", id)
	r.emit(ctx, []activity.Event{activity.BuildEntityDeletedEvent(r.kind, id, input.eventInput(r.now()))})
	return nil
}

// Load reads the graph stored under id. The result is clean, bound to the
// repository's validation provider and has its rules checked.
func (r *Repository[T]) Load(ctx context.Context, id string) (T, Meta, error) {
	var zero T
	payload, meta, ok, err := r.store.Load(ctx, Ref{Kind: r.kind, ID: id})
	if err != nil {
		return zero, Meta{}, err
	}
	if !ok {
		return zero, Meta{}, fmt.Errorf("%w: %s/%s", ErrNotFound, r.kind, id)
	}
	env, err := UnmarshalEnvelope(payload)
	if err != nil {
		return zero, Meta{}, err
	}
	if env.Kind != r.kind {
		return zero, Meta{}, fmt.Errorf("state: stored kind %q does not match %q", env.Kind, r.kind)
	}
	root := r.newRoot()
	if err := env.Restore(root, r.provider); err != nil {
		return zero, Meta{}, err
	}
	r.logger.Debug("graph loaded", "kind", r.kind, "id", id, "snapshot_id", meta.SnapshotID)
	return root, meta, nil
}

// emit sends events; the save already succeeded, so failures are only logged.
func (r *Repository[T]) emit(ctx context.Context, events []activity.Event) {
	if len(events) == 0 || !r.emitter.Enabled() {
		return
	}
	if err := r.emitter.EmitAll(ctx, events); err != nil {
		r.logger.Warn("activity emission failed", "kind", r.kind, "error", err)
	}
}

// IsInvalidGraph reports whether err refused a save for broken rules and
// returns the broken rules tree.
func IsInvalidGraph(err error) (*domain.BrokenRulesNode, bool) {
	var invalid *InvalidGraphError
	if errors.As(err, &invalid) {
		return invalid.Tree, true
	}
	return nil, false
}
