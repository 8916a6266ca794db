package activity

import (
	"strings"
	"time"

	domain "github.com/goliatone/go-domain"
)

// Entity lifecycle verbs.
const (
	VerbEntityCreated = "entity.created"
	VerbEntityUpdated = "entity.updated"
	VerbEntityDeleted = "entity.deleted"
)

// EntityEventInput carries the fields shared by every event of one save.
type EntityEventInput struct {
	ActorID        string
	UserID         string
	TenantID       string
	Channel        string
	DefinitionCode string
	Recipients     []string
	Metadata       map[string]any
	OccurredAt     time.Time
}

// Change is one entity a save creates, updates or deletes.
type Change struct {
	Verb       string
	Path       string
	ObjectType string
	Node       domain.EntityNode
}

// CollectChanges walks root and classifies every entity in it. Deleted
// entities that were never persisted are dropped along with their children;
// the children of a deleted entity are not reported separately. Call it
// before identities are assigned to new entities.
func CollectChanges(root domain.Node) []Change {
	var changes []Change
	_ = domain.Walk(root, func(v domain.Visit) error {
		entity, ok := v.Node.(domain.EntityNode)
		if !ok {
			return nil
		}
		change := Change{Path: v.Path, ObjectType: ObjectType(entity), Node: entity}
		switch {
		case v.Deleted || isDeleted(entity):
			if entity.IsNew() {
				return domain.SkipChildren
			}
			change.Verb = VerbEntityDeleted
			changes = append(changes, change)
			return domain.SkipChildren
		case entity.IsNew():
			change.Verb = VerbEntityCreated
		case isSelfDirty(entity):
			change.Verb = VerbEntityUpdated
		default:
			return nil
		}
		changes = append(changes, change)
		return nil
	})
	return changes
}

func isDeleted(node domain.Node) bool {
	d, ok := node.(interface{ IsDeleted() bool })
	return ok && d.IsDeleted()
}

func isSelfDirty(node domain.Node) bool {
	d, ok := node.(interface{ IsSelfDirty() bool })
	return ok && d.IsSelfDirty()
}

// ObjectType derives the activity object type of a node, "invoice_line" for
// an InvoiceLine.
func ObjectType(node any) string {
	words := strings.Fields(domain.SplitWords(domain.TypeName(node)))
	return strings.ToLower(strings.Join(words, "_"))
}

// Event builds the activity event for the change. Identities must already be
// assigned.
func (c Change) Event(input EntityEventInput) Event {
	objectID := ""
	if c.Node != nil {
		objectID = c.Node.IdentityKey()
	}
	return BuildEntityEvent(c.Verb, c.ObjectType, objectID, c.Path, input)
}

// BuildEntityCreatedEvent constructs a normalized activity event for a created entity.
func BuildEntityCreatedEvent(objectType, objectID string, input EntityEventInput) Event {
	return BuildEntityEvent(VerbEntityCreated, objectType, objectID, "", input)
}

// BuildEntityUpdatedEvent constructs a normalized activity event for an updated entity.
func BuildEntityUpdatedEvent(objectType, objectID string, input EntityEventInput) Event {
	return BuildEntityEvent(VerbEntityUpdated, objectType, objectID, "", input)
}

// BuildEntityDeletedEvent constructs a normalized activity event for a deleted entity.
func BuildEntityDeletedEvent(objectType, objectID string, input EntityEventInput) Event {
	return BuildEntityEvent(VerbEntityDeleted, objectType, objectID, "", input)
}

// BuildEntityEvent constructs an entity event. path is the position of the
// entity inside its saved graph, empty for the root.
func BuildEntityEvent(verb, objectType, objectID, path string, input EntityEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if path != "" {
		metadata = ensureMetadata(metadata)
		metadata["path"] = path
	}

	recipients := input.Recipients
	if len(recipients) > 0 {
		recipients = append([]string{}, input.Recipients...)
	}

	return Event{
		Verb:           verb,
		ActorID:        strings.TrimSpace(input.ActorID),
		UserID:         strings.TrimSpace(input.UserID),
		TenantID:       strings.TrimSpace(input.TenantID),
		ObjectType:     strings.TrimSpace(objectType),
		ObjectID:       strings.TrimSpace(objectID),
		Channel:        strings.TrimSpace(input.Channel),
		DefinitionCode: strings.TrimSpace(input.DefinitionCode),
		Recipients:     recipients,
		Metadata:       metadata,
		OccurredAt:     input.OccurredAt,
	}
}

// Events builds one event per change.
func Events(changes []Change, input EntityEventInput) []Event {
	events := make([]Event, 0, len(changes))
	for _, change := range changes {
		events = append(events, change.Event(input))
	}
	return events
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
