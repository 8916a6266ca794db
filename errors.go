package domain

import "errors"

var (
	// ErrMissingDependency reports a required collaborator that was not supplied.
	ErrMissingDependency = errors.New("domain: missing dependency")
	// ErrInvalidIdentity reports an empty or whitespace identity key.
	ErrInvalidIdentity = errors.New("domain: invalid identity")
	// ErrMissingIdentity reports a persisted entity constructed without identity.
	ErrMissingIdentity = errors.New("domain: persisted entity requires identity")
	// ErrChildDelete reports a direct delete on a child object.
	ErrChildDelete = errors.New("domain: child objects are deleted through their owning list")
	// ErrRemoveNotAllowed reports a removal on a list that disallows it.
	ErrRemoveNotAllowed = errors.New("domain: list does not allow removal")
	// ErrNewNotAllowed reports an AddNew on a list that disallows it.
	ErrNewNotAllowed = errors.New("domain: list does not allow new items")
	// ErrEditNotAllowed reports an insertion or replacement on a read-only list.
	ErrEditNotAllowed = errors.New("domain: list does not allow edits")
	// ErrNoFactory reports a list asked to create an item without a factory.
	ErrNoFactory = errors.New("domain: list factory not configured")
	// ErrIndexOutOfRange reports a list index outside the visible items.
	ErrIndexOutOfRange = errors.New("domain: index out of range")
	// ErrDuplicateChild reports a child field declared twice for one type.
	ErrDuplicateChild = errors.New("domain: duplicate child field")
	// ErrDuplicateItem reports an item added to a list that already holds it.
	ErrDuplicateItem = errors.New("domain: item already in list")
	// ErrDuplicateKey reports two external merge items sharing a key.
	ErrDuplicateKey = errors.New("domain: duplicate merge key")
)
