package domain

import (
	"context"
	"time"
)

// Bookkeeping fields stamped on entity documents by the write path.
const (
	FieldCreated             = "created"
	FieldChanged             = "changed"
	FieldTimestamp           = "timestamp"
	FieldLastModifiedBy      = "lastModifiedBy"
	FieldLastModifiedByEmail = "lastModifiedByEmail"
)

// Document is a business entity stored in a named collection
// ("utenti", "anagrafica_clienti", "documenti", ...).
type Document struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Data       Snapshot  `json:"data"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ChangeEvent is the committed before/after pair of one document write.
// Before is nil on create, After is nil on delete.
type ChangeEvent struct {
	Collection  string    `json:"collection"`
	DocumentID  string    `json:"documentId"`
	Before      Snapshot  `json:"before"`
	After       Snapshot  `json:"after"`
	CommittedAt time.Time `json:"committedAt"`
}

// ChangeHandler processes one change event. Returning nil acknowledges it.
type ChangeHandler func(ctx context.Context, ev ChangeEvent) error

// Identity is a verified caller.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// DocumentRepository is the primary datastore for entity documents.
type DocumentRepository interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	List(ctx context.Context, collection string, limit, offset int) ([]*Document, error)
	// Put reads the current snapshot, passes it (nil if absent) to mutate and
	// stores the result atomically. It returns the committed pair.
	Put(ctx context.Context, collection, id string, mutate func(before Snapshot) Snapshot) (before, after Snapshot, err error)
	// Delete removes the document and returns its last snapshot.
	Delete(ctx context.Context, collection, id string) (Snapshot, error)
}
