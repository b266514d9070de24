package store

import "context"

// DocumentStore is the gateway to a hierarchical document store made of named
// collections, optionally nested one level as "collection/docID/subcollection".
type DocumentStore interface {
	// Create appends a document with a store-assigned id
	Create(ctx context.Context, collectionPath string, record any) (string, error)

	// CreateAdmitted appends a document only if the admission rule holds.
	// The check and the write happen atomically.
	CreateAdmitted(ctx context.Context, collectionPath string, record any, adm Admission) (string, error)

	// Delete removes a document. Deleting a missing id succeeds.
	Delete(ctx context.Context, collectionPath, id string) error

	// GetAll returns every document in the collection matching all filters
	GetAll(ctx context.Context, collectionPath string, filters ...Filter) ([]Document, error)

	// GetOne returns a document by id or ErrNotFound
	GetOne(ctx context.Context, collectionPath, id string) (Document, error)

	// Subscribe opens a live stream of full result-set snapshots
	Subscribe(ctx context.Context, path string, filters ...Filter) (*Subscription, error)
}

// Admission describes a conditional create.
//
// A document created with a CountKey counts against Limit for as long as it
// exists; a document created with a UniqueKey blocks any other live document
// in the same collection from taking that key. Empty keys disable the
// corresponding check.
type Admission struct {
	CountKey  string
	Limit     int
	UniqueKey string
}
