package store

import (
	"fmt"
	"strings"
)

// CollectionRef identifies a root collection or a subcollection of one document
type CollectionRef struct {
	Collection    string
	ParentID      string
	Subcollection string
}

// ParsePath resolves a collection path.
// Exactly three segments mean "collection/docID/subcollection"; anything else
// is taken as a root collection name.
func ParsePath(path string) (CollectionRef, error) {
	if strings.TrimSpace(path) == "" {
		return CollectionRef{}, fmt.Errorf("%w: path is required", ErrInvalidPath)
	}

	segments := strings.Split(path, "/")
	if len(segments) != 3 {
		return CollectionRef{Collection: path}, nil
	}

	for _, s := range segments {
		if s == "" {
			return CollectionRef{}, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
	}
	return CollectionRef{
		Collection:    segments[0],
		ParentID:      segments[1],
		Subcollection: segments[2],
	}, nil
}

// IsSubcollection reports whether the ref points below a parent document
func (r CollectionRef) IsSubcollection() bool {
	return r.Subcollection != ""
}

// String returns the canonical path, used as the storage key of the collection
func (r CollectionRef) String() string {
	if r.IsSubcollection() {
		return r.Collection + "/" + r.ParentID + "/" + r.Subcollection
	}
	return r.Collection
}

// SubPath builds "collection/docID/subcollection"
func SubPath(collection, docID, subcollection string) string {
	return collection + "/" + docID + "/" + subcollection
}
