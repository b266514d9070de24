package store

import (
	"encoding/json"
	"fmt"
)

// IDField is the reserved key holding a document's id in materialized documents
const IDField = "id"

// Document is a stored field map merged with its id under IDField
type Document map[string]any

// ID returns the document id
func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// Decode materializes a document into v using its JSON field names
func Decode(doc Document, v any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", doc.ID(), err)
	}
	return nil
}

// toFields converts a record into the field map that gets persisted.
// The reserved id key is dropped; ids are owned by the store.
func toFields(record any) (map[string]any, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("record must encode as an object: %w", err)
	}
	delete(fields, IDField)
	return fields, nil
}

// materialize merges fields with the id under the reserved key
func materialize(id string, fields map[string]any) Document {
	doc := make(Document, len(fields)+1)
	for k, v := range fields {
		doc[k] = v
	}
	doc[IDField] = id
	return doc
}
