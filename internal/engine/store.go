// Package engine is the embedded document engine: JSON documents grouped into
// collections, held in memory and written behind to a Persister.
package engine

import (
	"encoding/json"
	"errors"
)

var (
	// ErrNotFound is returned when a document does not exist in a collection.
	ErrNotFound = errors.New("document not found")
)

// Persister stores whole collections durably. The engine always hands it a
// complete snapshot of one collection.
type Persister interface {
	// SaveCollection replaces the stored contents of a collection.
	SaveCollection(collection string, docs map[string]json.RawMessage) error
	// LoadAll returns every stored collection keyed by name, then by document id.
	LoadAll() (map[string]map[string]json.RawMessage, error)
	// Close releases any handle the persister holds.
	Close() error
}
