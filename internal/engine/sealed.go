package engine

import (
	"encoding/json"
	"fmt"

	"github.com/celerix-dev/celerix-tasks/internal/vault"
)

// SealedPersister encrypts every document before handing it to the wrapped
// Persister and decrypts on load. Each document is stored as a JSON string
// holding the sealed hex value.
type SealedPersister struct {
	inner  Persister
	cipher *vault.Cipher
}

func NewSealedPersister(inner Persister, c *vault.Cipher) *SealedPersister {
	return &SealedPersister{inner: inner, cipher: c}
}

func (p *SealedPersister) SaveCollection(collection string, docs map[string]json.RawMessage) error {
	sealed := make(map[string]json.RawMessage, len(docs))
	for id, doc := range docs {
		s, err := p.cipher.Seal(doc)
		if err != nil {
			return fmt.Errorf("sealing %s/%s: %w", collection, id, err)
		}
		raw, err := json.Marshal(s)
		if err != nil {
			return err
		}
		sealed[id] = raw
	}
	return p.inner.SaveCollection(collection, sealed)
}

func (p *SealedPersister) LoadAll() (map[string]map[string]json.RawMessage, error) {
	all, err := p.inner.LoadAll()
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]json.RawMessage, len(all))
	for collection, docs := range all {
		opened := make(map[string]json.RawMessage, len(docs))
		for id, raw := range docs {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("%s/%s is not sealed: %w", collection, id, err)
			}
			doc, err := p.cipher.Open(s)
			if err != nil {
				return nil, fmt.Errorf("opening %s/%s: %w", collection, id, err)
			}
			opened[id] = doc
		}
		out[collection] = opened
	}
	return out, nil
}

func (p *SealedPersister) Close() error {
	return p.inner.Close()
}
