package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FilePersistence stores each collection as one JSON file in DataDir.
type FilePersistence struct {
	DataDir string
	mu      sync.Mutex // Protects concurrent writes to the filesystem
}

// NewFilePersistence initializes a persistence handler rooted at dir.
func NewFilePersistence(dir string) (*FilePersistence, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &FilePersistence{DataDir: dir}, nil
}

// SaveCollection writes a collection to <collection>.json atomically.
func (p *FilePersistence) SaveCollection(collection string, docs map[string]json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	filePath := filepath.Join(p.DataDir, collection+".json")
	tempPath := filePath + ".tmp"

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	// Readers see either the old file or the new one, never a partial write.
	return os.Rename(tempPath, filePath)
}

// LoadAll returns all collections found in the data directory, with each
// document compacted back to the form it was saved in. An unreadable or
// corrupt collection file is an error: skipping it would let the next save
// overwrite it.
func (p *FilePersistence) LoadAll() (map[string]map[string]json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	allData := make(map[string]map[string]json.RawMessage)

	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		collection := strings.TrimSuffix(file.Name(), ".json")

		content, err := os.ReadFile(filepath.Join(p.DataDir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading collection %s: %w", collection, err)
		}

		var docs map[string]json.RawMessage
		if err := json.Unmarshal(content, &docs); err != nil {
			return nil, fmt.Errorf("collection file %s is corrupt: %w", file.Name(), err)
		}
		for id, doc := range docs {
			var buf bytes.Buffer
			if err := json.Compact(&buf, doc); err != nil {
				return nil, fmt.Errorf("collection %s, document %s: %w", collection, id, err)
			}
			docs[id] = buf.Bytes()
		}
		allData[collection] = docs
	}
	return allData, nil
}

// Close is a no-op; files are closed after every write.
func (p *FilePersistence) Close() error {
	return nil
}
