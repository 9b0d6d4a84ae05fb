package engine

import (
	"fmt"
	"sort"
)

// Migrate copies every collection from src to dst.
// This works for:
// - File -> SQLite (moving a deployment onto a single database file)
// - SQLite -> File (backup / inspection)
func Migrate(src, dst Persister) (int, error) {
	data, err := src.LoadAll()
	if err != nil {
		return 0, fmt.Errorf("failed to load source: %w", err)
	}

	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	copied := 0
	for _, name := range names {
		if err := dst.SaveCollection(name, data[name]); err != nil {
			return copied, fmt.Errorf("failed to write collection %s: %w", name, err)
		}
		copied += len(data[name])
	}
	return copied, nil
}
