package engine

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    body TEXT NOT NULL,
    PRIMARY KEY (collection, id)
);
`

// SQLitePersistence stores collections as rows of a single documents table.
type SQLitePersistence struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLitePersistence, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(documentsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating documents table: %w", err)
	}

	return &SQLitePersistence{db: db}, nil
}

// SaveCollection replaces every row of the collection in one transaction.
func (p *SQLitePersistence) SaveCollection(collection string, docs map[string]json.RawMessage) (err error) {
	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM documents WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("clearing collection %s: %w", collection, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for id, doc := range docs {
		if _, err = stmt.Exec(collection, id, string(doc)); err != nil {
			return fmt.Errorf("writing %s/%s: %w", collection, id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// LoadAll reads every stored document.
func (p *SQLitePersistence) LoadAll() (map[string]map[string]json.RawMessage, error) {
	rows, err := p.db.Query(`SELECT collection, id, body FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}
	defer rows.Close()

	allData := make(map[string]map[string]json.RawMessage)
	for rows.Next() {
		var collection, id, body string
		if err := rows.Scan(&collection, &id, &body); err != nil {
			return nil, err
		}
		if allData[collection] == nil {
			allData[collection] = make(map[string]json.RawMessage)
		}
		allData[collection][id] = json.RawMessage(body)
	}
	return allData, rows.Err()
}

// Close closes the database handle.
func (p *SQLitePersistence) Close() error {
	return p.db.Close()
}
