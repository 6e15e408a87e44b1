package store

import (
	"context"
	"encoding/json"
	"fmt"

	"clanrpg/database"

	"github.com/jackc/pgx/v5"
)

// DocumentStore persists named JSON documents in the documents table.
// Documents are read and written whole.
type DocumentStore struct {
	db *database.DB
}

// NewDocumentStore creates a new document store
func NewDocumentStore(db *database.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Load reads the named document into dest. It returns false when the
// document does not exist, leaving dest untouched.
func (s *DocumentStore) Load(ctx context.Context, name string, dest any) (bool, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT data FROM documents WHERE name = $1`, name).Scan(&data)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load document %q: %w", name, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode document %q: %w", name, err)
	}
	return true, nil
}

// Save writes the named document, replacing any existing content.
func (s *DocumentStore) Save(ctx context.Context, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode document %q: %w", name, err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO documents (name, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, name, data)
	if err != nil {
		return fmt.Errorf("failed to save document %q: %w", name, err)
	}
	return nil
}

// SaveAll writes multiple documents in a single transaction.
func (s *DocumentStore) SaveAll(ctx context.Context, docs map[string]any) error {
	return s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		for name, value := range docs {
			data, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("failed to encode document %q: %w", name, err)
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO documents (name, data, updated_at)
				VALUES ($1, $2, now())
				ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
			`, name, data)
			if err != nil {
				return fmt.Errorf("failed to save document %q: %w", name, err)
			}
		}
		return nil
	})
}
