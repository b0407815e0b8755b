package store

import (
	"context"
	"fmt"
	"strings"
)

// Entity is a canonical payee held in the local cache.
type Entity struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Aliases string `yaml:"aliases" json:"aliases"` // comma-separated
	URL     string `yaml:"url" json:"url"`
}

// EntityNameToID returns canonical name -> ledger page id for every cached entity.
func (s *Store) EntityNameToID(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, id FROM entities`)
	if err != nil {
		return nil, fmt.Errorf("EntityNameToID: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, id string
		if err := rows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("EntityNameToID: scan: %w", err)
		}
		out[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("EntityNameToID: %w", err)
	}
	return out, nil
}

// EntityAliases returns canonical name -> comma-separated aliases for entities
// that have any.
func (s *Store) EntityAliases(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, aliases FROM entities WHERE aliases <> ''`)
	if err != nil {
		return nil, fmt.Errorf("EntityAliases: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, aliases string
		if err := rows.Scan(&name, &aliases); err != nil {
			return nil, fmt.Errorf("EntityAliases: scan: %w", err)
		}
		out[name] = aliases
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("EntityAliases: %w", err)
	}
	return out, nil
}

const upsertEntitySQL = `
	INSERT INTO entities (name, id, aliases, url, updated_at)
	VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(name) DO UPDATE SET
		id = CASE WHEN excluded.id <> '' THEN excluded.id ELSE entities.id END,
		aliases = CASE WHEN excluded.aliases <> '' THEN excluded.aliases ELSE entities.aliases END,
		url = CASE WHEN excluded.url <> '' THEN excluded.url ELSE entities.url END,
		updated_at = CURRENT_TIMESTAMP
`

// UpsertEntity inserts an entity or updates the existing row with the same
// name (case-insensitive). Empty fields on e never overwrite stored values.
func (s *Store) UpsertEntity(ctx context.Context, e Entity) error {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return ErrEmptyName
	}

	_, err := s.db.ExecContext(ctx, upsertEntitySQL, e.Name, e.ID, e.Aliases, e.URL)
	if err != nil {
		return fmt.Errorf("UpsertEntity %q: %w", e.Name, err)
	}
	return nil
}

// ListEntities returns all cached entities ordered by name.
func (s *Store) ListEntities(ctx context.Context) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, aliases, url FROM entities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("ListEntities: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.Aliases, &e.URL); err != nil {
			return nil, fmt.Errorf("ListEntities: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListEntities: %w", err)
	}
	return out, nil
}
