package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v2"
)

// ErrEmptyID is returned for seed entries without a ledger page id.
var ErrEmptyID = errors.New("entity id is required")

// EntitySeed is the YAML layout of an entity seed file:
//
//	entities:
//	  - id: 1f2e...
//	    name: Woolworths
//	    aliases: WOOLIES, WW METRO
type EntitySeed struct {
	Entities []Entity `yaml:"entities"`
}

// ReadEntitySeed decodes and validates a seed file.
func ReadEntitySeed(r io.Reader) ([]Entity, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ReadEntitySeed: %w", err)
	}

	var seed EntitySeed
	if err := yaml.UnmarshalStrict(data, &seed); err != nil {
		return nil, fmt.Errorf("ReadEntitySeed: %w", err)
	}

	for i, e := range seed.Entities {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("ReadEntitySeed: entry %d: %w", i+1, ErrEmptyName)
		}
		if strings.TrimSpace(e.ID) == "" {
			return nil, fmt.Errorf("ReadEntitySeed: %q: %w", e.Name, ErrEmptyID)
		}
	}
	return seed.Entities, nil
}

// SeedEntities upserts every entity in one transaction and returns how many
// were written.
func (s *Store) SeedEntities(ctx context.Context, entities []Entity) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("SeedEntities: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertEntitySQL)
	if err != nil {
		return 0, fmt.Errorf("SeedEntities: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return 0, ErrEmptyName
		}
		if _, err := stmt.ExecContext(ctx, name, e.ID, e.Aliases, e.URL); err != nil {
			return 0, fmt.Errorf("SeedEntities %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("SeedEntities: commit: %w", err)
	}
	return len(entities), nil
}
