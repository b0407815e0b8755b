package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Correction is a human-confirmed mapping from a description pattern to an entity.
type Correction struct {
	Pattern     string
	Description string
	EntityID    string
	EntityName  string
	Confidence  float64
}

// NormalisePattern upper-cases s, replaces every non-letter with a space and
// collapses runs of spaces. Store numbers and card suffixes drop out, so
// "WOOLWORTHS 1234" and "Woolworths 5678" share the pattern "WOOLWORTHS".
func NormalisePattern(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return unicode.ToUpper(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// FindMatchingCorrection returns the best correction for description with
// confidence >= threshold, or nil when none qualifies. A correction matches
// when its pattern equals the normalised description or is a whole-word prefix
// of it. Highest confidence wins, then the longest pattern.
func (s *Store) FindMatchingCorrection(ctx context.Context, description string, threshold float64) (*Correction, error) {
	pattern := NormalisePattern(description)
	if pattern == "" {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT pattern, description, entity_id, entity_name, confidence
		FROM corrections
		WHERE confidence >= ?
		  AND (pattern = ? OR substr(?, 1, length(pattern) + 1) = pattern || ' ')
		ORDER BY confidence DESC, length(pattern) DESC
		LIMIT 1
	`, threshold, pattern, pattern)

	var c Correction
	err := row.Scan(&c.Pattern, &c.Description, &c.EntityID, &c.EntityName, &c.Confidence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindMatchingCorrection: %w", err)
	}
	return &c, nil
}

// SaveCorrection records that description belongs to the given entity. An
// existing correction with the same pattern is replaced.
func (s *Store) SaveCorrection(ctx context.Context, description, entityID, entityName string, confidence float64) (*Correction, error) {
	pattern := NormalisePattern(description)
	if pattern == "" {
		return nil, ErrEmptyPattern
	}
	entityName = strings.TrimSpace(entityName)
	if entityName == "" {
		return nil, ErrEmptyName
	}
	if confidence < 0 || confidence > 1 {
		return nil, ErrInvalidConfidence
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO corrections (pattern, description, entity_id, entity_name, confidence)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pattern) DO UPDATE SET
			description = excluded.description,
			entity_id = excluded.entity_id,
			entity_name = excluded.entity_name,
			confidence = excluded.confidence,
			updated_at = CURRENT_TIMESTAMP
	`, pattern, description, entityID, entityName, confidence)
	if err != nil {
		return nil, fmt.Errorf("SaveCorrection %q: %w", pattern, err)
	}

	return &Correction{
		Pattern:     pattern,
		Description: description,
		EntityID:    entityID,
		EntityName:  entityName,
		Confidence:  confidence,
	}, nil
}
