// Package dedup finds which statement rows already exist in the ledger.
package dedup

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/ledger"
	"github.com/dvloznov/ledger-import/internal/logger"
)

// BatchSize is the number of checksums sent per ledger query.
const BatchSize = ledger.MaxFilterClauses

// ChecksumQuerier looks up existing checksums; implemented by *ledger.Client.
type ChecksumQuerier interface {
	QueryChecksums(ctx context.Context, checksums []string) ([]string, error)
}

// Result holds the checksums found in the ledger. Warning is set when the
// lookup failed and deduplication was disabled for the run.
type Result struct {
	Checksums map[string]struct{}
	Warning   *domain.Warning
}

// Contains reports whether checksum already exists in the ledger.
func (r Result) Contains(checksum string) bool {
	_, ok := r.Checksums[checksum]
	return ok
}

// Stage queries the ledger in fixed-size batches.
type Stage struct {
	querier ChecksumQuerier
}

// NewStage creates a dedup Stage.
func NewStage(querier ChecksumQuerier) *Stage {
	return &Stage{querier: querier}
}

// FindExistingChecksums returns the subset of checksums already in the
// ledger. Batches run sequentially. Any query failure is logged and turns
// into an empty set plus a warning; the error itself is never returned.
func (s *Stage) FindExistingChecksums(ctx context.Context, checksums []string) Result {
	log := logger.FromContext(ctx).With().Str("component", "dedup").Logger()
	result := Result{Checksums: make(map[string]struct{})}

	for start := 0; start < len(checksums); start += BatchSize {
		end := min(start+BatchSize, len(checksums))

		found, err := s.querier.QueryChecksums(ctx, checksums[start:end])
		if err != nil {
			warning := classify(err)
			warning.AffectedCount = len(checksums)
			log.Warn().
				Err(err).
				Str("warning_type", string(warning.Type)).
				Int("checksum_count", len(checksums)).
				Msg("Checksum lookup failed, deduplication disabled for this run")
			return Result{
				Checksums: make(map[string]struct{}),
				Warning:   warning,
			}
		}
		for _, sum := range found {
			result.Checksums[sum] = struct{}{}
		}
	}

	log.Debug().
		Int("checked", len(checksums)).
		Int("existing", len(result.Checksums)).
		Msg("Checksum lookup completed")
	return result
}

func classify(err error) *domain.Warning {
	switch {
	case errors.Is(err, ledger.ErrDatabaseNotFound):
		return &domain.Warning{
			Type:    domain.WarningDatabaseNotFound,
			Message: "Ledger database not found; check NOTION_BALANCE_SHEET_DB_ID. Duplicate detection is disabled.",
		}
	case errors.Is(err, ledger.ErrPropertyNotFound):
		return &domain.Warning{
			Type:    domain.WarningDeduplicationDisabled,
			Message: "Ledger database has no Checksum property. Duplicate detection is disabled.",
		}
	default:
		return &domain.Warning{
			Type:    domain.WarningNotionAPIError,
			Message: fmt.Sprintf("Ledger query failed: %v. Duplicate detection is disabled.", err),
		}
	}
}
