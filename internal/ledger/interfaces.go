package ledger

import (
	"context"

	"github.com/jomei/notionapi"
)

// NotionService defines the Notion operations the import pipeline needs.
// Errors returned by implementations are already translated into this
// package's typed errors.
type NotionService interface {
	// CreatePage creates a new page in a Notion database with the given properties.
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)

	// QueryDatabase queries a Notion database with the given filter.
	QueryDatabase(ctx context.Context, databaseID string, query *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}
