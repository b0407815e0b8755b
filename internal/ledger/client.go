package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"
	"golang.org/x/time/rate"

	"github.com/dvloznov/ledger-import/internal/config"
)

// DefaultRequestsPerSecond matches Notion's documented average request limit.
const DefaultRequestsPerSecond = 3

// NotionClient is the concrete implementation of NotionService using the Notion SDK.
// Requests are throttled client-side.
type NotionClient struct {
	client  *notionapi.Client
	limiter *rate.Limiter
}

// NewNotionClient creates a NotionClient for token. An empty token fails with
// config.ErrMissingCredential before any request is made. A non-positive
// rps uses DefaultRequestsPerSecond. burst is the number of requests allowed
// back to back, normally one per import worker; below 1 it is 1.
func NewNotionClient(token string, rps float64, burst int) (*NotionClient, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("NewNotionClient: %w: NOTION_API_TOKEN is not set", config.ErrMissingCredential)
	}
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	if burst < 1 {
		burst = 1
	}
	return &NotionClient{
		client:  notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// CreatePage creates a new page in a Notion database with the given properties.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}

	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	}

	page, err := n.client.Page.Create(ctx, req)
	if err != nil {
		return nil, translateError("CreatePage", err)
	}

	return page, nil
}

// QueryDatabase queries a Notion database with the given filter.
func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, query *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("QueryDatabase: %w", err)
	}

	resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), query)
	if err != nil {
		return nil, translateError("QueryDatabase", err)
	}

	return resp, nil
}
