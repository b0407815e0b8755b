// Package ledger reads and writes the Notion balance sheet and entities
// databases.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/ledger-import/internal/config"
	"github.com/dvloznov/ledger-import/internal/domain"
)

// MaxFilterClauses is the number of checksums queried per request; Notion
// caps compound filters at 100 clauses.
const MaxFilterClauses = 100

// Databases holds the fixed database ids of the ledger.
type Databases struct {
	BalanceSheetID string
	EntitiesID     string
	BaseURL        string
}

// CreatedPage identifies a page written to the ledger.
type CreatedPage struct {
	ID  string
	URL string
}

// EntityPage is an entity read back from the entities database.
type EntityPage struct {
	ID      string
	Name    string
	Aliases string
	URL     string
}

// Client composes a NotionService with the ledger's database ids.
type Client struct {
	service NotionService
	dbs     Databases
}

// NewClient creates a ledger Client.
func NewClient(service NotionService, dbs Databases) *Client {
	if dbs.BaseURL == "" {
		dbs.BaseURL = "https://www.notion.so"
	}
	return &Client{service: service, dbs: dbs}
}

// PageURL derives the human-navigable URL of a page.
func PageURL(baseURL, pageID string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.ReplaceAll(pageID, "-", "")
}

// QueryChecksums returns which of checksums already exist in the balance
// sheet. At most MaxFilterClauses checksums may be passed per call; results
// are paged through until exhausted.
func (c *Client) QueryChecksums(ctx context.Context, checksums []string) ([]string, error) {
	if len(checksums) == 0 {
		return nil, nil
	}
	if len(checksums) > MaxFilterClauses {
		return nil, fmt.Errorf("QueryChecksums: %d checksums exceeds the %d clause limit", len(checksums), MaxFilterClauses)
	}

	filter := make(notionapi.OrCompoundFilter, 0, len(checksums))
	for _, sum := range checksums {
		filter = append(filter, notionapi.PropertyFilter{
			Property: PropChecksum,
			RichText: &notionapi.TextFilterCondition{
				Equals: sum,
			},
		})
	}

	var (
		found  []string
		cursor notionapi.Cursor
	)
	for {
		req := &notionapi.DatabaseQueryRequest{
			Filter:   filter,
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := c.service.QueryDatabase(ctx, c.dbs.BalanceSheetID, req)
		if err != nil {
			return nil, fmt.Errorf("QueryChecksums: %w", err)
		}
		for _, page := range resp.Results {
			if sum := extractChecksum(page); sum != "" {
				found = append(found, sum)
			}
		}

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return found, nil
}

// CreateTransactionPage writes one confirmed transaction to the balance sheet.
func (c *Client) CreateTransactionPage(ctx context.Context, tx domain.ConfirmedTransaction) (*CreatedPage, error) {
	props, err := TransactionToNotionProperties(tx)
	if err != nil {
		return nil, err
	}

	page, err := c.service.CreatePage(ctx, c.dbs.BalanceSheetID, props)
	if err != nil {
		return nil, fmt.Errorf("CreateTransactionPage: %w", err)
	}
	return c.created(page), nil
}

// CreateEntityPage creates a new entity in the entities database.
func (c *Client) CreateEntityPage(ctx context.Context, name string) (*CreatedPage, error) {
	if c.dbs.EntitiesID == "" {
		return nil, fmt.Errorf("CreateEntityPage: %w: NOTION_ENTITIES_DB_ID is not set", config.ErrMissingCredential)
	}

	page, err := c.service.CreatePage(ctx, c.dbs.EntitiesID, EntityToNotionProperties(name))
	if err != nil {
		return nil, fmt.Errorf("CreateEntityPage %q: %w", name, err)
	}
	return c.created(page), nil
}

// ListEntities returns every page of the entities database.
func (c *Client) ListEntities(ctx context.Context) ([]EntityPage, error) {
	if c.dbs.EntitiesID == "" {
		return nil, fmt.Errorf("ListEntities: %w: NOTION_ENTITIES_DB_ID is not set", config.ErrMissingCredential)
	}

	pages, err := queryAllNotionPages(ctx, c.service, c.dbs.EntitiesID)
	if err != nil {
		return nil, fmt.Errorf("ListEntities: %w", err)
	}

	out := make([]EntityPage, 0, len(pages))
	for _, page := range pages {
		name, aliases := extractEntity(page)
		if strings.TrimSpace(name) == "" {
			continue
		}
		id := string(page.ID)
		out = append(out, EntityPage{
			ID:      id,
			Name:    strings.TrimSpace(name),
			Aliases: aliases,
			URL:     PageURL(c.dbs.BaseURL, id),
		})
	}
	return out, nil
}

func (c *Client) created(page *notionapi.Page) *CreatedPage {
	id := string(page.ID)
	return &CreatedPage{ID: id, URL: PageURL(c.dbs.BaseURL, id)}
}

// queryAllNotionPages queries all pages from a Notion database.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, service NotionService, databaseID string) ([]notionapi.Page, error) {
	var (
		allPages []notionapi.Page
		cursor   notionapi.Cursor
	)

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := service.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
