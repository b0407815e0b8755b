package ledger

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jomei/notionapi"

	"github.com/dvloznov/ledger-import/internal/domain"
)

// Property names of the balance sheet and entities databases.
const (
	PropDescription = "Description"
	PropAccount     = "Account"
	PropLocation    = "Location"
	PropAmount      = "Amount"
	PropDate        = "Date"
	PropOnline      = "Online"
	PropChecksum    = "Checksum"
	PropRawRow      = "Raw Row"
	PropType        = "Type"
	PropEntity      = "Entity"

	PropEntityName    = "Name"
	PropEntityAliases = "Aliases"
)

// MaxRawRowLength is the rich_text size limit of the Raw Row property.
const MaxRawRowLength = 2000

// TruncateRunes returns s cut to at most n characters.
func TruncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: content,
			},
		},
	}
}

// TransactionToNotionProperties converts a confirmed transaction to balance
// sheet properties. Location and Entity are omitted when absent; Online
// defaults to false.
func TransactionToNotionProperties(tx domain.ConfirmedTransaction) (notionapi.Properties, error) {
	date, err := civil.ParseDate(tx.Date)
	if err != nil {
		return nil, fmt.Errorf("TransactionToNotionProperties: invalid date %q: %w", tx.Date, err)
	}
	notionDate := notionapi.Date(date.In(time.UTC))

	kind := tx.Kind
	if !kind.Valid() {
		kind = domain.KindForAmount(tx.Amount)
	}

	online := false
	if tx.Online != nil {
		online = *tx.Online
	}

	props := notionapi.Properties{
		PropDescription: notionapi.TitleProperty{
			Title: richText(tx.Description),
		},
		PropAmount: notionapi.NumberProperty{
			Number: tx.Amount.InexactFloat64(),
		},
		PropDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: &notionDate,
			},
		},
		PropOnline: notionapi.CheckboxProperty{
			Checkbox: online,
		},
		PropChecksum: notionapi.RichTextProperty{
			RichText: richText(tx.Checksum),
		},
		PropRawRow: notionapi.RichTextProperty{
			RichText: richText(TruncateRunes(tx.RawRow, MaxRawRowLength)),
		},
		PropType: notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: string(kind),
			},
		},
	}

	if tx.Account != "" {
		props[PropAccount] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: tx.Account,
			},
		}
	}

	if tx.Location != nil && *tx.Location != "" {
		props[PropLocation] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: *tx.Location,
			},
		}
	}

	if tx.Entity != nil && tx.Entity.EntityID != "" {
		props[PropEntity] = notionapi.RelationProperty{
			Relation: []notionapi.Relation{
				{ID: notionapi.PageID(tx.Entity.EntityID)},
			},
		}
	}

	return props, nil
}

// EntityToNotionProperties converts a new entity name to entities database properties.
func EntityToNotionProperties(name string) notionapi.Properties {
	return notionapi.Properties{
		PropEntityName: notionapi.TitleProperty{
			Title: richText(name),
		},
	}
}

// extractChecksum extracts the checksum from a balance sheet page.
// Returns empty string if not found.
func extractChecksum(page notionapi.Page) string {
	if prop, ok := page.Properties[PropChecksum]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(rt.RichText) > 0 {
				return rt.RichText[0].PlainText
			}
		}
	}
	return ""
}

// extractEntity extracts name and aliases from an entities database page.
func extractEntity(page notionapi.Page) (name, aliases string) {
	if prop, ok := page.Properties[PropEntityName]; ok {
		if title, ok := prop.(*notionapi.TitleProperty); ok {
			for _, t := range title.Title {
				name += t.PlainText
			}
		}
	}
	if prop, ok := page.Properties[PropEntityAliases]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok {
			for _, t := range rt.RichText {
				aliases += t.PlainText
			}
		}
	}
	return name, aliases
}
