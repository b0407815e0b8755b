package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"
)

var (
	// ErrDatabaseNotFound means the configured database id does not exist or
	// is not shared with the integration.
	ErrDatabaseNotFound = errors.New("ledger database not found")
	// ErrPropertyNotFound means the database schema lacks a property the
	// request refers to.
	ErrPropertyNotFound = errors.New("ledger property not found")
)

// APIError is any other failure reported by the Notion API.
type APIError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: notion api error %d %s: %s", e.Op, e.Status, e.Code, e.Message)
}

// translateError maps a Notion SDK error onto the typed errors above. Errors
// that did not come from the API (network, context) are wrapped unchanged.
func translateError(op string, err error) error {
	var notionErr *notionapi.Error
	if !errors.As(err, &notionErr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	code := string(notionErr.Code)
	switch {
	case code == "object_not_found":
		return fmt.Errorf("%s: %w: %s", op, ErrDatabaseNotFound, notionErr.Message)
	case code == "validation_error" && strings.Contains(strings.ToLower(notionErr.Message), "could not find property"):
		return fmt.Errorf("%s: %w: %s", op, ErrPropertyNotFound, notionErr.Message)
	}

	return &APIError{
		Op:      op,
		Status:  notionErr.Status,
		Code:    code,
		Message: notionErr.Message,
	}
}
