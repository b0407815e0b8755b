package categorizer

import "fmt"

// Code classifies a categorization failure.
type Code string

const (
	CodeInsufficientCredits Code = "insufficient_credits"
	CodeAPIError            Code = "api_error"
	CodeInvalidResponse     Code = "invalid_response"
)

// Error is the typed failure returned by Categorize. Callers treat any *Error
// as "AI unavailable" for the transaction at hand. Usage is set when the
// provider answered, and billed, before the failure.
type Error struct {
	Code     Code
	Provider string
	Message  string
	Err      error
	Usage    *Usage
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("categorizer %s (%s): %s: %v", e.Code, e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("categorizer %s (%s): %s", e.Code, e.Provider, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
