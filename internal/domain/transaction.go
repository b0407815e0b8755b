package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParsedTransaction is one statement row after initial parsing.
// It is the unit of work for the whole import pipeline and is never mutated
// once produced.
type ParsedTransaction struct {
	Date        string          `json:"date"`               // calendar date, YYYY-MM-DD
	Description string          `json:"description"`        // raw merchant text
	Amount      decimal.Decimal `json:"amount"`             // signed, minor-unit precision preserved
	Account     string          `json:"account"`            // free-text account label
	Location    *string         `json:"location,omitempty"` // optional
	Online      *bool           `json:"online,omitempty"`   // optional
	RawRow      string          `json:"rawRow"`             // original row serialization
	Checksum    string          `json:"checksum"`           // dedup key
}

// Status is the terminal bucket a processed transaction lands in.
type Status string

const (
	StatusMatched   Status = "matched"
	StatusUncertain Status = "uncertain"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// ProcessedTransaction is a ParsedTransaction augmented with the outcome of
// entity resolution. Exactly one is produced per input transaction.
type ProcessedTransaction struct {
	ParsedTransaction
	Entity     *EntityInfo `json:"entity,omitempty"`
	Status     Status      `json:"status"`
	SkipReason string      `json:"skipReason,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// TransactionKind classifies a confirmed transaction for the ledger.
type TransactionKind string

const (
	KindExpense  TransactionKind = "expense"
	KindIncome   TransactionKind = "income"
	KindTransfer TransactionKind = "transfer"
)

// Valid reports whether k is one of the known kinds.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindExpense, KindIncome, KindTransfer:
		return true
	}
	return false
}

// KindForAmount infers expense or income from the sign of the amount.
func KindForAmount(amount decimal.Decimal) TransactionKind {
	if amount.IsNegative() {
		return KindExpense
	}
	return KindIncome
}

// ConfirmedTransaction has passed confirmation and is ready for the ledger write.
type ConfirmedTransaction struct {
	ProcessedTransaction
	Kind TransactionKind `json:"kind"`
}

// SummariseTransaction renders a short one-line description used in progress
// records and logs.
func SummariseTransaction(tx ParsedTransaction) string {
	return fmt.Sprintf("%s %s %s", tx.Date, tx.Description, tx.Amount.StringFixed(2))
}
