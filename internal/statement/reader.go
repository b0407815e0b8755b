// Package statement loads parsed statement rows from JSON or CSV files held
// locally or in Cloud Storage.
package statement

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-import/internal/domain"
)

// Format is the encoding of a statement file.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither JSON nor CSV.
	ErrUnsupportedFormat = errors.New("unsupported statement format")
	// ErrInvalidRow is returned when a row cannot be turned into a transaction.
	ErrInvalidRow = errors.New("invalid statement row")
)

// CSV columns. date, description and amount are required.
const (
	colDate        = "date"
	colDescription = "description"
	colAmount      = "amount"
	colAccount     = "account"
	colLocation    = "location"
	colOnline      = "online"
)

// FormatFromName picks the format from a file extension.
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// Load fetches uri and parses it according to its extension.
func Load(ctx context.Context, fetcher Fetcher, uri string) ([]domain.ParsedTransaction, error) {
	format, err := FormatFromName(BaseName(uri))
	if err != nil {
		return nil, err
	}

	data, err := fetcher.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}

	return Parse(bytes.NewReader(data), format)
}

// Parse reads every row of r. Rows without a raw row get the canonical JSON
// of their fields; rows without a checksum get the SHA-256 of the raw row.
func Parse(r io.Reader, format Format) ([]domain.ParsedTransaction, error) {
	var (
		txs []domain.ParsedTransaction
		err error
	)
	switch format {
	case FormatJSON:
		txs, err = parseJSON(r)
	case FormatCSV:
		txs, err = parseCSV(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	for i := range txs {
		if err := finalise(&txs[i]); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return txs, nil
}

// Checksum returns the hex SHA-256 of a raw row.
func Checksum(rawRow string) string {
	sum := sha256.Sum256([]byte(rawRow))
	return hex.EncodeToString(sum[:])
}

func parseJSON(r io.Reader) ([]domain.ParsedTransaction, error) {
	var txs []domain.ParsedTransaction
	if err := json.NewDecoder(r).Decode(&txs); err != nil {
		return nil, fmt.Errorf("parseJSON: decoding rows: %w", err)
	}
	return txs, nil
}

func parseCSV(r io.Reader) ([]domain.ParsedTransaction, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("parseCSV: reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{colDate, colDescription, colAmount} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("parseCSV: %w: missing %q column", ErrInvalidRow, required)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var txs []domain.ParsedTransaction
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parseCSV: line %d: %w", line, err)
		}

		amount, err := parseAmount(field(rec, colAmount))
		if err != nil {
			return nil, fmt.Errorf("parseCSV: line %d: %w", line, err)
		}

		tx := domain.ParsedTransaction{
			Date:        field(rec, colDate),
			Description: field(rec, colDescription),
			Amount:      amount,
			Account:     field(rec, colAccount),
		}
		if loc := field(rec, colLocation); loc != "" {
			tx.Location = &loc
		}
		if raw := field(rec, colOnline); raw != "" {
			online, err := strconv.ParseBool(strings.ToLower(raw))
			if err != nil {
				return nil, fmt.Errorf("parseCSV: line %d: %w: online %q", line, ErrInvalidRow, raw)
			}
			tx.Online = &online
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer(",", "", "$", "", " ", "").Replace(raw)
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = "-" + strings.Trim(cleaned, "()")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q", ErrInvalidRow, raw)
	}
	return d, nil
}

// canonicalRow fixes the field order of a generated raw row.
type canonicalRow struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      string  `json:"amount"`
	Account     string  `json:"account"`
	Location    *string `json:"location,omitempty"`
	Online      *bool   `json:"online,omitempty"`
}

func finalise(tx *domain.ParsedTransaction) error {
	tx.Description = strings.TrimSpace(tx.Description)
	if tx.Description == "" {
		return fmt.Errorf("%w: empty description", ErrInvalidRow)
	}

	d, err := civil.ParseDate(strings.TrimSpace(tx.Date))
	if err != nil {
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidRow, tx.Date)
	}
	tx.Date = d.String()

	if tx.RawRow == "" {
		raw, err := json.Marshal(canonicalRow{
			Date:        tx.Date,
			Description: tx.Description,
			Amount:      tx.Amount.String(),
			Account:     tx.Account,
			Location:    tx.Location,
			Online:      tx.Online,
		})
		if err != nil {
			return fmt.Errorf("finalise: encoding raw row: %w", err)
		}
		tx.RawRow = string(raw)
	}
	if tx.Checksum == "" {
		tx.Checksum = Checksum(tx.RawRow)
	}
	return nil
}
