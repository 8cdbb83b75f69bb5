package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawblock/ring-engine/pkg/models"
)

// Transaction Ingestion
//
// Turns raw tabular rows into typed transactions before the engine runs.
// Rejection happens here and only here:
//   - a batch missing a required column fails with *SchemaError
//   - a record with an unparseable timestamp, amount or empty account id
//     fails with *ParseError; no invalid time ever reaches the graph
// Content is not otherwise validated: duplicate transaction IDs and
// self-transfers pass through untouched.

// Required column names, matched case-insensitively after trimming.
const (
	ColTransactionID = "transaction_id"
	ColSenderID      = "sender_id"
	ColReceiverID    = "receiver_id"
	ColAmount        = "amount"
	ColTimestamp     = "timestamp"
)

var requiredColumns = []string{ColTransactionID, ColSenderID, ColReceiverID, ColAmount, ColTimestamp}

// Zone-less layouts are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// Record is one raw input row as delivered by an upload or a JSON body.
type Record struct {
	TransactionID string `json:"transaction_id"`
	SenderID      string `json:"sender_id"`
	ReceiverID    string `json:"receiver_id"`
	Amount        Amount `json:"amount"`
	Timestamp     string `json:"timestamp"`
}

// Amount is the raw amount text. In JSON it may be a bare number or a
// quoted string; bare numbers keep their literal digits.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*a = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
	default:
		*a = Amount(data)
	}
	return nil
}

// ReadCSV parses a CSV stream with a header row. Extra columns are ignored.
func ReadCSV(r io.Reader) ([]models.Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyInput
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	txs := make([]models.Transaction, 0)
	for row := 1; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", row, err)
		}
		if isBlank(fields) {
			continue
		}

		rec := Record{
			TransactionID: field(fields, index[ColTransactionID]),
			SenderID:      field(fields, index[ColSenderID]),
			ReceiverID:    field(fields, index[ColReceiverID]),
			Amount:        Amount(field(fields, index[ColAmount])),
			Timestamp:     field(fields, index[ColTimestamp]),
		}
		tx, err := ParseRecord(row, rec)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

// ParseRecords converts already-split records, preserving order.
func ParseRecords(records []Record) ([]models.Transaction, error) {
	txs := make([]models.Transaction, 0, len(records))
	for i, rec := range records {
		tx, err := ParseRecord(i+1, rec)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// ParseRecord converts one record; row is used for error reporting only.
func ParseRecord(row int, rec Record) (models.Transaction, error) {
	sender := strings.TrimSpace(rec.SenderID)
	if sender == "" {
		return models.Transaction{}, &ParseError{Row: row, Field: ColSenderID, Value: rec.SenderID, Err: ErrInvalidAccount}
	}
	receiver := strings.TrimSpace(rec.ReceiverID)
	if receiver == "" {
		return models.Transaction{}, &ParseError{Row: row, Field: ColReceiverID, Value: rec.ReceiverID, Err: ErrInvalidAccount}
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(string(rec.Amount)))
	if err != nil {
		return models.Transaction{}, &ParseError{Row: row, Field: ColAmount, Value: string(rec.Amount), Err: ErrInvalidAmount}
	}

	ts, err := ParseTimestamp(rec.Timestamp)
	if err != nil {
		return models.Transaction{}, &ParseError{Row: row, Field: ColTimestamp, Value: rec.Timestamp, Err: err}
	}

	return models.Transaction{
		ID:         strings.TrimSpace(rec.TransactionID),
		SenderID:   sender,
		ReceiverID: receiver,
		Amount:     amount,
		Timestamp:  ts,
	}, nil
}

// ParseTimestamp accepts RFC3339 and the common "YYYY-MM-DD HH:MM[:SS]" forms.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}
	return index, nil
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
