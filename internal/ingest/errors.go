package ingest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingColumns   = errors.New("missing required columns")
	ErrEmptyInput       = errors.New("input has no header row")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidAccount   = errors.New("invalid account id")
)

// SchemaError reports a batch missing one or more required columns. The
// engine never sees such a batch.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

func (e *SchemaError) Unwrap() error { return ErrMissingColumns }

// ParseError reports a single record that could not be converted. Row is
// 1-based over data rows (the header is not counted).
type ParseError struct {
	Row   int
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("row %d: %s %q: %v", e.Row, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
