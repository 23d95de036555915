package csvimport

import (
	"errors"
	"fmt"
	"strings"
)

// Import error codes
const (
	ErrCodeImportCSVParsing   = "ERR_IMPORT_CSV_PARSING"
	ErrCodeImportRequired     = "ERR_IMPORT_REQUIRED_FIELD"
	ErrCodeImportInvalidType  = "ERR_IMPORT_INVALID_TYPE"
	ErrCodeImportInvalidValue = "ERR_IMPORT_INVALID_VALUE"
)

// Common import errors
var (
	// ErrEmptyFile is returned when the CSV object has no content at all
	ErrEmptyFile = errors.New("CSV file is empty")

	// ErrInvalidEncoding is returned when the content is not UTF-8
	ErrInvalidEncoding = errors.New("invalid file encoding")

	// ErrMissingHeader is returned when the CSV file has no header row
	ErrMissingHeader = errors.New("CSV file missing header row")
)

// RowError represents an error in a specific row of a source object
type RowError struct {
	Source  string `json:"source,omitempty"`
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Error implements the error interface
func (e RowError) Error() string {
	var b strings.Builder
	if e.Source != "" {
		b.WriteString(e.Source)
		b.WriteString(": ")
	}
	if e.Column != "" {
		fmt.Fprintf(&b, "row %d, column '%s': %s", e.Row, e.Column, e.Message)
	} else {
		fmt.Fprintf(&b, "row %d: %s", e.Row, e.Message)
	}
	return b.String()
}

// NewRowError creates a new RowError
func NewRowError(row int, column, code, message string) RowError {
	return RowError{
		Row:     row,
		Column:  column,
		Code:    code,
		Message: message,
	}
}

// NewRowErrorWithValue creates a new RowError carrying the offending value
func NewRowErrorWithValue(row int, column, code, message, value string) RowError {
	return RowError{
		Row:     row,
		Column:  column,
		Code:    code,
		Message: message,
		Value:   value,
	}
}

// WithSource returns a copy of err tagged with the object it came from
func WithSource(err error, source string) error {
	var rowErr RowError
	if errors.As(err, &rowErr) {
		rowErr.Source = source
		return rowErr
	}
	return fmt.Errorf("%s: %w", source, err)
}

// MissingColumnsError reports required columns absent from a header
type MissingColumnsError struct {
	Source  string
	Columns []string
}

// Error implements the error interface
func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s", e.Source, strings.Join(e.Columns, ", "))
}
