package partition

import "fmt"

// Error codes for the partition domain
const (
	ErrCodeInvalidPlanInput     = "INVALID_PLAN_INPUT"
	ErrCodeInvalidRecord        = "INVALID_RECORD"
	ErrCodeDegeneratePartition  = "DEGENERATE_PARTITION_SIZE"
	ErrCodeCatalogTableNotFound = "CATALOG_TABLE_NOT_FOUND"
	ErrCodeRunLocked            = "RUN_LOCKED"
	ErrCodeInvalidTable         = "INVALID_TABLE"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code, so that
// errors.Is(err, ErrInvalidPlanInput) matches any invalid plan input error.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// newDomainErrorf creates a new domain error with a formatted message
func newDomainErrorf(code, format string, args ...any) *DomainError {
	return NewDomainError(code, fmt.Sprintf(format, args...))
}

// Common domain errors
var (
	ErrInvalidPlanInput     = NewDomainError(ErrCodeInvalidPlanInput, "Invalid partition plan input")
	ErrInvalidRecord        = NewDomainError(ErrCodeInvalidRecord, "Invalid inventory record")
	ErrDegeneratePartition  = NewDomainError(ErrCodeDegeneratePartition, "Partition size must be positive")
	ErrCatalogTableNotFound = NewDomainError(ErrCodeCatalogTableNotFound, "Catalog table not found")
	ErrRunLocked            = NewDomainError(ErrCodeRunLocked, "Another run holds the output table lock")
	ErrInvalidTable         = NewDomainError(ErrCodeInvalidTable, "Invalid catalog table definition")
)
