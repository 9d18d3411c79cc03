package shared

import (
	"errors"
	"fmt"
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

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound      = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput  = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState  = NewDomainError("INVALID_STATE", "Operation not allowed in current state")

	ErrTableFetch    = NewDomainError("TABLE_FETCH_FAILED", "Policy table could not be read")
	ErrCachePoison   = NewDomainError("CACHE_POISON", "Cached entry could not be decoded")
	ErrUpstreamWrite = NewDomainError("UPSTREAM_WRITE_FAILED", "Write to the record store failed")
)

// TableFetchError records that one policy table could not be read during a
// matching run. The run continues with the remaining tables.
type TableFetchError struct {
	Table string
	Err   error
}

func (e *TableFetchError) Error() string {
	return fmt.Sprintf("table %s: %v", e.Table, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *TableFetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrTableFetch.
func (e *TableFetchError) Is(target error) bool {
	return target == ErrTableFetch
}

// NewTableFetchError wraps err as a fetch failure for table.
func NewTableFetchError(table string, err error) *TableFetchError {
	return &TableFetchError{Table: table, Err: err}
}

// UpstreamWriteError is returned when a mutating call against the record
// store fails. It is always surfaced to the caller.
type UpstreamWriteError struct {
	Op  string
	Err error
}

func (e *UpstreamWriteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamWriteError) Unwrap() error {
	return e.Err
}

func (e *UpstreamWriteError) Is(target error) bool {
	return target == ErrUpstreamWrite
}

// NewUpstreamWriteError wraps err for the named operation.
func NewUpstreamWriteError(op string, err error) *UpstreamWriteError {
	return &UpstreamWriteError{Op: op, Err: err}
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
