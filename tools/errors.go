// Package tools provides shared utilities for the API.
package tools

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for client consumption.
// These codes are stable and can be used for programmatic error handling.
const (
	CodeConfiguration    = "CONFIGURATION_ERROR"
	CodeInvalidQuery     = "INVALID_QUERY"
	CodeUnknownColumn    = "UNKNOWN_COLUMN"
	CodeQueryInterrupted = "QUERY_INTERRUPTED"
	CodeQueryError       = "QUERY_ERROR"
	CodeTableNotFound    = "TABLE_NOT_FOUND"
	CodeDatabaseNotFound = "DATABASE_NOT_FOUND"
	CodeRowNotFound      = "ROW_NOT_FOUND"
	CodeForbidden        = "FORBIDDEN"
	CodeInternalError    = "INTERNAL_ERROR"
)

// APIError represents a structured error response for the API.
// Error is the human readable message, Code a stable identifier.
// Title is set for categories that deserve a dedicated explanation.
type APIError struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code"`
	Error  string `json:"error"`
	Status int    `json:"status"`
	Title  string `json:"title,omitempty"`
	Hint   string `json:"hint,omitempty"`
}

// Sentinel errors for common failure conditions.
var (
	ErrConfiguration    = errors.New("configuration error")
	ErrInvalidQuery     = errors.New("invalid query")
	ErrUnknownColumn    = errors.New("unknown column")
	ErrQueryInterrupted = errors.New("SQL Interrupted")
	ErrQueryError       = errors.New("query error")
	ErrTableNotFound    = errors.New("table not found")
	ErrDatabaseNotFound = errors.New("database not found")
	ErrRowNotFound      = errors.New("record not found")
	ErrForbidden        = errors.New("forbidden")

	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrEmptyIdentifier   = errors.New("identifier cannot be empty")
)

// Error carries a user facing message that is returned verbatim while
// still matching its category sentinel with errors.Is.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

func newError(kind error, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// ConfigurationErr returns a startup configuration error.
func ConfigurationErr(format string, args ...any) error {
	return newError(ErrConfiguration, format, args...)
}

// InvalidQueryErr returns an error for a malformed or disallowed request.
func InvalidQueryErr(msg string) error {
	return newError(ErrInvalidQuery, "%s", msg)
}

// UnknownColumnErr returns an error for a sort, search or facet column that does not exist.
func UnknownColumnErr(msg string) error {
	return newError(ErrUnknownColumn, "%s", msg)
}

// TableNotFoundErr returns an error indicating a table was not found.
func TableNotFoundErr(table string) error {
	return newError(ErrTableNotFound, "Table not found: %s", table)
}

// DatabaseNotFoundErr returns an error indicating a database was not found.
func DatabaseNotFoundErr(name string) error {
	return newError(ErrDatabaseNotFound, "Database not found: %s", name)
}

// RowNotFoundErr returns an error for a row lookup with no match.
func RowNotFoundErr(pkValues []string) error {
	return newError(ErrRowNotFound, "Record not found: [%s]", strings.Join(pkValues, ", "))
}

// ForbiddenErr returns an error for a feature disabled by configuration.
func ForbiddenErr(msg string) error {
	return newError(ErrForbidden, "%s", msg)
}

// QueryErr wraps an engine failure, keeping the engine message as is.
func QueryErr(err error) error {
	return &Error{kind: ErrQueryError, msg: err.Error()}
}

// QueryInterruptedErr returns an error for a query that hit its time limit.
func QueryInterruptedErr(sql string) error {
	return newError(ErrQueryInterrupted, "SQL query took too long. The time limit is controlled by the sql_time_limit_ms setting: %s", sql)
}
