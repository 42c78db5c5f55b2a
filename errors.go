package pgfleet

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the engine can report. Validation
// kinds are raised before any connection is touched; connectivity kinds
// are raised per-acquisition; UnderlyingDatabaseError wraps native driver
// failures not otherwise classified.
type ErrorKind string

const (
	KindUnknownDatabase         ErrorKind = "unknown_database"
	KindConnectFailed           ErrorKind = "connect_failed"
	KindPoolExhausted           ErrorKind = "pool_exhausted"
	KindUnsafeIdentifier        ErrorKind = "unsafe_identifier"
	KindForbiddenKeyword        ErrorKind = "forbidden_keyword"
	KindProtectedTable          ErrorKind = "protected_table"
	KindForbiddenStatementClass ErrorKind = "forbidden_statement_class"
	KindUnknownOperation        ErrorKind = "unknown_operation"
	KindInvalidArguments        ErrorKind = "invalid_arguments"
	KindUnderlyingDatabase      ErrorKind = "underlying_database_error"
)

// Error is the structured error surfaced through tool results. Field names
// the offending argument or config entry where one applies. Err holds the
// wrapped native error for UnderlyingDatabase, never exposed credentials.
type Error struct {
	Kind    ErrorKind
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// FieldErrorf builds an Error tied to a specific argument or config field.
func FieldErrorf(kind ErrorKind, field, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

// WrapDatabaseError classifies a native driver failure as
// UnderlyingDatabaseError, preserving the original for errors.Is/As.
func WrapDatabaseError(err error) *Error {
	return &Error{Kind: KindUnderlyingDatabase, Message: err.Error(), Err: err}
}

// KindOf returns the ErrorKind of err if it is (or wraps) an *Error,
// otherwise UnderlyingDatabase.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnderlyingDatabase
}
