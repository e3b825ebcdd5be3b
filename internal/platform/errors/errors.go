// Package errors provides a structured error type with wrapping and metadata
package errors

// Always import the project errors package as perr (platform/errors)

import (
	stderrs "errors"
	"fmt"
)

// ErrorCode defines supported error codes used across the build
// Values are stable because they are persisted in validation reports; add sparingly
type ErrorCode uint16

const (
	// ErrorCodeUnknown is for unclassified errors
	ErrorCodeUnknown ErrorCode = iota

	// ErrorCodePanic is for panics recovered by a worker
	ErrorCodePanic

	// ErrorCodeUnavailable is for transient errors where retry may succeed
	ErrorCodeUnavailable

	// ErrorCodeConflict is for generic conflicts beyond duplicate key
	ErrorCodeConflict

	// ErrorCodeInvalidArgument is for bad input parameters
	ErrorCodeInvalidArgument

	// ErrorCodeValidation is for configuration or document validation failures
	ErrorCodeValidation

	// ErrorCodeNotFound is for missing resources
	ErrorCodeNotFound

	// ErrorCodeDuplicateKey is for unique constraint violations in the ledger
	ErrorCodeDuplicateKey

	// ErrorCodeDB is for general database errors
	ErrorCodeDB

	// ErrorCodeIO is for filesystem and decoding failures
	ErrorCodeIO

	// ErrorCodeSchemaDrift means a required logical field has no mapping for a (domain, period)
	ErrorCodeSchemaDrift

	// ErrorCodeRecordParse means a value failed type coercion; the record is quarantined
	ErrorCodeRecordParse

	// ErrorCodeUnresolvableEmployer means the raw employer name is empty or unusable
	ErrorCodeUnresolvableEmployer

	// ErrorCodeDuplicatePrimaryKey means two records share a primary key
	ErrorCodeDuplicatePrimaryKey

	// ErrorCodeReferentialGap means a foreign key has no matching dimension row
	ErrorCodeReferentialGap

	// ErrorCodeCoverageBelowThreshold means a monitored field or key coverage breached its bound
	ErrorCodeCoverageBelowThreshold
)

var codeNames = [...]string{
	ErrorCodeUnknown:                "unknown",
	ErrorCodePanic:                  "panic",
	ErrorCodeUnavailable:            "unavailable",
	ErrorCodeConflict:               "conflict",
	ErrorCodeInvalidArgument:        "invalid_argument",
	ErrorCodeValidation:             "validation",
	ErrorCodeNotFound:               "not_found",
	ErrorCodeDuplicateKey:           "duplicate_key",
	ErrorCodeDB:                     "db",
	ErrorCodeIO:                     "io",
	ErrorCodeSchemaDrift:            "schema_drift",
	ErrorCodeRecordParse:            "record_parse",
	ErrorCodeUnresolvableEmployer:   "unresolvable_employer",
	ErrorCodeDuplicatePrimaryKey:    "duplicate_primary_key",
	ErrorCodeReferentialGap:         "referential_gap",
	ErrorCodeCoverageBelowThreshold: "coverage_below_threshold",
}

// String returns the snake_case name used in reports and sinks
func (c ErrorCode) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("code_%d", uint16(c))
}

// MarshalText renders codes by name in JSON documents
func (c ErrorCode) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText parses a code name back into an ErrorCode
func (c *ErrorCode) UnmarshalText(b []byte) error {
	for i, n := range codeNames {
		if n == string(b) {
			*c = ErrorCode(i)
			return nil
		}
	}
	return fmt.Errorf("unknown error code %q", string(b))
}

// Error carries a machine code for reports next to a developer message.
// field names the logical field or config key at fault, op the build step
type Error struct {
	orig  error
	msg   string
	code  ErrorCode
	field string
	op    string
}

// Wire is the form written to validation reports and reject sinks
type Wire struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Op      string    `json:"op,omitempty"`
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.orig == nil:
		return e.msg
	}
	return e.msg + ": " + e.orig.Error()
}

func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Field returns the offending field, if any
func (e *Error) Field() string { return e.field }

// WireFrom renders err for a report; foreign errors become unknown
// The wire message omits the wrapped cause
func WireFrom(err error) Wire {
	if err == nil {
		return Wire{}
	}
	e, ok := As(err)
	if !ok {
		return Wire{Code: ErrorCodeUnknown, Message: err.Error()}
	}
	return Wire{Code: e.code, Message: e.msg, Field: e.field, Op: e.op}
}

// Root returns the deepest wrapped cause
func Root(err error) error {
	for {
		next := stderrs.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// CodeOf returns the code of the first *Error in the chain, or unknown
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether err has the given code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// As returns the first *Error in the chain
func As(err error) (*Error, bool) {
	var e *Error
	ok := stderrs.As(err, &e)
	return e, ok
}

// edit applies fn to a copy of the first *Error in the chain; other errors pass through
func edit(err error, fn func(*Error)) error {
	e, ok := As(err)
	if !ok {
		return err
	}
	c := *e
	fn(&c)
	return &c
}

// WithField tags err with the offending field
func WithField(err error, field string) error {
	return edit(err, func(e *Error) { e.field = field })
}

// WithOp tags err with the build step that failed
func WithOp(err error, op string) error {
	return edit(err, func(e *Error) { e.op = op })
}

// New returns an *Error with code and msg
func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

// Newf is New with a format
func Newf(code ErrorCode, format string, a ...any) error { return New(code, fmt.Sprintf(format, a...)) }

// Wrap attaches code and msg to orig
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf is Wrap with a format
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return Wrap(orig, code, fmt.Sprintf(format, a...))
}

// WrapIf is Wrap for a possibly nil err
func WrapIf(err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	return Wrap(err, code, msg)
}

func fieldf(code ErrorCode, field, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), field: field}
}

// InvalidArgf returns an invalid argument error
func InvalidArgf(format string, a ...any) error { return Newf(ErrorCodeInvalidArgument, format, a...) }

// Validationf returns a validation error
func Validationf(format string, a ...any) error { return Newf(ErrorCodeValidation, format, a...) }

// IOf returns a filesystem or decoding error
func IOf(format string, a ...any) error { return Newf(ErrorCodeIO, format, a...) }

// Unavailablef returns a retryable dependency error
func Unavailablef(format string, a ...any) error { return Newf(ErrorCodeUnavailable, format, a...) }

// SchemaDrift reports a required logical field with no mapping for (domain, period) in a source
func SchemaDrift(domain, period, source, field string) error {
	return fieldf(ErrorCodeSchemaDrift, field,
		"schema drift: %s %s has no column for required field %q in %s", domain, period, field, source)
}

// RecordParsef returns a record coercion failure for a logical field
func RecordParsef(field, format string, a ...any) error {
	return fieldf(ErrorCodeRecordParse, field, format, a...)
}

// UnresolvableEmployerf returns an employer identity failure
func UnresolvableEmployerf(format string, a ...any) error {
	return fieldf(ErrorCodeUnresolvableEmployer, "employer_name", format, a...)
}

// DuplicatePrimaryKeyf returns a primary key collision error
func DuplicatePrimaryKeyf(format string, a ...any) error {
	return Newf(ErrorCodeDuplicatePrimaryKey, format, a...)
}

// ReferentialGapf returns a referential completeness failure
func ReferentialGapf(format string, a ...any) error { return Newf(ErrorCodeReferentialGap, format, a...) }

// CoverageBelowf returns a coverage threshold breach
func CoverageBelowf(field, format string, a ...any) error {
	return fieldf(ErrorCodeCoverageBelowThreshold, field, format, a...)
}

// Retryable reports whether a partition or ledger step may succeed if attempted again:
// an unavailable code, ledger contention (pg.go) or a transient filesystem errno (fs.go)
func Retryable(err error) bool {
	return err != nil && (IsCode(err, ErrorCodeUnavailable) || IsRetryable(err) || IsTransientFS(err))
}
