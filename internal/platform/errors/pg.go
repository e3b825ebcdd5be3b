package errors

import (
	"context"
	stderrs "errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE classes the build ledger distinguishes
const (
	stateUniqueViolation     = "23505"
	stateSerializationFailed = "40001"
	stateDeadlock            = "40P01"
	stateLockNotAvailable    = "55P03"
)

// sqlStateCodes maps ledger-relevant SQLSTATEs; anything else is ErrorCodeDB
var sqlStateCodes = map[string]ErrorCode{
	stateUniqueViolation: ErrorCodeDuplicateKey,
	"23503":              ErrorCodeInvalidArgument,
	"23502":              ErrorCodeValidation,
	"23514":              ErrorCodeValidation,
	"22001":              ErrorCodeInvalidArgument,
	"22P02":              ErrorCodeInvalidArgument,
	"25006":              ErrorCodeUnavailable, // read-only replica
	"57P03":              ErrorCodeUnavailable, // server starting up
	"08006":              ErrorCodeUnavailable,
}

// transient pgx messages that surface without a SQLSTATE
var transientPGText = []string{
	"commit unexpectedly resulted in rollback",
	"deadlock detected",
	"could not serialize access",
	"canceling statement due to lock timeout",
	"canceling statement due to statement timeout",
	"terminating connection due to administrator command",
}

func pgErrorOf(err error) (*pgconn.PgError, bool) {
	var pe *pgconn.PgError
	ok := stderrs.As(err, &pe)
	return pe, ok
}

// SQLStateCode classifies a Postgres error; ok is false when err carries no SQLSTATE
func SQLStateCode(err error) (ErrorCode, bool) {
	pe, ok := pgErrorOf(err)
	if !ok {
		return ErrorCodeUnknown, false
	}
	if c, found := sqlStateCodes[pe.Code]; found {
		return c, true
	}
	return ErrorCodeDB, true
}

// FromPostgres wraps a ledger query failure with its classified code
func FromPostgres(err error, op string) error {
	if err == nil {
		return nil
	}
	code, ok := SQLStateCode(err)
	if !ok {
		code = ErrorCodeDB
	}
	return Wrap(err, code, op)
}

// IsRetryable reports contention or connection loss that a later attempt may clear
// Local cancellation is never retryable here
func IsRetryable(err error) bool {
	if err == nil || stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return false
	}
	if pe, ok := pgErrorOf(err); ok {
		switch pe.Code {
		case stateSerializationFailed, stateDeadlock, stateLockNotAvailable:
			return true
		}
		return false
	}
	msg := strings.ToLower(Root(err).Error())
	for _, s := range transientPGText {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
