package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/marmos91/storagebox/pkg/metadata"
)

// PostgreSQL error codes: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeNotNullViolation     = "23502"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUndefinedTable       = "42P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
	codeAdminShutdown        = "57P01"
	codeTooManyConnections   = "53300"
)

// mapPgError converts driver errors that no operation handled itself into
// store errors. Operations map the constraint violations they expect before
// calling it; anything left over is either transient or a bug.
func mapPgError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var storeErr *metadata.StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return metadata.NewBugError("%s: unexpected empty result", operation)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable,
			codeQueryCanceled, codeAdminShutdown, codeTooManyConnections:
			return metadata.NewTransientError(operation, err)
		case codeUniqueViolation, codeForeignKeyViolation, codeCheckViolation, codeNotNullViolation:
			return metadata.NewBugError("%s: unexpected constraint violation %s: %s", operation, pgErr.ConstraintName, pgErr.Message)
		}
		return metadata.WrapInternal(operation, err)
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return metadata.NewTransientError(operation, err)
	}
	return metadata.WrapInternal(operation, err)
}

func pgErrorCode(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func isUniqueViolation(err error, constraint string) bool {
	code, name := pgErrorCode(err)
	return code == codeUniqueViolation && (constraint == "" || name == constraint)
}

func isForeignKeyViolation(err error, constraint string) bool {
	code, name := pgErrorCode(err)
	return code == codeForeignKeyViolation && (constraint == "" || name == constraint)
}

func isUndefinedTable(err error) bool {
	code, _ := pgErrorCode(err)
	return code == codeUndefinedTable
}

// retryable reports whether the server aborted the transaction in a way
// that re-running it can resolve.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}
