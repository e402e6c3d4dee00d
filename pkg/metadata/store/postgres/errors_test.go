package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/marmos91/storagebox/pkg/metadata"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"serialization failure", &pgconn.PgError{Code: codeSerializationFailure}, true},
		{"deadlock", &pgconn.PgError{Code: codeDeadlockDetected}, true},
		{"wrapped deadlock", fmt.Errorf("commit: %w", &pgconn.PgError{Code: codeDeadlockDetected}), true},
		{"mapped serialization failure", mapPgError(&pgconn.PgError{Code: codeSerializationFailure}, "commit"), true},
		{"unique violation", &pgconn.PgError{Code: codeUniqueViolation}, false},
		{"lock not available", &pgconn.PgError{Code: codeLockNotAvailable}, false},
		{"store error", metadata.NewUploadExpiredError(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestMapPgErrorKeepsCause(t *testing.T) {
	cause := &pgconn.PgError{Code: codeSerializationFailure}
	err := mapPgError(cause, "commit")
	if !metadata.HasCode(err, metadata.ErrTransient) {
		t.Fatalf("mapPgError() = %v, want transient", err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr != cause {
		t.Errorf("mapPgError() lost the server error: %v", err)
	}
}
