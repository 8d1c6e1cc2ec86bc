package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization", &pgconn.PgError{Code: CodeSerializationFailure}, true},
		{"deadlock wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeDeadlockDetected}), true},
		{"lock timeout", &pgconn.PgError{Code: CodeLockNotAvailable}, true},
		{"exclusion", &pgconn.PgError{Code: CodeExclusionViolation}, false},
		{"cancelled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("%s: IsTransient=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestConstraintClassifiers(t *testing.T) {
	if !IsExclusionViolation(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: CodeExclusionViolation})) {
		t.Fatal("expected exclusion violation")
	}
	if !IsUniqueViolation(&pgconn.PgError{Code: CodeUniqueViolation}) {
		t.Fatal("expected unique violation")
	}
	if !IsNotFound(fmt.Errorf("select: %w", pgx.ErrNoRows)) {
		t.Fatal("expected not found")
	}
}
