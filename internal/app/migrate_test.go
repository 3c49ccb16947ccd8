package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type recordingTx struct {
	pgx.Tx
	execErr    error
	statements *[]string
	committed  *int
}

func (tx recordingTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if tx.execErr != nil {
		return pgconn.CommandTag{}, tx.execErr
	}
	*tx.statements = append(*tx.statements, sql)
	return pgconn.NewCommandTag("OK"), nil
}

func (tx recordingTx) Commit(context.Context) error {
	*tx.committed++
	return nil
}

func (tx recordingTx) Rollback(context.Context) error { return nil }

type flakyBeginner struct {
	failures   []error
	attempts   int
	statements []string
	committed  int
}

func (b *flakyBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	var execErr error
	if b.attempts < len(b.failures) {
		execErr = b.failures[b.attempts]
	}
	b.attempts++
	return recordingTx{execErr: execErr, statements: &b.statements, committed: &b.committed}, nil
}

func TestApplyMigrationRetriesSerializationFailure(t *testing.T) {
	conn := &flakyBeginner{failures: []error{&pgconn.PgError{Code: "40001"}}}
	var out bytes.Buffer

	if err := applyMigrationWithRetry(context.Background(), conn, "0001_init.sql", "CREATE TABLE trips ()", &out); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if conn.attempts != 2 || conn.committed != 1 {
		t.Fatalf("expected one retry and one commit got %d attempts %d commits", conn.attempts, conn.committed)
	}
	if len(conn.statements) != 2 || !strings.Contains(conn.statements[1], "schema_migrations") {
		t.Fatalf("expected migration and bookkeeping statements got %v", conn.statements)
	}
	if !strings.Contains(out.String(), "transient error") {
		t.Fatalf("expected retry to be reported got %q", out.String())
	}
}

func TestApplyMigrationDoesNotRetrySyntaxErrors(t *testing.T) {
	conn := &flakyBeginner{failures: []error{&pgconn.PgError{Code: "42601"}}}

	err := applyMigrationWithRetry(context.Background(), conn, "0001_init.sql", "CREATE TABLE", &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected syntax error to be returned")
	}
	if conn.attempts != 1 {
		t.Fatalf("expected a single attempt got %d", conn.attempts)
	}
}

func TestApplyMigrationGivesUpAfterMaxRetries(t *testing.T) {
	deadlock := &pgconn.PgError{Code: "40P01"}
	conn := &flakyBeginner{failures: []error{deadlock, deadlock, deadlock}}

	err := applyMigrationWithRetry(context.Background(), conn, "0002_buddy_notify.sql", "SELECT 1", &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if conn.attempts != migrationMaxRetries {
		t.Fatalf("expected %d attempts got %d", migrationMaxRetries, conn.attempts)
	}
}

func TestShouldRetryMigration(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"lock not available", fmt.Errorf("apply: %w", &pgconn.PgError{Code: "55P03"}), true},
		{"tx closed", pgx.ErrTxClosed, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetryMigration(tt.err); got != tt.want {
				t.Fatalf("shouldRetryMigration(%v) = %v want %v", tt.err, got, tt.want)
			}
		})
	}
}
