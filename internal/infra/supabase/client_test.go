package supabase_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/boddenberg/household-ledger/internal/domain"
	"github.com/boddenberg/household-ledger/internal/infra/supabase"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"wrapped deadlock", fmt.Errorf("settle: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"check violation", &pgconn.PgError{Code: "23514"}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := supabase.IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTranslateError(t *testing.T) {
	unknownCategory := &pgconn.PgError{
		Code:           "23503",
		Message:        `insert or update on table "transaction_lines" violates foreign key constraint`,
		ConstraintName: "transaction_lines_category_id_fkey",
	}
	tests := []struct {
		name      string
		err       error
		wantField string
		want      string // "validation", "conflict" or "" for unchanged
		infra     bool
	}{
		{"foreign key violation", fmt.Errorf("insert line: %w", unknownCategory), "transaction_lines_category_id_fkey", "validation", false},
		{"malformed uuid", &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"}, "", "validation", false},
		{"check violation", &pgconn.PgError{Code: "23514", ColumnName: "settled_amount"}, "settled_amount", "validation", false},
		{"unique violation", &pgconn.PgError{Code: "23505"}, "", "conflict", false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, "", "", true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, "", "", true},
		{"plain error", errors.New("connection reset"), "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := supabase.TranslateError(tt.err)
			var (
				validation *domain.ErrValidation
				conflict   *domain.ErrConflict
			)
			switch tt.want {
			case "validation":
				if !errors.As(got, &validation) {
					t.Fatalf("expected *domain.ErrValidation, got %T: %v", got, got)
				}
				if validation.Field != tt.wantField {
					t.Errorf("expected field %q, got %q", tt.wantField, validation.Field)
				}
			case "conflict":
				if !errors.As(got, &conflict) {
					t.Fatalf("expected *domain.ErrConflict, got %T: %v", got, got)
				}
			default:
				if got != tt.err {
					t.Errorf("expected error unchanged, got %v", got)
				}
			}
			if infra := supabase.IsInfraFailure(tt.err); infra != tt.infra {
				t.Errorf("IsInfraFailure(%v) = %v, want %v", tt.err, infra, tt.infra)
			}
		})
	}
}

func TestMigrationURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"postgres://user:pw@db.supabase.co:5432/postgres", "pgx5://user:pw@db.supabase.co:5432/postgres", false},
		{"postgresql://user@localhost/ledger?sslmode=disable", "pgx5://user@localhost/ledger?sslmode=disable", false},
		{"pgx5://user@localhost/ledger", "pgx5://user@localhost/ledger", false},
		{"mysql://user@localhost/ledger", "", true},
	}

	for _, tt := range tests {
		got, err := supabase.MigrationURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("MigrationURL(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("MigrationURL(%q): unexpected error %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("MigrationURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
