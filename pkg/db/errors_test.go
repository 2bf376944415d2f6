package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	pgx := &pgconn.PgError{Code: "23505", ConstraintName: "ux_sync_event_records_event_id"}
	if !IsUniqueViolation(pgx, "") {
		t.Fatalf("expected pgx unique violation to match without constraint")
	}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", pgx), "ux_sync_event_records_event_id") {
		t.Fatalf("expected wrapped pgx error to match constraint")
	}
	if IsUniqueViolation(pgx, "ux_other") {
		t.Fatalf("constraint mismatch should not match")
	}

	pqErr := &pq.Error{Code: "23505", Constraint: "ux_catalog_products_external_ref"}
	if !IsUniqueViolation(pqErr, "ux_catalog_products_external_ref") {
		t.Fatalf("expected pq unique violation to match")
	}

	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatalf("foreign key violation must not count as unique violation")
	}
	if IsUniqueViolation(errors.New("duplicate key value"), "") {
		t.Fatalf("plain text errors must not match")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatalf("nil error must not match")
	}
}
