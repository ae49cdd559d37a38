package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestConstraintViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "reservations_active_slot_uq"})

	if !ConstraintViolation(err, CodeUniqueViolation, "reservations_active_slot_uq") {
		t.Fatal("expected wrapped unique violation to match")
	}
	if !ConstraintViolation(err, CodeUniqueViolation, "") {
		t.Fatal("expected empty constraint name to match any constraint")
	}
	if ConstraintViolation(err, CodeUniqueViolation, "other_uq") {
		t.Fatal("expected different constraint name not to match")
	}
	if ConstraintViolation(err, CodeExclusionViolation, "") {
		t.Fatal("expected different code not to match")
	}
	if ConstraintViolation(errors.New("boom"), CodeUniqueViolation, "") {
		t.Fatal("expected plain error not to match")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows to match")
	}
	if IsNoRows(errors.New("boom")) {
		t.Fatal("expected plain error not to match")
	}
}

func TestReadyCheckWithoutPool(t *testing.T) {
	if err := ReadyCheck(nil)(t.Context()); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
