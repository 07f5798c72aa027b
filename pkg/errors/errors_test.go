package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForTaxonomy(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		expose    bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, expose: true},
		{code: CodeConflict, status: http.StatusConflict, retryable: true, expose: true},
		{code: CodePayment, status: http.StatusPaymentRequired, retryable: true, expose: true},
		{code: CodeConsistency, status: http.StatusUnprocessableEntity},
		{code: CodeForbidden, status: http.StatusForbidden, expose: true},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.ExposeMessage != tt.expose {
			t.Fatalf("code %s expected expose %v got %v", tt.code, tt.expose, meta.ExposeMessage)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestWrapKeepsCauseInChain(t *testing.T) {
	cause := stdErrors.New("card declined")
	err := Wrap(CodePayment, cause, "authorization failed")

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if err.Error() != "PAYMENT_ERROR: authorization failed: card declined" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}

func TestCodeOfFindsWrappedError(t *testing.T) {
	inner := New(CodeConflict, "listing changed")
	outer := fmt.Errorf("place bid: %w", inner)

	if CodeOf(outer) != CodeConflict {
		t.Fatalf("expected conflict, got %s", CodeOf(outer))
	}
	if !IsCode(outer, CodeConflict) {
		t.Fatalf("expected IsCode to match")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatalf("untyped errors should map to internal")
	}
}

func TestWithDetails(t *testing.T) {
	err := Newf(CodeValidation, "bid must exceed $%s", "1000.00").WithDetails(map[string]string{"reason": "below_highest"})
	if err.Message() != "bid must exceed $1000.00" {
		t.Fatalf("unexpected message %q", err.Message())
	}
	details, ok := err.Details().(map[string]string)
	if !ok || details["reason"] != "below_highest" {
		t.Fatalf("unexpected details %#v", err.Details())
	}
}

func TestDumpExtractsPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "40P01", TableName: "listings", Message: "deadlock detected"}
	err := Wrap(CodeDependency, fmt.Errorf("swap listing: %w", pgErr), "update listing")

	dump := Dump(err)
	if dump.Code != CodeDependency || dump.PGCode != "40P01" || !dump.Transient {
		t.Fatalf("unexpected dump %+v", dump)
	}
	if len(dump.Chain) < 3 {
		t.Fatalf("expected full chain, got %v", dump.Chain)
	}
	fields := dump.Fields()
	if fields["pg_table"] != "listings" {
		t.Fatalf("expected pg_table field, got %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty pg fields should be omitted")
	}
	if !IsTransient(err) {
		t.Fatal("deadlock should be transient")
	}
}

func TestDumpOfPlainAndUniqueErrors(t *testing.T) {
	plain := Dump(fmt.Errorf("boom"))
	if plain.Code != CodeInternal || plain.Transient {
		t.Fatalf("unexpected dump %+v", plain)
	}
	if _, ok := plain.Fields()["pg_code"]; ok {
		t.Fatal("pg fields should be absent without a postgres error")
	}
	if IsTransient(&pq.Error{Code: "23505"}) {
		t.Fatal("unique violation is not transient")
	}
	if !IsTransient(&pq.Error{Code: "40001"}) {
		t.Fatal("serialization failure is transient")
	}
	if empty := Dump(nil); empty.TopMessage != "" || empty.Chain != nil {
		t.Fatal("nil error should dump empty")
	}
}
