package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded", retryable: true},
		{code: CodeTimeout, status: http.StatusGatewayTimeout, publicMsg: "upstream timeout", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "foo"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeForbidden, "no entry"))
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestFromStatusMapsCodes(t *testing.T) {
	tests := []struct {
		status int
		code   Code
	}{
		{http.StatusBadRequest, CodeValidation},
		{http.StatusUnauthorized, CodeUnauthorized},
		{http.StatusNotFound, CodeNotFound},
		{http.StatusConflict, CodeConflict},
		{http.StatusTooManyRequests, CodeRateLimit},
		{http.StatusTooEarly, CodeRateLimit},
		{http.StatusRequestTimeout, CodeTimeout},
		{http.StatusBadGateway, CodeDependency},
		{http.StatusTeapot, CodeValidation},
	}
	for _, tt := range tests {
		err := FromStatus(tt.status, "some_type", "")
		if err.Code() != tt.code {
			t.Fatalf("status %d expected %s got %s", tt.status, tt.code, err.Code())
		}
		if err.Status() != tt.status {
			t.Fatalf("status not preserved: %d", err.Status())
		}
		if err.Message() == "" {
			t.Fatalf("expected status text fallback for %d", tt.status)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   Kind
		status int
	}{
		{name: "rate limited", err: FromStatus(429, "general_rate_limit_exceeded", "slow down"), kind: KindTransient, status: 429},
		{name: "server error", err: FromStatus(503, "", ""), kind: KindTransient, status: 503},
		{name: "not found", err: FromStatus(404, "document_not_found", "missing"), kind: KindPermanent, status: 404},
		{name: "validation", err: New(CodeValidation, "bad"), kind: KindPermanent},
		{name: "dependency", err: New(CodeDependency, "db down"), kind: KindTransient},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), kind: KindTransient},
		{name: "canceled", err: context.Canceled, kind: KindPermanent},
		{name: "network message", err: stdErrors.New("dial tcp: connection refused"), kind: KindTransient},
		{name: "rate limit message", err: stdErrors.New("Rate limit for the current endpoint has been exceeded"), kind: KindTransient},
		{name: "wrapped network cause", err: Wrap(CodeInternal, stdErrors.New("read: connection reset by peer"), "write product"), kind: KindTransient},
		{name: "plain", err: stdErrors.New("invalid document structure"), kind: KindPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Normalize(tt.err)
			if f.Kind != tt.kind {
				t.Fatalf("expected %s, got %s", tt.kind, f.Kind)
			}
			if f.Status != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, f.Status)
			}
			if f.Message == "" {
				t.Fatalf("expected message")
			}
		})
	}

	if f := Normalize(nil); f.Kind != "" {
		t.Fatalf("nil error should normalize to zero failure")
	}
}

func TestDumpCapturesStatusAndPostgres(t *testing.T) {
	remote := FromStatus(409, "document_already_exists", "exists")
	d := Dump(fmt.Errorf("create: %w", remote))
	if d.Status != 409 || d.Type != "document_already_exists" || d.Code != CodeConflict {
		t.Fatalf("unexpected dump %+v", d)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected 2 chain entries, got %d", len(d.Chain))
	}

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "idx_products_tenant_code", Message: "duplicate key value"}
	if code := PostgresCode(fmt.Errorf("insert: %w", pgErr)); code != "23505" {
		t.Fatalf("expected 23505, got %q", code)
	}
}

func TestDumpCapturesPostgresColumn(t *testing.T) {
	pgxErr := &pgconn.PgError{Code: "23502", TableName: "product_variants", ColumnName: "sku", Message: "null value"}
	d := Dump(Wrap(CodeInternal, pgxErr, "insert variant"))
	if d.PGCode != "23502" || d.PGTable != "product_variants" || d.PGColumn != "sku" {
		t.Fatalf("unexpected pgx dump %+v", d)
	}

	pqErr := &pq.Error{Code: "23502", Table: "categories", Column: "name", Message: "null value"}
	d = Dump(fmt.Errorf("insert category: %w", pqErr))
	if d.PGCode != "23502" || d.PGTable != "categories" || d.PGColumn != "name" {
		t.Fatalf("unexpected pq dump %+v", d)
	}
}
