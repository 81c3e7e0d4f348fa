package aggregates

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/keyresult-tracker/internal/domain/aggregates"
)

func TestMapError_Validation(t *testing.T) {
	err := MapError("op", ValidationError("bad input"))
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_Conflict(t *testing.T) {
	err := MapError("op", ConflictError("stale"))
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("expected conflict code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_NotFound(t *testing.T) {
	err := MapError("op", gorm.ErrRecordNotFound)
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("expected not_found code, got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestMapError_PgCodes(t *testing.T) {
	cases := map[string]domainagg.ErrorCode{
		"23505": domainagg.CodeConflict,
		"40001": domainagg.CodeRetryable,
		"40P01": domainagg.CodeRetryable,
		"55P03": domainagg.CodeRetryable,
		"22003": domainagg.CodeInternal,
	}
	for code, want := range cases {
		err := MapError("op", &pgconn.PgError{Code: code, Message: "pg"})
		if !domainagg.IsCode(err, want) {
			t.Fatalf("pg %s: want=%s got=%s", code, want, domainagg.CodeOf(err))
		}
	}
}

func TestMapError_SQLiteUniqueMessage(t *testing.T) {
	err := MapError("op", errors.New("UNIQUE constraint failed: key_result_progress.key_result_id"))
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("expected conflict code, got %q", domainagg.CodeOf(err))
	}
}

func TestMapError_PassthroughAggregateError(t *testing.T) {
	in := domainagg.NewError(domainagg.CodeRetryable, "op", "retry", errors.New("boom"))
	out := MapError("other", in)
	if out != in {
		t.Fatalf("expected passthrough aggregate error")
	}
}

func TestTaggedErrorsKeepCallerMessage(t *testing.T) {
	err := MapError("progress.apply_update", ConflictError("version mismatch"))
	var e *domainagg.Error
	if !errors.As(err, &e) {
		t.Fatalf("want *Error, got %T", err)
	}
	if e.Message != "version mismatch" {
		t.Fatalf("message: %q", e.Message)
	}
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("sentinel lost through mapping")
	}
	if got := ValidationError("  ").Error(); got != ErrValidation.Error() {
		t.Fatalf("empty message: %q", got)
	}
}
