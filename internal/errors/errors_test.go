package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestOpErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("loading lot: %w", NotFound("lots.get", "lot 3 not found"))

	if !stderrors.Is(err, ErrNotFound) {
		t.Fatalf("expected errors.Is to match ErrNotFound")
	}
	if stderrors.Is(err, ErrConflict) {
		t.Fatalf("did not expect ErrConflict to match")
	}
	if !IsKind(err, KindNotFound) {
		t.Fatalf("expected kind %s, got %s", KindNotFound, KindOf(err))
	}
}

func TestOpErrorUnwrap(t *testing.T) {
	root := stderrors.New("boom")
	err := &OpError{Op: "spaces.create", Kind: KindInternal, Err: root}
	if !stderrors.Is(err, root) {
		t.Fatalf("expected errors.Is to reach the cause")
	}
	if got := err.Error(); got != "spaces.create: internal: boom" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("op", "x"), http.StatusNotFound},
		{Conflict("op", "x"), http.StatusConflict},
		{Invalid("op", "x"), http.StatusUnprocessableEntity},
		{Forbidden("op", "x"), http.StatusForbidden},
		{fmt.Errorf("wrapped: %w", ErrUnauthorized), http.StatusUnauthorized},
		{NewHTTPError(http.StatusTeapot, "tea"), http.StatusTeapot},
		{stderrors.New("db down"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := StatusFor(c.err); got != c.want {
			t.Errorf("StatusFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestPublicMessageHidesInternal(t *testing.T) {
	if got := PublicMessage(stderrors.New("pq: password authentication failed")); got != "internal error" {
		t.Fatalf("expected internal error, got %q", got)
	}
	if got := PublicMessage(Conflict("spaces.checkin", "space A1 is occupied")); got != "space A1 is occupied" {
		t.Fatalf("unexpected message %q", got)
	}
}
