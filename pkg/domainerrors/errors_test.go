package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIs_MatchesCode(t *testing.T) {
	err := New(CodeAlreadyReserved, "unit BU-1 already reserved")
	if !Is(err, CodeAlreadyReserved) {
		t.Error("expected Is to match code")
	}
	if Is(err, CodeNotFound) {
		t.Error("expected Is to reject other codes")
	}
}

func TestIs_WrappedChain(t *testing.T) {
	inner := New(CodeDonorIneligible, "donor deferred")
	outer := fmt.Errorf("start collection: %w", inner)
	if !Is(outer, CodeDonorIneligible) {
		t.Error("expected Is to unwrap fmt-wrapped errors")
	}
}

func TestCodeOf_Default(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != CodeInternal {
		t.Errorf("expected CodeInternal, got %s", got)
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("row not found")
	err := Wrap(CodeNotFound, "blood unit not found", cause)
	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause in chain")
	}
	if err.Error() != "blood unit not found" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeNotFound:                  http.StatusNotFound,
		CodeForbidden:                 http.StatusForbidden,
		CodeAlreadyReserved:           http.StatusConflict,
		CodeSlotOccupied:              http.StatusConflict,
		CodeBedsideVerificationFailed: http.StatusUnprocessableEntity,
		CodeHighRiskOverrideRequired:  http.StatusUnprocessableEntity,
		CodePartialTransferRejected:   http.StatusUnprocessableEntity,
		CodeBadRequest:                http.StatusBadRequest,
		CodeInternal:                  http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := HTTPStatus(code); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", code, got, want)
		}
	}
}
