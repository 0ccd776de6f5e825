package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/domainerrors"
)

func runErrorHandler(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	logger := zerolog.New(os.Stderr)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/blood-units/123", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	ErrorHandler(logger)(err, c)

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return rec, body
}

func TestErrorHandler_DomainError(t *testing.T) {
	rec, body := runErrorHandler(t, domainerrors.New(domainerrors.CodeAlreadyReserved, "unit already reserved"))
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if body["code"] != string(domainerrors.CodeAlreadyReserved) {
		t.Errorf("unexpected code %q", body["code"])
	}
	if body["message"] != "unit already reserved" {
		t.Errorf("unexpected message %q", body["message"])
	}
}

func TestErrorHandler_WrappedDomainError(t *testing.T) {
	inner := domainerrors.New(domainerrors.CodeNotFound, "blood unit not found")
	rec, body := runErrorHandler(t, fmt.Errorf("loading unit: %w", inner))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if body["code"] != string(domainerrors.CodeNotFound) {
		t.Errorf("unexpected code %q", body["code"])
	}
}

func TestErrorHandler_EchoHTTPError(t *testing.T) {
	rec, body := runErrorHandler(t, echo.NewHTTPError(http.StatusNotFound, "route not found"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if body["message"] != "route not found" {
		t.Errorf("unexpected message %q", body["message"])
	}
}

func TestErrorHandler_UnknownError(t *testing.T) {
	rec, body := runErrorHandler(t, fmt.Errorf("boom"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if body["code"] != string(domainerrors.CodeInternal) {
		t.Errorf("unexpected code %q", body["code"])
	}
	if body["message"] != "internal server error" {
		t.Errorf("internal detail should not leak, got %q", body["message"])
	}
}
