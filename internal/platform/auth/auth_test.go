package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/zyposofttech/ZypoCare-One-sub019/pkg/domainerrors"
)

func signToken(t *testing.T, key []byte, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	key := []byte("test-secret")
	tokenStr := signToken(t, key, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		BranchID:    "branch-1",
		Permissions: []string{PermInventoryRead},
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got *Principal
	handler := JWTMiddleware(JWTConfig{SigningKey: key})(func(c echo.Context) error {
		got = PrincipalFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if got == nil {
		t.Fatal("expected principal on context")
	}
	if got.UserID != "user-1" || got.BranchID != "branch-1" {
		t.Errorf("unexpected principal: %+v", got)
	}
	if !got.HasPermission(PermInventoryRead) {
		t.Error("expected inventory read permission")
	}
	if got.HasPermission(PermIssueCreate) {
		t.Error("did not expect issue create permission")
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := JWTMiddleware(JWTConfig{SigningKey: []byte("k")})(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	err := handler(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	tokenStr := signToken(t, []byte("other-secret"), &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		BranchID: "branch-1",
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := JWTMiddleware(JWTConfig{SigningKey: []byte("test-secret")})(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	err := handler(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestJWTMiddleware_MissingBranch(t *testing.T) {
	key := []byte("test-secret")
	tokenStr := signToken(t, key, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := JWTMiddleware(JWTConfig{SigningKey: key})(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	err := handler(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestRequire(t *testing.T) {
	ctx := WithPrincipal(context.Background(), &Principal{
		UserID:      "user-1",
		BranchID:    "branch-1",
		Permissions: []string{PermIssueCreate},
	})

	p, err := Require(ctx, PermIssueCreate)
	if err != nil {
		t.Fatalf("expected permission granted, got %v", err)
	}
	if p.UserID != "user-1" {
		t.Errorf("unexpected principal: %+v", p)
	}

	if _, err := Require(ctx, PermLookbackManage); !domainerrors.Is(err, domainerrors.CodeForbidden) {
		t.Errorf("expected forbidden error, got %v", err)
	}

	if _, err := Require(context.Background(), PermIssueCreate); !domainerrors.Is(err, domainerrors.CodeForbidden) {
		t.Errorf("expected forbidden error for missing principal, got %v", err)
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := DevAuthMiddleware()(func(c echo.Context) error {
		p := PrincipalFromContext(c.Request().Context())
		if p == nil {
			t.Fatal("expected principal")
		}
		if !p.HasPermission(PermLookbackManage) {
			t.Error("wildcard grant should match any permission")
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
}
