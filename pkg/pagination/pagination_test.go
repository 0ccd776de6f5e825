package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, target string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return FromContext(e.NewContext(req, rec))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor(t, "/")
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestFromContext_ExplicitValues(t *testing.T) {
	p := paramsFor(t, "/?limit=25&offset=5")
	if p.Limit != 25 {
		t.Errorf("expected limit 25, got %d", p.Limit)
	}
	if p.Offset != 5 {
		t.Errorf("expected offset 5, got %d", p.Offset)
	}
}

func TestFromContext_ClampsLimit(t *testing.T) {
	p := paramsFor(t, "/?limit=5000")
	if p.Limit != MaxLimit {
		t.Errorf("expected limit clamped to %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_NegativeOffset(t *testing.T) {
	p := paramsFor(t, "/?offset=-10")
	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestParams_SQL(t *testing.T) {
	p := Params{Limit: 20, Offset: 40}
	if got := p.SQL(); got != "LIMIT 20 OFFSET 40" {
		t.Errorf("unexpected SQL clause: %s", got)
	}
}

func TestParams_Navigation(t *testing.T) {
	p := Params{Limit: 10, Offset: 10}
	if !p.HasNext(25) {
		t.Error("expected HasNext for total 25")
	}
	if p.HasNext(20) {
		t.Error("did not expect HasNext for total 20")
	}
	if !p.HasPrevious() {
		t.Error("expected HasPrevious for offset 10")
	}
	if p.NextOffset() != 20 {
		t.Errorf("expected next offset 20, got %d", p.NextOffset())
	}
	if p.PreviousOffset() != 0 {
		t.Errorf("expected previous offset 0, got %d", p.PreviousOffset())
	}

	first := Params{Limit: 10, Offset: 5}
	if first.PreviousOffset() != 0 {
		t.Errorf("previous offset should clamp to 0, got %d", first.PreviousOffset())
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 12, 10, 0)
	if !resp.HasMore {
		t.Error("expected HasMore")
	}
	lastPage := NewResponse([]string{"a", "b"}, 12, 10, 10)
	if lastPage.HasMore {
		t.Error("did not expect HasMore on last page")
	}
}
