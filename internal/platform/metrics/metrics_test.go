package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestMetrics_CountersRegisterAndScrape(t *testing.T) {
	m := New()
	m.StatusTransitions.WithLabelValues("AVAILABLE", "RESERVED").Inc()
	m.UnitsDiscarded.WithLabelValues("BAG_LEAK").Add(2)
	m.OpenLookbacks.Set(3)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := m.Handler()(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`bloodbank_unit_status_transitions_total{from="AVAILABLE",to="RESERVED"} 1`,
		`bloodbank_units_discarded_total{reason="BAG_LEAK"} 2`,
		`bloodbank_open_lookback_cases 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Two instances must not panic on duplicate registration.
	_ = New()
	_ = New()
}
