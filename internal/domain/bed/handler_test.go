package bed

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *mockRepo, *echo.Echo) {
	repo := newMockRepo()
	return NewHandler(NewService(repo)), repo, echo.New()
}

func TestHandler_ListBeds(t *testing.T) {
	h, repo, e := newTestHandler()
	repo.addBed("ICU-01", CategoryICU, StatusAvailable)
	repo.addBed("GEN-01", CategoryGeneral, StatusAvailable)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ipd/beds?ward_category=icu", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListBeds(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data  []Bed `json:"data"`
		Total int   `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 || body.Data[0].Code != "ICU-01" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_ListBeds_BadCategory(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ipd/beds?ward_category=lounge", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.ListBeds(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_GetBed(t *testing.T) {
	h, repo, e := newTestHandler()
	b := repo.addBed("PICU-01", CategoryPICU, StatusOccupied)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())

	if err := h.GetBed(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Bed
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != StatusOccupied || got.Category != CategoryPICU {
		t.Errorf("unexpected bed %+v", got)
	}
}

func TestHandler_GetBed_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetBed(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_ListWards(t *testing.T) {
	h, repo, e := newTestHandler()
	repo.wards = []*Ward{{ID: uuid.New(), Code: "W1", Name: "Cardiac", Category: CategoryCCU}}
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := h.ListWards(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_StorageFailureHidesDriverText(t *testing.T) {
	driverErr := errors.New(`FATAL: password authentication failed for user "ipd" (SQLSTATE 28P01)`)

	tests := []struct {
		name string
		call func(h *Handler, c echo.Context) error
	}{
		{"list wards", (*Handler).ListWards},
		{"list beds", (*Handler).ListBeds},
		{"get bed", (*Handler).GetBed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, repo, e := newTestHandler()
			repo.err = fmt.Errorf("list beds: %w", driverErr)
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues(uuid.New().String())

			err := tt.call(h, c)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok || httpErr.Code != http.StatusServiceUnavailable {
				t.Fatalf("expected 503, got %v", err)
			}
			msg := fmt.Sprint(httpErr.Message)
			if strings.Contains(msg, "SQLSTATE") || strings.Contains(msg, "password") {
				t.Errorf("driver detail leaked to client: %q", msg)
			}
		})
	}
}
