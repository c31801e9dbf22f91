package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHasAnyRole(t *testing.T) {
	tests := []struct {
		name     string
		has      []string
		required []string
		want     bool
	}{
		{"match", []string{RoleNurse}, []string{RoleDoctor, RoleNurse}, true},
		{"no match", []string{RoleNurse}, []string{RoleDoctor}, false},
		{"admin passes", []string{RoleAdmin}, []string{RoleManager}, true},
		{"no roles", nil, []string{RoleDoctor}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasAnyRole(tt.has, tt.required...); got != tt.want {
				t.Errorf("HasAnyRole(%v, %v) = %v, want %v", tt.has, tt.required, got, tt.want)
			}
		})
	}
}

func TestRequireRole_Allowed(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), "u1", []string{RoleDoctor}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequireRole(RoleDoctor, RoleNurse)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), "u1", []string{RoleNurse}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequireRole(RoleDoctor)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
}
