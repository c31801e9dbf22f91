package db

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
)

func TestSchemaFor(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"default", "tenant_default", true},
		{"city_hospital_2", "tenant_city_hospital_2", true},
		{"tenant-with-dash", "", false},
		{"drop;table", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := SchemaFor(tt.input)
		if (err == nil) != tt.ok {
			t.Errorf("SchemaFor(%q) err = %v, want ok=%v", tt.input, err, tt.ok)
		}
		if got != tt.want {
			t.Errorf("SchemaFor(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestExtractTenantID_Precedence(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/?tenant_id=fromquery", nil)
	req.Header.Set("X-Tenant-ID", "fromheader")
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("jwt_tenant_id", "fromjwt")
	if got := extractTenantID(c, "default"); got != "fromjwt" {
		t.Errorf("expected jwt tenant, got %q", got)
	}

	c = e.NewContext(req, httptest.NewRecorder())
	if got := extractTenantID(c, "default"); got != "fromheader" {
		t.Errorf("expected header tenant, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/?tenant_id=fromquery", nil)
	c = e.NewContext(req, httptest.NewRecorder())
	if got := extractTenantID(c, "default"); got != "fromquery" {
		t.Errorf("expected query tenant, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	c = e.NewContext(req, httptest.NewRecorder())
	if got := extractTenantID(c, "default"); got != "default" {
		t.Errorf("expected default tenant, got %q", got)
	}
}

func TestCreateTenantSchema_InvalidIDs(t *testing.T) {
	for _, id := range []string{"tenant.with.dot", "ten ant", "drop;table"} {
		if err := CreateTenantSchema(context.Background(), nil, id, nil); err == nil {
			t.Errorf("expected error for invalid tenant ID %q", id)
		}
	}
}

func TestContextAccessors_WrongTypes(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBConnKey, "not-a-conn")
	if ConnFromContext(ctx) != nil {
		t.Error("expected nil conn for wrong type")
	}
	ctx = context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if TxFromContext(ctx) != nil {
		t.Error("expected nil tx for wrong type")
	}
	ctx = context.WithValue(context.Background(), TenantIDKey, 12345)
	if TenantFromContext(ctx) != "" {
		t.Error("expected empty tenant for wrong type")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "23505", ConstraintName: "admission_one_active_per_patient"})
	if !IsUniqueViolation(err, "") {
		t.Error("expected unique violation")
	}
	if !IsUniqueViolation(err, "admission_one_active_per_patient") {
		t.Error("expected match on constraint name")
	}
	if IsUniqueViolation(err, "other_constraint") {
		t.Error("expected mismatch on other constraint")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Error("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("boom"), "") {
		t.Error("plain error is not a unique violation")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("wrap: %w", pgx.ErrNoRows)) {
		t.Error("expected wrapped ErrNoRows to match")
	}
	if IsNoRows(errors.New("other")) {
		t.Error("unexpected match")
	}
}
