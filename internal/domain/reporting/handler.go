package reporting

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/ipd/internal/domain/admission"
	"github.com/ehr/ipd/internal/platform/auth"
	xlsx "github.com/ehr/ipd/internal/platform/reporting"
)

const defaultWindow = 30 * 24 * time.Hour

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole(auth.RoleManager, auth.RoleDoctor))
	reportGroup.GET("/bed-availability", h.BedAvailability)
	reportGroup.GET("/bed-availability.xlsx", h.BedAvailabilityXLSX)
	reportGroup.GET("/performance-metrics", h.PerformanceMetrics)
	reportGroup.GET("/performance-metrics.xlsx", h.PerformanceMetricsXLSX)
}

func (h *Handler) BedAvailability(c echo.Context) error {
	wards, err := h.svc.BedAvailabilityByWard(c.Request().Context())
	if err != nil {
		return admission.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": wards})
}

func (h *Handler) BedAvailabilityXLSX(c echo.Context) error {
	data, err := h.svc.BedAvailabilityWorkbook(c.Request().Context())
	if err != nil {
		return admission.WriteError(c, err)
	}
	return attachment(c, "bed-availability.xlsx", data)
}

func (h *Handler) PerformanceMetrics(c echo.Context) error {
	from, to, err := h.window(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.PerformanceMetrics(c.Request().Context(), from, to)
	if err != nil {
		return admission.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) PerformanceMetricsXLSX(c echo.Context) error {
	from, to, err := h.window(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	data, err := h.svc.PerformanceWorkbook(c.Request().Context(), from, to)
	if err != nil {
		return admission.WriteError(c, err)
	}
	name := fmt.Sprintf("performance-metrics-%s-%s.xlsx", from.Format("20060102"), to.Format("20060102"))
	return attachment(c, name, data)
}

// window reads ?from= and ?to= as RFC 3339 timestamps or plain dates. A
// plain-date to includes that whole day. The default is the last 30 days.
func (h *Handler) window(c echo.Context) (time.Time, time.Time, error) {
	to := h.svc.now()
	if v := c.QueryParam("to"); v != "" {
		t, dateOnly, err := parseTime(v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to: %w", err)
		}
		if dateOnly {
			t = t.Add(24 * time.Hour)
		}
		to = t
	}
	from := to.Add(-defaultWindow)
	if v := c.QueryParam("from"); v != "" {
		t, _, err := parseTime(v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from: %w", err)
		}
		from = t
	}
	return from, to, nil
}

func parseTime(v string) (time.Time, bool, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	return t.UTC(), false, err
}

func attachment(c echo.Context, name string, data []byte) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, xlsx.MIMEType, data)
}
