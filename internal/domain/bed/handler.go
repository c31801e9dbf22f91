package bed

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ipd/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleManager))
	read.GET("/wards", h.ListWards)
	read.GET("/beds", h.ListBeds)
	read.GET("/beds/:id", h.GetBed)
}

func (h *Handler) ListWards(c echo.Context) error {
	wards, err := h.svc.ListWards(c.Request().Context())
	if err != nil {
		return storageFailure(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": wards})
}

func (h *Handler) ListBeds(c echo.Context) error {
	var f Filter
	if v := c.QueryParam("ward_category"); v != "" {
		cat, err := ParseWardCategory(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.Category = cat
	}
	if v := c.QueryParam("status"); v != "" {
		f.Status = Status(strings.ToUpper(v))
		if !f.Status.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
	}
	beds, err := h.svc.ListBeds(c.Request().Context(), f)
	if err != nil {
		return storageFailure(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": beds, "total": len(beds)})
}

func (h *Handler) GetBed(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.GetBed(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "bed not found")
	}
	if err != nil {
		return storageFailure(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// storageFailure logs the underlying error and answers with a generic 503
// so driver text never reaches the client.
func storageFailure(c echo.Context, err error) error {
	c.Logger().Error(err)
	return echo.NewHTTPError(http.StatusServiceUnavailable, "bed inventory unavailable")
}
