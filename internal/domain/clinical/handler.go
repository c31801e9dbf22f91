package clinical

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ipd/internal/domain/admission"
	"github.com/ehr/ipd/internal/platform/auth"
)

type Handler struct {
	rec *Recorder
}

func NewHandler(rec *Recorder) *Handler {
	return &Handler{rec: rec}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleManager))
	readGroup.GET("/admissions/:id/progress-notes", h.ListProgressNotes)
	readGroup.GET("/admissions/:id/nursing-notes", h.ListNursingNotes)
	readGroup.GET("/admissions/:id/vitals", h.ListVitals)

	api.POST("/admissions/:id/progress-notes", h.AddProgressNote, auth.RequireRole(auth.RoleDoctor))
	api.POST("/admissions/:id/nursing-notes", h.AddNursingNote, auth.RequireRole(auth.RoleNurse))
	api.POST("/admissions/:id/vitals", h.RecordVitals, auth.RequireRole(auth.RoleDoctor, auth.RoleNurse))
}

func (h *Handler) AddProgressNote(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var n ProgressNote
	if err := c.Bind(&n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n.Author = auth.UserIDFromContext(c.Request().Context())
	if err := h.rec.AddProgressNote(c.Request().Context(), id, &n); err != nil {
		return admission.WriteError(c, err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) AddNursingNote(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var n NursingNote
	if err := c.Bind(&n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n.Author = auth.UserIDFromContext(c.Request().Context())
	if err := h.rec.AddNursingNote(c.Request().Context(), id, &n); err != nil {
		return admission.WriteError(c, err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) RecordVitals(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var v VitalSigns
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v.RecordedBy = auth.UserIDFromContext(c.Request().Context())
	alert, err := h.rec.RecordVitals(c.Request().Context(), id, &v)
	if err != nil {
		return admission.WriteError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"reading": v, "alert": alert})
}

// ListProgressNotes hides private notes unless a physician asks for them
// with include_private=true.
func (h *Handler) ListProgressNotes(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	includePrivate := c.QueryParam("include_private") == "true" &&
		auth.HasAnyRole(auth.RolesFromContext(c.Request().Context()), auth.RoleDoctor)
	notes, err := h.rec.ListProgressNotes(c.Request().Context(), id, includePrivate)
	if err != nil {
		return admission.WriteError(c, err)
	}
	if notes == nil {
		notes = []*ProgressNote{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": notes, "total": len(notes)})
}

func (h *Handler) ListNursingNotes(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	notes, err := h.rec.ListNursingNotes(c.Request().Context(), id)
	if err != nil {
		return admission.WriteError(c, err)
	}
	if notes == nil {
		notes = []*NursingNote{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": notes, "total": len(notes)})
}

func (h *Handler) ListVitals(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	readings, err := h.rec.ListVitals(c.Request().Context(), id, limit)
	if err != nil {
		return admission.WriteError(c, err)
	}
	if readings == nil {
		readings = []*VitalSigns{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": readings, "total": len(readings)})
}
