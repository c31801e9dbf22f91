package admission

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ipd/internal/domain/bed"
	"github.com/ehr/ipd/internal/platform/auth"
	"github.com/ehr/ipd/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleManager))
	readGroup.GET("/admissions", h.ListAdmissions)
	readGroup.GET("/admissions/:id", h.GetAdmission)
	readGroup.GET("/admissions/:id/transfers", h.GetTransfers)

	// Admit, transfer and discharge are physician or bed-manager decisions.
	writeGroup := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleManager))
	writeGroup.POST("/admissions", h.Admit)
	writeGroup.PATCH("/admissions/:id", h.UpdateAdmission)
	writeGroup.POST("/admissions/:id/transfer", h.Transfer)
	writeGroup.POST("/admissions/:id/discharge", h.Discharge)
}

func (h *Handler) Admit(c echo.Context) error {
	var req AdmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Actor = auth.UserIDFromContext(c.Request().Context())
	adm, err := h.svc.Admit(c.Request().Context(), req)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusCreated, adm)
}

func (h *Handler) GetAdmission(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	adm, err := h.svc.GetAdmission(c.Request().Context(), id)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusOK, adm)
}

func (h *Handler) ListAdmissions(c echo.Context) error {
	pg := pagination.FromContext(c)

	var f ListFilter
	if v := c.QueryParam("status"); v != "" {
		f.Status = Status(strings.ToUpper(v))
	}
	if v := c.QueryParam("ward_category"); v != "" {
		cat, err := bed.ParseWardCategory(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.WardCategory = cat
	}
	if v := c.QueryParam("patient_id"); v != "" {
		pid, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &pid
	}

	adms, total, err := h.svc.ListAdmissions(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(adms, total, pg, c.Request().URL))
}

func (h *Handler) UpdateAdmission(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Actor = auth.UserIDFromContext(c.Request().Context())
	adm, err := h.svc.UpdateAdmission(c.Request().Context(), id, req)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusOK, adm)
}

func (h *Handler) Transfer(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req TransferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Actor = auth.UserIDFromContext(c.Request().Context())
	adm, err := h.svc.Transfer(c.Request().Context(), id, req)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusOK, adm)
}

func (h *Handler) Discharge(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req DischargeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Actor = auth.UserIDFromContext(c.Request().Context())
	result, err := h.svc.Discharge(c.Request().Context(), id, req)
	if err != nil {
		return WriteError(c, err)
	}
	// 207 tells the caller the admission closed but some orders need follow-up.
	status := http.StatusOK
	if len(result.PrescriptionFailures) > 0 {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, result)
}

func (h *Handler) GetTransfers(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	transfers, err := h.svc.GetTransfers(c.Request().Context(), id)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": transfers, "total": len(transfers)})
}

// ErrorBody is the JSON shape of every admission-domain failure.
type ErrorBody struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	AdmissionID  string `json:"admission_id,omitempty"`
	PatientID    string `json:"patient_id,omitempty"`
	BedID        string `json:"bed_id,omitempty"`
	WardCategory string `json:"ward_category,omitempty"`
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrAdmissionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyAdmitted), errors.Is(err, ErrNotCurrentlyAdmitted),
		errors.Is(err, ErrAlreadyDischarged), errors.Is(err, ErrNoBedAvailable),
		errors.Is(err, ErrBedUnavailable):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	}
	var se *StorageError
	if errors.As(err, &se) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteError renders err with its code and whatever context it carries.
func WriteError(c echo.Context, err error) error {
	status := StatusFor(err)
	body := ErrorBody{Error: Code(err), Message: err.Error()}

	var de *Error
	if errors.As(err, &de) {
		body.Message = de.Kind.Error()
		if de.Detail != "" {
			body.Message += ": " + de.Detail
		}
		if de.AdmissionID != uuid.Nil {
			body.AdmissionID = de.AdmissionID.String()
		}
		if de.PatientID != uuid.Nil {
			body.PatientID = de.PatientID.String()
		}
		if de.BedID != uuid.Nil {
			body.BedID = de.BedID.String()
		}
		body.WardCategory = string(de.WardCategory)
	}
	if status >= http.StatusInternalServerError {
		c.Logger().Error(err)
		if status == http.StatusInternalServerError {
			body.Message = "internal error"
		}
	}
	return c.JSON(status, body)
}
