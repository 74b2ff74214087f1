package patient

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/crud"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	patients := &crud.Resource[Patient]{
		Path:       PatientsKey,
		Coll:       h.svc.patients,
		ReadRoles:  auth.StaffRoles,
		WriteRoles: []string{auth.RoleReceptionist, auth.RoleDoctor},
		Create:     h.svc.CreatePatient,
		Update:     h.svc.UpdatePatient,
		Less:       func(a, b Patient) bool { return a.Name < b.Name },
	}
	patients.Register(api)

	records := &crud.Resource[MedicalRecord]{
		Path:       MedicalRecordsKey,
		Coll:       h.svc.records,
		ReadRoles:  []string{auth.RoleDoctor, auth.RoleNurse},
		WriteRoles: []string{auth.RoleDoctor},
		Create:     h.svc.CreateRecord,
		Update:     h.svc.UpdateRecord,
		Less:       func(a, b MedicalRecord) bool { return a.Date > b.Date },
	}
	records.Register(api)

	rx := &crud.Resource[Prescription]{
		Path:       PrescriptionsKey,
		Coll:       h.svc.prescriptions,
		ReadRoles:  []string{auth.RoleDoctor, auth.RoleNurse, auth.RolePharmacy},
		WriteRoles: []string{auth.RoleDoctor},
		Create:     h.svc.CreatePrescription,
		Update:     h.svc.UpdatePrescription,
		Less:       func(a, b Prescription) bool { return a.Date > b.Date },
	}
	rx.Register(api)

	clinical := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleReceptionist))
	clinical.GET("/patients/:id/history", h.History)

	api.POST("/prescriptions/:id/status", h.TransitionPrescription,
		auth.RequireRole(auth.RoleDoctor, auth.RolePharmacy))

	// A patient login reads its own chart; the token subject is the patient id.
	api.GET("/me/history", h.MyHistory, auth.RequireRole(auth.RolePatient))
}

func (h *Handler) History(c echo.Context) error {
	hist, err := h.svc.History(ID(c.Param("id")))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, hist)
}

func (h *Handler) MyHistory(c echo.Context) error {
	id := auth.UserIDFromContext(c.Request().Context())
	hist, err := h.svc.History(ID(id))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, hist)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) TransitionPrescription(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "status is required")
	}
	rx, err := h.svc.TransitionPrescription(c.Request().Context(), c.Param("id"), req.Status)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, rx)
}
