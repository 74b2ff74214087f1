package nursing

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/crud"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

var (
	clinical = []string{auth.RoleNurse, auth.RoleDoctor}
	nurses   = []string{auth.RoleNurse}
)

func (h *Handler) RegisterRoutes(api *echo.Group) {
	(&crud.Resource[Vitals]{
		Path: VitalsKey, Coll: h.svc.c.Vitals,
		ReadRoles: clinical, WriteRoles: nurses,
		NoCreate: true,
		Less:     func(a, b Vitals) bool { return a.Date+a.Time > b.Date+b.Time },
	}).Register(api)
	(&crud.Resource[Note]{
		Path: NotesKey, Coll: h.svc.c.Notes,
		ReadRoles: clinical, WriteRoles: nurses,
		Create: func(ctx context.Context, n Note) (Note, error) {
			if n.NurseID == "" {
				n.NurseID = staff.ID(auth.UserIDFromContext(ctx))
			}
			return h.svc.AddNote(ctx, n)
		},
		Update: h.svc.UpdateNote,
		Less:   func(a, b Note) bool { return a.Date+a.Time > b.Date+b.Time },
	}).Register(api)
	(&crud.Resource[MedicationDose]{
		Path: ScheduleKey, Coll: h.svc.c.Schedule,
		ReadRoles: clinical, WriteRoles: clinical,
		Create: h.svc.ScheduleDose,
		Update: h.svc.UpdateDose,
		Less: func(a, b MedicationDose) bool {
			return a.ScheduledDate+a.ScheduledTime < b.ScheduledDate+b.ScheduledTime
		},
	}).Register(api)
	(&crud.Resource[Alert]{
		Path: AlertsKey, Coll: h.svc.c.Alerts,
		ReadRoles: clinical, WriteRoles: clinical,
		Create: h.svc.RaiseAlert,
		Update: h.svc.UpdateAlert,
	}).Register(api)

	read := auth.RequireRole(clinical...)
	api.GET("/"+VitalsKey+"/latest", h.LatestVitals, read)
	api.GET("/patients/:id/vitals", h.PatientVitals, read)
	api.GET("/"+ScheduleKey+"/due", h.Due, read)
	api.GET("/"+AlertsKey+"/open", h.OpenAlerts, read)

	write := auth.RequireRole(nurses...)
	api.POST("/"+VitalsKey, h.RecordVitals, write)
	api.POST("/"+ScheduleKey+"/:id/administer", h.Administer, write)
	api.POST("/"+ScheduleKey+"/:id/miss", h.Miss, write)

	ack := api.Group("/"+AlertsKey, auth.RequireRole(clinical...))
	ack.POST("/:id/acknowledge", h.Acknowledge)
	ack.POST("/:id/resolve", h.Resolve)
}

type vitalsResponse struct {
	Vitals Vitals `json:"vitals"`
	Alert  *Alert `json:"alert,omitempty"`
}

func (h *Handler) RecordVitals(c echo.Context) error {
	var v Vitals
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if v.RecordedBy == "" {
		v.RecordedBy = staff.ID(auth.UserIDFromContext(ctx))
	}
	saved, alert, err := h.svc.RecordVitals(ctx, v)
	if err != nil && saved.ID == "" {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, vitalsResponse{Vitals: saved, Alert: alert})
}

func (h *Handler) LatestVitals(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.LatestVitals())
}

func (h *Handler) PatientVitals(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.VitalsFor(patient.ID(c.Param("id"))))
}

func (h *Handler) Due(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Due(c.QueryParam("date")))
}

type doseRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) Administer(c echo.Context) error {
	var req doseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	d, err := h.svc.Administer(ctx, c.Param("id"), staff.ID(auth.UserIDFromContext(ctx)), req.Notes)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Miss(c echo.Context) error {
	var req doseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.Miss(c.Request().Context(), c.Param("id"), req.Notes)
	if err != nil && d.ID == "" {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) OpenAlerts(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.OpenAlerts())
}

func (h *Handler) Acknowledge(c echo.Context) error {
	ctx := c.Request().Context()
	a, err := h.svc.Acknowledge(ctx, c.Param("id"), staff.ID(auth.UserIDFromContext(ctx)))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Resolve(c echo.Context) error {
	a, err := h.svc.Resolve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}
