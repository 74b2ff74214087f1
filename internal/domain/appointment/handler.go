package appointment

import (
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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	res := &crud.Resource[Appointment]{
		Path:       Key,
		Coll:       h.svc.appts,
		ReadRoles:  []string{auth.RoleDoctor, auth.RoleNurse, auth.RoleReceptionist},
		WriteRoles: []string{auth.RoleReceptionist, auth.RoleDoctor},
		Create:     h.svc.Book,
		Update:     h.svc.Update,
		Less: func(a, b Appointment) bool {
			if a.Date != b.Date {
				return a.Date < b.Date
			}
			return a.TokenNumber < b.TokenNumber
		},
	}
	res.Register(api)

	read := api.Group("/"+Key, auth.RequireRole(auth.RoleDoctor, auth.RoleNurse, auth.RoleReceptionist))
	read.GET("/queue", h.Queue)

	write := api.Group("/"+Key, auth.RequireRole(auth.RoleReceptionist, auth.RoleDoctor))
	write.POST("/:id/start", h.transition(StatusInProgress))
	write.POST("/:id/complete", h.transition(StatusCompleted))
	write.POST("/:id/cancel", h.transition(StatusCancelled))
	write.POST("/:id/reschedule", h.Reschedule)

	api.GET("/me/appointments", h.Mine, auth.RequireRole(auth.RolePatient))
}

func (h *Handler) transition(status string) echo.HandlerFunc {
	return func(c echo.Context) error {
		a, err := h.svc.Transition(c.Request().Context(), c.Param("id"), status)
		if err != nil {
			return crud.HTTPError(err)
		}
		return c.JSON(http.StatusOK, a)
	}
}

type rescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (h *Handler) Reschedule(c echo.Context) error {
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Date == "" && req.Time == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date or time is required")
	}
	a, err := h.svc.Reschedule(c.Request().Context(), c.Param("id"), req.Date, req.Time)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Queue(c echo.Context) error {
	q, err := h.svc.Queue(c.QueryParam("date"), staff.ID(c.QueryParam("doctorId")))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) Mine(c echo.Context) error {
	id := auth.UserIDFromContext(c.Request().Context())
	return c.JSON(http.StatusOK, h.svc.ForPatient(patient.ID(id)))
}
