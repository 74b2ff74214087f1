package billing

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/domain/patient"
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
	res := &crud.Resource[Bill]{
		Path:       Key,
		Coll:       h.svc.bills,
		ReadRoles:  []string{auth.RoleBilling, auth.RoleReceptionist},
		WriteRoles: []string{auth.RoleBilling},
		Update:     h.svc.Update,
		NoCreate:   true,
		Less:       func(a, b Bill) bool { return a.Date > b.Date },
	}
	res.Register(api)

	read := api.Group("/"+Key, auth.RequireRole(auth.RoleBilling, auth.RoleReceptionist))
	read.GET("/summary", h.Summary)
	read.GET("/overdue", h.Overdue)

	write := api.Group("/"+Key, auth.RequireRole(auth.RoleBilling))
	write.POST("", h.Create)
	write.POST("/mark-overdue", h.MarkOverdue)
	write.POST("/:id/payments", h.RecordPayment)
	write.POST("/:id/cancel", h.Cancel)

	api.GET("/me/bills", h.Mine, auth.RequireRole(auth.RolePatient))
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	b, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

type paymentRequest struct {
	Amount float64 `json:"amount"`
	Method string  `json:"method"`
}

func (h *Handler) RecordPayment(c echo.Context) error {
	var req paymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	b, err := h.svc.RecordPayment(c.Request().Context(), c.Param("id"), req.Amount, req.Method)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Cancel(c echo.Context) error {
	b, err := h.svc.Cancel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) MarkOverdue(c echo.Context) error {
	n, err := h.svc.MarkOverdue(c.Request().Context())
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"updated": n})
}

func (h *Handler) Overdue(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Overdue())
}

func (h *Handler) Summary(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Summarize())
}

func (h *Handler) Mine(c echo.Context) error {
	id := auth.UserIDFromContext(c.Request().Context())
	return c.JSON(http.StatusOK, h.svc.ForPatient(patient.ID(id)))
}
