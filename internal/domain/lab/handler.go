package lab

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
	res := &crud.Resource[Test]{
		Path:       Key,
		Coll:       h.svc.tests,
		ReadRoles:  []string{auth.RoleLaboratory, auth.RoleDoctor, auth.RoleNurse},
		WriteRoles: []string{auth.RoleLaboratory, auth.RoleDoctor},
		Create:     h.svc.Order,
		Update:     h.svc.UpdateTest,
		Less:       func(a, b Test) bool { return a.OrderedDate > b.OrderedDate },
	}
	res.Register(api)

	g := api.Group("/"+Key, auth.RequireRole(auth.RoleLaboratory))
	g.GET("/worklist", h.Worklist)
	g.POST("/:id/collect", h.advance(StatusSampleCollected))
	g.POST("/:id/start", h.advance(StatusInProgress))
	g.POST("/:id/cancel", h.advance(StatusCancelled))
	g.POST("/:id/results", h.RecordResult)

	api.GET("/me/lab-tests", h.Mine, auth.RequireRole(auth.RolePatient))
}

func (h *Handler) advance(status string) echo.HandlerFunc {
	return func(c echo.Context) error {
		t, err := h.svc.Advance(c.Request().Context(), c.Param("id"), status)
		if err != nil {
			return crud.HTTPError(err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

type resultRequest struct {
	Results []Parameter `json:"results"`
	Notes   string      `json:"notes"`
}

func (h *Handler) RecordResult(c echo.Context) error {
	var req resultRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.RecordResult(c.Request().Context(), c.Param("id"), req.Results, req.Notes)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) Worklist(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Worklist())
}

func (h *Handler) Mine(c echo.Context) error {
	id := auth.UserIDFromContext(c.Request().Context())
	return c.JSON(http.StatusOK, h.svc.ForPatient(patient.ID(id)))
}
