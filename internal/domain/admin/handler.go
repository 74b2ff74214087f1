package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/crud"
	"github.com/hms/hms/internal/platform/store"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Settings are readable by every signed-in user; the dashboards show
	// the hospital name and currency.
	api.GET("/settings", h.GetSettings, auth.RequireRole(auth.Roles...))
	api.PATCH("/settings", h.UpdateSettings, auth.RequireRole(auth.RoleAdmin))

	g := api.Group("/admin/collections", auth.RequireRole(auth.RoleAdmin))
	g.GET("", h.ListCollections)
	g.GET("/:key", h.Export)
	g.POST("/:key/reload", h.Reload)
}

func (h *Handler) GetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Settings())
}

func (h *Handler) UpdateSettings(c echo.Context) error {
	var partial map[string]any
	if err := json.NewDecoder(c.Request().Body).Decode(&partial); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	st, err := h.svc.UpdateSettings(c.Request().Context(), partial)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) ListCollections(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Collections())
}

func (h *Handler) Reload(c echo.Context) error {
	st, err := h.svc.Reload(c.Request().Context(), c.Param("key"))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) Export(c echo.Context) error {
	raw, err := h.svc.Export(c.Request().Context(), c.Param("key"))
	if errors.Is(err, store.ErrMalformed) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "stored value is not valid JSON")
	}
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSONBlob(http.StatusOK, raw)
}
