package dashboard

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
	api.GET("/dashboard/:role", h.Overview)
}

// Overview serves the dashboard of the requested role to holders of that
// role. Admins may pass ?userId= to see a doctor's or patient's view.
func (h *Handler) Overview(c echo.Context) error {
	ctx := c.Request().Context()
	role := c.Param("role")
	if !auth.IsRole(role) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown dashboard")
	}
	roles := auth.RolesFromContext(ctx)
	if !auth.HasRole(roles, role) {
		return echo.NewHTTPError(http.StatusForbidden, "required role: "+role)
	}
	userID := auth.UserIDFromContext(ctx)
	if as := c.QueryParam("userId"); as != "" && auth.HasRole(roles, auth.RoleAdmin) {
		userID = as
	}
	o, err := h.svc.Overview(role, userID)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, o)
}
