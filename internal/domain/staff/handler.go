package staff

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
	// Directory: every staff role reads, admin writes.
	users := &crud.Resource[User]{
		Path:      UsersKey,
		Coll:      h.svc.users,
		ReadRoles: auth.StaffRoles,
		Create:    h.svc.CreateUser,
		Update:    h.svc.UpdateUser,
		Delete:    h.svc.DeleteUser,
		Less:      func(a, b User) bool { return a.Name < b.Name },
	}
	users.Register(api)

	attendance := &crud.Resource[Attendance]{
		Path:       AttendanceKey,
		Coll:       h.svc.attendance,
		ReadRoles:  auth.StaffRoles,
		WriteRoles: []string{auth.RoleReceptionist},
		Create:     h.svc.RecordAttendance,
		Update:     h.svc.UpdateAttendance,
		Less: func(a, b Attendance) bool {
			if a.Date != b.Date {
				return a.Date > b.Date
			}
			return a.StaffName < b.StaffName
		},
	}
	attendance.Register(api)

	self := api.Group("/"+AttendanceKey, auth.RequireRole(auth.StaffRoles...))
	self.POST("/check-in", h.CheckIn)
	self.POST("/check-out", h.CheckOut)
	self.GET("/summary", h.Summary)
}

type checkRequest struct {
	StaffID ID `json:"staffId"`
}

// staffID reads the staff id from the body, falling back to the caller.
func staffID(c echo.Context) (ID, error) {
	var req checkRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return "", echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	if req.StaffID == "" {
		req.StaffID = ID(auth.UserIDFromContext(c.Request().Context()))
	}
	if req.StaffID == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "staffId is required")
	}
	return req.StaffID, nil
}

func (h *Handler) CheckIn(c echo.Context) error {
	id, err := staffID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.CheckIn(c.Request().Context(), id)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) CheckOut(c echo.Context) error {
	id, err := staffID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.CheckOut(c.Request().Context(), id)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Summary(c echo.Context) error {
	sum, err := h.svc.Summary(c.QueryParam("date"))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, sum)
}
