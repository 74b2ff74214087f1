package ward

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
	(&crud.Resource[Department]{
		Path:       DepartmentsKey,
		Coll:       h.svc.depts,
		ReadRoles:  auth.StaffRoles,
		WriteRoles: []string{auth.RoleAdmin},
		Create:     h.svc.CreateDepartment,
		Update:     h.svc.UpdateDepartment,
		Delete:     h.svc.DeleteDepartment,
		Less:       func(a, b Department) bool { return a.Name < b.Name },
	}).Register(api)

	(&crud.Resource[Bed]{
		Path:       BedsKey,
		Coll:       h.svc.beds,
		ReadRoles:  []string{auth.RoleReceptionist, auth.RoleNurse, auth.RoleDoctor},
		WriteRoles: []string{auth.RoleReceptionist},
		Create:     h.svc.CreateBed,
		Update:     h.svc.UpdateBed,
		Delete:     h.svc.DeleteBed,
		Less:       func(a, b Bed) bool { return a.Number < b.Number },
	}).Register(api)

	read := api.Group("/"+BedsKey, auth.RequireRole(auth.RoleReceptionist, auth.RoleNurse, auth.RoleDoctor))
	read.GET("/occupancy", h.Occupancy)
	read.GET("/available", h.Available)

	write := api.Group("/"+BedsKey, auth.RequireRole(auth.RoleReceptionist, auth.RoleNurse))
	write.POST("/:id/assign", h.Assign)
	write.POST("/:id/release", h.Release)
	write.POST("/:id/status", h.SetStatus)
}

type assignRequest struct {
	PatientID patient.ID `json:"patientId"`
}

func (h *Handler) Assign(c echo.Context) error {
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PatientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patientId is required")
	}
	b, err := h.svc.Assign(c.Request().Context(), BedID(c.Param("id")), req.PatientID)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Release(c echo.Context) error {
	b, err := h.svc.Release(c.Request().Context(), BedID(c.Param("id")))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) SetStatus(c echo.Context) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	b, err := h.svc.SetStatus(c.Request().Context(), BedID(c.Param("id")), req.Status)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Occupancy(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Occupancy())
}

func (h *Handler) Available(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Available(DepartmentID(c.QueryParam("departmentId"))))
}
