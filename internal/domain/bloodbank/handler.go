package bloodbank

import (
	"context"
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

var (
	bankStaff = []string{auth.RoleBloodBank}
	viewers   = []string{auth.RoleBloodBank, auth.RoleDoctor, auth.RoleNurse}
)

func caller(ctx context.Context) string { return auth.UserIDFromContext(ctx) }

func (h *Handler) RegisterRoutes(api *echo.Group) {
	(&crud.Resource[Inventory]{
		Path: InventoryKey, Coll: h.svc.c.Inventory,
		ReadRoles: viewers, WriteRoles: bankStaff,
		Update: h.svc.UpdateInventory,
		Less:   func(a, b Inventory) bool { return a.BloodGroup < b.BloodGroup },
	}).Register(api)
	(&crud.Resource[Donor]{
		Path: DonorsKey, Coll: h.svc.c.Donors,
		ReadRoles: bankStaff, WriteRoles: bankStaff,
		Create: func(ctx context.Context, d Donor) (Donor, error) { return h.svc.RegisterDonor(ctx, d, caller(ctx)) },
		Update: h.svc.UpdateDonor,
		Less:   func(a, b Donor) bool { return a.Name < b.Name },
	}).Register(api)
	(&crud.Resource[Collection]{
		Path: CollectionsKey, Coll: h.svc.c.Collections,
		ReadRoles: bankStaff, WriteRoles: bankStaff,
		Create: func(ctx context.Context, c Collection) (Collection, error) { return h.svc.Donate(ctx, c, caller(ctx)) },
		Less:   func(a, b Collection) bool { return a.Date > b.Date },
	}).Register(api)
	(&crud.Resource[StorageUnit]{
		Path: StorageKey, Coll: h.svc.c.Storage,
		ReadRoles: bankStaff, WriteRoles: bankStaff,
		Create: h.svc.StoreUnit,
		Update: h.svc.UpdateUnit,
		Less:   func(a, b StorageUnit) bool { return a.ExpiryDate < b.ExpiryDate },
	}).Register(api)
	(&crud.Resource[Request]{
		Path: RequestsKey, Coll: h.svc.c.Requests,
		ReadRoles: viewers, WriteRoles: []string{auth.RoleBloodBank, auth.RoleDoctor},
		Create: func(ctx context.Context, r Request) (Request, error) {
			if r.RequestedBy == "" {
				r.RequestedBy = caller(ctx)
			}
			return h.svc.CreateRequest(ctx, r)
		},
		Update: h.svc.UpdateRequest,
		Less:   func(a, b Request) bool { return a.RequestDate > b.RequestDate },
	}).Register(api)
	(&crud.Resource[Issue]{
		Path: IssuesKey, Coll: h.svc.c.Issues,
		ReadRoles: bankStaff, ReadOnly: true,
		Less: func(a, b Issue) bool { return a.IssueDate > b.IssueDate },
	}).Register(api)

	bank := auth.RequireRole(bankStaff...)
	api.GET("/"+InventoryKey+"/low-stock", h.LowStock, auth.RequireRole(viewers...))
	api.POST("/"+InventoryKey+"/adjust", h.Adjust, bank)
	api.GET("/"+DonorsKey+"/eligible", h.EligibleDonors, bank)
	api.GET("/"+StorageKey+"/expiry", h.Expiry, bank)
	api.GET("/"+StorageKey+"/expiring-soon", h.ExpiringSoon, bank)
	api.POST("/"+StorageKey+"/mark-expired", h.MarkExpired, bank)
	api.POST("/"+RequestsKey+"/:id/approve", h.Approve, bank)
	api.POST("/"+RequestsKey+"/:id/reject", h.Reject, bank)
	api.POST("/"+RequestsKey+"/:id/fulfill", h.Fulfill, bank)
	api.GET("/"+ActivityKey, h.Activity, bank)
	api.GET("/bloodbank/summary", h.Summary, bank)
}

type adjustRequest struct {
	BloodGroup string `json:"bloodGroup"`
	Delta      int    `json:"delta"`
	Reason     string `json:"reason"`
}

func (h *Handler) Adjust(c echo.Context) error {
	var req adjustRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	inv, err := h.svc.Adjust(ctx, req.BloodGroup, req.Delta, req.Reason, caller(ctx))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) LowStock(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.LowStock())
}

func (h *Handler) EligibleDonors(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.EligibleDonors())
}

func (h *Handler) Expiry(c echo.Context) error {
	entries, err := h.svc.Expiry()
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) ExpiringSoon(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.ExpiringSoon())
}

func (h *Handler) MarkExpired(c echo.Context) error {
	ctx := c.Request().Context()
	n, err := h.svc.MarkExpired(ctx, caller(ctx))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"expired": n})
}

func (h *Handler) Approve(c echo.Context) error {
	ctx := c.Request().Context()
	r, err := h.svc.ApproveRequest(ctx, c.Param("id"), caller(ctx))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Reject(c echo.Context) error {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	r, err := h.svc.RejectRequest(ctx, c.Param("id"), req.Reason, caller(ctx))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Fulfill(c echo.Context) error {
	ctx := c.Request().Context()
	issue, err := h.svc.Fulfill(ctx, c.Param("id"), caller(ctx))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, issue)
}

func (h *Handler) Activity(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Activity())
}

func (h *Handler) Summary(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Summarize())
}
