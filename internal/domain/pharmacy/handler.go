package pharmacy

import (
	"context"
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
	clinical := []string{auth.RolePharmacy, auth.RoleDoctor, auth.RoleNurse}
	pharmacy := []string{auth.RolePharmacy}

	meds := &crud.Resource[Medicine]{
		Path:       MedicinesKey,
		Coll:       h.svc.medicines,
		ReadRoles:  clinical,
		WriteRoles: pharmacy,
		Create:     h.svc.CreateMedicine,
		Update:     h.svc.UpdateMedicine,
		Less:       func(a, b Medicine) bool { return a.Name < b.Name },
	}
	meds.Register(api)

	orders := &crud.Resource[PurchaseOrder]{
		Path:       OrdersKey,
		Coll:       h.svc.orders,
		ReadRoles:  pharmacy,
		WriteRoles: pharmacy,
		Create:     h.svc.CreateOrder,
		Update:     h.svc.UpdateOrder,
		Less:       func(a, b PurchaseOrder) bool { return a.OrderDate > b.OrderDate },
	}
	orders.Register(api)

	refills := &crud.Resource[RefillRequest]{
		Path:       RefillsKey,
		Coll:       h.svc.refills,
		ReadRoles:  []string{auth.RolePharmacy, auth.RoleDoctor},
		WriteRoles: pharmacy,
		Create:     h.svc.CreateRefill,
		Update:     h.svc.UpdateRefill,
		Less:       func(a, b RefillRequest) bool { return a.RequestDate > b.RequestDate },
	}
	refills.Register(api)

	returns := &crud.Resource[MedicineReturn]{
		Path:       ReturnsKey,
		Coll:       h.svc.returns,
		ReadRoles:  pharmacy,
		WriteRoles: pharmacy,
		Create:     h.svc.CreateReturn,
		Update:     h.svc.UpdateReturn,
		Less:       func(a, b MedicineReturn) bool { return a.ReturnDate > b.ReturnDate },
	}
	returns.Register(api)

	read := api.Group("", auth.RequireRole(clinical...))
	read.GET("/medicines/low-stock", h.LowStock)
	read.GET("/medicines/expiry", h.Expiry)
	read.GET("/medicines/expiring-soon", h.ExpiringSoon)

	write := api.Group("", auth.RequireRole(pharmacy...))
	write.POST("/medicines/:id/dispense", h.Dispense)
	write.POST("/medicines/:id/adjust", h.AdjustStock)
	write.POST("/purchaseOrders/:id/approve", h.orderAction(h.svc.ApproveOrder))
	write.POST("/purchaseOrders/:id/receive", h.orderAction(h.svc.ReceiveOrder))
	write.POST("/purchaseOrders/:id/cancel", h.orderAction(h.svc.CancelOrder))
	write.POST("/refillRequests/:id/approve", h.ApproveRefill)
	write.POST("/refillRequests/:id/reject", h.RejectRefill)
	write.POST("/refillRequests/:id/dispense", h.DispenseRefill)
	write.POST("/medicineReturns/:id/process", h.ProcessReturn)
	write.POST("/medicineReturns/:id/reject", h.RejectReturn)

	me := api.Group("/me", auth.RequireRole(auth.RolePatient))
	me.GET("/refill-requests", h.MyRefills)
	me.POST("/refill-requests", h.RequestRefill)
}

func (h *Handler) LowStock(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.LowStock())
}

func (h *Handler) Expiry(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Expiry())
}

func (h *Handler) ExpiringSoon(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.ExpiringSoon())
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
	Delta    int `json:"delta"`
}

func (h *Handler) Dispense(c echo.Context) error {
	var req quantityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.svc.Dispense(c.Request().Context(), MedicineID(c.Param("id")), req.Quantity)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) AdjustStock(c echo.Context) error {
	var req quantityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.svc.AdjustStock(c.Request().Context(), MedicineID(c.Param("id")), req.Delta)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) orderAction(fn func(ctx context.Context, id string) (PurchaseOrder, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		o, err := fn(c.Request().Context(), c.Param("id"))
		if err != nil {
			return crud.HTTPError(err)
		}
		return c.JSON(http.StatusOK, o)
	}
}

func (h *Handler) ApproveRefill(c echo.Context) error {
	r, err := h.svc.ApproveRefill(c.Request().Context(), c.Param("id"))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RejectRefill(c echo.Context) error {
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := h.svc.RejectRefill(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DispenseRefill(c echo.Context) error {
	r, err := h.svc.DispenseRefill(c.Request().Context(), c.Param("id"))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

type processRequest struct {
	Restock bool `json:"restock"`
}

func (h *Handler) ProcessReturn(c echo.Context) error {
	var req processRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := h.svc.ProcessReturn(c.Request().Context(), c.Param("id"), req.Restock)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) RejectReturn(c echo.Context) error {
	r, err := h.svc.RejectReturn(c.Request().Context(), c.Param("id"))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) MyRefills(c echo.Context) error {
	id := auth.UserIDFromContext(c.Request().Context())
	return c.JSON(http.StatusOK, h.svc.RefillsForPatient(patient.ID(id)))
}

// RequestRefill files a refill on behalf of the calling patient.
func (h *Handler) RequestRefill(c echo.Context) error {
	var r RefillRequest
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r.PatientID = patient.ID(auth.UserIDFromContext(c.Request().Context()))
	created, err := h.svc.CreateRefill(c.Request().Context(), r)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, created)
}
