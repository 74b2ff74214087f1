package messaging

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
	(&crud.Resource[Conversation]{
		Path: ConversationsKey, Coll: h.svc.convs,
		ReadRoles: []string{auth.RoleAdmin}, WriteRoles: []string{auth.RoleAdmin},
		Create: h.svc.StartConversation,
		Update: h.svc.UpdateConversation,
		Less:   func(a, b Conversation) bool { return activity(a) > activity(b) },
	}).Register(api)
	(&crud.Resource[Notification]{
		Path: NotificationsKey, Coll: h.svc.notes,
		ReadRoles: []string{auth.RoleAdmin}, WriteRoles: []string{auth.RoleAdmin},
		Create: h.svc.Notify,
		Update: h.svc.UpdateNotification,
	}).Register(api)

	// Every signed-in user reaches their own threads and notifications.
	me := api.Group("/me", auth.RequireRole(auth.Roles...))
	me.GET("/conversations", h.MyConversations)
	me.GET("/conversations/:id/messages", h.Messages)
	me.POST("/conversations/:id/messages", h.Send)
	me.POST("/conversations/:id/read", h.MarkRead)
	me.POST("/conversations/:id/close", h.Close)
	me.GET("/notifications", h.MyNotifications)
	me.POST("/notifications/read-all", h.MarkAllRead)
	me.POST("/notifications/:id/read", h.MarkNotificationRead)

	me.POST("/conversations", h.Start, auth.RequireRole(auth.RolePatient))
}

// participant loads the conversation and checks that the caller is on it.
func (h *Handler) participant(ctx context.Context, id string) (Conversation, error) {
	c, err := h.svc.Conversation(id)
	if err != nil {
		return Conversation{}, crud.HTTPError(err)
	}
	if _, ok := c.Participant(auth.UserIDFromContext(ctx)); !ok {
		return Conversation{}, echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return c, nil
}

func (h *Handler) MyConversations(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.ConversationsFor(auth.UserIDFromContext(c.Request().Context())))
}

// Start opens a conversation from the calling patient to a staff member.
func (h *Handler) Start(c echo.Context) error {
	var conv Conversation
	if err := c.Bind(&conv); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	conv.ID = ""
	conv.PatientID = patient.ID(auth.UserIDFromContext(c.Request().Context()))
	created, err := h.svc.StartConversation(c.Request().Context(), conv)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) Messages(c echo.Context) error {
	conv, err := h.participant(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.svc.Messages(conv.ID))
}

func (h *Handler) Send(c echo.Context) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	conv, err := h.participant(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	m, err := h.svc.Send(ctx, conv.ID, auth.UserIDFromContext(ctx), req.Content)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) MarkRead(c echo.Context) error {
	ctx := c.Request().Context()
	conv, err := h.participant(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	n, err := h.svc.MarkRead(ctx, conv.ID, auth.UserIDFromContext(ctx))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"marked": n})
}

func (h *Handler) Close(c echo.Context) error {
	ctx := c.Request().Context()
	conv, err := h.participant(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	closed, err := h.svc.Close(ctx, conv.ID)
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, closed)
}

func (h *Handler) MyNotifications(c echo.Context) error {
	unread := c.QueryParam("unread") == "true"
	return c.JSON(http.StatusOK, h.svc.Notifications(auth.UserIDFromContext(c.Request().Context()), unread))
}

func (h *Handler) MarkNotificationRead(c echo.Context) error {
	ctx := c.Request().Context()
	n, err := h.svc.MarkNotificationRead(ctx, c.Param("id"), auth.UserIDFromContext(ctx))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	ctx := c.Request().Context()
	n, err := h.svc.MarkAllRead(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return crud.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"marked": n})
}
