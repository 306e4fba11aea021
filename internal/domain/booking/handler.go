package booking

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/docbook/docbook/internal/domain/identity"
	"github.com/docbook/docbook/internal/platform/auth"
	"github.com/docbook/docbook/pkg/apperr"
	"github.com/docbook/docbook/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	appts := api.Group("/appointments", auth.RequireAuth())
	appts.POST("", h.CreateAppointment, auth.RequireRole(string(identity.RolePatient)))
	appts.GET("", h.ListAppointments)
	appts.GET("/:id", h.GetAppointment)
	appts.PATCH("/:id/status", h.UpdateStatus)
}

func principal(c echo.Context) identity.Principal {
	p, _ := identity.PrincipalFromContext(c.Request().Context())
	return p
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid id")
	}
	return id, nil
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req CreateAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	a, err := h.svc.Create(c.Request().Context(), principal(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListFor(c.Request().Context(), principal(c), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.Get(c.Request().Context(), principal(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	to, err := ParseStatus(req.Status)
	if err != nil {
		return err
	}
	v, err := h.svc.UpdateStatus(c.Request().Context(), principal(c), id, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}
