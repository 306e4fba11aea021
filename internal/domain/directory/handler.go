package directory

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
	// Public directory
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/facets", h.GetFacets)
	api.GET("/doctors/:id", h.GetDoctor)

	doctorGroup := api.Group("/doctor", auth.RequireRole(string(identity.RoleDoctor)))
	doctorGroup.GET("/profile", h.GetOwnProfile)

	adminGroup := api.Group("/admin/doctors", auth.RequireRole(string(identity.RoleAdmin)))
	adminGroup.GET("", h.ListForReview)
	adminGroup.POST("/:id/approve", h.Approve)
	adminGroup.POST("/:id/reject", h.Reject)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	f := Filter{
		Text:      c.QueryParam("q"),
		Specialty: c.QueryParam("specialty"),
		Location:  c.QueryParam("location"),
	}
	items, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

func (h *Handler) GetFacets(c echo.Context) error {
	facets, err := h.svc.Facets(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, facets)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	viewer, _ := identity.PrincipalFromContext(c.Request().Context())
	d, err := h.svc.Get(c.Request().Context(), viewer, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetOwnProfile(c echo.Context) error {
	p, _ := identity.PrincipalFromContext(c.Request().Context())
	d, err := h.svc.GetByUserID(c.Request().Context(), p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListForReview(c echo.Context) error {
	var status DoctorStatus
	if raw := c.QueryParam("status"); raw != "" {
		st, err := ParseDoctorStatus(raw)
		if err != nil {
			return err
		}
		status = st
	}

	pg := pagination.FromContext(c)
	p, _ := identity.PrincipalFromContext(c.Request().Context())
	items, total, err := h.svc.ListByStatus(c.Request().Context(), p, status, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Approve(c echo.Context) error {
	return h.setStatus(c, StatusApproved)
}

func (h *Handler) Reject(c echo.Context) error {
	return h.setStatus(c, StatusRejected)
}

func (h *Handler) setStatus(c echo.Context, status DoctorStatus) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid id")
	}
	p, _ := identity.PrincipalFromContext(c.Request().Context())
	d, err := h.svc.SetStatus(c.Request().Context(), p, id, status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}
