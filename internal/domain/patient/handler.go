package patient

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medpay/medpay/internal/platform/apperr"
	"github.com/medpay/medpay/internal/platform/middleware"
	"github.com/medpay/medpay/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public account endpoints and the protected
// listing on g. The bearer guard decides which is which by path.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.GET("/patients", h.ListPatients)
}

func (h *Handler) Register(c echo.Context) error {
	var in RegisterInput
	if err := c.Bind(&in); err != nil {
		return apperr.BadBody(err)
	}
	in.Names = middleware.SanitizeString(in.Names)
	in.Phone = middleware.SanitizeString(in.Phone)

	id, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "Patient registered successfully",
		"id":      id,
	})
}

func (h *Handler) Login(c echo.Context) error {
	var in LoginInput
	if err := c.Bind(&in); err != nil {
		return apperr.BadBody(err)
	}
	session, err := h.svc.Authenticate(c.Request().Context(), in.Email, in.Password)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, session)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	pg.WriteHeaders(c, total)
	return c.JSON(http.StatusOK, patients)
}
