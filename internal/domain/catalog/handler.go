package catalog

import (
	"bytes"
	"encoding/json"
	"io"
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

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/add_medicine", h.AddMedicine)
	g.GET("/medicines", h.ListMedicines)
}

// AddMedicine accepts either a single medicine object or an array of them.
func (h *Handler) AddMedicine(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperr.BadBody(err)
	}
	body = bytes.TrimSpace(body)
	ctx := c.Request().Context()

	if len(body) > 0 && body[0] == '[' {
		var items []MedicineInput
		if err := json.Unmarshal(body, &items); err != nil {
			return apperr.BadBody(err)
		}
		for i := range items {
			sanitizeInput(&items[i])
		}
		ids, err := h.svc.AddBatch(ctx, items)
		if err != nil {
			return apperr.HTTP(err)
		}
		return c.JSON(http.StatusCreated, map[string]interface{}{
			"message": "Medicines added",
			"ids":     ids,
		})
	}

	var in MedicineInput
	if err := json.Unmarshal(body, &in); err != nil {
		return apperr.BadBody(err)
	}
	sanitizeInput(&in)
	id, err := h.svc.Add(ctx, in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "Medicine added",
		"id":      id,
	})
}

func sanitizeInput(in *MedicineInput) {
	in.Name = middleware.SanitizeString(in.Name)
	in.Description = middleware.SanitizeString(in.Description)
}

func (h *Handler) ListMedicines(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	pg.WriteHeaders(c, total)
	return c.JSON(http.StatusOK, items)
}
