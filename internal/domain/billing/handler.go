package billing

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medpay/medpay/internal/platform/apperr"
)

const noAssignmentsMessage = "No medicines assigned to this patient"

type Handler struct {
	ledger     *Ledger
	reconciler *Reconciler
}

func NewHandler(ledger *Ledger, reconciler *Reconciler) *Handler {
	return &Handler{ledger: ledger, reconciler: reconciler}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/assign_medicine", h.AssignMedicine)
	g.POST("/get_medicine_assigned/:patient_id", h.GetMedicineAssigned)
	g.POST("/initiate_payment/:patient_id", h.InitiatePayment)
	g.POST("/verify_payment/:patient_id", h.VerifyPayment)
}

func patientParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	return id, nil
}

func (h *Handler) AssignMedicine(c echo.Context) error {
	var in AssignInput
	if err := c.Bind(&in); err != nil {
		return apperr.BadBody(err)
	}
	id, err := h.ledger.Assign(c.Request().Context(), in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "Medicine assigned to patient",
		"id":      id,
	})
}

func (h *Handler) GetMedicineAssigned(c echo.Context) error {
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	report, err := h.ledger.AssignedFor(c.Request().Context(), patientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	if report.Empty() {
		return c.JSON(http.StatusOK, map[string]string{"message": noAssignmentsMessage})
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) InitiatePayment(c echo.Context) error {
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	intent, err := h.reconciler.Initiate(c.Request().Context(), patientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":           "Payment initiated",
		"patient_name":      intent.PatientName,
		"amount_to_pay":     intent.AmountToPay,
		"currency":          intent.Currency,
		"payment_reference": intent.Reference,
	})
}

func (h *Handler) VerifyPayment(c echo.Context) error {
	patientID, err := patientParam(c)
	if err != nil {
		return err
	}
	s, err := h.reconciler.Verify(c.Request().Context(), patientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Payment verified",
		"settled": s.Settled,
	})
}
