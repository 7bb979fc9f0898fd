package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, *fixture, *echo.Echo) {
	f := newFixture(t)
	return NewHandler(f.ledger, f.reconciler), f, echo.New()
}

func patientContext(e *echo.Echo, target string, patientID string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("patient_id")
	c.SetParamValues(patientID)
	return c, rec
}

func requireHTTPError(t *testing.T, err error, code int) *echo.HTTPError {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected *echo.HTTPError, got %T: %v", err, err)
	assert.Equal(t, code, he.Code)
	return he
}

func TestHandler_AssignMedicine(t *testing.T) {
	h, f, e := newTestHandler(t)
	p := f.store.addPatient("Jane Doe")
	m := f.store.addMedicine("Panadol", "500")

	body := fmt.Sprintf(`{"patient_id":%q,"medicine_id":%q,"quantity":3}`, p, m)
	req := httptest.NewRequest(http.MethodPost, "/assign_medicine", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, h.AssignMedicine(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Medicine assigned to patient", resp["message"])
	assert.NotEmpty(t, resp["id"])
}

func TestHandler_AssignMedicine_Errors(t *testing.T) {
	h, f, e := newTestHandler(t)
	p := f.store.addPatient("Jane Doe")
	m := f.store.addMedicine("Panadol", "500")

	tests := []struct {
		name    string
		body    string
		code    int
		message string
	}{
		{"unknown patient", fmt.Sprintf(`{"patient_id":%q,"medicine_id":%q}`, uuid.New(), m), http.StatusNotFound, "Patient not found"},
		{"unknown medicine", fmt.Sprintf(`{"patient_id":%q,"medicine_id":%q}`, p, uuid.New()), http.StatusNotFound, "Medicine not found"},
		{"zero quantity", fmt.Sprintf(`{"patient_id":%q,"medicine_id":%q,"quantity":0}`, p, m), http.StatusBadRequest, ""},
		{"quantity beyond column", fmt.Sprintf(`{"patient_id":%q,"medicine_id":%q,"quantity":2147483648}`, p, m), http.StatusBadRequest, "quantity must be at most 2147483647"},
		{"bad id", `{"patient_id":"nope"}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/assign_medicine", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			he := requireHTTPError(t, h.AssignMedicine(e.NewContext(req, httptest.NewRecorder())), tt.code)
			if tt.message != "" {
				assert.Equal(t, tt.message, he.Message)
			}
		})
	}
	assert.Empty(t, f.store.assignments)
}

func TestHandler_GetMedicineAssigned_Empty(t *testing.T) {
	h, f, e := newTestHandler(t)
	p := f.store.addPatient("Jane Doe")

	c, rec := patientContext(e, "/get_medicine_assigned/"+p.String(), p.String())
	require.NoError(t, h.GetMedicineAssigned(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"No medicines assigned to this patient"}`, rec.Body.String())
}

func TestHandler_GetMedicineAssigned_Report(t *testing.T) {
	h, f, e := newTestHandler(t)
	p := f.store.addPatient("Jane Doe")
	m := f.store.addMedicine("Panadol", "500")
	_, err := f.ledger.Assign(context.Background(), AssignInput{PatientID: p, MedicineID: m, Quantity: qty(3)})
	require.NoError(t, err)

	c, rec := patientContext(e, "/get_medicine_assigned/"+p.String(), p.String())
	require.NoError(t, h.GetMedicineAssigned(c))

	var resp struct {
		PatientName string `json:"patient_name"`
		Medicines   []struct {
			MedicineName string `json:"medicine_name"`
			Quantity     int    `json:"quantity"`
			TotalAmount  string `json:"total_amount"`
			IsPaid       bool   `json:"is_paid"`
		} `json:"medicines"`
		GrandTotal  string `json:"grand_total"`
		PaidTotal   string `json:"paid_total"`
		UnpaidTotal string `json:"unpaid_total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Medicines, 1)
	assert.Equal(t, "Panadol", resp.Medicines[0].MedicineName)
	assert.Equal(t, "1500", resp.Medicines[0].TotalAmount)
	assert.Equal(t, "1500", resp.GrandTotal)
	assert.Equal(t, "0", resp.PaidTotal)
	assert.Equal(t, "1500", resp.UnpaidTotal)
}

func TestHandler_GetMedicineAssigned_NotFound(t *testing.T) {
	h, _, e := newTestHandler(t)
	c, _ := patientContext(e, "/get_medicine_assigned/x", uuid.NewString())
	requireHTTPError(t, h.GetMedicineAssigned(c), http.StatusNotFound)

	c, _ = patientContext(e, "/get_medicine_assigned/x", "not-a-uuid")
	requireHTTPError(t, h.GetMedicineAssigned(c), http.StatusBadRequest)
}

func TestHandler_PaymentFlow(t *testing.T) {
	h, f, e := newTestHandler(t)
	p := f.store.addPatient("Jane Doe")
	m := f.store.addMedicine("Panadol", "500")

	c, _ := patientContext(e, "/initiate_payment/x", p.String())
	he := requireHTTPError(t, h.InitiatePayment(c), http.StatusBadRequest)
	assert.Equal(t, ErrNothingToPay.Message, he.Message)

	_, err := f.ledger.Assign(context.Background(), AssignInput{PatientID: p, MedicineID: m, Quantity: qty(3)})
	require.NoError(t, err)

	c, rec := patientContext(e, "/initiate_payment/x", p.String())
	require.NoError(t, h.InitiatePayment(c))
	var intent map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &intent))
	assert.Equal(t, "Jane Doe", intent["patient_name"])
	assert.Equal(t, "1500", intent["amount_to_pay"])
	assert.Equal(t, "RWF", intent["currency"])
	assert.True(t, strings.HasPrefix(intent["payment_reference"], "PAY-"))

	c, rec = patientContext(e, "/verify_payment/x", p.String())
	require.NoError(t, h.VerifyPayment(c))
	assert.JSONEq(t, `{"message":"Payment verified","settled":1}`, rec.Body.String())

	c, rec = patientContext(e, "/verify_payment/x", p.String())
	require.NoError(t, h.VerifyPayment(c))
	assert.JSONEq(t, `{"message":"Payment verified","settled":0}`, rec.Body.String())
}

func TestHandler_VerifyPayment_NotFound(t *testing.T) {
	h, _, e := newTestHandler(t)
	c, _ := patientContext(e, "/verify_payment/x", uuid.NewString())
	requireHTTPError(t, h.VerifyPayment(c), http.StatusNotFound)
}
