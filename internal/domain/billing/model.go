package billing

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medpay/medpay/internal/platform/apperr"
)

// Assignment is one billing line: a quantity of one medicine prescribed to
// one patient. TotalAmount is the price snapshot taken at creation.
type Assignment struct {
	ID          uuid.UUID       `json:"id"`
	PatientID   uuid.UUID       `json:"patient_id"`
	MedicineID  uuid.UUID       `json:"medicine_id"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	IsPaid      bool            `json:"is_paid"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type AssignInput struct {
	PatientID   uuid.UUID        `json:"patient_id"`
	MedicineID  uuid.UUID        `json:"medicine_id"`
	Quantity    *int             `json:"quantity"`
	TotalAmount *decimal.Decimal `json:"total_amount"`
	IsPaid      bool             `json:"is_paid"`
}

// Line is an assignment joined with the medicine's current catalog entry.
type Line struct {
	AssignmentID uuid.UUID       `json:"assignment_id"`
	MedicineID   uuid.UUID       `json:"medicine_id"`
	MedicineName string          `json:"medicine_name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	// TotalAmount is quantity × current unit price.
	TotalAmount decimal.Decimal `json:"total_amount"`
	// BilledAmount is the snapshot stored when the line was assigned.
	BilledAmount decimal.Decimal `json:"billed_amount"`
	IsPaid       bool            `json:"is_paid"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	AssignedAt   time.Time       `json:"assigned_at"`
}

type Report struct {
	PatientID   uuid.UUID       `json:"patient_id"`
	PatientName string          `json:"patient_name"`
	Lines       []Line          `json:"medicines"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
	PaidTotal   decimal.Decimal `json:"paid_total"`
	UnpaidTotal decimal.Decimal `json:"unpaid_total"`
	Currency    string          `json:"currency"`
}

func (r *Report) Empty() bool { return len(r.Lines) == 0 }

// PaymentIntent is the amount a patient owes right now and the reference
// the payment should carry.
type PaymentIntent struct {
	PatientID   uuid.UUID       `json:"-"`
	PatientName string          `json:"patient_name"`
	AmountToPay decimal.Decimal `json:"amount_to_pay"`
	Currency    string          `json:"currency"`
	Reference   string          `json:"payment_reference"`
	Lines       int             `json:"-"`
}

type Settlement struct {
	PatientID uuid.UUID `json:"-"`
	Settled   int64     `json:"settled"`
	PaidAt    time.Time `json:"-"`
}

const (
	defaultQuantity = 1
	// quantity is an INTEGER column.
	maxQuantity = math.MaxInt32
)

// total_amount is NUMERIC(14,2), so a line stays below 10^12.
var lineCeiling = decimal.New(1, 12)

var ErrNothingToPay = apperr.New(apperr.KindValidation, "nothing_to_pay", "No unpaid medicines for this patient")

// lineTotal is quantity × unitPrice.
func lineTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// summarize fills the report totals from its lines, partitioned by the
// paid flag.
func (r *Report) summarize() {
	paid, unpaid := decimal.Zero, decimal.Zero
	for _, l := range r.Lines {
		if l.IsPaid {
			paid = paid.Add(l.TotalAmount)
		} else {
			unpaid = unpaid.Add(l.TotalAmount)
		}
	}
	r.PaidTotal = paid
	r.UnpaidTotal = unpaid
	r.GrandTotal = paid.Add(unpaid)
}
