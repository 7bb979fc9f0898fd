package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medpay/medpay/internal/domain/catalog"
	"github.com/medpay/medpay/internal/domain/patient"
	"github.com/medpay/medpay/internal/platform/apperr"
)

// PatientLookup resolves patient references. Missing patients yield
// patient.ErrPatientNotFound.
type PatientLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// MedicineLookup resolves medicine references. Missing medicines yield
// catalog.ErrMedicineNotFound.
type MedicineLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*catalog.Medicine, error)
}

// Recorder counts billing events.
type Recorder interface {
	AssignmentCreated()
	PaymentInitiated()
	PaymentVerified(settled int64)
}

type nopRecorder struct{}

func (nopRecorder) AssignmentCreated()    {}
func (nopRecorder) PaymentInitiated()     {}
func (nopRecorder) PaymentVerified(int64) {}

// Ledger records medicine assignments and reports what a patient owes.
type Ledger struct {
	repo      Repository
	patients  PatientLookup
	medicines MedicineLookup
	tx        Transactor
	recorder  Recorder
	logger    zerolog.Logger
	currency  string
	now       func() time.Time
}

func NewLedger(repo Repository, patients PatientLookup, medicines MedicineLookup, tx Transactor,
	recorder Recorder, logger zerolog.Logger, currency string) *Ledger {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Ledger{
		repo:      repo,
		patients:  patients,
		medicines: medicines,
		tx:        tx,
		recorder:  recorder,
		logger:    logger.With().Str("component", "ledger").Logger(),
		currency:  currency,
		now:       time.Now,
	}
}

// Assign prescribes a medicine to a patient. Both references are resolved
// inside the same transaction as the insert, so a missing reference leaves
// nothing behind. The billed amount is always quantity × unit price; a
// client-supplied total is only compared against it and logged when it differs.
func (l *Ledger) Assign(ctx context.Context, in AssignInput) (uuid.UUID, error) {
	quantity := defaultQuantity
	if in.Quantity != nil {
		quantity = *in.Quantity
	}
	if quantity <= 0 {
		return uuid.Nil, apperr.Validation("quantity must be greater than zero")
	}
	if quantity > maxQuantity {
		return uuid.Nil, apperr.Validation(fmt.Sprintf("quantity must be at most %d", maxQuantity))
	}
	if in.PatientID == uuid.Nil {
		return uuid.Nil, apperr.Validation("patient_id is required")
	}
	if in.MedicineID == uuid.Nil {
		return uuid.Nil, apperr.Validation("medicine_id is required")
	}

	var a *Assignment
	err := l.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := l.patients.Get(ctx, in.PatientID); err != nil {
			return err
		}
		med, err := l.medicines.Get(ctx, in.MedicineID)
		if err != nil {
			return err
		}

		total := lineTotal(quantity, med.UnitPrice)
		if total.GreaterThanOrEqual(lineCeiling) {
			return apperr.Validation(fmt.Sprintf("total_amount %s exceeds the largest billable amount", total))
		}
		if in.TotalAmount != nil && !in.TotalAmount.Equal(total) {
			l.logger.Warn().
				Str("patient_id", in.PatientID.String()).
				Str("medicine_id", in.MedicineID.String()).
				Str("client_total", in.TotalAmount.String()).
				Str("total_amount", total.String()).
				Msg("client total_amount ignored")
		}

		a = &Assignment{
			PatientID:   in.PatientID,
			MedicineID:  in.MedicineID,
			Quantity:    quantity,
			TotalAmount: total,
			IsPaid:      in.IsPaid,
		}
		if a.IsPaid {
			at := l.now().UTC()
			a.PaidAt = &at
		}
		return l.repo.Create(ctx, a)
	})
	if err != nil {
		return uuid.Nil, apperr.Store(err)
	}

	l.recorder.AssignmentCreated()
	l.logger.Info().
		Str("assignment_id", a.ID.String()).
		Str("patient_id", a.PatientID.String()).
		Str("medicine_id", a.MedicineID.String()).
		Int("quantity", a.Quantity).
		Str("total_amount", a.TotalAmount.String()).
		Msg("medicine assigned")
	return a.ID, nil
}

// AssignedFor builds the patient's billing report priced at current
// catalog prices.
func (l *Ledger) AssignedFor(ctx context.Context, patientID uuid.UUID) (*Report, error) {
	p, err := l.patients.Get(ctx, patientID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	lines, err := l.repo.LinesForPatient(ctx, patientID)
	if err != nil {
		return nil, apperr.Store(err)
	}

	for i := range lines {
		lines[i].TotalAmount = lineTotal(lines[i].Quantity, lines[i].UnitPrice)
	}
	r := &Report{
		PatientID:   p.ID,
		PatientName: p.Names,
		Lines:       lines,
		Currency:    l.currency,
	}
	r.summarize()
	return r, nil
}
