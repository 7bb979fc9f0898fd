package billing

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medpay/medpay/internal/platform/apperr"
)

const referencePrefix = "PAY-"

// Reconciler quotes outstanding balances and settles them. Settlement is a
// manual flag flip; no payment provider is contacted.
type Reconciler struct {
	repo     Repository
	patients PatientLookup
	tx       Transactor
	node     *snowflake.Node
	recorder Recorder
	logger   zerolog.Logger
	currency string
	now      func() time.Time
}

func NewReconciler(repo Repository, patients PatientLookup, tx Transactor, node *snowflake.Node,
	recorder Recorder, logger zerolog.Logger, currency string) *Reconciler {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Reconciler{
		repo:     repo,
		patients: patients,
		tx:       tx,
		node:     node,
		recorder: recorder,
		logger:   logger.With().Str("component", "reconciler").Logger(),
		currency: currency,
		now:      time.Now,
	}
}

// Initiate sums the patient's unpaid lines at current prices and mints a
// payment reference. It does not change stored state.
func (r *Reconciler) Initiate(ctx context.Context, patientID uuid.UUID) (*PaymentIntent, error) {
	p, err := r.patients.Get(ctx, patientID)
	if err != nil {
		return nil, apperr.Store(err)
	}
	lines, err := r.repo.LinesForPatient(ctx, patientID)
	if err != nil {
		return nil, apperr.Store(err)
	}

	amount := decimal.Zero
	unpaid := 0
	for _, l := range lines {
		if l.IsPaid {
			continue
		}
		amount = amount.Add(lineTotal(l.Quantity, l.UnitPrice))
		unpaid++
	}
	if unpaid == 0 {
		return nil, ErrNothingToPay
	}

	intent := &PaymentIntent{
		PatientID:   p.ID,
		PatientName: p.Names,
		AmountToPay: amount,
		Currency:    r.currency,
		Reference:   referencePrefix + r.node.Generate().String(),
		Lines:       unpaid,
	}
	r.recorder.PaymentInitiated()
	r.logger.Info().
		Str("patient_id", p.ID.String()).
		Str("reference", intent.Reference).
		Str("amount", amount.String()).
		Int("lines", unpaid).
		Msg("payment initiated")
	return intent, nil
}

// Verify marks every unpaid line of the patient as paid in one
// transaction. Running it with nothing left to pay succeeds with zero
// settled lines.
func (r *Reconciler) Verify(ctx context.Context, patientID uuid.UUID) (*Settlement, error) {
	s := &Settlement{PatientID: patientID, PaidAt: r.now().UTC()}
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := r.patients.Get(ctx, patientID); err != nil {
			return err
		}
		n, err := r.repo.MarkPaid(ctx, patientID, s.PaidAt)
		if err != nil {
			return err
		}
		s.Settled = n
		return nil
	})
	if err != nil {
		return nil, apperr.Store(err)
	}

	r.recorder.PaymentVerified(s.Settled)
	r.logger.Info().
		Str("patient_id", patientID.String()).
		Int64("settled", s.Settled).
		Msg("payment verified")
	return s, nil
}
