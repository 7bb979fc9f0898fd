package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/medpay/medpay/internal/domain/catalog"
	"github.com/medpay/medpay/internal/domain/patient"
	"github.com/medpay/medpay/internal/platform/db"
)

const (
	patientFK  = "fk_patient_medicines_patient"
	medicineFK = "fk_patient_medicines_medicine"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type assignmentRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &assignmentRepoPG{pool: pool} }

func (r *assignmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *assignmentRepoPG) Create(ctx context.Context, a *Assignment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_medicines (id, patient_id, medicine_id, quantity, total_amount, is_paid, paid_at)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7)
		RETURNING created_at`,
		a.ID, a.PatientID, a.MedicineID, a.Quantity, a.TotalAmount.String(), a.IsPaid, a.PaidAt,
	).Scan(&a.CreatedAt)
	if err != nil {
		return insertError(err)
	}
	return nil
}

// insertError maps a reference that vanished between lookup and insert to
// the same not-found error the lookup would have returned.
func insertError(err error) error {
	switch {
	case db.IsForeignKeyViolation(err, patientFK):
		return patient.ErrPatientNotFound.Wrap(err)
	case db.IsForeignKeyViolation(err, medicineFK):
		return catalog.ErrMedicineNotFound.Wrap(err)
	}
	return fmt.Errorf("insert assignment: %w", err)
}

func (r *assignmentRepoPG) LinesForPatient(ctx context.Context, patientID uuid.UUID) ([]Line, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT pm.id, pm.medicine_id, m.name, pm.quantity, m.unit_price::text,
		       pm.total_amount::text, pm.is_paid, pm.paid_at, pm.created_at
		FROM patient_medicines pm
		JOIN medicines m ON m.id = pm.medicine_id
		WHERE pm.patient_id = $1
		ORDER BY pm.created_at, pm.id`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list assignments for %s: %w", patientID, err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var (
			l             Line
			price, billed string
		)
		if err := rows.Scan(&l.AssignmentID, &l.MedicineID, &l.MedicineName, &l.Quantity,
			&price, &billed, &l.IsPaid, &l.PaidAt, &l.AssignedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse unit_price %q: %w", price, err)
		}
		if l.BilledAmount, err = decimal.NewFromString(billed); err != nil {
			return nil, fmt.Errorf("parse total_amount %q: %w", billed, err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *assignmentRepoPG) MarkPaid(ctx context.Context, patientID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_medicines SET is_paid = TRUE, paid_at = $2
		WHERE patient_id = $1 AND is_paid = FALSE`, patientID, at)
	if err != nil {
		return 0, fmt.Errorf("mark assignments paid for %s: %w", patientID, err)
	}
	return tag.RowsAffected(), nil
}
