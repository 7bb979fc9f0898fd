package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/medpay/medpay/internal/platform/db"
)

const nameConstraint = "uq_medicines_name"

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type medicineRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &medicineRepoPG{pool: pool} }

func (r *medicineRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// unit_price travels as text so NUMERIC values round-trip without float loss.
const medicineCols = `id, name, description, unit_price::text, created_at`

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var (
		m     Medicine
		price string
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Description, &price, &m.CreatedAt); err != nil {
		return nil, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse unit_price %q: %w", price, err)
	}
	m.UnitPrice = p
	return &m, nil
}

func (r *medicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicines (id, name, description, unit_price)
		VALUES ($1, $2, $3, $4::text::numeric)
		RETURNING created_at`,
		m.ID, m.Name, m.Description, m.UnitPrice.String(),
	).Scan(&m.CreatedAt)
	if db.IsUniqueViolation(err, nameConstraint) {
		return ErrDuplicateName.WithMessage(fmt.Sprintf("Medicine %q already exists", m.Name)).Wrap(err)
	}
	if err != nil {
		return fmt.Errorf("insert medicine: %w", err)
	}
	return nil
}

func (r *medicineRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	m, err := scanMedicine(r.conn(ctx).QueryRow(ctx, `SELECT `+medicineCols+` FROM medicines WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrMedicineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get medicine %s: %w", id, err)
	}
	return m, nil
}

func (r *medicineRepoPG) List(ctx context.Context, limit, offset int) ([]*Medicine, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medicines`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medicines: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+medicineCols+` FROM medicines
		ORDER BY name
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list medicines: %w", err)
	}
	defer rows.Close()

	var items []*Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan medicine: %w", err)
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}
