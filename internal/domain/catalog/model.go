package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medpay/medpay/internal/platform/apperr"
)

// Medicine maps to the medicines table.
type Medicine struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Listing is the catalog entry returned by GET /medicines.
type Listing struct {
	ID    uuid.UUID       `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

func (m *Medicine) Listing() *Listing {
	return &Listing{ID: m.ID, Name: m.Name, Price: m.UnitPrice}
}

type MedicineInput struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
}

const maxNameLen = 255

// unit_price is NUMERIC(12,2), so prices stay below 10^10.
var priceCeiling = decimal.New(1, 10)

var (
	ErrDuplicateName    = apperr.New(apperr.KindDuplicate, "duplicate_medicine", "Medicine already exists")
	ErrMedicineNotFound = apperr.New(apperr.KindNotFound, "medicine_not_found", "Medicine not found")
)
