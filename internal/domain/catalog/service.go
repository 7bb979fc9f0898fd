package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medpay/medpay/internal/platform/apperr"
)

type Service struct {
	repo   Repository
	tx     Transactor
	logger zerolog.Logger
}

func NewService(repo Repository, tx Transactor, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		tx:     tx,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

func toMedicine(in MedicineInput) (*Medicine, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return nil, apperr.Validation(fmt.Sprintf("name must be at most %d characters", maxNameLen))
	}
	if in.UnitPrice == nil {
		return nil, apperr.Validation("unit_price is required")
	}
	if in.UnitPrice.IsNegative() {
		return nil, apperr.Validation("unit_price must not be negative")
	}
	unitPrice := in.UnitPrice.Round(2)
	if unitPrice.GreaterThanOrEqual(priceCeiling) {
		return nil, apperr.Validation(fmt.Sprintf("unit_price must be less than %s", priceCeiling))
	}
	return &Medicine{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		UnitPrice:   unitPrice,
	}, nil
}

// Add stores one medicine and returns its id.
func (s *Service) Add(ctx context.Context, in MedicineInput) (uuid.UUID, error) {
	m, err := toMedicine(in)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return uuid.Nil, apperr.Store(err)
	}
	s.logger.Info().Str("medicine_id", m.ID.String()).Str("name", m.Name).Msg("medicine added")
	return m.ID, nil
}

// AddBatch validates every item before writing any, then inserts them in
// one transaction. Either all medicines are stored or none.
func (s *Service) AddBatch(ctx context.Context, items []MedicineInput) ([]uuid.UUID, error) {
	if len(items) == 0 {
		return nil, apperr.Validation("at least one medicine is required")
	}

	medicines := make([]*Medicine, 0, len(items))
	seen := make(map[string]int, len(items))
	for i, in := range items {
		m, err := toMedicine(in)
		if err != nil {
			var ae *apperr.Error
			errors.As(err, &ae)
			return nil, ae.WithMessage(fmt.Sprintf("item %d: %s", i, ae.Message))
		}
		key := strings.ToLower(m.Name)
		if first, dup := seen[key]; dup {
			return nil, apperr.Validation(fmt.Sprintf("item %d repeats the name of item %d", i, first))
		}
		seen[key] = i
		medicines = append(medicines, m)
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		for _, m := range medicines {
			if err := s.repo.Create(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Store(err)
	}

	ids := make([]uuid.UUID, len(medicines))
	for i, m := range medicines {
		ids[i] = m.ID
	}
	s.logger.Info().Int("count", len(ids)).Msg("medicine batch added")
	return ids, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Listing, int, error) {
	medicines, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperr.Store(err)
	}
	out := make([]*Listing, 0, len(medicines))
	for _, m := range medicines {
		out = append(out, m.Listing())
	}
	return out, total, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return m, nil
}
