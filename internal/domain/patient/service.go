package patient

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/medpay/medpay/internal/platform/apperr"
)

// Hasher is the credential store used by the registry.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
	VerifyDummy(password string)
}

// TokenIssuer mints access tokens for authenticated patients.
type TokenIssuer interface {
	Issue(subject string) (string, time.Time, error)
}

type Service struct {
	repo   Repository
	hasher Hasher
	tokens TokenIssuer
	logger zerolog.Logger
}

func NewService(repo Repository, hasher Hasher, tokens TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		logger: logger.With().Str("component", "patient").Logger(),
	}
}

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*email)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func validateRegistration(in *RegisterInput) error {
	switch {
	case strings.TrimSpace(in.Names) == "":
		return apperr.Validation("names is required")
	case strings.TrimSpace(in.Phone) == "":
		return apperr.Validation("phone is required")
	case utf8.RuneCountInString(in.Names) > maxNamesLen:
		return apperr.Validation(fmt.Sprintf("names must be at most %d characters", maxNamesLen))
	case utf8.RuneCountInString(in.Phone) > maxPhoneLen:
		return apperr.Validation(fmt.Sprintf("phone must be at most %d characters", maxPhoneLen))
	case in.Password == "":
		return apperr.Validation("password is required")
	case len(in.Password) > maxPasswordBytes:
		return apperr.Validation(fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	case in.Age < 0 || in.Age > maxAge:
		return apperr.Validation("age must be between 0 and 150")
	}
	if in.Email != nil {
		if utf8.RuneCountInString(*in.Email) > maxEmailLen {
			return apperr.Validation(fmt.Sprintf("email must be at most %d characters", maxEmailLen))
		}
		addr, err := mail.ParseAddress(*in.Email)
		if err != nil || addr.Address != *in.Email {
			return apperr.Validation("email is not a valid address")
		}
	}
	return nil
}

// Register stores a new patient and returns its id. The password is hashed
// before it reaches the repository.
func (s *Service) Register(ctx context.Context, in RegisterInput) (uuid.UUID, error) {
	in.Email = normalizeEmail(in.Email)
	in.Names = strings.TrimSpace(in.Names)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := validateRegistration(&in); err != nil {
		return uuid.Nil, err
	}

	if in.Email != nil {
		exists, err := s.repo.EmailExists(ctx, *in.Email)
		if err != nil {
			return uuid.Nil, apperr.Store(err)
		}
		if exists {
			return uuid.Nil, ErrDuplicateEmail
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return uuid.Nil, apperr.ErrInvalidInput.WithMessage("password is too long").Wrap(err)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("hash password")
		return uuid.Nil, err
	}

	p := &Patient{
		Names:        in.Names,
		Email:        in.Email,
		Phone:        in.Phone,
		Age:          in.Age,
		PasswordHash: hash,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if !errors.Is(err, ErrDuplicateEmail) {
			s.logger.Error().Err(err).Msg("store patient")
		}
		return uuid.Nil, apperr.Store(err)
	}

	s.logger.Info().Str("patient_id", p.ID.String()).Msg("patient registered")
	return p.ID, nil
}

// Authenticate checks an email/password pair and issues an access token.
// Unknown emails and wrong passwords fail identically.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		s.hasher.VerifyDummy(password)
		return nil, ErrInvalidCredentials
	}

	p, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrPatientNotFound) {
		s.hasher.VerifyDummy(password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Store(err)
	}

	ok, err := s.hasher.Verify(password, p.PasswordHash)
	if err != nil {
		s.logger.Error().Err(err).Str("patient_id", p.ID.String()).Msg("stored password hash is unusable")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(p.ID.String())
	if err != nil {
		return nil, err
	}
	return &Session{
		PatientID:   p.ID,
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
	}, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Summary, int, error) {
	patients, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperr.Store(err)
	}
	out := make([]*Summary, 0, len(patients))
	for _, p := range patients {
		out = append(out, p.Summary())
	}
	return out, total, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return p, nil
}
