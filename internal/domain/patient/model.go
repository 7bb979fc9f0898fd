package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/medpay/medpay/internal/platform/apperr"
)

// Patient maps to the patients table. PasswordHash never leaves the process.
type Patient struct {
	ID           uuid.UUID `json:"id"`
	Names        string    `json:"names"`
	Email        *string   `json:"email,omitempty"`
	Phone        string    `json:"phone"`
	Age          int       `json:"age"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Summary is the public listing view of a patient.
type Summary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email *string   `json:"email"`
	Age   int       `json:"age"`
}

func (p *Patient) Summary() *Summary {
	return &Summary{ID: p.ID, Name: p.Names, Email: p.Email, Age: p.Age}
}

type RegisterInput struct {
	Names    string  `json:"names"`
	Email    *string `json:"email"`
	Phone    string  `json:"phone"`
	Age      int     `json:"age"`
	Password string  `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is the result of a successful login.
type Session struct {
	PatientID   uuid.UUID `json:"-"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

const (
	maxAge = 150

	// Column widths of the patients table.
	maxNamesLen = 255
	maxEmailLen = 255
	maxPhoneLen = 32

	// bcrypt only reads the first 72 bytes of a password.
	maxPasswordBytes = 72
)

var (
	ErrDuplicateEmail     = apperr.New(apperr.KindDuplicate, "duplicate_email", "Email already registered")
	ErrInvalidCredentials = apperr.New(apperr.KindAuthentication, "invalid_credentials", "Invalid credentials")
	ErrPatientNotFound    = apperr.New(apperr.KindNotFound, "patient_not_found", "Patient not found")
)
