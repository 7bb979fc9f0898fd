package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/medpay/medpay/internal/domain/catalog"
	"github.com/medpay/medpay/internal/domain/patient"
)

// memStore backs the ledger, reconciler and both lookups with maps.
type memStore struct {
	mu          sync.Mutex
	patients    map[uuid.UUID]*patient.Patient
	medicines   map[uuid.UUID]*catalog.Medicine
	assignments []*Assignment
	clock       time.Time
}

func newMemStore() *memStore {
	return &memStore{
		patients:  make(map[uuid.UUID]*patient.Patient),
		medicines: make(map[uuid.UUID]*catalog.Medicine),
		clock:     time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) addPatient(names string) uuid.UUID {
	id := uuid.New()
	s.patients[id] = &patient.Patient{ID: id, Names: names, Age: 30}
	return id
}

func (s *memStore) addMedicine(name, price string) uuid.UUID {
	id := uuid.New()
	s.medicines[id] = &catalog.Medicine{ID: id, Name: name, UnitPrice: decimal.RequireFromString(price)}
	return id
}

func (s *memStore) setPrice(id uuid.UUID, price string) {
	s.medicines[id].UnitPrice = decimal.RequireFromString(price)
}

type patientLookup struct{ *memStore }

func (l patientLookup) Get(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := l.patients[id]
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	return p, nil
}

type medicineLookup struct{ *memStore }

func (l medicineLookup) Get(_ context.Context, id uuid.UUID) (*catalog.Medicine, error) {
	m, ok := l.medicines[id]
	if !ok {
		return nil, catalog.ErrMedicineNotFound
	}
	return m, nil
}

func (s *memStore) Create(_ context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = uuid.New()
	s.clock = s.clock.Add(time.Second)
	a.CreatedAt = s.clock
	stored := *a
	s.assignments = append(s.assignments, &stored)
	return nil
}

func (s *memStore) LinesForPatient(_ context.Context, patientID uuid.UUID) ([]Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lines []Line
	for _, a := range s.assignments {
		if a.PatientID != patientID {
			continue
		}
		m := s.medicines[a.MedicineID]
		lines = append(lines, Line{
			AssignmentID: a.ID,
			MedicineID:   a.MedicineID,
			MedicineName: m.Name,
			Quantity:     a.Quantity,
			UnitPrice:    m.UnitPrice,
			BilledAmount: a.TotalAmount,
			IsPaid:       a.IsPaid,
			PaidAt:       a.PaidAt,
			AssignedAt:   a.CreatedAt,
		})
	}
	return lines, nil
}

func (s *memStore) MarkPaid(_ context.Context, patientID uuid.UUID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range s.assignments {
		if a.PatientID == patientID && !a.IsPaid {
			a.IsPaid = true
			paidAt := at
			a.PaidAt = &paidAt
			n++
		}
	}
	return n, nil
}

// RunInTx restores the assignment list when fn fails.
func (s *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	saved := make([]*Assignment, len(s.assignments))
	for i, a := range s.assignments {
		cp := *a
		saved[i] = &cp
	}
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.assignments = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

type countingRecorder struct {
	assigned  int
	initiated int
	verified  int
	settled   int64
}

func (r *countingRecorder) AssignmentCreated() { r.assigned++ }
func (r *countingRecorder) PaymentInitiated()  { r.initiated++ }
func (r *countingRecorder) PaymentVerified(settled int64) {
	r.verified++
	r.settled += settled
}

type fixture struct {
	store      *memStore
	recorder   *countingRecorder
	ledger     *Ledger
	reconciler *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	store := newMemStore()
	rec := &countingRecorder{}
	return &fixture{
		store:      store,
		recorder:   rec,
		ledger:     NewLedger(store, patientLookup{store}, medicineLookup{store}, store, rec, zerolog.Nop(), "RWF"),
		reconciler: NewReconciler(store, patientLookup{store}, store, node, rec, zerolog.Nop(), "RWF"),
	}
}

func qty(n int) *int { return &n }

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func requireAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}
