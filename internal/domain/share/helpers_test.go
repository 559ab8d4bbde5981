package share

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carevault/carevault/internal/domain/appointment"
	"github.com/carevault/carevault/internal/domain/prescription"
)

type mockPrescriptions struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*prescription.Prescription
	err   error
}

func (m *mockPrescriptions) GetByID(_ context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.items[id]
	if !ok {
		return nil, prescription.ErrNotFound
	}
	return p, nil
}

type mockParties struct {
	items map[uuid.UUID]*appointment.Parties
}

func (m *mockParties) GetParties(_ context.Context, id uuid.UUID) (*appointment.Parties, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	return p, nil
}

// fixture is one appointment with a doctor, a patient and a finalized
// prescription.
type fixture struct {
	store         *MemoryStore
	prescriptions *mockPrescriptions
	parties       *mockParties

	prescriptionID uuid.UUID
	doctorID       uuid.UUID
	patientID      uuid.UUID
	strangerID     uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		store:          NewMemoryStore(),
		prescriptionID: uuid.New(),
		doctorID:       uuid.New(),
		patientID:      uuid.New(),
		strangerID:     uuid.New(),
	}
	appointmentID := uuid.New()
	summary := "Take with food."
	f.prescriptions = &mockPrescriptions{items: map[uuid.UUID]*prescription.Prescription{
		f.prescriptionID: {
			ID:            f.prescriptionID,
			AppointmentID: appointmentID,
			Medications: []prescription.Medication{
				{Name: "Amoxicillin", Dosage: "500mg", Frequency: "3x daily"},
			},
			AISummary: &summary,
			AIInteractions: &prescription.Interactions{
				Summary: "No known interactions.",
				Issues:  []prescription.InteractionIssue{},
			},
			Status:    prescription.StatusFinalized,
			CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	}}
	f.parties = &mockParties{items: map[uuid.UUID]*appointment.Parties{
		appointmentID: {
			AppointmentID: appointmentID,
			DoctorID:      f.doctorID,
			DoctorName:    "Dr. Ada Osei",
			PatientID:     f.patientID,
			PatientEmail:  "patient@example.com",
		},
	}}
	return f
}

func (f *fixture) service() *Service {
	return NewService(f.store, f.prescriptions, f.parties, 0, zerolog.Nop())
}

func (f *fixture) gate() *Gate {
	return NewGate(f.store, f.prescriptions, f.parties, zerolog.Nop())
}

func (f *fixture) revoker() *Revoker {
	return NewRevoker(f.store, f.prescriptions, f.parties, zerolog.Nop())
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
