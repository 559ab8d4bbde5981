package share

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/carevault/carevault/internal/domain/appointment"
	"github.com/carevault/carevault/internal/domain/prescription"
)

// TokenStore persists share tokens keyed by token hash, with a secondary
// index by prescription.
type TokenStore interface {
	Get(ctx context.Context, tokenHash string) (*ShareToken, error)
	GetByID(ctx context.Context, id uuid.UUID) (*ShareToken, error)
	Put(ctx context.Context, t *ShareToken) error
	ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*ShareToken, error)
	// RecordAccess increments the access counter in a single atomic step
	// and moves last_accessed_at forward to at.
	RecordAccess(ctx context.Context, tokenHash string, at time.Time) error
	// Deactivate clears the active flag and reports whether this call made
	// the transition. Deactivating an inactive token is not an error.
	Deactivate(ctx context.Context, tokenHash string, at time.Time) (bool, error)
	// WithTx runs fn so that the store calls it makes commit or fail together.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PrescriptionAccessor reads prescriptions.
type PrescriptionAccessor interface {
	GetByID(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error)
}

// PartyAccessor reads the doctor and patient attached to an appointment.
type PartyAccessor interface {
	GetParties(ctx context.Context, appointmentID uuid.UUID) (*appointment.Parties, error)
}
