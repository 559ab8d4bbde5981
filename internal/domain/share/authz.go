package share

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/carevault/carevault/internal/domain/appointment"
	"github.com/carevault/carevault/internal/domain/prescription"
)

// ownership resolves who may act on a prescription's share links.
type ownership struct {
	prescriptions PrescriptionAccessor
	parties       PartyAccessor
}

func (o ownership) load(ctx context.Context, prescriptionID uuid.UUID) (*appointment.Parties, error) {
	p, err := o.prescriptions.GetByID(ctx, prescriptionID)
	if errors.Is(err, prescription.ErrNotFound) {
		return nil, fmt.Errorf("prescription %s: %w", prescriptionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load prescription: %w", err)
	}

	parties, err := o.parties.GetParties(ctx, p.AppointmentID)
	if errors.Is(err, appointment.ErrNotFound) {
		return nil, fmt.Errorf("appointment %s: %w", p.AppointmentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load appointment parties: %w", err)
	}
	return parties, nil
}

// requirePatient allows only the patient of the prescription's appointment.
func (o ownership) requirePatient(ctx context.Context, prescriptionID, userID uuid.UUID) error {
	parties, err := o.load(ctx, prescriptionID)
	if err != nil {
		return err
	}
	if !parties.IsPatient(userID) {
		return ErrAccessDenied
	}
	return nil
}

// requireParticipant allows the appointment's patient or doctor.
func (o ownership) requireParticipant(ctx context.Context, prescriptionID, userID uuid.UUID) error {
	parties, err := o.load(ctx, prescriptionID)
	if err != nil {
		return err
	}
	if !parties.IsParticipant(userID) {
		return ErrAccessDenied
	}
	return nil
}
