package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("appointment not found")

type Repository interface {
	GetParties(ctx context.Context, appointmentID uuid.UUID) (*Parties, error)
}
