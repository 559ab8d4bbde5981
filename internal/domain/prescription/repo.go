package prescription

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("prescription not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
}
