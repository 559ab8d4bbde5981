package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/carevault/carevault/internal/domain/appointment"
	"github.com/carevault/carevault/internal/domain/prescription"
)

// maxTokenLength rejects oversized input before it reaches the store.
const maxTokenLength = 128

// Gate resolves share tokens presented by unauthenticated callers.
type Gate struct {
	store         TokenStore
	prescriptions PrescriptionAccessor
	parties       PartyAccessor
	now           func() time.Time
	logger        zerolog.Logger
}

func NewGate(store TokenStore, prescriptions PrescriptionAccessor, parties PartyAccessor, logger zerolog.Logger) *Gate {
	return &Gate{
		store:         store,
		prescriptions: prescriptions,
		parties:       parties,
		now:           time.Now,
		logger:        logger,
	}
}

// Resolve validates token and returns the shared view of its prescription.
// Unknown, revoked and expired tokens all fail with ErrInvalidToken.
func (g *Gate) Resolve(ctx context.Context, token string) (*View, error) {
	if token == "" || len(token) > maxTokenLength {
		return nil, ErrInvalidToken
	}

	hash := HashToken(token)
	st, err := g.store.Get(ctx, hash)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("look up share token: %w", err)
	}

	now := g.now().UTC()
	if !st.Usable(now) {
		return nil, ErrInvalidToken
	}

	p, err := g.prescriptions.GetByID(ctx, st.PrescriptionID)
	if errors.Is(err, prescription.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load shared prescription: %w", err)
	}

	parties, err := g.parties.GetParties(ctx, p.AppointmentID)
	if errors.Is(err, appointment.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load appointment parties: %w", err)
	}

	view := &View{
		TokenHint:    st.TokenHint,
		DoctorName:   parties.DoctorName,
		Status:       p.Status,
		Medications:  p.Medications,
		AISummary:    p.AISummary,
		Interactions: p.AIInteractions,
		CreatedAt:    p.CreatedAt,
		ExpiresAt:    st.ExpiresAt,
	}

	// Only served views are counted. A failed count must not block the read.
	if err := g.store.RecordAccess(ctx, hash, now); err != nil {
		g.logger.Warn().Err(err).
			Str("token_id", st.ID.String()).
			Msg("failed to record share access")
	}
	return view, nil
}
