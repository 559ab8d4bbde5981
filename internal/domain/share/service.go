package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service is the entry point used by the HTTP layer. It ties issuance,
// resolution and revocation to the ownership rules.
type Service struct {
	store    TokenStore
	issuer   *Issuer
	gate     *Gate
	revoker  *Revoker
	owners   ownership
	observer Observer
	logger   zerolog.Logger
}

// Observer receives share-link lifecycle events, typically for metrics.
type Observer interface {
	Issued()
	Resolved(outcome string)
	Revoked(n int)
}

// Resolve outcomes reported to the Observer.
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

type nopObserver struct{}

func (nopObserver) Issued()         {}
func (nopObserver) Resolved(string) {}
func (nopObserver) Revoked(int)     {}

func NewService(store TokenStore, prescriptions PrescriptionAccessor, parties PartyAccessor, defaultTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		issuer:   NewIssuer(store, defaultTTL),
		gate:     NewGate(store, prescriptions, parties, logger),
		revoker:  NewRevoker(store, prescriptions, parties, logger),
		owners:   ownership{prescriptions: prescriptions, parties: parties},
		observer: nopObserver{},
		logger:   logger,
	}
}

// WithObserver sets the event sink and returns s.
func (s *Service) WithObserver(o Observer) *Service {
	if o == nil {
		o = nopObserver{}
	}
	s.observer = o
	return s
}

// Share issues a new link for prescriptionID. The appointment's patient and
// doctor may share.
func (s *Service) Share(ctx context.Context, prescriptionID, userID uuid.UUID, ttl time.Duration) (*ShareToken, error) {
	if err := s.owners.requireParticipant(ctx, prescriptionID, userID); err != nil {
		return nil, err
	}

	t, err := s.issuer.Issue(ctx, prescriptionID, ttl)
	if err != nil {
		return nil, fmt.Errorf("issue share link: %w", err)
	}

	evt := s.logger.Info().
		Str("prescription_id", prescriptionID.String()).
		Str("token_id", t.ID.String()).
		Str("issued_by", userID.String())
	if t.ExpiresAt != nil {
		evt = evt.Time("expires_at", *t.ExpiresAt)
	}
	evt.Msg("share link issued")
	s.observer.Issued()
	return t, nil
}

// List returns the links of prescriptionID for its patient or doctor.
func (s *Service) List(ctx context.Context, prescriptionID, userID uuid.UUID) ([]*ShareToken, error) {
	if err := s.owners.requireParticipant(ctx, prescriptionID, userID); err != nil {
		return nil, err
	}
	tokens, err := s.store.ListByPrescription(ctx, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	return tokens, nil
}

// Resolve serves an unauthenticated share-link request.
func (s *Service) Resolve(ctx context.Context, token string) (*View, error) {
	v, err := s.gate.Resolve(ctx, token)
	switch {
	case err == nil:
		s.observer.Resolved(OutcomeOK)
	case errors.Is(err, ErrInvalidToken):
		s.observer.Resolved(OutcomeInvalid)
	default:
		s.observer.Resolved(OutcomeError)
	}
	return v, err
}

// RevokeAll revokes every link of prescriptionID; patient only.
func (s *Service) RevokeAll(ctx context.Context, prescriptionID, userID uuid.UUID) (int, error) {
	n, err := s.revoker.RevokeAll(ctx, prescriptionID, userID)
	if err == nil {
		s.observer.Revoked(n)
	}
	return n, err
}

// RevokeToken revokes one link by row id; patient only.
func (s *Service) RevokeToken(ctx context.Context, tokenID, userID uuid.UUID) (bool, error) {
	changed, err := s.revoker.Revoke(ctx, tokenID, userID)
	if err == nil && changed {
		s.observer.Revoked(1)
	}
	return changed, err
}
