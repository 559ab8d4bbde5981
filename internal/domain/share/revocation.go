package share

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Revoker deactivates share tokens on behalf of the owning patient.
type Revoker struct {
	store  TokenStore
	owners ownership
	now    func() time.Time
	logger zerolog.Logger
}

func NewRevoker(store TokenStore, prescriptions PrescriptionAccessor, parties PartyAccessor, logger zerolog.Logger) *Revoker {
	return &Revoker{
		store:  store,
		owners: ownership{prescriptions: prescriptions, parties: parties},
		now:    time.Now,
		logger: logger,
	}
}

// RevokeAll deactivates every token of prescriptionID inside one store
// transaction and returns how many went from active to inactive. Calling it
// again returns 0.
func (r *Revoker) RevokeAll(ctx context.Context, prescriptionID, userID uuid.UUID) (int, error) {
	if err := r.owners.requirePatient(ctx, prescriptionID, userID); err != nil {
		return 0, err
	}

	var revoked int
	err := r.store.WithTx(ctx, func(ctx context.Context) error {
		revoked = 0
		tokens, err := r.store.ListByPrescription(ctx, prescriptionID)
		if err != nil {
			return err
		}
		at := r.now().UTC()
		for _, t := range tokens {
			changed, err := r.store.Deactivate(ctx, t.TokenHash, at)
			if err != nil {
				return fmt.Errorf("deactivate token %s: %w", t.ID, err)
			}
			if changed {
				revoked++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("revoke share links: %w", err)
	}

	r.logger.Info().
		Str("prescription_id", prescriptionID.String()).
		Int("revoked_count", revoked).
		Msg("share links revoked")
	return revoked, nil
}

// Revoke deactivates a single token by row id. It reports whether the token
// was active before the call.
func (r *Revoker) Revoke(ctx context.Context, tokenID, userID uuid.UUID) (bool, error) {
	t, err := r.store.GetByID(ctx, tokenID)
	if err != nil {
		return false, err
	}
	if err := r.owners.requirePatient(ctx, t.PrescriptionID, userID); err != nil {
		return false, err
	}

	changed, err := r.store.Deactivate(ctx, t.TokenHash, r.now().UTC())
	if err != nil {
		return false, fmt.Errorf("revoke share link: %w", err)
	}

	r.logger.Info().
		Str("prescription_id", t.PrescriptionID.String()).
		Str("token_id", t.ID.String()).
		Bool("changed", changed).
		Msg("share link revoked")
	return changed, nil
}
