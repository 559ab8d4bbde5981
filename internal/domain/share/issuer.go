package share

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

const (
	// tokenBytes is the entropy drawn per token (256 bits).
	tokenBytes = 32
	// maxIssueAttempts bounds redraws after a duplicate.
	maxIssueAttempts = 5
)

// Issuer mints share tokens and persists them before returning.
type Issuer struct {
	store      TokenStore
	random     io.Reader
	now        func() time.Time
	defaultTTL time.Duration
}

// NewIssuer creates an Issuer drawing from crypto/rand. A defaultTTL of zero
// issues tokens that never expire unless a TTL is passed to Issue.
func NewIssuer(store TokenStore, defaultTTL time.Duration) *Issuer {
	return &Issuer{
		store:      store,
		random:     rand.Reader,
		now:        time.Now,
		defaultTTL: defaultTTL,
	}
}

// Issue creates and stores a new token for prescriptionID. A ttl of zero
// falls back to the issuer's default. The returned record is the only place
// the plaintext token is ever exposed.
func (i *Issuer) Issue(ctx context.Context, prescriptionID uuid.UUID, ttl time.Duration) (*ShareToken, error) {
	if ttl < 0 {
		return nil, fmt.Errorf("ttl must not be negative")
	}
	if ttl == 0 {
		ttl = i.defaultTTL
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		token, err := i.draw()
		if err != nil {
			return nil, err
		}

		now := i.now().UTC()
		t := &ShareToken{
			ID:             uuid.New(),
			TokenHash:      HashToken(token),
			TokenHint:      MaskToken(token),
			PrescriptionID: prescriptionID,
			IsActive:       true,
			CreatedAt:      now,
		}
		if ttl > 0 {
			exp := now.Add(ttl)
			t.ExpiresAt = &exp
		}

		err = i.store.Put(ctx, t)
		if errors.Is(err, ErrDuplicateToken) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store share token: %w", err)
		}

		t.Token = token
		return t, nil
	}

	return nil, ErrCollision
}

func (i *Issuer) draw() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(i.random, buf); err != nil {
		return "", fmt.Errorf("generate share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
