package share

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/carevault/carevault/internal/domain/prescription"
)

var (
	// ErrNotFound is returned when a prescription, appointment or share
	// link row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidToken covers unknown, revoked and expired share tokens alike.
	ErrInvalidToken = errors.New("share link is invalid or has expired")
	// ErrAccessDenied is returned when the caller does not own the resource.
	ErrAccessDenied = errors.New("access denied")
	// ErrDuplicateToken is returned by TokenStore.Put when the token is already stored.
	ErrDuplicateToken = errors.New("duplicate share token")
	// ErrCollision is returned when every issuance attempt hit a duplicate.
	ErrCollision = errors.New("share token collision")
)

// ShareToken maps to the share_tokens table. Token holds the plaintext value
// and is only populated on the value returned by Issuer.Issue; the store
// keeps TokenHash.
type ShareToken struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	Token          string     `db:"-" json:"-"`
	TokenHash      string     `db:"token_hash" json:"-"`
	TokenHint      string     `db:"token_hint" json:"token_hint"`
	PrescriptionID uuid.UUID  `db:"prescription_id" json:"prescription_id"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt      *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	RevokedAt      *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	AccessCount    int64      `db:"access_count" json:"access_count"`
	LastAccessedAt *time.Time `db:"last_accessed_at" json:"last_accessed_at,omitempty"`
}

// Usable reports whether the token grants access at now. Expiry is never
// written back; it is only compared here.
func (t *ShareToken) Usable(now time.Time) bool {
	return t.IsActive && (t.ExpiresAt == nil || now.Before(*t.ExpiresAt))
}

// State is the owner-facing label: active, revoked or expired.
func (t *ShareToken) State(now time.Time) string {
	switch {
	case !t.IsActive:
		return "revoked"
	case !t.Usable(now):
		return "expired"
	default:
		return "active"
	}
}

// View is the projection of a prescription served to unauthenticated
// share-link holders. It carries no internal identifiers and no patient
// contact details.
type View struct {
	TokenHint    string                     `json:"token_hint"`
	DoctorName   string                     `json:"doctor_name"`
	Status       prescription.Status        `json:"status"`
	Medications  []prescription.Medication  `json:"medications"`
	AISummary    *string                    `json:"ai_summary,omitempty"`
	Interactions *prescription.Interactions `json:"interactions,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
	ExpiresAt    *time.Time                 `json:"expires_at,omitempty"`
}

// HashToken returns the store key for a plaintext token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

const hintChars = 4

// MaskToken keeps the first and last few characters of a token for human
// verification. Short inputs are fully masked.
func MaskToken(token string) string {
	if len(token) <= 3*hintChars {
		return "…"
	}
	return token[:hintChars] + "…" + token[len(token)-hintChars:]
}
