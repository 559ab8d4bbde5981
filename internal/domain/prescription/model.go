package prescription

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the prescription lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusFinalized Status = "finalized"
	StatusDispensed Status = "dispensed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusFinalized, StatusDispensed, StatusCancelled:
		return true
	}
	return false
}

// Prescription maps to the prescriptions table. This service only reads it.
type Prescription struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	AppointmentID  uuid.UUID     `db:"appointment_id" json:"appointment_id"`
	Medications    []Medication  `db:"medications" json:"medications"`
	AISummary      *string       `db:"ai_summary" json:"ai_summary,omitempty"`
	AIInteractions *Interactions `db:"ai_interactions" json:"ai_interactions,omitempty"`
	Status         Status        `db:"status" json:"status"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
	FinalizedAt    *time.Time    `db:"finalized_at" json:"finalized_at,omitempty"`
}

// Medication is one entry of a prescription's medication list.
type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
}

// InteractionIssue is a single finding of the drug-interaction check.
type InteractionIssue struct {
	Drugs       []string `json:"drugs,omitempty"`
	Severity    string   `json:"severity,omitempty"`
	Description string   `json:"description"`
}

// Interactions is the stored result of the drug-interaction check.
type Interactions struct {
	Summary string             `json:"summary"`
	Issues  []InteractionIssue `json:"issues"`
}

// UnmarshalJSON accepts the object form, an object that was stored as a
// JSON-encoded string, and the older "interactions" key for the issue list.
// Any other stored string, malformed objects included, becomes the summary.
// Null and empty inputs decode to the zero value.
func (in *Interactions) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*in = Interactions{}
		return nil
	}

	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return fmt.Errorf("interactions: %w", err)
		}
		trimmed := bytes.TrimSpace([]byte(inner))
		if len(trimmed) > 0 && trimmed[0] == '{' {
			if err := in.UnmarshalJSON(trimmed); err == nil {
				return nil
			}
		}
		*in = Interactions{Summary: inner, Issues: []InteractionIssue{}}
		return nil
	}

	var raw struct {
		Summary      string             `json:"summary"`
		Issues       []InteractionIssue `json:"issues"`
		Interactions []InteractionIssue `json:"interactions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("interactions: %w", err)
	}

	in.Summary = raw.Summary
	in.Issues = raw.Issues
	if len(in.Issues) == 0 {
		in.Issues = raw.Interactions
	}
	if in.Issues == nil {
		in.Issues = []InteractionIssue{}
	}
	return nil
}

// DecodeMedications parses the medications column. Anything that is not a
// JSON array decodes to an empty list.
func DecodeMedications(data []byte) ([]Medication, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return []Medication{}, nil
	}
	var meds []Medication
	if err := json.Unmarshal(data, &meds); err != nil {
		return nil, fmt.Errorf("medications: %w", err)
	}
	return meds, nil
}

// DecodeInteractions parses the nullable ai_interactions column.
func DecodeInteractions(data []byte) (*Interactions, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, nil
	}
	var in Interactions
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	return &in, nil
}
