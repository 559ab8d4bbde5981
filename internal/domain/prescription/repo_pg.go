package prescription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carevault/carevault/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const prescriptionCols = `id, appointment_id, medications, ai_summary, ai_interactions,
	status, created_at, updated_at, finalized_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var (
		p            Prescription
		meds         []byte
		interactions []byte
	)
	if err := row.Scan(&p.ID, &p.AppointmentID, &meds, &p.AISummary, &interactions,
		&p.Status, &p.CreatedAt, &p.UpdatedAt, &p.FinalizedAt); err != nil {
		return nil, err
	}

	var err error
	if p.Medications, err = DecodeMedications(meds); err != nil {
		return nil, fmt.Errorf("prescription %s: %w", p.ID, err)
	}
	if p.AIInteractions, err = DecodeInteractions(interactions); err != nil {
		return nil, fmt.Errorf("prescription %s: %w", p.ID, err)
	}
	return &p, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+` FROM prescriptions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get prescription: %w", err)
	}
	return p, nil
}
