package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carevault/carevault/internal/platform/db"
)

type queryable interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
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

func (r *repoPG) GetParties(ctx context.Context, appointmentID uuid.UUID) (*Parties, error) {
	var p Parties
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT a.id, d.id, d.full_name, pt.id, pt.email
		FROM appointments a
		JOIN users d  ON d.id = a.doctor_id
		JOIN users pt ON pt.id = a.patient_id
		WHERE a.id = $1`, appointmentID).
		Scan(&p.AppointmentID, &p.DoctorID, &p.DoctorName, &p.PatientID, &p.PatientEmail)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment parties: %w", err)
	}
	return &p, nil
}
