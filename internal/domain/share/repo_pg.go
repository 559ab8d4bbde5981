package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
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

type tokenStorePG struct{ pool *pgxpool.Pool }

func NewTokenStorePG(pool *pgxpool.Pool) TokenStore {
	return &tokenStorePG{pool: pool}
}

func (r *tokenStorePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const tokenCols = `id, token_hash, token_hint, prescription_id, is_active,
	created_at, expires_at, revoked_at, access_count, last_accessed_at`

func scanToken(row pgx.Row) (*ShareToken, error) {
	var t ShareToken
	err := row.Scan(&t.ID, &t.TokenHash, &t.TokenHint, &t.PrescriptionID, &t.IsActive,
		&t.CreatedAt, &t.ExpiresAt, &t.RevokedAt, &t.AccessCount, &t.LastAccessedAt)
	return &t, err
}

func (r *tokenStorePG) getOne(ctx context.Context, where string, arg interface{}) (*ShareToken, error) {
	t, err := scanToken(r.conn(ctx).QueryRow(ctx, `SELECT `+tokenCols+` FROM share_tokens WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get share token: %w", err)
	}
	return t, nil
}

func (r *tokenStorePG) Get(ctx context.Context, tokenHash string) (*ShareToken, error) {
	return r.getOne(ctx, "token_hash = $1", tokenHash)
}

func (r *tokenStorePG) GetByID(ctx context.Context, id uuid.UUID) (*ShareToken, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *tokenStorePG) Put(ctx context.Context, t *ShareToken) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO share_tokens (id, token_hash, token_hint, prescription_id, is_active,
			created_at, expires_at, access_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		t.ID, t.TokenHash, t.TokenHint, t.PrescriptionID, t.IsActive,
		t.CreatedAt, t.ExpiresAt, t.AccessCount)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return ErrDuplicateToken
		case pgerrcode.ForeignKeyViolation:
			return fmt.Errorf("prescription %s: %w", t.PrescriptionID, ErrNotFound)
		}
	}
	if err != nil {
		return fmt.Errorf("insert share token: %w", err)
	}
	return nil
}

func (r *tokenStorePG) ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*ShareToken, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+tokenCols+` FROM share_tokens WHERE prescription_id = $1 ORDER BY created_at DESC`,
		prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("list share tokens: %w", err)
	}
	defer rows.Close()

	var items []*ShareToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan share token: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate share tokens: %w", err)
	}
	return items, nil
}

func (r *tokenStorePG) RecordAccess(ctx context.Context, tokenHash string, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE share_tokens
		SET access_count = access_count + 1,
			last_accessed_at = GREATEST(COALESCE(last_accessed_at, $2), $2)
		WHERE token_hash = $1`, tokenHash, at)
	if err != nil {
		return fmt.Errorf("record share access: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *tokenStorePG) Deactivate(ctx context.Context, tokenHash string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE share_tokens SET is_active = FALSE, revoked_at = $2
		WHERE token_hash = $1 AND is_active`, tokenHash, at)
	if err != nil {
		return false, fmt.Errorf("deactivate share token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *tokenStorePG) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}
