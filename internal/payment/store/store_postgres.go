package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"entrypass/internal/payment/models"
	"entrypass/internal/platform/postgres"
	regmodels "entrypass/internal/registration/models"
	"entrypass/pkg/domain"
	"entrypass/pkg/platform/sentinel"
)

// PostgresStore persists payment records. One row per checkout reference.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, registration_id, code, checkout_ref, checkout_url, provider_status,
	amount, last_source, created_at, updated_at`

func (s *PostgresStore) Upsert(ctx context.Context, rec *models.Record) (*models.Record, error) {
	stored, err := scanRecord(postgres.Conn(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO payment_records (id, registration_id, code, checkout_ref, checkout_url,
			provider_status, amount, last_source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (checkout_ref) DO UPDATE SET
			provider_status = CASE WHEN payment_records.provider_status = 'paid' THEN 'paid' ELSE EXCLUDED.provider_status END,
			last_source     = CASE WHEN payment_records.provider_status = 'paid' AND EXCLUDED.provider_status <> 'paid'
				THEN payment_records.last_source ELSE EXCLUDED.last_source END,
			updated_at      = EXCLUDED.updated_at,
			amount          = CASE WHEN EXCLUDED.amount <> 0 THEN EXCLUDED.amount ELSE payment_records.amount END,
			checkout_url    = CASE WHEN EXCLUDED.checkout_url <> '' THEN EXCLUDED.checkout_url ELSE payment_records.checkout_url END
		RETURNING `+recordColumns,
		uuid.UUID(rec.ID), uuid.UUID(rec.RegistrationID), rec.Code, rec.CheckoutRef, rec.CheckoutURL,
		string(rec.ProviderStatus), int64(rec.Amount), string(rec.LastSource), rec.CreatedAt, rec.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert payment record: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) LatestByCode(ctx context.Context, code string) (*models.Record, error) {
	rec, err := scanRecord(postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM payment_records WHERE code = $1 ORDER BY created_at DESC LIMIT 1`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payment for %s: %w", code, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("latest payment record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListByCode(ctx context.Context, code string) ([]*models.Record, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+recordColumns+` FROM payment_records WHERE code = $1 ORDER BY created_at DESC`, code)
	if err != nil {
		return nil, fmt.Errorf("list payment records: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment records: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		rec    models.Record
		id     uuid.UUID
		regID  uuid.UUID
		status string
		amount int64
		source string
	)
	if err := row.Scan(&id, &regID, &rec.Code, &rec.CheckoutRef, &rec.CheckoutURL, &status,
		&amount, &source, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.ID = domain.PaymentID(id)
	rec.RegistrationID = domain.RegistrationID(regID)
	rec.ProviderStatus = models.ProviderStatus(status)
	rec.Amount = regmodels.Amount(amount)
	rec.LastSource = models.Source(source)
	return &rec, nil
}
