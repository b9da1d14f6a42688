package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"entrypass/internal/checkin/models"
	"entrypass/internal/platform/postgres"
	"entrypass/pkg/domain"
)

// PostgresStore persists check-ins in checkin_logs. The
// checkin_logs_registration_day_key constraint admits one entry per day.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, entry *models.Entry) (bool, error) {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO checkin_logs (id, registration_id, code, staff_id, visit_date, device, created_at)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7)
		ON CONFLICT (registration_id, visit_date) DO NOTHING
	`,
		uuid.UUID(entry.ID), uuid.UUID(entry.RegistrationID), entry.Code, uuid.UUID(entry.StaffID),
		entry.VisitDate, entry.Device, entry.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert check-in: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check-in rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) ListByRegistration(ctx context.Context, id domain.RegistrationID) ([]*models.Entry, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT id, registration_id, code, staff_id, visit_date, device, created_at
		FROM checkin_logs
		WHERE registration_id = $1
		ORDER BY visit_date DESC, created_at DESC
	`, uuid.UUID(id))
	if err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}
	defer rows.Close()

	var out []*models.Entry
	for rows.Next() {
		var (
			e                       models.Entry
			entryID, regID, staffID uuid.UUID
			visitDate               time.Time
		)
		if err := rows.Scan(&entryID, &regID, &e.Code, &staffID, &visitDate, &e.Device, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan check-in: %w", err)
		}
		e.ID = domain.CheckInID(entryID)
		e.RegistrationID = domain.RegistrationID(regID)
		e.StaffID = domain.UserID(staffID)
		e.VisitDate = visitDate.Format(models.DateLayout)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate check-ins: %w", err)
	}
	return out, nil
}
