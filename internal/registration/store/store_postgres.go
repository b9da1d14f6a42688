package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"entrypass/internal/platform/postgres"
	"entrypass/internal/registration/models"
	"entrypass/pkg/domain"
	"entrypass/pkg/platform/sentinel"
)

// PostgresStore persists registrations, rosters and fee settings. Uniqueness
// of codes is the registrations_code_key constraint, not the pre-check.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const registrationColumns = `id, code, owner_id, group_size, per_person_fee, total_fee,
	payment_method, payment_status, COALESCE(credential_ref, ''), created_at, paid_at`

func (s *PostgresStore) Exists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM registrations WHERE code = $1)`, code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return exists, nil
}

// Insert writes the registration and its roster. A taken code reports
// ErrAlreadyUsed without aborting the surrounding transaction.
func (s *PostgresStore) Insert(ctx context.Context, reg *models.Registration, members []models.Member) error {
	conn := postgres.Conn(ctx, s.db)
	res, err := conn.ExecContext(ctx, `
		INSERT INTO registrations (id, code, owner_id, group_size, per_person_fee, total_fee,
			payment_method, payment_status, credential_ref, created_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11)
		ON CONFLICT (code) DO NOTHING
	`,
		uuid.UUID(reg.ID), reg.Code, uuid.UUID(reg.OwnerID), reg.GroupSize,
		int64(reg.PerPersonFee), int64(reg.TotalFee),
		string(reg.PaymentMethod), string(reg.PaymentStatus), reg.CredentialRef,
		reg.CreatedAt, reg.PaidAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("registration %s: %w", reg.ID, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("code %s: %w", reg.Code, sentinel.ErrAlreadyUsed)
	}
	return s.insertMembers(ctx, conn, reg.ID, members)
}

func (s *PostgresStore) insertMembers(ctx context.Context, conn postgres.DBTX, regID domain.RegistrationID, members []models.Member) error {
	if len(members) == 0 {
		return nil
	}
	var (
		ids            = make([]string, len(members))
		positions      = make([]int64, len(members))
		names          = make([]string, len(members))
		ages           = make([]int64, len(members))
		sexes          = make([]string, len(members))
		foreign        = make([]bool, len(members))
		municipalities = make([]string, len(members))
		provinces      = make([]string, len(members))
		countries      = make([]string, len(members))
	)
	for i, m := range members {
		memberID := m.ID
		if memberID == uuid.Nil {
			memberID = uuid.New()
		}
		ids[i] = memberID.String()
		positions[i] = int64(i)
		names[i] = m.Name
		ages[i] = int64(m.Age)
		sexes[i] = string(m.Sex)
		foreign[i] = m.IsForeign
		municipalities[i] = m.Municipality
		provinces[i] = m.Province
		countries[i] = m.Country
	}
	_, err := conn.ExecContext(ctx, `
		INSERT INTO group_members (id, registration_id, position, name, age, sex, is_foreign, municipality, province, country)
		SELECT m.id::uuid, $1, m.position, m.name, m.age, m.sex, m.is_foreign, m.municipality, m.province, m.country
		FROM unnest($2::text[], $3::int[], $4::text[], $5::int[], $6::text[], $7::bool[], $8::text[], $9::text[], $10::text[])
			AS m(id, position, name, age, sex, is_foreign, municipality, province, country)
	`,
		uuid.UUID(regID),
		pq.Array(ids), pq.Array(positions), pq.Array(names), pq.Array(ages), pq.Array(sexes),
		pq.Array(foreign), pq.Array(municipalities), pq.Array(provinces), pq.Array(countries),
	)
	if err != nil {
		return fmt.Errorf("insert members: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*models.Registration, error) {
	var (
		reg       models.Registration
		id, owner uuid.UUID
		perPerson int64
		total     int64
		method    string
		status    string
		paidAt    sql.NullTime
	)
	if err := row.Scan(&id, &reg.Code, &owner, &reg.GroupSize, &perPerson, &total,
		&method, &status, &reg.CredentialRef, &reg.CreatedAt, &paidAt); err != nil {
		return nil, err
	}
	reg.ID = domain.RegistrationID(id)
	reg.OwnerID = domain.UserID(owner)
	reg.PerPersonFee = models.Amount(perPerson)
	reg.TotalFee = models.Amount(total)
	reg.PaymentMethod = models.PaymentMethod(method)
	reg.PaymentStatus = models.PaymentStatus(status)
	if paidAt.Valid {
		t := paidAt.Time
		reg.PaidAt = &t
	}
	return &reg, nil
}

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*models.Registration, error) {
	reg, err := scanRegistration(postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("registration %s: %w", code, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return reg, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner domain.UserID) ([]*models.Registration, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE owner_id = $1 ORDER BY created_at DESC`,
		uuid.UUID(owner))
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var out []*models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Members(ctx context.Context, id domain.RegistrationID) ([]models.Member, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT id, name, age, sex, is_foreign, municipality, province, country
		FROM group_members WHERE registration_id = $1 ORDER BY position
	`, uuid.UUID(id))
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []models.Member
	for rows.Next() {
		var (
			m   models.Member
			sex string
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Age, &sex, &m.IsForeign, &m.Municipality, &m.Province, &m.Country); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Sex = models.Sex(sex)
		m.RegistrationID = id
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("registration %s: %w", id, sentinel.ErrNotFound)
	}
	return out, nil
}

// TransitionPaymentStatus is the conditional write both reconciliation
// writers and the cash desk go through. It reports whether this call moved
// the status.
func (s *PostgresStore) TransitionPaymentStatus(ctx context.Context, id domain.RegistrationID, from, to models.PaymentStatus, at time.Time) (bool, error) {
	var paidAt *time.Time
	if to == models.StatusPaid {
		paidAt = &at
	}
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE registrations
		SET payment_status = $3, paid_at = COALESCE($4, paid_at)
		WHERE id = $1 AND payment_status = $2
	`, uuid.UUID(id), string(from), string(to), paidAt)
	if err != nil {
		return false, fmt.Errorf("transition payment status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition payment status: %w", err)
	}
	return rows == 1, nil
}

func (s *PostgresStore) SetCredentialRefIfEmpty(ctx context.Context, id domain.RegistrationID, ref string) (string, error) {
	var stored string
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx, `
		UPDATE registrations
		SET credential_ref = COALESCE(credential_ref, $2)
		WHERE id = $1
		RETURNING credential_ref
	`, uuid.UUID(id), ref).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("registration %s: %w", id, sentinel.ErrNotFound)
		}
		return "", fmt.Errorf("set credential ref: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) InsertFeeSetting(ctx context.Context, setting *models.FeeSetting) error {
	var updatedBy *uuid.UUID
	if !setting.UpdatedBy.IsNil() {
		u := uuid.UUID(setting.UpdatedBy)
		updatedBy = &u
	}
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO fee_settings (id, amount_per_person, enabled, enabled_at, updated_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, setting.ID, int64(setting.AmountPerPerson), setting.Enabled, setting.EnabledAt, updatedBy, setting.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert fee setting: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestFeeSetting(ctx context.Context) (*models.FeeSetting, error) {
	var (
		setting   models.FeeSetting
		amount    int64
		updatedBy uuid.NullUUID
	)
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, amount_per_person, enabled, enabled_at, updated_by, created_at
		FROM fee_settings
		ORDER BY enabled_at DESC, created_at DESC
		LIMIT 1
	`).Scan(&setting.ID, &amount, &setting.Enabled, &setting.EnabledAt, &updatedBy, &setting.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("fee setting: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("latest fee setting: %w", err)
	}
	setting.AmountPerPerson = models.Amount(amount)
	if updatedBy.Valid {
		setting.UpdatedBy = domain.UserID(updatedBy.UUID)
	}
	return &setting, nil
}
