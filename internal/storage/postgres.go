// internal/storage/postgres.go
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"leadcrm/internal/model"
	"leadcrm/internal/query"
)

var (
	// ErrNotFound covers both a missing row and a row owned by another
	// tenant; callers cannot tell the two apart.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEmail is returned when the (user_id, email) uniqueness
	// constraint fires or the pre-check detects it would.
	ErrDuplicateEmail = errors.New("email already in use")
)

type Storage struct {
	DB *sql.DB
}

func NewStorage(dsn string) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	return &Storage{DB: db}, nil
}

// EnsureSchema creates the tables on startup. The unique index on
// (user_id, email) is the authoritative uniqueness guarantee; application
// pre-checks only exist to produce a friendlier error first.
func (s *Storage) EnsureSchema() error {
	_, err := s.DB.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS leads (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			company TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'new',
			score INT NOT NULL DEFAULT 0 CHECK (score BETWEEN 0 AND 100),
			lead_value DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (lead_value >= 0),
			is_qualified BOOLEAN NOT NULL DEFAULT FALSE,
			last_activity_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT leads_user_email_key UNIQUE (user_id, email)
		);
		CREATE TABLE IF NOT EXISTS lead_activities (
			id UUID PRIMARY KEY,
			lead_id UUID NOT NULL,
			user_id UUID NOT NULL,
			kind TEXT NOT NULL,
			at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const leadColumns = `id, user_id, first_name, last_name, email, phone, company, city, state,
	source, status, score, lead_value, is_qualified, last_activity_at, created_at, updated_at`

func scanLead(row interface{ Scan(...any) error }) (model.Lead, error) {
	var l model.Lead
	err := row.Scan(
		&l.ID, &l.UserID, &l.FirstName, &l.LastName, &l.Email, &l.Phone,
		&l.Company, &l.City, &l.State, &l.Source, &l.Status, &l.Score,
		&l.LeadValue, &l.IsQualified, &l.LastActivityAt, &l.CreatedAt, &l.UpdatedAt,
	)
	return l, err
}

// CountLeads runs the count half of a paginated list.
func (s *Storage) CountLeads(p query.Predicate) (int, error) {
	var total int
	err := s.DB.QueryRow(`SELECT COUNT(*) FROM leads `+p.Where(), p.Args()...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return total, nil
}

// SelectLeads runs the row half of a paginated list, newest first. The limit
// and offset values are appended after the predicate's own args, in that
// order.
func (s *Storage) SelectLeads(p query.Predicate, limit, offset int) ([]model.Lead, error) {
	n := p.NextPlaceholder()
	q := fmt.Sprintf(`SELECT %s FROM leads %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		leadColumns, p.Where(), n, n+1)
	args := append(p.Args(), limit, offset)

	rows, err := s.DB.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	leads := []model.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func (s *Storage) CreateLead(l *model.Lead) error {
	err := s.DB.QueryRow(`
		INSERT INTO leads (id, user_id, first_name, last_name, email, phone, company, city, state,
			source, status, score, lead_value, is_qualified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`, l.ID, l.UserID, l.FirstName, l.LastName, l.Email, l.Phone, l.Company, l.City, l.State,
		l.Source, l.Status, l.Score, l.LeadValue, l.IsQualified,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (s *Storage) GetLead(id, userID uuid.UUID) (model.Lead, error) {
	row := s.DB.QueryRow(`SELECT `+leadColumns+` FROM leads WHERE id = $1 AND user_id = $2`, id, userID)
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Lead{}, ErrNotFound
	}
	return l, err
}

func (s *Storage) UpdateLead(l *model.Lead) error {
	err := s.DB.QueryRow(`
		UPDATE leads
		SET first_name = $3, last_name = $4, email = $5, phone = $6, company = $7,
			city = $8, state = $9, source = $10, status = $11, score = $12,
			lead_value = $13, is_qualified = $14, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`, l.ID, l.UserID, l.FirstName, l.LastName, l.Email, l.Phone, l.Company,
		l.City, l.State, l.Source, l.Status, l.Score, l.LeadValue, l.IsQualified,
	).Scan(&l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (s *Storage) DeleteLead(id, userID uuid.UUID) error {
	res, err := s.DB.Exec(`DELETE FROM leads WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// LeadEmailTaken reports whether another lead of the same tenant already uses
// the email. exclude skips one lead id so updates don't collide with
// themselves; pass uuid.Nil for creates.
func (s *Storage) LeadEmailTaken(userID uuid.UUID, email string, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM leads WHERE user_id = $1 AND email = $2 AND id <> $3
		)`, userID, email, exclude).Scan(&exists)
	return exists, err
}

func (s *Storage) CreateUser(u *model.User) error {
	err := s.DB.QueryRow(`
		INSERT INTO users (id, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, u.ID, u.Email, u.PasswordHash).Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (s *Storage) GetUserByEmail(email string) (model.User, error) {
	var u model.User
	err := s.DB.QueryRow(`
		SELECT id, email, password_hash, created_at FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// ListUserIDs returns every registered user, used at boot to recover the
// per-tenant activity consumers.
func (s *Storage) ListUserIDs() ([]uuid.UUID, error) {
	rows, err := s.DB.Query(`SELECT id FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteUser removes the account plus everything it owns. The leads FK has no
// cascade, so the dependents go first, all in one transaction.
func (s *Storage) DeleteUser(id uuid.UUID) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM lead_activities WHERE user_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM leads WHERE user_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *Storage) InsertActivity(a *model.Activity) error {
	_, err := s.DB.Exec(`
		INSERT INTO lead_activities (id, lead_id, user_id, kind, at)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.LeadID, a.UserID, a.Kind, a.At)
	return err
}

// TouchLastActivity refreshes leads.last_activity_at; a missing lead (e.g.
// deleted before the event drained) is not an error.
func (s *Storage) TouchLastActivity(leadID, userID uuid.UUID, at time.Time) error {
	_, err := s.DB.Exec(`
		UPDATE leads SET last_activity_at = $3 WHERE id = $1 AND user_id = $2
	`, leadID, userID, at)
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
