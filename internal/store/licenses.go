package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// License is the sole persisted entity.
type License struct {
	Key            uuid.UUID
	ClientName     string
	ExpirationDate time.Time
	IsActive       bool
	HWID           *string
	Notes          *string
	CreatedAt      time.Time
}

// StatusFilter selects a lifecycle slice of the license population.
type StatusFilter string

const (
	StatusAll     StatusFilter = "all"
	StatusActive  StatusFilter = "active"
	StatusExpired StatusFilter = "expired"
	StatusRevoked StatusFilter = "revoked"
)

// Filter narrows List results. Today is required for the active/expired
// filters; Search matches client name or key substring.
type Filter struct {
	Status StatusFilter
	Search string
	Today  time.Time
}

// Stats summarizes the license population as of a given date.
type Stats struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Expired      int `json:"expired"`
	Revoked      int `json:"revoked"`
	ExpiringSoon int `json:"expiring_soon"`
}

// Licenses provides access to the licenses table. Reads go through the
// restricted pool, mutations through the elevated one.
type Licenses struct {
	read  DBTX
	write DBTX
}

// NewLicenses builds a Licenses store over the two handles.
func NewLicenses(read, write DBTX) *Licenses {
	return &Licenses{read: read, write: write}
}

const licenseColumns = `license_key, client_name, expiration_date, is_active, hwid, notes, created_at`

func scanLicense(row *sql.Row) (*License, error) {
	var l License
	err := row.Scan(&l.Key, &l.ClientName, &l.ExpirationDate, &l.IsActive, &l.HWID, &l.Notes, &l.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	l.ExpirationDate = DateOnly(l.ExpirationDate)
	return &l, nil
}

// Insert persists a new license. The caller supplies the key and expiration;
// created_at is server-assigned.
func (s *Licenses) Insert(ctx context.Context, l *License) error {
	query := `
		INSERT INTO licenses (license_key, client_name, expiration_date, is_active, hwid, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	return s.write.QueryRowContext(ctx, query,
		l.Key, l.ClientName, l.ExpirationDate, l.IsActive, l.HWID, l.Notes,
	).Scan(&l.CreatedAt)
}

// GetByKey retrieves a license by its key.
func (s *Licenses) GetByKey(ctx context.Context, key uuid.UUID) (*License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE license_key = $1`
	return scanLicense(s.read.QueryRowContext(ctx, query, key))
}

// GetByHWID retrieves the license bound to the given fingerprint. When
// several licenses are bound to the same machine (the schema permits it)
// the newest wins.
func (s *Licenses) GetByHWID(ctx context.Context, hwid string) (*License, error) {
	query := `
		SELECT ` + licenseColumns + `
		FROM licenses
		WHERE hwid = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanLicense(s.read.QueryRowContext(ctx, query, hwid))
}

// BindHWID binds the fingerprint to the license as a single conditional
// update. The WHERE clause is the one-device invariant: the write succeeds
// only when the license is unbound or already bound to this fingerprint, so
// concurrent activations with different fingerprints cannot both win.
func (s *Licenses) BindHWID(ctx context.Context, key uuid.UUID, hwid string) (bool, error) {
	query := `
		UPDATE licenses
		SET hwid = $2
		WHERE license_key = $1 AND (hwid IS NULL OR hwid = $2)
	`
	res, err := s.write.ExecContext(ctx, query, key, hwid)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// SetActive flips the revocation flag and reports how many rows matched.
func (s *Licenses) SetActive(ctx context.Context, key uuid.UUID, active bool) (int64, error) {
	res, err := s.write.ExecContext(ctx,
		`UPDATE licenses SET is_active = $2 WHERE license_key = $1`, key, active)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Extend pushes the expiration forward by the given number of days. An
// already expired license restarts from today instead of stacking on the
// past date.
func (s *Licenses) Extend(ctx context.Context, key uuid.UUID, today time.Time, days int) (time.Time, error) {
	query := `
		UPDATE licenses
		SET expiration_date = CASE
			WHEN expiration_date < $2::date THEN $2::date + $3::int
			ELSE expiration_date + $3::int
		END
		WHERE license_key = $1
		RETURNING expiration_date
	`
	var newExpiration time.Time
	err := s.write.QueryRowContext(ctx, query, key, DateOnly(today), days).Scan(&newExpiration)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}
	return DateOnly(newExpiration), nil
}

// Unbind clears the fingerprint unconditionally.
func (s *Licenses) Unbind(ctx context.Context, key uuid.UUID) (int64, error) {
	res, err := s.write.ExecContext(ctx,
		`UPDATE licenses SET hwid = NULL WHERE license_key = $1`, key)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Reset reactivates and unbinds in one atomic update, granting graceDays
// from today only when the license is already expired.
func (s *Licenses) Reset(ctx context.Context, key uuid.UUID, today time.Time, graceDays int) (int64, error) {
	query := `
		UPDATE licenses
		SET is_active = TRUE,
		    hwid = NULL,
		    expiration_date = CASE
				WHEN expiration_date < $2::date THEN $2::date + $3::int
				ELSE expiration_date
			END
		WHERE license_key = $1
	`
	res, err := s.write.ExecContext(ctx, query, key, DateOnly(today), graceDays)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete permanently removes the record. No undo.
func (s *Licenses) Delete(ctx context.Context, key uuid.UUID) (int64, error) {
	res, err := s.write.ExecContext(ctx,
		`DELETE FROM licenses WHERE license_key = $1`, key)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// List returns licenses newest-first, narrowed by the filter.
func (s *Licenses) List(ctx context.Context, f Filter) ([]License, error) {
	var (
		conds []string
		args  []any
	)

	switch f.Status {
	case StatusActive:
		args = append(args, DateOnly(f.Today))
		conds = append(conds, fmt.Sprintf("is_active AND expiration_date >= $%d::date", len(args)))
	case StatusExpired:
		args = append(args, DateOnly(f.Today))
		conds = append(conds, fmt.Sprintf("expiration_date < $%d::date", len(args)))
	case StatusRevoked:
		conds = append(conds, "NOT is_active")
	}

	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conds = append(conds, fmt.Sprintf("(client_name ILIKE $%d OR license_key::text ILIKE $%d)", len(args), len(args)))
	}

	query := `SELECT ` + licenseColumns + ` FROM licenses`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var licenses []License
	for rows.Next() {
		var l License
		if err := rows.Scan(&l.Key, &l.ClientName, &l.ExpirationDate, &l.IsActive, &l.HWID, &l.Notes, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.ExpirationDate = DateOnly(l.ExpirationDate)
		licenses = append(licenses, l)
	}
	return licenses, rows.Err()
}

// CountStats aggregates the population as of today.
func (s *Licenses) CountStats(ctx context.Context, today time.Time) (*Stats, error) {
	query := `
		SELECT
			count(*),
			count(*) FILTER (WHERE is_active AND expiration_date >= $1::date),
			count(*) FILTER (WHERE expiration_date < $1::date),
			count(*) FILTER (WHERE NOT is_active),
			count(*) FILTER (WHERE is_active AND expiration_date >= $1::date AND expiration_date <= $1::date + 30)
		FROM licenses
	`
	var st Stats
	err := s.read.QueryRowContext(ctx, query, DateOnly(today)).Scan(
		&st.Total, &st.Active, &st.Expired, &st.Revoked, &st.ExpiringSoon,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ServerDate reads the authoritative calendar date from the database.
func (s *Licenses) ServerDate(ctx context.Context) (time.Time, error) {
	var d time.Time
	if err := s.read.QueryRowContext(ctx, `SELECT CURRENT_DATE`).Scan(&d); err != nil {
		return time.Time{}, err
	}
	return DateOnly(d), nil
}

// NewestCreatedAt returns the creation timestamp of the most recent record,
// used as a degraded time source when the date query is unavailable.
func (s *Licenses) NewestCreatedAt(ctx context.Context) (time.Time, error) {
	var ts time.Time
	err := s.read.QueryRowContext(ctx,
		`SELECT created_at FROM licenses ORDER BY created_at DESC LIMIT 1`).Scan(&ts)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}
	return ts, nil
}
