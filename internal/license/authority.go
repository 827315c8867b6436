package license

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"keygate/internal/store"
)

// DaysPerMonth is the fixed month length used for all duration arithmetic.
// Not calendar-accurate, and must stay that way: previously issued
// expirations were computed with the same approximation.
const DaysPerMonth = 30

// resetGraceDays is the expiration granted by Reset when the license is
// already expired.
const resetGraceDays = 30

// Store is the persistence surface the authority operates on. Implemented
// by *store.Licenses.
type Store interface {
	Insert(ctx context.Context, l *store.License) error
	GetByKey(ctx context.Context, key uuid.UUID) (*store.License, error)
	GetByHWID(ctx context.Context, hwid string) (*store.License, error)
	BindHWID(ctx context.Context, key uuid.UUID, hwid string) (bool, error)
	SetActive(ctx context.Context, key uuid.UUID, active bool) (int64, error)
	Extend(ctx context.Context, key uuid.UUID, today time.Time, days int) (time.Time, error)
	Unbind(ctx context.Context, key uuid.UUID) (int64, error)
	Reset(ctx context.Context, key uuid.UUID, today time.Time, graceDays int) (int64, error)
	Delete(ctx context.Context, key uuid.UUID) (int64, error)
	List(ctx context.Context, f store.Filter) ([]store.License, error)
	CountStats(ctx context.Context, today time.Time) (*store.Stats, error)
}

// ActivationResult is the successful outcome of Activate.
type ActivationResult struct {
	ClientName   string
	AlreadyBound bool // same fingerprint re-activating; nothing changed
}

// VerificationResult is the successful outcome of Verify.
type VerificationResult struct {
	ClientName     string
	DaysRemaining  int
	ExpirationDate time.Time
}

// Authority owns all license state transitions. It is stateless between
// requests: every decision is made against the store and the authoritative
// clock, never against in-process state.
type Authority struct {
	store  Store
	clock  *Clock
	logger *slog.Logger
	tracer trace.Tracer
}

// NewAuthority builds an Authority over the given store and clock.
func NewAuthority(s Store, clock *Clock, logger *slog.Logger) *Authority {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authority{
		store:  s,
		clock:  clock,
		logger: logger.With(slog.String("component", "license_authority")),
		tracer: otel.Tracer("keygate/license"),
	}
}

// Create mints a new license expiring durationMonths fixed 30-day months
// from today. Not retry-safe: every call mints a fresh key.
func (a *Authority) Create(ctx context.Context, clientName string, durationMonths int, notes string) (*store.License, error) {
	ctx, span := a.tracer.Start(ctx, "license.create",
		trace.WithAttributes(attribute.Int("duration_months", durationMonths)))
	defer span.End()

	today, err := a.clock.Today(ctx)
	if err != nil {
		return nil, err
	}

	lic := &store.License{
		Key:            uuid.New(),
		ClientName:     clientName,
		ExpirationDate: today.AddDate(0, 0, DaysPerMonth*durationMonths),
		IsActive:       true,
	}
	if notes != "" {
		lic.Notes = &notes
	}

	if err := a.store.Insert(ctx, lic); err != nil {
		return nil, StoreError("create license", err)
	}

	a.logger.InfoContext(ctx, "license created",
		slog.String("license_key", lic.Key.String()),
		slog.String("client_name", clientName),
		slog.Time("expiration_date", lic.ExpirationDate),
	)
	return lic, nil
}

// Activate binds the license to the given machine fingerprint. The same
// fingerprint re-activating succeeds as a no-op; any other fingerprint
// fails once the license is bound. The bind is a conditional write at the
// store, so the one-device invariant holds under concurrent attempts.
func (a *Authority) Activate(ctx context.Context, rawKey, fingerprint string) (*ActivationResult, error) {
	ctx, span := a.tracer.Start(ctx, "license.activate")
	defer span.End()

	key, err := uuid.Parse(rawKey)
	if err != nil {
		return nil, NewError(KindInvalidKeyFormat, "invalid license key format, expected a UUID")
	}

	lic, err := a.store.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewError(KindNotFound, "license key not found")
		}
		return nil, StoreError("activate license", err)
	}

	if lic.HWID != nil {
		if *lic.HWID == fingerprint {
			a.logger.InfoContext(ctx, "license already active on this machine",
				slog.String("license_key", key.String()))
			return &ActivationResult{ClientName: lic.ClientName, AlreadyBound: true}, nil
		}
		return nil, NewError(KindAlreadyBound,
			"license key is already activated on another machine, each license can be used on one device only")
	}

	if !lic.IsActive {
		return nil, NewError(KindRevoked, "license key has been revoked")
	}

	today, err := a.clock.Today(ctx)
	if err != nil {
		return nil, err
	}
	if lic.ExpirationDate.Before(today) {
		return nil, NewError(KindExpired, "license key has already expired")
	}

	bound, err := a.store.BindHWID(ctx, key, fingerprint)
	if err != nil {
		return nil, StoreError("activate license", err)
	}
	if !bound {
		// Lost the race: another fingerprint bound between our read and the
		// conditional write.
		return nil, NewError(KindAlreadyBound,
			"license key is already activated on another machine, each license can be used on one device only")
	}

	span.SetAttributes(attribute.Bool("license.bound", true))
	a.logger.InfoContext(ctx, "license activated",
		slog.String("license_key", key.String()),
		slog.String("client_name", lic.ClientName),
		slog.String("fingerprint", fingerprint),
	)
	return &ActivationResult{ClientName: lic.ClientName}, nil
}

// Verify checks whether the machine with the given fingerprint holds a
// usable license. Store failures fail closed: no answer means no license.
func (a *Authority) Verify(ctx context.Context, fingerprint string) (*VerificationResult, error) {
	ctx, span := a.tracer.Start(ctx, "license.verify")
	defer span.End()

	lic, err := a.store.GetByHWID(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewError(KindNotFound, "no license found for this machine, activation required")
		}
		return nil, StoreError("verify license", err)
	}

	if !lic.IsActive {
		return nil, NewError(KindRevoked, "license has been revoked")
	}

	today, err := a.clock.Today(ctx)
	if err != nil {
		return nil, err
	}

	if lic.ExpirationDate.Before(today) {
		elapsed := daysBetween(lic.ExpirationDate, today)
		a.logger.WarnContext(ctx, "verification denied, license expired",
			slog.String("license_key", lic.Key.String()),
			slog.Int("days_expired", elapsed),
		)
		return nil, NewError(KindExpired, "license expired %d day(s) ago", elapsed)
	}

	remaining := daysBetween(today, lic.ExpirationDate)
	span.SetAttributes(attribute.Int("license.days_remaining", remaining))
	return &VerificationResult{
		ClientName:     lic.ClientName,
		DaysRemaining:  remaining,
		ExpirationDate: lic.ExpirationDate,
	}, nil
}

// Revoke deactivates the license. Zero matched rows is ambiguous between a
// missing record and one already revoked; the ambiguity is preserved in the
// error kind.
func (a *Authority) Revoke(ctx context.Context, rawKey string) error {
	return a.setActive(ctx, rawKey, false, "revoke")
}

// Reactivate re-enables a revoked license. Symmetric to Revoke.
func (a *Authority) Reactivate(ctx context.Context, rawKey string) error {
	return a.setActive(ctx, rawKey, true, "reactivate")
}

func (a *Authority) setActive(ctx context.Context, rawKey string, active bool, op string) error {
	ctx, span := a.tracer.Start(ctx, "license."+op)
	defer span.End()

	key, err := uuid.Parse(rawKey)
	if err != nil {
		return NewError(KindInvalidKeyFormat, "invalid license key format, expected a UUID")
	}

	rows, err := a.store.SetActive(ctx, key, active)
	if err != nil {
		return StoreError(op+" license", err)
	}
	if rows == 0 {
		return NewError(KindNotFoundOrRevoked, "license not found or already in the requested state")
	}

	a.logger.InfoContext(ctx, "license "+op+"d", slog.String("license_key", key.String()))
	return nil
}

// Extend pushes the expiration forward by additionalMonths fixed 30-day
// months. An expired license restarts from today rather than stacking on
// the past date. Not retry-safe: each application is additive.
func (a *Authority) Extend(ctx context.Context, rawKey string, additionalMonths int) (time.Time, error) {
	ctx, span := a.tracer.Start(ctx, "license.extend",
		trace.WithAttributes(attribute.Int("additional_months", additionalMonths)))
	defer span.End()

	key, err := uuid.Parse(rawKey)
	if err != nil {
		return time.Time{}, NewError(KindInvalidKeyFormat, "invalid license key format, expected a UUID")
	}

	today, err := a.clock.Today(ctx)
	if err != nil {
		return time.Time{}, err
	}

	newExpiration, err := a.store.Extend(ctx, key, today, DaysPerMonth*additionalMonths)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return time.Time{}, NewError(KindNotFound, "license key not found")
		}
		return time.Time{}, StoreError("extend license", err)
	}

	a.logger.InfoContext(ctx, "license extended",
		slog.String("license_key", key.String()),
		slog.Time("new_expiration", newExpiration),
	)
	return newExpiration, nil
}

// Unbind clears the machine binding unconditionally.
func (a *Authority) Unbind(ctx context.Context, rawKey string) error {
	ctx, span := a.tracer.Start(ctx, "license.unbind")
	defer span.End()

	key, err := uuid.Parse(rawKey)
	if err != nil {
		return NewError(KindInvalidKeyFormat, "invalid license key format, expected a UUID")
	}

	rows, err := a.store.Unbind(ctx, key)
	if err != nil {
		return StoreError("unbind license", err)
	}
	if rows == 0 {
		return NewError(KindNotFound, "license key not found")
	}

	a.logger.InfoContext(ctx, "license unbound", slog.String("license_key", key.String()))
	return nil
}

// Reset reactivates and unbinds in one atomic update, extending an expired
// license by thirty days from today and leaving a current expiration
// untouched.
func (a *Authority) Reset(ctx context.Context, rawKey string) error {
	ctx, span := a.tracer.Start(ctx, "license.reset")
	defer span.End()

	key, err := uuid.Parse(rawKey)
	if err != nil {
		return NewError(KindInvalidKeyFormat, "invalid license key format, expected a UUID")
	}

	today, err := a.clock.Today(ctx)
	if err != nil {
		return err
	}

	rows, err := a.store.Reset(ctx, key, today, resetGraceDays)
	if err != nil {
		return StoreError("reset license", err)
	}
	if rows == 0 {
		return NewError(KindNotFound, "license key not found")
	}

	a.logger.InfoContext(ctx, "license reset", slog.String("license_key", key.String()))
	return nil
}

// Delete permanently removes the record. No undo.
func (a *Authority) Delete(ctx context.Context, rawKey string) error {
	ctx, span := a.tracer.Start(ctx, "license.delete")
	defer span.End()

	key, err := uuid.Parse(rawKey)
	if err != nil {
		return NewError(KindInvalidKeyFormat, "invalid license key format, expected a UUID")
	}

	rows, err := a.store.Delete(ctx, key)
	if err != nil {
		return StoreError("delete license", err)
	}
	if rows == 0 {
		return NewError(KindNotFound, "license key not found")
	}

	a.logger.InfoContext(ctx, "license deleted", slog.String("license_key", key.String()))
	return nil
}

// Get returns the record for a license key.
func (a *Authority) Get(ctx context.Context, rawKey string) (*store.License, error) {
	key, err := uuid.Parse(rawKey)
	if err != nil {
		return nil, NewError(KindInvalidKeyFormat, "invalid license key format, expected a UUID")
	}
	lic, err := a.store.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewError(KindNotFound, "license key not found")
		}
		return nil, StoreError("get license", err)
	}
	return lic, nil
}

// GetByFingerprint returns the record bound to a machine.
func (a *Authority) GetByFingerprint(ctx context.Context, fingerprint string) (*store.License, error) {
	lic, err := a.store.GetByHWID(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewError(KindNotFound, "no license bound to this machine")
		}
		return nil, StoreError("get license by fingerprint", err)
	}
	return lic, nil
}

// List returns licenses newest-first, narrowed by status and search filters.
func (a *Authority) List(ctx context.Context, status store.StatusFilter, search string) ([]store.License, error) {
	today, err := a.clock.Today(ctx)
	if err != nil {
		return nil, err
	}
	licenses, err := a.store.List(ctx, store.Filter{Status: status, Search: search, Today: today})
	if err != nil {
		return nil, StoreError("list licenses", err)
	}
	return licenses, nil
}

// Stats summarizes the license population as of the authoritative date.
func (a *Authority) Stats(ctx context.Context) (*store.Stats, error) {
	today, err := a.clock.Today(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := a.store.CountStats(ctx, today)
	if err != nil {
		return nil, StoreError("license stats", err)
	}
	return stats, nil
}

// daysBetween counts whole days from a to b; both are dates at midnight UTC.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
