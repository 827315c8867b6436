package http

import (
	"context"
	"time"

	"keygate/internal/license"
	"keygate/internal/store"
)

// LicenseAuthority is the transport's view of the license authority.
// Implemented by *license.Authority; handler tests substitute fakes.
type LicenseAuthority interface {
	Create(ctx context.Context, clientName string, durationMonths int, notes string) (*store.License, error)
	Activate(ctx context.Context, key, fingerprint string) (*license.ActivationResult, error)
	Verify(ctx context.Context, fingerprint string) (*license.VerificationResult, error)
	Get(ctx context.Context, key string) (*store.License, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*store.License, error)
	Revoke(ctx context.Context, key string) error
	Reactivate(ctx context.Context, key string) error
	Extend(ctx context.Context, key string, additionalMonths int) (time.Time, error)
	Unbind(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, status store.StatusFilter, search string) ([]store.License, error)
	Stats(ctx context.Context) (*store.Stats, error)
}
