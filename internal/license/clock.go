package license

import (
	"context"
	"log/slog"
	"time"

	"keygate/internal/store"
)

// TimeSource yields today's date from one authority-controlled origin.
type TimeSource interface {
	Name() string
	Today(ctx context.Context) (time.Time, error)
}

// Clock resolves the authoritative date by walking a ranked list of sources
// until one answers. Order encodes trust: the store's own date first, a
// derived date second, the local clock (if permitted at all) last.
type Clock struct {
	sources []TimeSource
	logger  *slog.Logger
}

// NewClock builds a Clock over the given sources, tried in order.
func NewClock(logger *slog.Logger, sources ...TimeSource) *Clock {
	if logger == nil {
		logger = slog.Default()
	}
	return &Clock{
		sources: sources,
		logger:  logger.With(slog.String("component", "authority_clock")),
	}
}

// NewStoreClock assembles the standard chain over the license store. The
// local-clock terminus is only appended when allowLocal is set; without it,
// losing the store means losing the clock, and callers fail closed.
func NewStoreClock(s *store.Licenses, allowLocal bool, logger *slog.Logger) *Clock {
	sources := []TimeSource{
		storeDateSource{s},
		newestRecordSource{s},
	}
	if allowLocal {
		sources = append(sources, localSource{})
	}
	return NewClock(logger, sources...)
}

// Today returns the authoritative calendar date (midnight UTC). When every
// source fails the error carries KindStore.
func (c *Clock) Today(ctx context.Context) (time.Time, error) {
	var lastErr error
	for i, source := range c.sources {
		today, err := source.Today(ctx)
		if err == nil {
			if i > 0 {
				c.logger.WarnContext(ctx, "authoritative clock degraded",
					slog.String("source", source.Name()),
					slog.Int("rank", i),
				)
			}
			return store.DateOnly(today), nil
		}
		lastErr = err
		c.logger.WarnContext(ctx, "time source failed",
			slog.String("source", source.Name()),
			slog.String("error", err.Error()),
		)
	}
	return time.Time{}, &Error{
		Kind:    KindStore,
		Message: "no authoritative time source available",
		Err:     lastErr,
	}
}

type storeDateSource struct {
	store *store.Licenses
}

func (storeDateSource) Name() string { return "store_current_date" }

func (s storeDateSource) Today(ctx context.Context) (time.Time, error) {
	return s.store.ServerDate(ctx)
}

type newestRecordSource struct {
	store *store.Licenses
}

func (newestRecordSource) Name() string { return "newest_record_created_at" }

func (s newestRecordSource) Today(ctx context.Context) (time.Time, error) {
	ts, err := s.store.NewestCreatedAt(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return ts, nil
}

type localSource struct{}

func (localSource) Name() string { return "local_clock" }

func (localSource) Today(context.Context) (time.Time, error) {
	return time.Now(), nil
}
