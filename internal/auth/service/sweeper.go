package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hyperfoil/horreum-auth/internal/auth/domain"
	"github.com/hyperfoil/horreum-auth/internal/auth/metrics"
	"github.com/hyperfoil/horreum-auth/internal/auth/store"
)

// DefaultNotifyOffsets are the days-to-expiration marks at which owners are
// notified. Negative entries cover keys that already slipped past their
// expiration between sweeps.
var DefaultNotifyOffsets = []int{7, 2, 1, 0, -1}

// Sweeper is the daily background pass over the credential table: it warns
// owners of keys approaching expiration and revokes keys past it. Each run
// is anchored to a single day, so running twice on the same day produces the
// same notifications rather than new ones.
type Sweeper struct {
	Store    store.Store
	Notifier Notifier
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	// Schedule is a cron expression; defaults to "@daily".
	Schedule string

	// Offsets are the days-to-expiration marks to notify at. Defaults to
	// DefaultNotifyOffsets.
	Offsets []int

	// Now is the clock, injectable for tests.
	Now func() time.Time

	cron *cron.Cron
}

// Start registers the sweep with the scheduler and begins running it. It is
// non-blocking; call Stop to shut down.
func (s *Sweeper) Start() error {
	schedule := s.Schedule
	if schedule == "" {
		schedule = "@daily"
	}

	s.cron = cron.New()
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.Logger.Error("expiry sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.Logger.Info("expiry sweeper started", "schedule", schedule)
	return nil
}

// Stop halts the scheduler and blocks until an in-flight sweep finishes.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.Logger.Info("expiry sweeper stopped")
}

// Sweep performs one pass: notifications for keys expiring at each offset,
// then revocation of keys past expiration. Failures on individual keys are
// logged and skipped so one bad record never starves the rest.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	today := domain.Day(now())

	offsets := s.Offsets
	if offsets == nil {
		offsets = DefaultNotifyOffsets
	}

	if s.Metrics != nil {
		s.Metrics.SweepRunsTotal.Inc()
	}
	s.Logger.Info("expiry sweep starting", "day", today.Format(time.DateOnly))

	for _, offset := range offsets {
		if err := ctx.Err(); err != nil {
			return err
		}

		keys, err := s.Store.ApiKeys().ListApiKeysExpiringOn(ctx, today.AddDate(0, 0, offset))
		if err != nil {
			s.countError()
			s.Logger.Error("expiry sweep query failed", "offset", offset, "error", err)
			continue
		}
		for _, k := range keys {
			s.notify(ctx, k, offset)
		}
	}

	// Revocation pass: anything whose expiration date is already behind us.
	keys, err := s.Store.ApiKeys().ListApiKeysPastExpiration(ctx, today)
	if err != nil {
		s.countError()
		return err
	}
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.Store.ApiKeys().RevokeApiKey(ctx, k.ID); err != nil {
			s.countError()
			s.Logger.Error("failed to revoke expired api key", "id", k.ID, "error", err)
			continue
		}
		if s.Metrics != nil {
			s.Metrics.KeysRevokedTotal.WithLabelValues(metrics.RevokeBySweep).Inc()
		}
		s.Logger.Info("revoked expired api key",
			slog.Int64("id", k.ID),
			slog.String("username", k.Username),
			slog.String("name", k.Name),
		)
	}

	return nil
}

func (s *Sweeper) notify(ctx context.Context, k domain.ApiKey, daysLeft int) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.KeyExpiring(ctx, k, daysLeft); err != nil {
		s.countError()
		s.Logger.Error("expiry notification failed", "id", k.ID, "error", err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.SweepNotificationsTotal.WithLabelValues(strconv.Itoa(daysLeft)).Inc()
	}
}

func (s *Sweeper) countError() {
	if s.Metrics != nil {
		s.Metrics.SweepErrorsTotal.Inc()
	}
}
