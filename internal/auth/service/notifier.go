package service

import (
	"context"
	"log/slog"

	"github.com/hyperfoil/horreum-auth/internal/auth/domain"
)

// Notifier receives expiry events from the sweep. Implementations must be
// safe for repeated delivery; the sweep retries nothing but may observe the
// same key on consecutive days at different offsets.
type Notifier interface {
	// KeyExpiring fires when a key's expiration is daysLeft days away.
	// Zero means it expires today; negative means it expired and was just
	// revoked.
	KeyExpiring(ctx context.Context, k domain.ApiKey, daysLeft int) error
}

// LogNotifier writes expiry events to the log. It is the default sink until
// an email or webhook integration is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) KeyExpiring(ctx context.Context, k domain.ApiKey, daysLeft int) error {
	n.Logger.Info("api key expiring",
		slog.Int64("id", k.ID),
		slog.String("username", k.Username),
		slog.String("name", k.Name),
		slog.Int("days_left", daysLeft),
	)
	return nil
}
