package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"careAlert/internal/domain"
	"careAlert/pkg/e"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Subscriptions is the endpoint-keyed index of push registrations.
type Subscriptions struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewSubscriptions(pool *pgxpool.Pool, logger *slog.Logger) *Subscriptions {
	return &Subscriptions{pool: pool, logger: logger}
}

func (s *Subscriptions) Upsert(ctx context.Context, sub domain.PushSubscription) error {
	const op = "postgres.Subscription.Upsert"

	_, err := s.pool.Exec(ctx, `
		INSERT INTO push_subscriptions (endpoint, p256dh, auth, staff_code, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (endpoint) DO UPDATE
		SET p256dh     = EXCLUDED.p256dh,
			auth       = EXCLUDED.auth,
			staff_code = COALESCE(EXCLUDED.staff_code, push_subscriptions.staff_code),
			updated_at = now()
	`, sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth, sub.StaffCode)
	if err != nil {
		s.logger.Error("db exec failed", slog.String("op", op), slog.Any("error", err))
		return e.WrapError(ctx, op, err)
	}
	return nil
}

func (s *Subscriptions) Get(ctx context.Context, endpoint string) (*domain.PushSubscription, error) {
	const op = "postgres.Subscription.Get"

	var sub domain.PushSubscription
	err := s.pool.QueryRow(ctx, `
		SELECT endpoint, p256dh, auth, staff_code, updated_at
		FROM push_subscriptions
		WHERE endpoint = $1
	`, endpoint).Scan(&sub.Endpoint, &sub.Keys.P256dh, &sub.Keys.Auth, &sub.StaffCode, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotFound)
		}
		s.logger.Error("db queryrow scan failed", slog.String("op", op), slog.Any("error", err))
		return nil, e.WrapError(ctx, op, err)
	}
	return &sub, nil
}

// DeleteByEndpoint is idempotent: deleting a missing endpoint is not an error.
func (s *Subscriptions) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	const op = "postgres.Subscription.DeleteByEndpoint"

	if _, err := s.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint); err != nil {
		s.logger.Error("db exec failed", slog.String("op", op), slog.Any("error", err))
		return e.WrapError(ctx, op, err)
	}
	return nil
}
