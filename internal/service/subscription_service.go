package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"careAlert/internal/domain"
	"careAlert/internal/push"
	"careAlert/pkg/e"
)

type SubscriptionService struct {
	staff  StaffDirectory
	subs   SubscriptionStore
	logger *slog.Logger
	now    func() time.Time
}

func NewSubscriptionService(staff StaffDirectory, subs SubscriptionStore, logger *slog.Logger) *SubscriptionService {
	return &SubscriptionService{staff: staff, subs: subs, logger: logger, now: time.Now}
}

// Register stores a browser subscription and, when a staff code is given, makes it
// that member's only subscription. An unknown code still stores the subscription
// but leaves it unlinked.
func (s *SubscriptionService) Register(ctx context.Context, req domain.SubscribeRequest) (*domain.SubscribeResponse, error) {
	const op = "service.SubscriptionService.Register"

	sub := req.Subscription
	sub.Endpoint = strings.TrimSpace(sub.Endpoint)
	if sub.Endpoint == "" {
		return nil, fmt.Errorf("%s: %w: subscription.endpoint is required", op, e.ErrInvalidInput)
	}
	if err := push.ValidateKeys(sub.Keys.P256dh, sub.Keys.Auth); err != nil {
		return nil, e.Wrap(op, err)
	}
	sub.UpdatedAt = s.now().UTC()
	sub.StaffCode = nil

	l := s.logger.With(slog.String("endpoint_host", push.EndpointHost(sub.Endpoint)))
	resp := &domain.SubscribeResponse{Endpoint: sub.Endpoint}

	code := strings.TrimSpace(req.StaffCode)
	if code != "" {
		prev, err := s.staff.SetSubscription(ctx, code, sub)
		switch {
		case errors.Is(err, e.ErrNotFound):
			l.Warn("subscription for unknown staff code", slog.String("staff_code", code))
		case err != nil:
			return nil, e.Wrap(op, err)
		default:
			resp.Linked = true
			sub.StaffCode = &code
			if prev != nil && prev.Endpoint != sub.Endpoint {
				if err := s.subs.DeleteByEndpoint(ctx, prev.Endpoint); err != nil {
					l.Warn("drop replaced subscription failed", slog.Any("error", err))
				}
			}
		}
	}

	if err := s.subs.Upsert(ctx, sub); err != nil {
		return nil, e.Wrap(op, err)
	}
	l.Info("push subscription registered", slog.Bool("linked", resp.Linked))
	return resp, nil
}
