package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"careAlert/internal/domain"
	"careAlert/pkg/e"
)

type StaffService struct {
	staff  StaffDirectory
	subs   SubscriptionStore
	logger *slog.Logger
}

func NewStaffService(staff StaffDirectory, subs SubscriptionStore, logger *slog.Logger) *StaffService {
	return &StaffService{staff: staff, subs: subs, logger: logger}
}

func (s *StaffService) Create(ctx context.Context, req domain.CreateStaffRequest) (*domain.StaffMember, error) {
	const op = "service.StaffService.Create"

	status := req.Status
	if status == "" {
		status = domain.StaffActive
	}
	member := &domain.StaffMember{
		Code:     strings.TrimSpace(req.Code),
		Name:     strings.TrimSpace(req.Name),
		Schedule: strings.TrimSpace(req.Schedule),
		Status:   status,
	}
	if member.Code == "" || member.Name == "" {
		return nil, fmt.Errorf("%s: %w: code and name are required", op, e.ErrInvalidInput)
	}
	if err := s.staff.Create(ctx, member); err != nil {
		return nil, e.Wrap(op, err)
	}
	s.logger.Info("staff member created", slog.String("staff_code", member.Code))
	return member, nil
}

func (s *StaffService) Get(ctx context.Context, code string) (*domain.StaffMember, error) {
	const op = "service.StaffService.Get"
	m, err := s.staff.Get(ctx, code)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	return m, nil
}

func (s *StaffService) List(ctx context.Context) ([]*domain.StaffMember, error) {
	const op = "service.StaffService.List"
	items, err := s.staff.List(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if items == nil {
		items = []*domain.StaffMember{}
	}
	return items, nil
}

// Update applies only the fields present in req. RemoveSubscription also
// drops the endpoint from the subscription index.
func (s *StaffService) Update(ctx context.Context, code string, req domain.UpdateStaffRequest) (*domain.StaffMember, error) {
	const op = "service.StaffService.Update"

	var endpoint string
	if req.RemoveSubscription {
		cur, err := s.staff.Get(ctx, code)
		if err != nil {
			return nil, e.Wrap(op, err)
		}
		if cur.Subscription != nil {
			endpoint = cur.Subscription.Endpoint
		}
	}

	m, err := s.staff.Update(ctx, code, req)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if endpoint != "" {
		if err := s.subs.DeleteByEndpoint(ctx, endpoint); err != nil {
			s.logger.Warn("drop removed subscription failed",
				slog.String("staff_code", code),
				slog.Any("error", err),
			)
		}
	}
	return m, nil
}

func (s *StaffService) Delete(ctx context.Context, code string) error {
	const op = "service.StaffService.Delete"
	m, err := s.staff.Delete(ctx, code)
	if err != nil {
		return e.Wrap(op, err)
	}
	if m.Subscription != nil {
		if err := s.subs.DeleteByEndpoint(ctx, m.Subscription.Endpoint); err != nil {
			s.logger.Warn("drop subscription of deleted staff failed",
				slog.String("staff_code", code),
				slog.Any("error", err),
			)
		}
	}
	s.logger.Info("staff member deleted", slog.String("staff_code", code))
	return nil
}
