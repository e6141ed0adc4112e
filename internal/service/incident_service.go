package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"careAlert/internal/domain"
	"careAlert/pkg/e"

	"github.com/google/uuid"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

type IncidentService struct {
	store    *IncidentStore
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	// background dispatches started by Create
	inflight sync.WaitGroup
}

// NewIncidentService accepts a nil notifier; incidents are then stored without alerting anyone.
func NewIncidentService(store *IncidentStore, notifier Notifier, logger *slog.Logger) *IncidentService {
	return &IncidentService{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Create stores a Pending incident and alerts staff about it. With wait the
// dispatch runs inline and its report is returned, otherwise it is only started.
func (s *IncidentService) Create(ctx context.Context, req domain.CreateIncidentRequest, wait bool) (*domain.CreateIncidentResponse, error) {
	const op = "service.IncidentService.Create"

	inc := domain.NewPendingIncident(
		strings.TrimSpace(req.Location),
		strings.TrimSpace(req.Detail),
		strings.TrimSpace(req.Reporter),
		req.IsFall,
		s.now(),
	)
	if err := s.store.Insert(ctx, inc); err != nil {
		return nil, e.Wrap(op, err)
	}
	s.logger.Info("incident created",
		slog.String("incident_id", inc.ID.String()),
		slog.Bool("is_fall", inc.IsFall),
	)

	resp := &domain.CreateIncidentResponse{Incident: inc}
	switch {
	case s.notifier == nil:
		resp.Dispatch.Status = domain.DispatchDisabled
	case wait:
		resp.Dispatch.Status = domain.DispatchAttempted
		report, err := s.notifier.DispatchIncident(ctx, inc)
		if err != nil {
			s.logger.Warn("incident dispatch failed",
				slog.String("incident_id", inc.ID.String()),
				slog.Any("error", err),
			)
			resp.Dispatch.Error = err.Error()
		}
		resp.Dispatch.Report = report
	default:
		resp.Dispatch.Status = domain.DispatchAccepted
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			if _, err := s.notifier.DispatchIncident(context.WithoutCancel(ctx), inc); err != nil {
				s.logger.Warn("background incident dispatch failed",
					slog.String("incident_id", inc.ID.String()),
					slog.Any("error", err),
				)
			}
		}()
	}
	return resp, nil
}

func (s *IncidentService) Get(ctx context.Context, id uuid.UUID) (*domain.Incident, error) {
	const op = "service.IncidentService.Get"
	inc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	return inc, nil
}

func (s *IncidentService) List(ctx context.Context, page, limit int) (*domain.ListIncidentsResponse, error) {
	const op = "service.IncidentService.List"
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	resp, err := s.store.List(ctx, page, limit)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	return resp, nil
}

func (s *IncidentService) Filter(ctx context.Context, f domain.IncidentFilter) ([]*domain.Incident, error) {
	const op = "service.IncidentService.Filter"
	if f.State != "" && f.State != domain.IncidentPending && f.State != domain.IncidentAttended {
		return nil, fmt.Errorf("%s: %w: unknown state %q", op, e.ErrInvalidInput, f.State)
	}
	f.Location = strings.TrimSpace(f.Location)
	items, err := s.store.Filter(ctx, f)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if items == nil {
		items = []*domain.Incident{}
	}
	return items, nil
}

// Confirm records whether the incident really was a fall and who checked.
func (s *IncidentService) Confirm(ctx context.Context, id uuid.UUID, req domain.ConfirmIncidentRequest) (*domain.Incident, error) {
	const op = "service.IncidentService.Confirm"
	if req.IsFall == nil {
		return nil, fmt.Errorf("%s: %w: is_fall is required", op, e.ErrInvalidInput)
	}
	by := strings.TrimSpace(req.ConfirmedBy)
	if by == "" {
		return nil, fmt.Errorf("%s: %w: confirmed_by is required", op, e.ErrInvalidInput)
	}
	inc, err := s.store.Confirm(ctx, id, *req.IsFall, by)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	return inc, nil
}

// RecordIntervention marks the incident Attended. The attended timestamp is
// taken now, on every call, so a correction moves it too.
func (s *IncidentService) RecordIntervention(ctx context.Context, id uuid.UUID, req domain.InterventionRequest) (*domain.Incident, error) {
	const op = "service.IncidentService.RecordIntervention"
	if !req.InjuryLevel.Valid() {
		return nil, fmt.Errorf("%s: %w: injury_level must be 1, 2 or 3", op, e.ErrInvalidInput)
	}
	inc, err := s.store.RecordIntervention(ctx, id, req, s.now().UTC())
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	s.logger.Info("intervention recorded",
		slog.String("incident_id", id.String()),
		slog.Int("injury_level", int(req.InjuryLevel)),
	)
	return inc, nil
}

// Wait blocks until background dispatches finish or ctx ends.
func (s *IncidentService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
