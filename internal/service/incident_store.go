package service

import (
	"context"
	"log/slog"
	"time"

	"careAlert/internal/domain"

	"github.com/google/uuid"
)

// IncidentStore puts the list cache in front of the repository and drops it on every write.
type IncidentStore struct {
	repo   IncidentRepository
	cache  IncidentCache
	logger *slog.Logger
}

func NewIncidentStore(repo IncidentRepository, cache IncidentCache, logger *slog.Logger) *IncidentStore {
	return &IncidentStore{repo: repo, cache: cache, logger: logger}
}

func (s *IncidentStore) Insert(ctx context.Context, inc *domain.Incident) error {
	if err := s.repo.Create(ctx, inc); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *IncidentStore) Get(ctx context.Context, id uuid.UUID) (*domain.Incident, error) {
	return s.repo.Get(ctx, id)
}

func (s *IncidentStore) List(ctx context.Context, page, limit int) (*domain.ListIncidentsResponse, error) {
	var (
		gen     int64
		cacheOK bool
	)
	if s.cache != nil {
		cached, g, err := s.cache.GetPage(ctx, page, limit)
		switch {
		case err != nil:
			s.logger.Warn("incident cache read failed", slog.Any("error", err))
		case cached != nil:
			return cached, nil
		default:
			gen, cacheOK = g, true
		}
	}

	items, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*domain.Incident{}
	}
	resp := &domain.ListIncidentsResponse{Incidents: items, Page: page, Limit: limit, Total: total}

	if cacheOK {
		if err := s.cache.SetPage(ctx, gen, resp); err != nil {
			s.logger.Warn("incident cache write failed", slog.Any("error", err))
		}
	}
	return resp, nil
}

func (s *IncidentStore) Filter(ctx context.Context, f domain.IncidentFilter) ([]*domain.Incident, error) {
	return s.repo.Filter(ctx, f)
}

func (s *IncidentStore) Confirm(ctx context.Context, id uuid.UUID, isFall bool, confirmedBy string) (*domain.Incident, error) {
	inc, err := s.repo.Confirm(ctx, id, isFall, confirmedBy)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return inc, nil
}

func (s *IncidentStore) RecordIntervention(ctx context.Context, id uuid.UUID, req domain.InterventionRequest, at time.Time) (*domain.Incident, error) {
	inc, err := s.repo.RecordIntervention(ctx, id, req, at)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return inc, nil
}

func (s *IncidentStore) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("incident cache invalidate failed", slog.Any("error", err))
	}
}
