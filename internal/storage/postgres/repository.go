package postgres

import (
	"context"
	"time"

	"careAlert/internal/domain"

	"github.com/google/uuid"
)

type IncidentRepository interface {
	Create(ctx context.Context, incident *domain.Incident) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Incident, error)
	List(ctx context.Context, page, limit int) ([]*domain.Incident, int64, error)
	Filter(ctx context.Context, f domain.IncidentFilter) ([]*domain.Incident, error)
	Confirm(ctx context.Context, id uuid.UUID, isFall bool, confirmedBy string) (*domain.Incident, error)
	RecordIntervention(ctx context.Context, id uuid.UUID, req domain.InterventionRequest, attendedAt time.Time) (*domain.Incident, error)
}

type StaffRepository interface {
	Create(ctx context.Context, member *domain.StaffMember) error
	Get(ctx context.Context, code string) (*domain.StaffMember, error)
	List(ctx context.Context) ([]*domain.StaffMember, error)
	Update(ctx context.Context, code string, req domain.UpdateStaffRequest) (*domain.StaffMember, error)
	Delete(ctx context.Context, code string) (*domain.StaffMember, error)
	ListSubscribed(ctx context.Context) ([]*domain.StaffMember, error)
	SetSubscription(ctx context.Context, code string, sub domain.PushSubscription) (previous *domain.PushSubscription, err error)
	ClearSubscription(ctx context.Context, code, endpoint string) (bool, error)
}

type SubscriptionRepository interface {
	Upsert(ctx context.Context, sub domain.PushSubscription) error
	Get(ctx context.Context, endpoint string) (*domain.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

func (p *Postgres) Incidents() IncidentRepository         { return p.Incident }
func (p *Postgres) Staff() StaffRepository                { return p.StaffDir }
func (p *Postgres) Subscriptions() SubscriptionRepository { return p.Subscription }
