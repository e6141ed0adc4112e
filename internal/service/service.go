package service

import (
	"context"
	"time"

	"careAlert/internal/domain"

	"github.com/google/uuid"
)

//go:generate mockgen -source=service.go -destination=mocks/mock.go
type IncidentRepository interface {
	Create(ctx context.Context, incident *domain.Incident) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Incident, error)
	List(ctx context.Context, page, limit int) ([]*domain.Incident, int64, error)
	Filter(ctx context.Context, f domain.IncidentFilter) ([]*domain.Incident, error)
	Confirm(ctx context.Context, id uuid.UUID, isFall bool, confirmedBy string) (*domain.Incident, error)
	RecordIntervention(ctx context.Context, id uuid.UUID, req domain.InterventionRequest, attendedAt time.Time) (*domain.Incident, error)
}

type IncidentCache interface {
	GetPage(ctx context.Context, page, limit int) (*domain.ListIncidentsResponse, int64, error)
	SetPage(ctx context.Context, gen int64, resp *domain.ListIncidentsResponse) error
	Invalidate(ctx context.Context) error
}

type StaffDirectory interface {
	Create(ctx context.Context, member *domain.StaffMember) error
	Get(ctx context.Context, code string) (*domain.StaffMember, error)
	List(ctx context.Context) ([]*domain.StaffMember, error)
	Update(ctx context.Context, code string, req domain.UpdateStaffRequest) (*domain.StaffMember, error)
	Delete(ctx context.Context, code string) (*domain.StaffMember, error)
	ListSubscribed(ctx context.Context) ([]*domain.StaffMember, error)
	SetSubscription(ctx context.Context, code string, sub domain.PushSubscription) (*domain.PushSubscription, error)
	ClearSubscription(ctx context.Context, code, endpoint string) (bool, error)
}

type SubscriptionStore interface {
	Upsert(ctx context.Context, sub domain.PushSubscription) error
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

type PushSender interface {
	Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error
}

// Broadcaster mirrors alerts onto the realtime relay. Best-effort.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Notifier sends an alert for an incident that has just been stored.
type Notifier interface {
	DispatchIncident(ctx context.Context, inc *domain.Incident) (*domain.DispatchReport, error)
}

type DispatchMetrics interface {
	ObserveDelivery(outcome string)
	ObservePruned()
	ObserveDispatch(result string, took time.Duration)
}

type Service struct {
	Incidents     *IncidentService
	Staff         *StaffService
	Subscriptions *SubscriptionService
	// nil when push is not configured
	Dispatcher *Dispatcher
}

func NewService(
	incidents *IncidentService,
	staff *StaffService,
	subscriptions *SubscriptionService,
	dispatcher *Dispatcher,
) *Service {
	return &Service{
		Incidents:     incidents,
		Staff:         staff,
		Subscriptions: subscriptions,
		Dispatcher:    dispatcher,
	}
}
