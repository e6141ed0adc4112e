package service_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"

	"careAlert/internal/domain"
	"careAlert/internal/service"

	mock_service "careAlert/internal/service/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func fixedTime() time.Time {
	return time.Date(2025, 12, 23, 12, 0, 0, 0, time.UTC)
}

func subscribed(code, endpoint string) *domain.StaffMember {
	return &domain.StaffMember{
		Code:   code,
		Name:   "Staff " + code,
		Status: domain.StaffActive,
		Subscription: &domain.PushSubscription{
			Endpoint: endpoint,
			Keys:     domain.PushKeys{P256dh: "p256dh-" + code, Auth: "auth-" + code},
		},
	}
}

func pendingIncident(t *testing.T) *domain.Incident {
	t.Helper()
	inc := domain.NewPendingIncident("Room 12", "found on the floor", "night nurse", true, fixedTime())
	if inc.ID == uuid.Nil {
		t.Fatalf("incident id is nil")
	}
	return inc
}

type dispatcherDeps struct {
	repo    *mock_service.MockIncidentRepository
	staff   *mock_service.MockStaffDirectory
	subs    *mock_service.MockSubscriptionStore
	sender  *mock_service.MockPushSender
	relay   *mock_service.MockBroadcaster
	metrics *mock_service.MockDispatchMetrics
}

func newDispatcherDeps(ctrl *gomock.Controller) dispatcherDeps {
	d := dispatcherDeps{
		repo:    mock_service.NewMockIncidentRepository(ctrl),
		staff:   mock_service.NewMockStaffDirectory(ctrl),
		subs:    mock_service.NewMockSubscriptionStore(ctrl),
		sender:  mock_service.NewMockPushSender(ctrl),
		relay:   mock_service.NewMockBroadcaster(ctrl),
		metrics: mock_service.NewMockDispatchMetrics(ctrl),
	}
	d.relay.EXPECT().Broadcast(service.EventNewAlert, gomock.Any()).AnyTimes()
	d.metrics.EXPECT().ObserveDelivery(gomock.Any()).AnyTimes()
	d.metrics.EXPECT().ObservePruned().AnyTimes()
	d.metrics.EXPECT().ObserveDispatch(gomock.Any(), gomock.Any()).AnyTimes()
	return d
}

func (d dispatcherDeps) build(cfg service.DispatcherConfig) *service.Dispatcher {
	store := service.NewIncidentStore(d.repo, nil, testLogger())
	return service.NewDispatcher(store, d.staff, d.subs, d.sender, d.relay, d.metrics, testLogger(), cfg)
}
