package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"careAlert/internal/domain"
	"careAlert/internal/push"
	"careAlert/internal/service"
	"careAlert/pkg/e"
)

const (
	epHealthy = "https://push.example.com/healthy"
	epGone    = "https://push.example.com/gone"
)

func TestDispatcher_Notify_PrunesOnlyGoneSubscription(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	deps := newDispatcherDeps(ctrl)
	inc := pendingIncident(t)

	deps.repo.EXPECT().Get(gomock.Any(), inc.ID).Return(inc, nil)
	deps.staff.EXPECT().ListSubscribed(gomock.Any()).
		Return([]*domain.StaffMember{subscribed("A", epHealthy), subscribed("B", epGone)}, nil)

	deps.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, sub domain.PushSubscription, _ []byte) error {
			if sub.Endpoint == epGone {
				return &push.DeliveryError{StatusCode: http.StatusGone, Status: "410 Gone"}
			}
			return nil
		}).Times(2)

	// only the gone recipient is touched
	deps.staff.EXPECT().ClearSubscription(gomock.Any(), "B", epGone).Return(true, nil)
	deps.subs.EXPECT().DeleteByEndpoint(gomock.Any(), epGone).Return(nil)

	d := deps.build(service.DispatcherConfig{DeliveryTimeout: time.Second})
	report, err := d.Notify(context.Background(), domain.NotifyRequest{
		Title:      "Fall",
		Body:       "Room 12",
		IncidentID: &inc.ID,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if report.RecipientCount != 2 {
		t.Fatalf("recipient count = %d, want 2", report.RecipientCount)
	}
	if report.Delivered != 1 || report.Failed != 1 || report.Pruned != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.IncidentID != inc.ID {
		t.Fatalf("report incident id = %s, want %s", report.IncidentID, inc.ID)
	}
	for _, o := range report.Outcomes {
		if o.StaffCode == "B" && !o.Permanent {
			t.Fatalf("gone delivery not classified permanent: %+v", o)
		}
		if o.StaffCode == "A" && (o.Permanent || o.Pruned) {
			t.Fatalf("healthy delivery flagged: %+v", o)
		}
	}
}

func TestDispatcher_Notify_TransientFailureKeepsSubscription(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	deps := newDispatcherDeps(ctrl)
	inc := pendingIncident(t)

	deps.repo.EXPECT().Get(gomock.Any(), inc.ID).Return(inc, nil)
	deps.staff.EXPECT().ListSubscribed(gomock.Any()).
		Return([]*domain.StaffMember{subscribed("A", epHealthy)}, nil)
	deps.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&push.DeliveryError{StatusCode: http.StatusInternalServerError, Status: "500 Internal Server Error"})
	deps.staff.EXPECT().ClearSubscription(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	deps.subs.EXPECT().DeleteByEndpoint(gomock.Any(), gomock.Any()).Times(0)

	d := deps.build(service.DispatcherConfig{DeliveryTimeout: time.Second})
	report, err := d.Notify(context.Background(), domain.NotifyRequest{Title: "t", Body: "b", IncidentID: &inc.ID})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if report.Failed != 1 || report.Pruned != 0 || report.Delivered != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestDispatcher_Notify_TimeoutIsTransient(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	deps := newDispatcherDeps(ctrl)
	inc := pendingIncident(t)

	deps.repo.EXPECT().Get(gomock.Any(), inc.ID).Return(inc, nil)
	deps.staff.EXPECT().ListSubscribed(gomock.Any()).
		Return([]*domain.StaffMember{subscribed("A", epHealthy)}, nil)
	deps.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ domain.PushSubscription, _ []byte) error {
			<-ctx.Done()
			return ctx.Err()
		})
	deps.staff.EXPECT().ClearSubscription(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	d := deps.build(service.DispatcherConfig{DeliveryTimeout: 20 * time.Millisecond})
	report, err := d.Notify(context.Background(), domain.NotifyRequest{Title: "t", Body: "b", IncidentID: &inc.ID})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if report.Failed != 1 || report.Pruned != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !errors.Is(report.Outcomes[0].Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", report.Outcomes[0].Err)
	}
}

func TestDispatcher_Notify_NoRecipients(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	deps := newDispatcherDeps(ctrl)
	inc := pendingIncident(t)

	deps.repo.EXPECT().Get(gomock.Any(), inc.ID).Return(inc, nil)
	deps.staff.EXPECT().ListSubscribed(gomock.Any()).Return(nil, nil)
	deps.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	d := deps.build(service.DispatcherConfig{})
	report, err := d.Notify(context.Background(), domain.NotifyRequest{Title: "t", Body: "b", IncidentID: &inc.ID})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !report.NoRecipients || report.RecipientCount != 0 {
		t.Fatalf("expected no recipients, got %+v", report)
	}
	if report.IncidentID != inc.ID {
		t.Fatalf("report should still carry incident id")
	}
}

func TestDispatcher_Notify_UnknownIncident(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	deps := newDispatcherDeps(ctrl)
	inc := pendingIncident(t)

	deps.repo.EXPECT().Get(gomock.Any(), inc.ID).Return(nil, e.Wrap("repo.Get", e.ErrNotFound))
	deps.staff.EXPECT().ListSubscribed(gomock.Any()).Times(0)
	deps.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	d := deps.build(service.DispatcherConfig{})
	_, err := d.Notify(context.Background(), domain.NotifyRequest{Title: "t", Body: "b", IncidentID: &inc.ID})
	if !errors.Is(err, e.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDispatcher_Notify_FallbackIncidentPersistedFirst(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	deps := newDispatcherDeps(ctrl)

	var created *domain.Incident
	create := deps.repo.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, inc *domain.Incident) error {
			created = inc
			return nil
		})
	list := deps.staff.EXPECT().ListSubscribed(gomock.Any()).
		Return([]*domain.StaffMember{subscribed("A", epHealthy)}, nil)
	gomock.InOrder(create, list)

	var sent domain.NotificationPayload
	deps.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.PushSubscription, body []byte) error {
			return json.Unmarshal(body, &sent)
		})

	d := deps.build(service.DispatcherConfig{DeliveryTimeout: time.Second})
	report, err := d.Notify(context.Background(), domain.NotifyRequest{
		Title:  "Call button",
		Body:   "Resident pressed the call button",
		IsFall: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if created == nil {
		t.Fatalf("fallback incident was not persisted")
	}
	if created.State != domain.IncidentPending || !created.IsFall {
		t.Fatalf("unexpected fallback incident: %+v", created)
	}
	if created.Location != domain.DefaultIncidentLocation || created.Reporter != domain.DefaultReporter {
		t.Fatalf("fallback incident defaults not applied: %+v", created)
	}
	if report.IncidentID != created.ID || sent.Data.IncidentID != created.ID {
		t.Fatalf("payload/report id mismatch: report=%s payload=%s created=%s",
			report.IncidentID, sent.Data.IncidentID, created.ID)
	}
	if sent.Data.Location != domain.DefaultNotificationLocation || sent.Data.Detail != domain.DefaultNotificationDetail {
		t.Fatalf("payload defaults not applied: %+v", sent.Data)
	}
	if !sent.Data.IsFall {
		t.Fatalf("payload should carry is_fall")
	}
}

func TestDispatcher_Notify_FallbackCreateFailureSendsNothing(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	deps := newDispatcherDeps(ctrl)
	deps.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(e.ErrInternal)
	deps.staff.EXPECT().ListSubscribed(gomock.Any()).Times(0)
	deps.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	d := deps.build(service.DispatcherConfig{})
	if _, err := d.Notify(context.Background(), domain.NotifyRequest{Title: "t", Body: "b"}); !errors.Is(err, e.ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
}

func TestDispatcher_Notify_CallerCancelDoesNotStopDeliveries(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	deps := newDispatcherDeps(ctrl)
	inc := pendingIncident(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps.repo.EXPECT().Get(gomock.Any(), inc.ID).Return(inc, nil)
	deps.staff.EXPECT().ListSubscribed(gomock.Any()).
		Return([]*domain.StaffMember{subscribed("A", epHealthy)}, nil)

	var deliveryErr error
	deps.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(dctx context.Context, _ domain.PushSubscription, _ []byte) error {
			cancel()
			deliveryErr = dctx.Err()
			return nil
		})

	d := deps.build(service.DispatcherConfig{DeliveryTimeout: time.Second})
	_, err := d.Notify(ctx, domain.NotifyRequest{Title: "t", Body: "b", IncidentID: &inc.ID})
	if !errors.Is(err, e.ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if deliveryErr != nil {
		t.Fatalf("delivery context was cancelled with the caller: %v", deliveryErr)
	}
}

func TestDispatcher_Notify_RespectsConcurrencyLimit(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	deps := newDispatcherDeps(ctrl)
	inc := pendingIncident(t)

	recipients := []*domain.StaffMember{
		subscribed("A", "https://push.example.com/a"),
		subscribed("B", "https://push.example.com/b"),
		subscribed("C", "https://push.example.com/c"),
		subscribed("D", "https://push.example.com/d"),
	}
	deps.repo.EXPECT().Get(gomock.Any(), inc.ID).Return(inc, nil)
	deps.staff.EXPECT().ListSubscribed(gomock.Any()).Return(recipients, nil)

	var inflight, peak int32
	deps.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, domain.PushSubscription, []byte) error {
			n := atomic.AddInt32(&inflight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inflight, -1)
			return nil
		}).Times(len(recipients))

	d := deps.build(service.DispatcherConfig{DeliveryTimeout: time.Second, MaxConcurrency: 2})
	report, err := d.Notify(context.Background(), domain.NotifyRequest{Title: "t", Body: "b", IncidentID: &inc.ID})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if report.Delivered != len(recipients) {
		t.Fatalf("delivered = %d, want %d", report.Delivered, len(recipients))
	}
	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", got)
	}
}

func TestDispatcher_Notify_ConcurrentPruneIsIdempotent(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	deps := newDispatcherDeps(ctrl)
	inc := pendingIncident(t)

	deps.repo.EXPECT().Get(gomock.Any(), inc.ID).Return(inc, nil).Times(2)
	deps.staff.EXPECT().ListSubscribed(gomock.Any()).
		Return([]*domain.StaffMember{subscribed("B", epGone)}, nil).Times(2)
	deps.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&push.DeliveryError{StatusCode: http.StatusNotFound, Status: "404 Not Found"}).Times(2)

	// the second clear finds nothing left to clear
	var clears int32
	deps.staff.EXPECT().ClearSubscription(gomock.Any(), "B", epGone).
		DoAndReturn(func(context.Context, string, string) (bool, error) {
			return atomic.AddInt32(&clears, 1) == 1, nil
		}).Times(2)
	deps.subs.EXPECT().DeleteByEndpoint(gomock.Any(), epGone).Return(nil).Times(2)

	d := deps.build(service.DispatcherConfig{DeliveryTimeout: time.Second})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Notify(context.Background(), domain.NotifyRequest{Title: "t", Body: "b", IncidentID: &inc.ID})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
	}
}

func TestDispatcher_DispatchIncident_UsesIncidentFields(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	deps := newDispatcherDeps(ctrl)
	inc := pendingIncident(t)

	deps.staff.EXPECT().ListSubscribed(gomock.Any()).
		Return([]*domain.StaffMember{subscribed("A", epHealthy)}, nil)

	var sent domain.NotificationPayload
	deps.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.PushSubscription, body []byte) error {
			return json.Unmarshal(body, &sent)
		})

	d := deps.build(service.DispatcherConfig{DeliveryTimeout: time.Second})
	if _, err := d.DispatchIncident(context.Background(), inc); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sent.Title != "Possible fall detected" {
		t.Fatalf("title = %q", sent.Title)
	}
	if sent.Data.Location != "Room 12" || sent.Data.Detail != "found on the floor" {
		t.Fatalf("payload did not use incident fields: %+v", sent.Data)
	}
}
