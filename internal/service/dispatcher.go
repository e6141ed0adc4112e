package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"careAlert/internal/domain"
	"careAlert/internal/metrics"
	"careAlert/internal/push"
	"careAlert/pkg/e"

	"golang.org/x/sync/errgroup"
)

const EventNewAlert = "new-alert"

type DispatcherConfig struct {
	DeliveryTimeout time.Duration
	// 0 means unbounded.
	MaxConcurrency int
}

type Dispatcher struct {
	incidents *IncidentStore
	staff     StaffDirectory
	subs      SubscriptionStore
	sender    PushSender
	relay     Broadcaster
	metrics   DispatchMetrics
	logger    *slog.Logger
	cfg       DispatcherConfig
	now       func() time.Time
}

func NewDispatcher(
	incidents *IncidentStore,
	staff StaffDirectory,
	subs SubscriptionStore,
	sender PushSender,
	relay Broadcaster,
	m DispatchMetrics,
	logger *slog.Logger,
	cfg DispatcherConfig,
) *Dispatcher {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 5 * time.Second
	}
	if m == nil {
		m = nopMetrics{}
	}
	return &Dispatcher{
		incidents: incidents,
		staff:     staff,
		subs:      subs,
		sender:    sender,
		relay:     relay,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Notify resolves the incident named by req, or persists a fresh Pending one when
// req carries no id, and only then fans the notification out to every subscribed
// staff member. Individual delivery failures never fail the call.
func (d *Dispatcher) Notify(ctx context.Context, req domain.NotifyRequest) (*domain.DispatchReport, error) {
	const op = "service.Dispatcher.Notify"

	start := time.Now()
	inc, err := d.resolveIncident(ctx, req)
	if err != nil {
		d.metrics.ObserveDispatch(metrics.ResultFailed, time.Since(start))
		return nil, e.Wrap(op, err)
	}

	return d.dispatch(ctx, BuildPayload(req, inc, d.now()), start)
}

// DispatchIncident notifies about an incident that is already persisted.
func (d *Dispatcher) DispatchIncident(ctx context.Context, inc *domain.Incident) (*domain.DispatchReport, error) {
	return d.dispatch(ctx, BuildPayload(incidentIntent(inc), inc, d.now()), time.Now())
}

func (d *Dispatcher) resolveIncident(ctx context.Context, req domain.NotifyRequest) (*domain.Incident, error) {
	if req.IncidentID != nil {
		return d.incidents.Get(ctx, *req.IncidentID)
	}

	isFall := false
	if req.IsFall != nil {
		isFall = *req.IsFall
	}
	inc := domain.NewPendingIncident(ptrValue(req.Location), ptrValue(req.Detail), "", isFall, d.now())
	if err := d.incidents.Insert(ctx, inc); err != nil {
		return nil, err
	}
	d.logger.Info("incident created for notification", slog.String("incident_id", inc.ID.String()))
	return inc, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, payload domain.NotificationPayload, start time.Time) (*domain.DispatchReport, error) {
	const op = "service.Dispatcher.dispatch"

	l := d.logger.With(slog.String("incident_id", payload.Data.IncidentID.String()))

	body, err := json.Marshal(payload)
	if err != nil {
		d.metrics.ObserveDispatch(metrics.ResultFailed, time.Since(start))
		return nil, e.Wrap(op, err)
	}

	recipients, err := d.staff.ListSubscribed(ctx)
	if err != nil {
		l.Error("recipient lookup failed", slog.Any("error", err))
		d.metrics.ObserveDispatch(metrics.ResultFailed, time.Since(start))
		return nil, e.Wrap(op, err)
	}

	d.mirror(payload)

	report := &domain.DispatchReport{
		IncidentID:     payload.Data.IncidentID,
		RecipientCount: len(recipients),
	}
	if len(recipients) == 0 {
		l.Info("no subscribed recipients")
		report.NoRecipients = true
		d.metrics.ObserveDispatch(metrics.ResultNoRecipients, time.Since(start))
		return report, nil
	}

	l.Info("dispatching notification", slog.Int("recipients", len(recipients)))

	// Deliveries outlive the caller: staff should still get the alert if the
	// request goes away. Only the report below is suppressed.
	fanCtx := context.WithoutCancel(ctx)
	outcomes := make([]domain.DeliveryOutcome, len(recipients))

	var g errgroup.Group
	if d.cfg.MaxConcurrency > 0 {
		g.SetLimit(d.cfg.MaxConcurrency)
	}
	for i, member := range recipients {
		i, member := i, member
		g.Go(func() error {
			outcomes[i] = d.deliver(fanCtx, l, member, body)
			return nil
		})
	}
	_ = g.Wait()

	report.Outcomes = outcomes
	for _, o := range outcomes {
		switch {
		case o.Delivered():
			report.Delivered++
		default:
			report.Failed++
		}
		if o.Pruned {
			report.Pruned++
		}
	}

	took := time.Since(start)
	d.metrics.ObserveDispatch(metrics.ResultSent, took)
	l.Info("dispatch settled",
		slog.Int("recipients", report.RecipientCount),
		slog.Int("delivered", report.Delivered),
		slog.Int("failed", report.Failed),
		slog.Int("pruned", report.Pruned),
		slog.Duration("latency", took),
	)

	if err := ctx.Err(); err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	return report, nil
}

func (d *Dispatcher) deliver(ctx context.Context, l *slog.Logger, member *domain.StaffMember, body []byte) domain.DeliveryOutcome {
	sub := *member.Subscription
	out := domain.DeliveryOutcome{StaffCode: member.Code, Endpoint: sub.Endpoint}

	l = l.With(
		slog.String("staff_code", member.Code),
		slog.String("endpoint_host", push.EndpointHost(sub.Endpoint)),
	)

	dctx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	out.Err = d.sender.Send(dctx, sub, body)
	cancel()

	switch {
	case out.Err == nil:
		d.metrics.ObserveDelivery(metrics.OutcomeDelivered)
		l.Debug("notification delivered")
	case push.IsPermanent(out.Err):
		out.Permanent = true
		d.metrics.ObserveDelivery(metrics.OutcomePermanent)
		l.Warn("subscription gone, pruning", slog.Any("error", out.Err))
		out.Pruned = d.prune(ctx, l, member.Code, sub.Endpoint)
	default:
		d.metrics.ObserveDelivery(metrics.OutcomeTransient)
		l.Warn("notification delivery failed", slog.Any("error", out.Err))
	}
	return out
}

// prune drops a dead subscription from the staff record and from the endpoint index.
// Both steps are idempotent, so a concurrent prune of the same recipient is harmless.
func (d *Dispatcher) prune(ctx context.Context, l *slog.Logger, code, endpoint string) bool {
	pctx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	defer cancel()

	ok := true
	cleared, err := d.staff.ClearSubscription(pctx, code, endpoint)
	if err != nil {
		ok = false
		l.Error("clear staff subscription failed", slog.Any("error", err))
	}
	if err := d.subs.DeleteByEndpoint(pctx, endpoint); err != nil {
		ok = false
		l.Error("delete subscription failed", slog.Any("error", err))
	}
	if cleared {
		d.metrics.ObservePruned()
	}
	return ok
}

func (d *Dispatcher) mirror(payload domain.NotificationPayload) {
	if d.relay == nil {
		return
	}
	d.relay.Broadcast(EventNewAlert, payload)
}

type nopMetrics struct{}

func (nopMetrics) ObserveDelivery(string)               {}
func (nopMetrics) ObservePruned()                       {}
func (nopMetrics) ObserveDispatch(string, time.Duration) {}
