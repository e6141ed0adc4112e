package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"careAlert/internal/config"
	"careAlert/internal/domain"
	"careAlert/pkg/e"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// DeliveryError carries the push service's HTTP status for a rejected message.
type DeliveryError struct {
	StatusCode int
	Status     string
}

func (d *DeliveryError) Error() string {
	return fmt.Sprintf("push service rejected message: %s", d.Status)
}

// Is makes 404 and 410 match e.ErrSubscriptionGone.
func (d *DeliveryError) Is(target error) bool {
	return target == e.ErrSubscriptionGone &&
		(d.StatusCode == http.StatusNotFound || d.StatusCode == http.StatusGone)
}

// IsPermanent reports whether err means the subscription should stop being targeted.
func IsPermanent(err error) bool {
	return errors.Is(err, e.ErrSubscriptionGone)
}

type Sender struct {
	logger  *slog.Logger
	options webpush.Options
}

func NewSender(logger *slog.Logger, cfg config.PushConfig) *Sender {
	return &Sender{
		logger: logger,
		options: webpush.Options{
			HTTPClient:      &http.Client{Timeout: cfg.DeliveryTimeout},
			Subscriber:      cfg.Subscriber,
			TTL:             cfg.TTLSeconds,
			Urgency:         webpush.UrgencyHigh,
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		},
	}
}

// WithHTTPClient swaps the transport, mostly for tests.
func (s *Sender) WithHTTPClient(c webpush.HTTPClient) *Sender {
	cp := *s
	cp.options.HTTPClient = c
	return &cp
}

func (s *Sender) Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error {
	const op = "push.Sender.Send"

	start := time.Now()
	opts := s.options
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &opts)
	if err != nil {
		return e.Wrap(op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	s.logger.Debug("push response",
		slog.String("endpoint_host", EndpointHost(sub.Endpoint)),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return e.Wrap(op, &DeliveryError{StatusCode: resp.StatusCode, Status: resp.Status})
}

// EndpointHost keeps full endpoints (they are bearer-like capabilities) out of logs.
func EndpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "invalid"
	}
	return u.Host
}

func GenerateVAPIDKeys() (privateKey, publicKey string, err error) {
	return webpush.GenerateVAPIDKeys()
}
