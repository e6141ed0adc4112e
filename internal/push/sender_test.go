package push_test

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"careAlert/internal/config"
	"careAlert/internal/domain"
	"careAlert/internal/push"
	"careAlert/pkg/e"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSubscription(t *testing.T, endpoint string) domain.PushSubscription {
	t.Helper()

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	auth := make([]byte, 16)
	if _, err := rand.Read(auth); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return domain.PushSubscription{
		Endpoint: endpoint,
		Keys: domain.PushKeys{
			P256dh: base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(auth),
		},
	}
}

func newSender(t *testing.T) *push.Sender {
	t.Helper()

	priv, pub, err := push.GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("GenerateVAPIDKeys: %v", err)
	}
	return push.NewSender(testLogger(), config.PushConfig{
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		Subscriber:      "mailto:test@example.com",
		TTLSeconds:      30,
		DeliveryTimeout: 2 * time.Second,
	})
}

func TestSender_Send_StatusClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		status        int
		wantErr       bool
		wantPermanent bool
	}{
		{"created", http.StatusCreated, false, false},
		{"gone", http.StatusGone, true, true},
		{"not_found", http.StatusNotFound, true, true},
		{"rate_limited", http.StatusTooManyRequests, true, false},
		{"server_error", http.StatusInternalServerError, true, false},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			headers := make(chan http.Header, 1)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				headers <- r.Header.Clone()
				w.WriteHeader(c.status)
			}))
			defer srv.Close()

			sender := newSender(t)
			err := sender.Send(context.Background(), newSubscription(t, srv.URL+"/push/abc"), []byte(`{"title":"t"}`))

			h := <-headers
			if got := h.Get("Content-Encoding"); got != "aes128gcm" {
				t.Fatalf("expected aes128gcm payload, got %q", got)
			}
			if h.Get("Authorization") == "" {
				t.Fatalf("expected VAPID authorization header")
			}
			if c.wantErr != (err != nil) {
				t.Fatalf("wantErr=%v got %v", c.wantErr, err)
			}
			if push.IsPermanent(err) != c.wantPermanent {
				t.Fatalf("permanent=%v, want %v (err=%v)", push.IsPermanent(err), c.wantPermanent, err)
			}
			if c.wantPermanent && !errors.Is(err, e.ErrSubscriptionGone) {
				t.Fatalf("expected ErrSubscriptionGone, got %v", err)
			}
		})
	}
}

func TestSender_Send_TimeoutIsTransient(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := newSender(t).Send(ctx, newSubscription(t, srv.URL), []byte("x"))
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if push.IsPermanent(err) {
		t.Fatalf("timeout must be transient, got %v", err)
	}
}

func TestValidateKeys(t *testing.T) {
	t.Parallel()

	sub := newSubscription(t, "https://push.example/x")
	if err := push.ValidateKeys(sub.Keys.P256dh, sub.Keys.Auth); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := push.ValidateKeys("not-a-key", sub.Keys.Auth); !errors.Is(err, e.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := push.ValidateKeys(sub.Keys.P256dh, "c2hvcnQ"); !errors.Is(err, e.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEndpointHost(t *testing.T) {
	t.Parallel()

	if got := push.EndpointHost("https://fcm.googleapis.com/fcm/send/abc"); got != "fcm.googleapis.com" {
		t.Fatalf("got %q", got)
	}
	if got := push.EndpointHost("::bad"); got != "invalid" {
		t.Fatalf("got %q", got)
	}
}
