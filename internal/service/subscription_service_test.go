package service_test

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"

	"careAlert/internal/domain"
	"careAlert/internal/service"
	"careAlert/pkg/e"

	mock_service "careAlert/internal/service/mocks"
)

func validKeys(t *testing.T) domain.PushKeys {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return domain.PushKeys{
		P256dh: base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		Auth:   base64.RawURLEncoding.EncodeToString(secret),
	}
}

func TestSubscriptionService_Register_LinksAndReplaces(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	staff := mock_service.NewMockStaffDirectory(ctrl)
	subs := mock_service.NewMockSubscriptionStore(ctrl)

	keys := validKeys(t)
	const newEP = "https://push.example.com/new"
	const oldEP = "https://push.example.com/old"

	staff.EXPECT().SetSubscription(gomock.Any(), "N01", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, sub domain.PushSubscription) (*domain.PushSubscription, error) {
			if sub.Endpoint != newEP || sub.Keys != keys {
				t.Fatalf("unexpected subscription: %+v", sub)
			}
			return &domain.PushSubscription{Endpoint: oldEP}, nil
		})
	subs.EXPECT().DeleteByEndpoint(gomock.Any(), oldEP).Return(nil)
	subs.EXPECT().Upsert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, sub domain.PushSubscription) error {
			if sub.StaffCode == nil || *sub.StaffCode != "N01" {
				t.Fatalf("index entry not linked: %+v", sub)
			}
			return nil
		})

	svc := service.NewSubscriptionService(staff, subs, testLogger())
	resp, err := svc.Register(context.Background(), domain.SubscribeRequest{
		Subscription: domain.PushSubscription{Endpoint: newEP, Keys: keys},
		StaffCode:    "N01",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !resp.Linked || resp.Endpoint != newEP {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSubscriptionService_Register_SameEndpointKeepsIndex(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	staff := mock_service.NewMockStaffDirectory(ctrl)
	subs := mock_service.NewMockSubscriptionStore(ctrl)

	const ep = "https://push.example.com/same"
	staff.EXPECT().SetSubscription(gomock.Any(), "N01", gomock.Any()).
		Return(&domain.PushSubscription{Endpoint: ep}, nil)
	subs.EXPECT().DeleteByEndpoint(gomock.Any(), gomock.Any()).Times(0)
	subs.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

	svc := service.NewSubscriptionService(staff, subs, testLogger())
	if _, err := svc.Register(context.Background(), domain.SubscribeRequest{
		Subscription: domain.PushSubscription{Endpoint: ep, Keys: validKeys(t)},
		StaffCode:    "N01",
	}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestSubscriptionService_Register_UnknownStaffStillStored(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	staff := mock_service.NewMockStaffDirectory(ctrl)
	subs := mock_service.NewMockSubscriptionStore(ctrl)

	staff.EXPECT().SetSubscription(gomock.Any(), "GHOST", gomock.Any()).
		Return(nil, e.Wrap("repo", e.ErrNotFound))
	subs.EXPECT().Upsert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, sub domain.PushSubscription) error {
			if sub.StaffCode != nil {
				t.Fatalf("unlinked subscription carries staff code %q", *sub.StaffCode)
			}
			return nil
		})

	svc := service.NewSubscriptionService(staff, subs, testLogger())
	resp, err := svc.Register(context.Background(), domain.SubscribeRequest{
		Subscription: domain.PushSubscription{Endpoint: "https://push.example.com/x", Keys: validKeys(t)},
		StaffCode:    "GHOST",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.Linked {
		t.Fatalf("expected unlinked subscription")
	}
}

func TestSubscriptionService_Register_Anonymous(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	staff := mock_service.NewMockStaffDirectory(ctrl)
	subs := mock_service.NewMockSubscriptionStore(ctrl)

	staff.EXPECT().SetSubscription(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	subs.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

	svc := service.NewSubscriptionService(staff, subs, testLogger())
	resp, err := svc.Register(context.Background(), domain.SubscribeRequest{
		Subscription: domain.PushSubscription{Endpoint: "https://push.example.com/anon", Keys: validKeys(t)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if resp.Linked {
		t.Fatalf("expected unlinked subscription")
	}
}

func TestSubscriptionService_Register_InvalidInput(t *testing.T) {
	t.Parallel()

	good := validKeys(t)
	tests := []struct {
		name string
		sub  domain.PushSubscription
	}{
		{name: "missing endpoint", sub: domain.PushSubscription{Keys: good}},
		{name: "bad p256dh", sub: domain.PushSubscription{Endpoint: "https://push.example.com/a", Keys: domain.PushKeys{P256dh: "abc", Auth: good.Auth}}},
		{name: "bad auth", sub: domain.PushSubscription{Endpoint: "https://push.example.com/a", Keys: domain.PushKeys{P256dh: good.P256dh, Auth: "AAAA"}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			staff := mock_service.NewMockStaffDirectory(ctrl)
			subs := mock_service.NewMockSubscriptionStore(ctrl)

			svc := service.NewSubscriptionService(staff, subs, testLogger())
			_, err := svc.Register(context.Background(), domain.SubscribeRequest{Subscription: tt.sub, StaffCode: "N01"})
			if !errors.Is(err, e.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}
