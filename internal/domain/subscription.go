package domain

import "time"

type PushKeys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

// PushSubscription is keyed by Endpoint.
type PushSubscription struct {
	Endpoint  string    `json:"endpoint" validate:"required,url,max=2048"`
	Keys      PushKeys  `json:"keys"`
	StaffCode *string   `json:"staff_code,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type SubscribeRequest struct {
	Subscription PushSubscription `json:"subscription"`
	StaffCode    string           `json:"staff_code" validate:"omitempty,staff_code"`
}

type SubscribeResponse struct {
	Endpoint string `json:"endpoint"`
	Linked   bool   `json:"linked"`
}
