package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultNotificationTitle    = "New alert"
	DefaultNotificationLocation = "unspecified location"
	DefaultNotificationDetail   = "no additional detail"
)

// NotifyRequest is a notification intent. Without IncidentID the dispatcher persists
// a minimal incident first so that every payload carries a real id.
type NotifyRequest struct {
	Title      string     `json:"title" validate:"required,max=200"`
	Body       string     `json:"body" validate:"required,max=2000"`
	IncidentID *uuid.UUID `json:"incident_id"`
	Location   *string    `json:"location" validate:"omitempty,max=200"`
	Detail     *string    `json:"detail" validate:"omitempty,max=2000"`
	IsFall     *bool      `json:"is_fall"`
}

type NotificationData struct {
	IncidentID uuid.UUID `json:"incident_id"`
	Location   string    `json:"location"`
	Detail     string    `json:"detail"`
	IsFall     bool      `json:"is_fall"`
	CreatedAt  time.Time `json:"created_at"`
}

// NotificationPayload is built once per dispatch and never persisted.
type NotificationPayload struct {
	Title string           `json:"title"`
	Body  string           `json:"body"`
	Data  NotificationData `json:"data"`
}

type DeliveryOutcome struct {
	StaffCode string
	Endpoint  string
	Err       error
	Permanent bool
	Pruned    bool
}

func (o DeliveryOutcome) Delivered() bool { return o.Err == nil }

type DispatchReport struct {
	IncidentID     uuid.UUID         `json:"incident_id"`
	RecipientCount int               `json:"recipient_count"`
	Delivered      int               `json:"delivered"`
	Failed         int               `json:"failed"`
	Pruned         int               `json:"pruned"`
	NoRecipients   bool              `json:"-"`
	Outcomes       []DeliveryOutcome `json:"-"`
}
