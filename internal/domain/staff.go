package domain

import "time"

type StaffStatus string

const (
	StaffActive   StaffStatus = "Active"
	StaffInactive StaffStatus = "Inactive"
)

// StaffMember holds at most one push subscription; registering a new one replaces the old.
type StaffMember struct {
	Code         string            `json:"code"`
	Name         string            `json:"name"`
	Schedule     string            `json:"schedule"`
	Status       StaffStatus       `json:"status"`
	Subscription *PushSubscription `json:"subscription,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type CreateStaffRequest struct {
	Code     string      `json:"code" validate:"required,staff_code"`
	Name     string      `json:"name" validate:"required,max=200"`
	Schedule string      `json:"schedule" validate:"required,max=200"`
	Status   StaffStatus `json:"status" validate:"omitempty,oneof=Active Inactive"`
}

type UpdateStaffRequest struct {
	Name               *string      `json:"name" validate:"omitempty,max=200"`
	Schedule           *string      `json:"schedule" validate:"omitempty,max=200"`
	Status             *StaffStatus `json:"status" validate:"omitempty,oneof=Active Inactive"`
	RemoveSubscription bool         `json:"remove_subscription"`
}
