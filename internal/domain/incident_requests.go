package domain

import "github.com/google/uuid"

type CreateIncidentRequest struct {
	Location string `json:"location" validate:"omitempty,max=200"`
	Detail   string `json:"detail" validate:"omitempty,max=2000"`
	Reporter string `json:"reporter" validate:"omitempty,max=200"`
	IsFall   bool   `json:"is_fall"`
}

type ConfirmIncidentRequest struct {
	IsFall      *bool  `json:"is_fall" validate:"required"`
	ConfirmedBy string `json:"confirmed_by" validate:"required,max=100"`
}

type InterventionRequest struct {
	AttendedBy  string      `json:"attended_by" validate:"required,max=100"`
	InjuryLevel InjuryLevel `json:"injury_level" validate:"required,injury_level"`
	ConfirmedBy string      `json:"confirmed_by" validate:"required,max=100"`
	Reporter    *string     `json:"reporter" validate:"omitempty,max=200"`
	Location    *string     `json:"location" validate:"omitempty,max=200"`
	Detail      *string     `json:"detail" validate:"omitempty,max=2000"`
}

type ListIncidentsResponse struct {
	Incidents []*Incident `json:"incidents"`
	Page      int         `json:"page"`
	Limit     int         `json:"limit"`
	Total     int64       `json:"total"`
}

type DispatchStatus string

const (
	DispatchAccepted  DispatchStatus = "accepted"
	DispatchAttempted DispatchStatus = "attempted"
	DispatchDisabled  DispatchStatus = "disabled"
)

type DispatchInfo struct {
	Status DispatchStatus  `json:"status"`
	Report *DispatchReport `json:"report,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type CreateIncidentResponse struct {
	Incident *Incident   `json:"incident"`
	Dispatch DispatchInfo `json:"dispatch"`
}

type IncidentRef struct {
	ID uuid.UUID `json:"id"`
}
