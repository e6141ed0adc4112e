package domain

import (
	"time"

	"github.com/google/uuid"
)

type IncidentState string

const (
	IncidentPending  IncidentState = "Pending"
	IncidentAttended IncidentState = "Attended"
)

const (
	DefaultIncidentLocation = "unspecified"
	DefaultReporter         = "unregistered"
)

// InjuryLevel: 1 = mild, 2 = moderate, 3 = severe.
type InjuryLevel int

func (l InjuryLevel) Valid() bool { return l >= 1 && l <= 3 }

type Intervention struct {
	Occurred    bool         `json:"occurred"`
	ReceivedAt  time.Time    `json:"received_at"`
	AttendedAt  *time.Time   `json:"attended_at"`
	AttendedBy  *string      `json:"attended_by"`
	InjuryLevel *InjuryLevel `json:"injury_level"`
}

type Incident struct {
	ID           uuid.UUID     `json:"id"`
	Location     string        `json:"location"`
	Time         time.Time     `json:"time"`
	Reporter     string        `json:"reporter"`
	Detail       string        `json:"detail"`
	State        IncidentState `json:"state"`
	IsFall       bool          `json:"is_fall"`
	ConfirmedBy  *string       `json:"confirmed_by"`
	Intervention Intervention  `json:"intervention"`
	CreatedAt    time.Time     `json:"created_at"`
}

// NewPendingIncident fills the defaults every freshly reported incident starts with.
func NewPendingIncident(location, detail, reporter string, isFall bool, now time.Time) *Incident {
	if location == "" {
		location = DefaultIncidentLocation
	}
	if reporter == "" {
		reporter = DefaultReporter
	}
	now = now.UTC()
	return &Incident{
		ID:       uuid.New(),
		Location: location,
		Time:     now,
		Reporter: reporter,
		Detail:   detail,
		State:    IncidentPending,
		IsFall:   isFall,
		Intervention: Intervention{
			Occurred:   false,
			ReceivedAt: now,
		},
		CreatedAt: now,
	}
}

// IncidentFilter mirrors the list view filters; zero values mean "any".
type IncidentFilter struct {
	Date     *time.Time
	State    IncidentState
	Location string
}
