package service

import (
	"fmt"
	"strings"
	"time"

	"careAlert/internal/domain"
)

// BuildPayload merges the intent with the resolved incident. Explicit request
// fields win; the incident fills the gaps; fixed defaults cover the rest.
func BuildPayload(req domain.NotifyRequest, inc *domain.Incident, now time.Time) domain.NotificationPayload {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = domain.DefaultNotificationTitle
	}

	location := firstNonEmpty(ptrValue(req.Location), incidentLocation(inc), domain.DefaultNotificationLocation)
	detail := firstNonEmpty(ptrValue(req.Detail), inc.Detail, domain.DefaultNotificationDetail)

	isFall := inc.IsFall
	if req.IsFall != nil {
		isFall = *req.IsFall
	}

	return domain.NotificationPayload{
		Title: title,
		Body:  req.Body,
		Data: domain.NotificationData{
			IncidentID: inc.ID,
			Location:   location,
			Detail:     detail,
			IsFall:     isFall,
			CreatedAt:  now.UTC(),
		},
	}
}

// incidentIntent is what an incident report says when nobody wrote a message for it.
func incidentIntent(inc *domain.Incident) domain.NotifyRequest {
	title := "New incident reported"
	if inc.IsFall {
		title = "Possible fall detected"
	}
	body := fmt.Sprintf("%s at %s", title, inc.Location)
	if inc.Reporter != "" && inc.Reporter != domain.DefaultReporter {
		body += fmt.Sprintf(" (reported by %s)", inc.Reporter)
	}
	return domain.NotifyRequest{Title: title, Body: body}
}

func incidentLocation(inc *domain.Incident) string {
	if inc.Location == domain.DefaultIncidentLocation {
		return ""
	}
	return inc.Location
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func ptrValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
