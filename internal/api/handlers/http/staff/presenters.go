package staff

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"careAlert/internal/domain"
	"careAlert/pkg/e"
)

// staffView keeps subscription key material out of responses.
type staffView struct {
	Code         string             `json:"code"`
	Name         string             `json:"name"`
	Schedule     string             `json:"schedule"`
	Status       domain.StaffStatus `json:"status"`
	Subscribed   bool               `json:"subscribed"`
	SubscribedAt *time.Time         `json:"subscribed_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func toView(m *domain.StaffMember) staffView {
	v := staffView{
		Code:      m.Code,
		Name:      m.Name,
		Schedule:  m.Schedule,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.Subscription != nil {
		v.Subscribed = true
		if !m.Subscription.UpdatedAt.IsZero() {
			at := m.Subscription.UpdatedAt
			v.SubscribedAt = &at
		}
	}
	return v
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	l := h.log(r)

	switch {
	case errors.Is(err, e.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, e.ErrInvalidInput):
		l.Warn("invalid input", slog.Any("error", err))
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid input"})
	case errors.Is(err, e.ErrUniqueViolation), errors.Is(err, e.ErrConflict):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "code already registered"})
	default:
		l.Error("handler error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
