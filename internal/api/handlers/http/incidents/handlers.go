package incidents

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"careAlert/internal/domain"
	"careAlert/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

//go:generate mockgen -source=handlers.go -destination=mocks/mock.go
type Incidents interface {
	Create(ctx context.Context, req domain.CreateIncidentRequest, wait bool) (*domain.CreateIncidentResponse, error)
	List(ctx context.Context, page, limit int) (*domain.ListIncidentsResponse, error)
	Filter(ctx context.Context, f domain.IncidentFilter) ([]*domain.Incident, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Incident, error)
	Confirm(ctx context.Context, id uuid.UUID, req domain.ConfirmIncidentRequest) (*domain.Incident, error)
	RecordIntervention(ctx context.Context, id uuid.UUID, req domain.InterventionRequest) (*domain.Incident, error)
}

type Handler struct {
	logger    *slog.Logger
	Incidents Incidents
}

func NewHandler(logger *slog.Logger, incidents Incidents) *Handler {
	return &Handler{logger: logger, Incidents: incidents}
}

// Routes expects to be mounted under /incidents.
func (h *Handler) Routes(r chi.Router) {
	r.With(middleware.BindJSON[domain.CreateIncidentRequest]()).Post("/", h.CreateIncident)
	r.Get("/", h.ListIncidents)
	r.Get("/filter", h.FilterIncidents)
	r.Route("/{id}", func(rr chi.Router) {
		rr.Get("/", h.GetIncident)
		rr.With(middleware.BindJSON[domain.ConfirmIncidentRequest]()).Patch("/confirmation", h.ConfirmIncident)
		rr.With(middleware.BindJSON[domain.InterventionRequest]()).Patch("/intervention", h.RecordIntervention)
	})
}

func (h *Handler) log(r *http.Request) *slog.Logger {
	reqID := chimw.GetReqID(r.Context())
	if reqID == "" {
		return h.logger
	}
	return h.logger.With(slog.String("request_id", reqID))
}

func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)

	req, ok := bound[domain.CreateIncidentRequest](h, w, r)
	if !ok {
		return
	}
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))

	resp, err := h.Incidents.Create(r.Context(), *req, wait)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	l.Info("incident reported",
		slog.String("id", resp.Incident.ID.String()),
		slog.String("dispatch", string(resp.Dispatch.Status)),
	)
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	page := parseInt(r.URL.Query().Get("page"), 1)
	limit := parseInt(r.URL.Query().Get("limit"), 20)

	resp, err := h.Incidents.List(r.Context(), page, limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) FilterIncidents(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)
	q := r.URL.Query()

	f := domain.IncidentFilter{
		State:    domain.IncidentState(strings.TrimSpace(q.Get("state"))),
		Location: q.Get("location"),
	}
	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		d, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			l.Warn("invalid date", slog.String("date", raw))
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
			return
		}
		f.Date = &d
	}

	items, err := h.Incidents.Filter(r.Context(), f)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"incidents": items, "total": len(items)})
}

func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := h.incidentID(w, r)
	if !ok {
		return
	}
	inc, err := h.Incidents.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inc)
}

func (h *Handler) ConfirmIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := h.incidentID(w, r)
	if !ok {
		return
	}
	req, ok := bound[domain.ConfirmIncidentRequest](h, w, r)
	if !ok {
		return
	}

	inc, err := h.Incidents.Confirm(r.Context(), id, *req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.log(r).Info("incident confirmed",
		slog.String("id", id.String()),
		slog.Bool("is_fall", inc.IsFall),
	)
	h.writeJSON(w, http.StatusOK, inc)
}

func (h *Handler) RecordIntervention(w http.ResponseWriter, r *http.Request) {
	id, ok := h.incidentID(w, r)
	if !ok {
		return
	}
	req, ok := bound[domain.InterventionRequest](h, w, r)
	if !ok {
		return
	}

	inc, err := h.Incidents.RecordIntervention(r.Context(), id, *req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inc)
}
