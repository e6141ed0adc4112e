package notifications

import (
	"context"
	"log/slog"
	"net/http"

	"careAlert/internal/domain"
	"careAlert/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

//go:generate mockgen -source=handlers.go -destination=mocks/mock.go
type Subscriptions interface {
	Register(ctx context.Context, req domain.SubscribeRequest) (*domain.SubscribeResponse, error)
}

type Dispatcher interface {
	Notify(ctx context.Context, req domain.NotifyRequest) (*domain.DispatchReport, error)
}

type Handler struct {
	logger        *slog.Logger
	Subscriptions Subscriptions
	// nil when push is not configured
	Dispatcher     Dispatcher
	vapidPublicKey string
}

func NewHandler(logger *slog.Logger, subs Subscriptions, dispatcher Dispatcher, vapidPublicKey string) *Handler {
	return &Handler{
		logger:         logger,
		Subscriptions:  subs,
		Dispatcher:     dispatcher,
		vapidPublicKey: vapidPublicKey,
	}
}

// PublicRoutes need no token: browsers fetch the key before anyone logs in.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Get("/vapid-public-key", h.VAPIDPublicKey)
}

func (h *Handler) Routes(r chi.Router) {
	r.With(middleware.BindJSON[domain.SubscribeRequest]()).Post("/subscribe", h.Subscribe)
	r.With(middleware.BindJSON[domain.NotifyRequest]()).Post("/notify", h.Notify)
}

func (h *Handler) log(r *http.Request) *slog.Logger {
	reqID := chimw.GetReqID(r.Context())
	if reqID == "" {
		return h.logger
	}
	return h.logger.With(slog.String("request_id", reqID))
}

func (h *Handler) VAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	if h.vapidPublicKey == "" {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "push notifications are not configured"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"public_key": h.vapidPublicKey})
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	req := middleware.Payload[domain.SubscribeRequest](r.Context())
	if req == nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing body"})
		return
	}

	resp, err := h.Subscriptions.Register(r.Context(), *req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	l := h.log(r)

	if h.Dispatcher == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "push notifications are not configured"})
		return
	}
	req := middleware.Payload[domain.NotifyRequest](r.Context())
	if req == nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing body"})
		return
	}

	report, err := h.Dispatcher.Notify(r.Context(), *req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if report.NoRecipients {
		l.Info("notify found no recipients", slog.String("incident_id", report.IncidentID.String()))
		h.writeJSON(w, http.StatusNotFound, map[string]any{
			"message":     "no subscribed recipients",
			"incident_id": report.IncidentID,
		})
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}
