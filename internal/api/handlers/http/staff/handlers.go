package staff

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"careAlert/internal/domain"
	"careAlert/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

//go:generate mockgen -source=handlers.go -destination=mocks/mock.go
type Directory interface {
	Create(ctx context.Context, req domain.CreateStaffRequest) (*domain.StaffMember, error)
	Get(ctx context.Context, code string) (*domain.StaffMember, error)
	List(ctx context.Context) ([]*domain.StaffMember, error)
	Update(ctx context.Context, code string, req domain.UpdateStaffRequest) (*domain.StaffMember, error)
	Delete(ctx context.Context, code string) error
}

type Handler struct {
	logger    *slog.Logger
	Directory Directory
}

func NewHandler(logger *slog.Logger, dir Directory) *Handler {
	return &Handler{logger: logger, Directory: dir}
}

// Routes expects to be mounted under /professionals.
func (h *Handler) Routes(r chi.Router) {
	r.With(middleware.BindJSON[domain.CreateStaffRequest]()).Post("/", h.CreateStaff)
	r.Get("/", h.ListStaff)
	r.Route("/{code}", func(rr chi.Router) {
		rr.Get("/", h.GetStaff)
		rr.With(middleware.BindJSON[domain.UpdateStaffRequest]()).Put("/", h.UpdateStaff)
		rr.Delete("/", h.DeleteStaff)
	})
}

func (h *Handler) log(r *http.Request) *slog.Logger {
	reqID := chimw.GetReqID(r.Context())
	if reqID == "" {
		return h.logger
	}
	return h.logger.With(slog.String("request_id", reqID))
}

func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	req := middleware.Payload[domain.CreateStaffRequest](r.Context())
	if req == nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing body"})
		return
	}

	m, err := h.Directory.Create(r.Context(), *req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.log(r).Info("staff member registered", slog.String("code", m.Code))
	h.writeJSON(w, http.StatusCreated, toView(m))
}

func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	items, err := h.Directory.List(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	views := make([]staffView, 0, len(items))
	for _, m := range items {
		views = append(views, toView(m))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"professionals": views, "total": len(views)})
}

func (h *Handler) GetStaff(w http.ResponseWriter, r *http.Request) {
	m, err := h.Directory.Get(r.Context(), staffCode(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toView(m))
}

func (h *Handler) UpdateStaff(w http.ResponseWriter, r *http.Request) {
	req := middleware.Payload[domain.UpdateStaffRequest](r.Context())
	if req == nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing body"})
		return
	}

	m, err := h.Directory.Update(r.Context(), staffCode(r), *req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toView(m))
}

func (h *Handler) DeleteStaff(w http.ResponseWriter, r *http.Request) {
	code := staffCode(r)
	if err := h.Directory.Delete(r.Context(), code); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.log(r).Info("staff member removed", slog.String("code", code))
	w.WriteHeader(http.StatusNoContent)
}

func staffCode(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "code"))
}
