package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Handler serves the staff appointment endpoints.
type Handler struct {
	manager  *Manager
	validate *validator.Validate
	logger   *logging.Logger
}

func NewHandler(manager *Manager, logger *logging.Logger) *Handler {
	if manager == nil {
		panic("appointments: manager required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{manager: manager, validate: validator.New(), logger: logger}
}

// Routes mounts under /admin/appointments.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/approve", h.Approve)
	r.Post("/{id}/decline", h.Decline)
	r.Post("/{id}/reschedule", h.Reschedule)
	r.Post("/{id}/cancel", h.Cancel)
	r.Post("/{id}/done", h.Done)
	return r
}

// View is an appointment with its derived display status.
type View struct {
	Appointment
	DisplayTime string  `json:"display_time"`
	Display     Display `json:"display"`
}

type declineRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type rescheduleRequest struct {
	Date string `json:"date" validate:"required,len=10"`
	Time string `json:"time" validate:"required,max=16"`
}

// List handles GET /admin/appointments with optional date, from, to,
// status (comma separated), actor_id and limit query parameters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filter{
		Date:    strings.TrimSpace(q.Get("date")),
		From:    strings.TrimSpace(q.Get("from")),
		To:      strings.TrimSpace(q.Get("to")),
		ActorID: strings.TrimSpace(q.Get("actor_id")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			s := Status(strings.ToLower(strings.TrimSpace(part)))
			if !s.Valid() {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status " + part})
				return
			}
			f.Statuses = append(f.Statuses, s)
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		f.Limit = n
	}

	list, err := h.manager.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list appointments failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list appointments"})
		return
	}
	today := h.manager.Today()
	views := make([]View, 0, len(list))
	for _, a := range list {
		views = append(views, newView(a, today))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": views})
}

// Get handles GET /admin/appointments/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, newView(*a, h.manager.Today()))
}

// Approve handles POST /admin/appointments/{id}/approve.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	a, err := h.manager.ApprovePayment(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, "approve", a, err)
}

// Decline handles POST /admin/appointments/{id}/decline.
func (h *Handler) Decline(w http.ResponseWriter, r *http.Request) {
	var req declineRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	a, err := h.manager.DeclinePayment(r.Context(), chi.URLParam(r, "id"), req.Reason)
	h.respond(w, "decline", a, err)
}

// Reschedule handles POST /admin/appointments/{id}/reschedule.
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	a, err := h.manager.Reschedule(r.Context(), chi.URLParam(r, "id"), req.Date, req.Time, OriginStaff)
	h.respond(w, "reschedule", a, err)
}

// Cancel handles POST /admin/appointments/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	a, err := h.manager.Cancel(r.Context(), chi.URLParam(r, "id"), OriginStaff)
	h.respond(w, "cancel", a, err)
}

// Done handles POST /admin/appointments/{id}/done.
func (h *Handler) Done(w http.ResponseWriter, r *http.Request) {
	a, err := h.manager.MarkDone(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, "done", a, err)
}

func (h *Handler) respond(w http.ResponseWriter, op string, a *Appointment, err error) {
	if err != nil {
		h.writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newView(*a, h.manager.Today()))
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "appointment not found"})
	case errors.Is(err, ErrSlotTaken):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "that slot is already taken"})
	case errors.Is(err, ErrTerminal):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "appointment is already closed"})
	case errors.Is(err, ErrInvalidSlot):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("appointment operation failed", "operation", op, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to " + op + " appointment"})
	}
}

func newView(a Appointment, today string) View {
	return View{Appointment: a, DisplayTime: a.DisplayTime(), Display: Project(a, today)}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
