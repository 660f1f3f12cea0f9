package blocks

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/clinic-booking/internal/slots"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Handler serves the staff block endpoints.
type Handler struct {
	repo     *Repository
	validate *validator.Validate
	loc      *time.Location
	logger   *logging.Logger
}

func NewHandler(repo *Repository, loc *time.Location, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("blocks: repository required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, validate: validator.New(), loc: loc, logger: logger}
}

// Routes mounts under /admin/blocks.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Delete("/{id}", h.Delete)
	return r
}

type createRequest struct {
	Date      string `json:"date" validate:"required"`
	StartHour int    `json:"start_hour" validate:"gte=0,lte=23"`
	EndHour   int    `json:"end_hour" validate:"gtfield=StartHour,lte=24"`
	Reason    string `json:"reason" validate:"max=200"`
}

// List handles GET /admin/blocks?date=YYYY-MM-DD. Without a date it lists
// blocks from today onward.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	var (
		blocks []Range
		err    error
	)
	if date == "" {
		blocks, err = h.repo.ListFrom(r.Context(), slots.Today(time.Now(), h.loc).Format(slots.DateLayout))
	} else {
		if _, perr := slots.ParseDate(date, h.loc); perr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
			return
		}
		blocks, err = h.repo.ListByDate(r.Context(), date)
	}
	if err != nil {
		h.logger.Error("list blocks failed", "date", date, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list blocks"})
		return
	}
	if blocks == nil {
		blocks = []Range{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocks": blocks})
}

// Create handles POST /admin/blocks.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	d, err := slots.ParseDate(req.Date, h.loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
		return
	}

	block, err := h.repo.Create(r.Context(), d.Format(slots.DateLayout), req.StartHour, req.EndHour, strings.TrimSpace(req.Reason))
	if err != nil {
		h.logger.Error("create block failed", "date", req.Date, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create block"})
		return
	}
	h.logger.Info("time range blocked", "block_id", block.ID, "date", block.Date, "start_hour", block.StartHour, "end_hour", block.EndHour)
	writeJSON(w, http.StatusCreated, block)
}

// Delete handles DELETE /admin/blocks/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "block not found"})
			return
		}
		h.logger.Error("delete block failed", "block_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete block"})
		return
	}
	h.logger.Info("time range unblocked", "block_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
