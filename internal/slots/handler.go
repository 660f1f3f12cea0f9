package slots

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Handler serves GET /api/free-times/{date}.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("slots: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// FreeTimes returns the free display labels as a JSON array.
func (h *Handler) FreeTimes(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	labels, err := h.service.FreeSlots(r.Context(), date)
	if err != nil {
		if errors.Is(err, ErrInvalidDate) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
			return
		}
		h.logger.Error("free times lookup failed", "date", date, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "availability unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, labels)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
