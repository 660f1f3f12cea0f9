package catalog

import (
	"encoding/json"
	"net/http"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Handler exposes the read-only service list to the staff dashboard.
type Handler struct {
	repo   *Repository
	logger *logging.Logger
}

func NewHandler(repo *Repository, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("catalog: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /admin/services.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	services, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("list services failed", "error", err)
		http.Error(w, "failed to list services", http.StatusInternalServerError)
		return
	}
	if services == nil {
		services = []Service{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"services": services})
}
