package clinic

import (
	"encoding/json"
	"net/http"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Handler exposes the loaded clinic profile to the staff dashboard.
type Handler struct {
	profile *Profile
	logger  *logging.Logger
}

// NewHandler creates a clinic profile HTTP handler.
func NewHandler(profile *Profile, logger *logging.Logger) *Handler {
	if profile == nil {
		profile = DefaultProfile()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{profile: profile, logger: logger}
}

// ProfileView is the JSON shape of GET /admin/clinic.
type ProfileView struct {
	Name           string          `json:"name"`
	Address        string          `json:"address"`
	Phone          string          `json:"phone"`
	Email          string          `json:"email"`
	Timezone       string          `json:"timezone"`
	Slots          []string        `json:"slots"`
	PaymentMethods []PaymentMethod `json:"payment_methods"`
}

// GetProfile returns the clinic profile with slots in display form.
// GET /admin/clinic
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	view := ProfileView{
		Name:           h.profile.Name,
		Address:        h.profile.Address,
		Phone:          h.profile.Phone,
		Email:          h.profile.Email,
		Timezone:       h.profile.Location().String(),
		PaymentMethods: h.profile.PaymentMethods,
	}
	for _, c := range h.profile.Slots() {
		view.Slots = append(view.Slots, c.Display())
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		h.logger.Error("failed to encode clinic profile", "error", err)
	}
}
