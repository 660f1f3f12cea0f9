package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/blocks"
	"github.com/wolfman30/clinic-booking/internal/catalog"
	"github.com/wolfman30/clinic-booking/internal/channels/messenger"
	"github.com/wolfman30/clinic-booking/internal/clinic"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/slots"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger             *logging.Logger
	Webhook            *messenger.WebhookHandler
	WebhookLimiter     *httpmiddleware.RateLimiter
	FreeTimes          *slots.Handler
	Appointments       *appointments.Handler
	Blocks             *blocks.Handler
	Services           *catalog.Handler
	Clinic             *clinic.Handler
	StaffJWTSecret     string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	ReadinessChecks    map[string]Check
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))

	// Public endpoints (webhook, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		public.Get("/ready", readiness(cfg.ReadinessChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhook != nil {
			public.Route("/webhook", func(wh chi.Router) {
				if cfg.WebhookLimiter != nil {
					wh.Use(cfg.WebhookLimiter.Middleware)
				}
				wh.Get("/", cfg.Webhook.HandleVerification)
				wh.Post("/", cfg.Webhook.HandleInbound)
			})
		}
		if cfg.FreeTimes != nil {
			public.Get("/api/free-times/{date}", cfg.FreeTimes.FreeTimes)
		}
	})

	// Staff routes (bearer JWT)
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.StaffJWT(cfg.StaffJWTSecret))
		if cfg.Appointments != nil {
			admin.Mount("/appointments", cfg.Appointments.Routes())
		}
		if cfg.Blocks != nil {
			admin.Mount("/blocks", cfg.Blocks.Routes())
		}
		if cfg.Services != nil {
			admin.Get("/services", cfg.Services.List)
		}
		if cfg.Clinic != nil {
			admin.Get("/clinic", cfg.Clinic.GetProfile)
		}
	})

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readiness(checks map[string]Check) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": results})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
