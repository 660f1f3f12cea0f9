package bootstrap

import (
	"strings"

	"github.com/wolfman30/clinic-booking/internal/channels/messenger"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/outbound"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// BuildNotifier picks the Messenger Send API when a page token is set and a
// logging notifier otherwise. It reports the provider and, when falling
// back, the reason.
func BuildNotifier(cfg *appconfig.Config, m *metrics.BookingMetrics, logger *logging.Logger) (outbound.Notifier, string, string) {
	if cfg == nil {
		return outbound.NewLogNotifier(logger), "log", "missing config"
	}
	if strings.TrimSpace(cfg.PageAccessToken) == "" {
		return outbound.NewLogNotifier(logger), "log", "PAGE_ACCESS_TOKEN not set"
	}
	client := messenger.NewClient(cfg.PageAccessToken, cfg.GraphAPIBase)
	return messenger.NewNotifier(client, cfg.NotifyTimeout, m, logger), "messenger", ""
}
