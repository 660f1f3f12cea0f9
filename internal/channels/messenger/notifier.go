package messenger

import (
	"context"
	"time"

	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/outbound"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Notifier adapts Client to outbound.Notifier. Every send is bounded by
// its own timeout and failures only surface as false.
type Notifier struct {
	client  *Client
	timeout time.Duration
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
}

func NewNotifier(client *Client, timeout time.Duration, m *metrics.BookingMetrics, logger *logging.Logger) *Notifier {
	if client == nil {
		panic("messenger: client required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Notifier{client: client, timeout: timeout, metrics: m, logger: logger}
}

func (n *Notifier) Send(ctx context.Context, actorID string, msg outbound.Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("messenger: send panicked", "actor_id", actorID, "panic", r)
			n.metrics.ObserveOutbound("error")
			ok = false
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.client.SendMessage(ctx, actorID, msg); err != nil {
		n.logger.Warn("messenger: failed to send message", "actor_id", actorID, "error", err)
		n.metrics.ObserveOutbound("error")
		return false
	}
	n.metrics.ObserveOutbound("ok")
	return true
}
