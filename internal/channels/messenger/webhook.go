package messenger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/wolfman30/clinic-booking/internal/dispatch"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const maxWebhookBody = 1 << 20

// Sink receives normalized turns.
type Sink interface {
	Dispatch(ctx context.Context, turns []dispatch.Turn) error
}

// WebhookConfig configures a WebhookHandler. AppSecret may be empty in
// development, which disables signature checks.
type WebhookConfig struct {
	VerifyToken string
	AppSecret   string
	Location    *time.Location
	Now         func() time.Time
	Timeout     time.Duration
	Metrics     *metrics.BookingMetrics
	Logger      *logging.Logger
}

// WebhookHandler handles Messenger webhook verification and inbound events.
type WebhookHandler struct {
	cfg      WebhookConfig
	sink     Sink
	inflight sync.WaitGroup
}

func NewWebhookHandler(cfg WebhookConfig, sink Sink) *WebhookHandler {
	if sink == nil {
		panic("messenger: sink required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{cfg: cfg, sink: sink}
}

// HandleVerification handles the GET webhook verification challenge from Meta.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && h.cfg.VerifyToken != "" && token == h.cfg.VerifyToken {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	h.cfg.Logger.Warn("messenger: webhook verification rejected", "mode", mode)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleInbound answers 200 as soon as the batch is parsed and processes
// it in the background on a context detached from the request.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if h.cfg.AppSecret != "" && !VerifySignature(h.cfg.AppSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.cfg.Logger.Warn("messenger: invalid webhook signature")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// Meta retries anything slower than a few seconds.
	w.WriteHeader(http.StatusOK)

	turns := Normalize(event, h.cfg.Now(), h.cfg.Location)
	if len(turns) == 0 {
		return
	}
	for _, t := range turns {
		h.cfg.Metrics.ObserveInbound(string(t.Kind))
	}

	ctx := context.WithoutCancel(r.Context())
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
		defer cancel()
		if err := h.sink.Dispatch(ctx, turns); err != nil {
			h.cfg.Logger.Error("messenger: dispatch failed", "turns", len(turns), "error", err)
		}
	}()
}

// Wait blocks until background batches finish.
func (h *WebhookHandler) Wait() {
	h.inflight.Wait()
}

// VerifySignature verifies the X-Hub-Signature-256 header.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	// Signature format: "sha256=<hex>"
	const prefix = "sha256="
	if len(signature) <= len(prefix) || signature[:len(prefix)] != prefix {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sigHex))
}
