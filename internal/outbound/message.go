// Package outbound describes bot replies independently of the messaging
// platform that renders them.
package outbound

import (
	"context"
	"sync"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// MaxQuickReplies is the platform cap on quick replies per message.
const MaxQuickReplies = 13

// Choice is a tappable option carrying a payload back to the bot.
type Choice struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// Card is one element of a carousel.
type Card struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Buttons  []Choice `json:"buttons,omitempty"`
}

// Message is a single reply. Text is shown with quick replies; Cards are
// rendered as a carousel after the text.
type Message struct {
	Text         string   `json:"text,omitempty"`
	QuickReplies []Choice `json:"quick_replies,omitempty"`
	Cards        []Card   `json:"cards,omitempty"`
}

// Text builds a plain text message.
func Text(text string) Message {
	return Message{Text: text}
}

// WithChoices builds a text message offering the given quick replies,
// truncated to MaxQuickReplies.
func WithChoices(text string, choices ...Choice) Message {
	if len(choices) > MaxQuickReplies {
		choices = choices[:MaxQuickReplies]
	}
	return Message{Text: text, QuickReplies: append([]Choice(nil), choices...)}
}

// Notifier delivers a message to an actor. Implementations bound their own
// latency, never panic, and report success as a bool; callers never roll
// back on failure.
type Notifier interface {
	Send(ctx context.Context, actorID string, msg Message) bool
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, actorID string, msg Message) bool

func (f NotifierFunc) Send(ctx context.Context, actorID string, msg Message) bool {
	return f(ctx, actorID, msg)
}

// LogNotifier only logs messages. Used when no page token is configured.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, actorID string, msg Message) bool {
	n.logger.Info("outbound: would send message",
		"actor_id", actorID,
		"text", msg.Text,
		"quick_replies", len(msg.QuickReplies),
		"cards", len(msg.Cards),
	)
	return true
}

// Sent is one recorded delivery.
type Sent struct {
	ActorID string
	Message Message
}

// Recorder captures deliveries in memory, for tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	Fail bool
}

func (r *Recorder) Send(_ context.Context, actorID string, msg Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{ActorID: actorID, Message: msg})
	return !r.Fail
}

// Messages returns a snapshot of everything sent so far.
func (r *Recorder) Messages() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Reset drops recorded deliveries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
