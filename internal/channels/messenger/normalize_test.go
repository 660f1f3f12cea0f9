package messenger

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/wolfman30/clinic-booking/internal/booking"
)

func TestNormalize(t *testing.T) {
	manila, err := time.LoadLocation("Asia/Manila")
	if err != nil {
		t.Fatal(err)
	}
	// Saturday 2025-12-20 23:30 in Manila, still Saturday afternoon in UTC.
	now := time.Date(2025, 12, 20, 15, 30, 0, 0, time.UTC)

	image := func(url string) InboundAttachment {
		a := InboundAttachment{Type: "image"}
		a.Payload.URL = url
		return a
	}
	file := InboundAttachment{Type: "file"}
	file.Payload.URL = "https://cdn/doc.pdf"

	tests := []struct {
		name  string
		m     Messaging
		kind  booking.Kind
		token string
	}{
		{"postback", Messaging{Postback: &Postback{MID: "p1", Payload: " BOOK_APPT "}}, booking.KindPostback, "BOOK_APPT"},
		{"time quick reply", Messaging{Message: &Message{MID: "q1", Text: "2:00 PM", QuickReply: &InboundQuickReply{Payload: "TIME_2:00 PM"}}}, booking.KindQuickReply, "2:00 PM"},
		{"tomorrow", Messaging{Message: &Message{QuickReply: &InboundQuickReply{Payload: "DATE_TOMORROW"}}}, booking.KindQuickReply, "2025-12-21"},
		{"next monday", Messaging{Message: &Message{QuickReply: &InboundQuickReply{Payload: "DATE_NEXT_MONDAY"}}}, booking.KindQuickReply, "2025-12-22"},
		{"pick date", Messaging{Message: &Message{QuickReply: &InboundQuickReply{Payload: "DATE_PICK"}}}, booking.KindQuickReply, booking.PickDate},
		{"manual date", Messaging{Message: &Message{QuickReply: &InboundQuickReply{Payload: "DATE_MANUAL"}}}, booking.KindQuickReply, booking.PickDate},
		{"other quick reply", Messaging{Message: &Message{QuickReply: &InboundQuickReply{Payload: "DP_YES"}}}, booking.KindQuickReply, "DP_YES"},
		{"first image wins", Messaging{Message: &Message{Attachments: []InboundAttachment{file, image("https://cdn/a.jpg"), image("https://cdn/b.jpg")}}}, booking.KindImage, "https://cdn/a.jpg"},
		{"text trimmed", Messaging{Message: &Message{Text: "  2025-12-24\n"}}, booking.KindText, "2025-12-24"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.m.Sender = Sender{ID: "psid"}
			turns := Normalize(WebhookEvent{Entry: []Entry{{Messaging: []Messaging{tt.m}}}}, now, manila)
			if len(turns) != 1 {
				t.Fatalf("expected 1 turn, got %d", len(turns))
			}
			if turns[0].Kind != tt.kind || turns[0].Token != tt.token {
				t.Errorf("got %s %q, want %s %q", turns[0].Kind, turns[0].Token, tt.kind, tt.token)
			}
		})
	}
}

func TestNormalizeDropsUnusableEvents(t *testing.T) {
	event := WebhookEvent{Entry: []Entry{{Messaging: []Messaging{
		{Sender: Sender{ID: "psid"}},
		{Sender: Sender{ID: "psid"}, Message: &Message{Text: "   "}},
		{Sender: Sender{ID: "page"}, Message: &Message{Text: "hi", IsEcho: true}},
		{Sender: Sender{}, Message: &Message{Text: "no sender"}},
		{Sender: Sender{ID: "psid"}, Message: &Message{Attachments: []InboundAttachment{{Type: "audio"}}}},
	}}}}
	if turns := Normalize(event, time.Now(), time.UTC); len(turns) != 0 {
		t.Fatalf("expected no turns, got %+v", turns)
	}
}

func TestNormalizeKeepsDeliveryOrder(t *testing.T) {
	event := WebhookEvent{Entry: []Entry{
		{Messaging: []Messaging{
			{Sender: Sender{ID: "a"}, Timestamp: 1700000000000, Message: &Message{MID: "1", Text: "one"}},
			{Sender: Sender{ID: "b"}, Timestamp: 1700000000001, Message: &Message{MID: "2", Text: "two"}},
		}},
		{Messaging: []Messaging{
			{Sender: Sender{ID: "a"}, Timestamp: 1700000000002, Message: &Message{MID: "3", Text: "three"}},
		}},
	}}
	turns := Normalize(event, time.Now(), time.UTC)
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	for i, want := range []string{"1", "2", "3"} {
		if turns[i].MessageID != want {
			t.Errorf("turn %d = %s, want %s", i, turns[i].MessageID, want)
		}
	}
	if !turns[0].Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("timestamp = %v", turns[0].Timestamp)
	}
}
