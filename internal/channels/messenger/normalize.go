package messenger

import (
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/dispatch"
	"github.com/wolfman30/clinic-booking/internal/slots"
)

// Normalize reduces a webhook batch to one turn per usable event, in
// delivery order. Echoes and events without content are dropped. Relative
// date payloads resolve against now in loc.
func Normalize(event WebhookEvent, now time.Time, loc *time.Location) []dispatch.Turn {
	var turns []dispatch.Turn
	for _, entry := range event.Entry {
		for _, m := range entry.Messaging {
			if m.Sender.ID == "" {
				continue
			}
			turn := dispatch.Turn{ActorID: m.Sender.ID, Timestamp: time.UnixMilli(m.Timestamp)}
			if m.Timestamp == 0 {
				turn.Timestamp = now
			}

			switch {
			case m.Postback != nil:
				turn.Kind = booking.KindPostback
				turn.MessageID = m.Postback.MID
				turn.Token = strings.TrimSpace(m.Postback.Payload)
			case m.Message != nil && m.Message.IsEcho:
				continue
			case m.Message != nil && m.Message.QuickReply != nil:
				turn.Kind = booking.KindQuickReply
				turn.MessageID = m.Message.MID
				turn.Token = quickReplyToken(strings.TrimSpace(m.Message.QuickReply.Payload), now, loc)
			case m.Message != nil:
				turn.MessageID = m.Message.MID
				if url := firstImage(m.Message.Attachments); url != "" {
					turn.Kind = booking.KindImage
					turn.Token = url
				} else {
					turn.Kind = booking.KindText
					turn.Token = strings.TrimSpace(m.Message.Text)
				}
			default:
				continue
			}
			if turn.Token == "" {
				continue
			}
			turns = append(turns, turn)
		}
	}
	return turns
}

func quickReplyToken(payload string, now time.Time, loc *time.Location) string {
	switch payload {
	case booking.PayloadDateTomorrow:
		return slots.Tomorrow(now, loc)
	case booking.PayloadDateNextMonday:
		return slots.NextMonday(now, loc)
	case booking.PayloadDatePick, booking.PayloadDateManual:
		return booking.PickDate
	}
	if label, ok := strings.CutPrefix(payload, booking.PrefixTime); ok {
		return label
	}
	return payload
}

func firstImage(attachments []InboundAttachment) string {
	for _, a := range attachments {
		if a.Type == "image" && a.Payload.URL != "" {
			return a.Payload.URL
		}
	}
	return ""
}
