package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/wolfman30/clinic-booking/internal/outbound"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com/v18.0"
	defaultHTTPTimeout  = 10 * time.Second

	maxCarouselElements = 10
	maxElementButtons   = 3
	maxTitleRunes       = 80
	maxQuickReplyTitle  = 20
)

// Client sends messages via the Messenger Send API.
type Client struct {
	pageAccessToken string
	graphAPIBase    string
	httpClient      *http.Client
}

// NewClient creates a Send API client. An empty base uses the public Graph API.
func NewClient(pageAccessToken, graphAPIBase string) *Client {
	if graphAPIBase == "" {
		graphAPIBase = defaultGraphAPIBase
	}
	return &Client{
		pageAccessToken: pageAccessToken,
		graphAPIBase:    graphAPIBase,
		httpClient:      &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SendTextMessage sends a plain text message to the given recipient.
func (c *Client) SendTextMessage(ctx context.Context, recipientID, text string) (*SendResponse, error) {
	return c.send(ctx, SendRequest{
		Recipient:     SendRecipient{ID: recipientID},
		MessagingType: "RESPONSE",
		Message:       SendMessage{Text: text},
	})
}

// SendMessage renders an outbound message. Text and quick replies go in one
// request; cards follow as a generic template carousel.
func (c *Client) SendMessage(ctx context.Context, recipientID string, msg outbound.Message) error {
	if msg.Text != "" {
		out := SendMessage{Text: msg.Text}
		for _, qr := range msg.QuickReplies {
			out.QuickReplies = append(out.QuickReplies, QuickReply{
				ContentType: "text",
				Title:       truncate(qr.Title, maxQuickReplyTitle),
				Payload:     qr.Payload,
			})
		}
		if _, err := c.send(ctx, SendRequest{
			Recipient:     SendRecipient{ID: recipientID},
			MessagingType: "RESPONSE",
			Message:       out,
		}); err != nil {
			return err
		}
	}
	if len(msg.Cards) > 0 {
		if _, err := c.SendCarousel(ctx, recipientID, msg.Cards); err != nil {
			return err
		}
	}
	return nil
}

// SendCarousel sends cards as a generic template.
func (c *Client) SendCarousel(ctx context.Context, recipientID string, cards []outbound.Card) (*SendResponse, error) {
	if len(cards) > maxCarouselElements {
		cards = cards[:maxCarouselElements]
	}
	elements := make([]Element, 0, len(cards))
	for _, card := range cards {
		el := Element{
			Title:    truncate(card.Title, maxTitleRunes),
			Subtitle: truncate(card.Subtitle, maxTitleRunes),
			ImageURL: card.ImageURL,
		}
		for i, b := range card.Buttons {
			if i == maxElementButtons {
				break
			}
			el.Buttons = append(el.Buttons, Button{Type: "postback", Title: truncate(b.Title, maxQuickReplyTitle), Payload: b.Payload})
		}
		elements = append(elements, el)
	}
	return c.send(ctx, SendRequest{
		Recipient:     SendRecipient{ID: recipientID},
		MessagingType: "RESPONSE",
		Message: SendMessage{
			Attachment: &Attachment{
				Type:    "template",
				Payload: Payload{TemplateType: "generic", Elements: elements},
			},
		},
	})
}

func (c *Client) send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("messenger: marshal send request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/me/messages?access_token=%s", c.graphAPIBase, url.QueryEscape(c.pageAccessToken))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("messenger: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("messenger: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("messenger: read response: %w", err)
	}

	var sendResp SendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		return nil, fmt.Errorf("messenger: unmarshal response: %w", err)
	}

	if sendResp.Error != nil {
		return &sendResp, fmt.Errorf("messenger: API error %d: %s", sendResp.Error.Code, sendResp.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return &sendResp, fmt.Errorf("messenger: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return &sendResp, nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
