package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/growsome/trafficlens/internal/domain/campaign"
)

// MaxPayloadSize is the plaintext budget that still fits a single 4096 byte
// aes128gcm record once padding delimiter, tag and header are added.
const MaxPayloadSize = 3800

var ErrPayloadTooLarge = errors.New("push payload exceeds size limit")

type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

type Data struct {
	URL            string `json:"url"`
	CampaignID     int64  `json:"campaignId"`
	NotificationID int64  `json:"notificationId"`
}

type Payload struct {
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	Icon               string   `json:"icon,omitempty"`
	Badge              string   `json:"badge,omitempty"`
	Image              string   `json:"image,omitempty"`
	Tag                string   `json:"tag"`
	RequireInteraction bool     `json:"requireInteraction"`
	Actions            []Action `json:"actions,omitempty"`
	Data               Data     `json:"data"`
}

func defaultActions() []Action {
	return []Action{{Action: "open", Title: "Open"}, {Action: "close", Title: "Close"}}
}

func NewPayload(c *campaign.Campaign, notificationID int64, fallbackURL string) Payload {
	url := c.ClickURL
	if url == "" {
		url = fallbackURL
	}
	return Payload{
		Title:              c.Title,
		Body:               c.Body,
		Icon:               c.IconURL,
		Badge:              c.BadgeURL,
		Image:              c.ImageURL,
		Tag:                fmt.Sprintf("campaign-%d", c.ID),
		RequireInteraction: true,
		Actions:            defaultActions(),
		Data: Data{
			URL:            url,
			CampaignID:     c.ID,
			NotificationID: notificationID,
		},
	}
}

// Encode marshals p, shortening the body until the result fits MaxPayloadSize.
func (p Payload) Encode() ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	if len(raw) <= MaxPayloadSize {
		return raw, nil
	}

	over := len(raw) - MaxPayloadSize
	body := []rune(p.Body)
	for len(body) > 0 {
		// escaping can make one rune cost up to six bytes on the wire
		cut := max(1, min(len(body), over/6+1))
		body = body[:len(body)-cut]
		p.Body = truncated(body)
		raw, err = json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		if len(raw) <= MaxPayloadSize {
			return raw, nil
		}
		over = len(raw) - MaxPayloadSize
	}
	return nil, fmt.Errorf("%w: %d bytes without body", ErrPayloadTooLarge, len(raw))
}

func truncated(body []rune) string {
	s := strings.TrimRightFunc(string(body), func(r rune) bool { return r == ' ' || r == '\n' })
	if s == "" {
		return ""
	}
	return s + "…"
}

// BuildPayload is NewPayload followed by Encode.
func BuildPayload(c *campaign.Campaign, notificationID int64, fallbackURL string) ([]byte, error) {
	return NewPayload(c, notificationID, fallbackURL).Encode()
}
