package notification

import "time"

type Status string

const (
	StatusSent    Status = "sent"
	StatusClicked Status = "clicked"
	StatusFailed  Status = "failed"
)

// Notification is one delivery attempt of a campaign to a subscriber.
type Notification struct {
	ID             int64      `json:"id"`
	CampaignID     int64      `json:"campaignId"`
	SubscriberID   int64      `json:"subscriberId"`
	Status         Status     `json:"status"`
	SentAt         time.Time  `json:"sentAt"`
	ClickedAt      *time.Time `json:"clickedAt,omitempty"`
	ViewedAt       *time.Time `json:"viewedAt,omitempty"`
	ClosedAt       *time.Time `json:"closedAt,omitempty"`
	Error          string     `json:"error,omitempty"`
	ClickUserAgent string     `json:"clickUserAgent,omitempty"`
}
