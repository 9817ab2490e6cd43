package subscriber

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

type Subscriber struct {
	ID             int64      `json:"id"`
	DomainID       int64      `json:"domainId"`
	Endpoint       string     `json:"endpoint"`
	Keys           Keys       `json:"keys"`
	UserAgent      string     `json:"userAgent,omitempty"`
	Country        string     `json:"country,omitempty"`
	City           string     `json:"city,omitempty"`
	SubscribedAt   time.Time  `json:"subscribedAt"`
	LastSeenAt     time.Time  `json:"lastSeenAt"`
	Active         bool       `json:"isActive"`
	UnsubscribedAt *time.Time `json:"unsubscribedAt,omitempty"`
}

type Filter struct {
	OwnerID  uuid.UUID
	DomainID *int64
	Active   *bool
	Country  string
}

// Segment is a predicate over subscriber attributes. Empty fields match everything.
type Segment struct {
	Countries         []string   `json:"countries,omitempty"`
	Cities            []string   `json:"cities,omitempty"`
	UserAgentContains string     `json:"userAgentContains,omitempty"`
	SubscribedAfter   *time.Time `json:"subscribedAfter,omitempty"`
	LastSeenAfter     *time.Time `json:"lastSeenAfter,omitempty"`
}

func (s Segment) Match(sub *Subscriber) bool {
	if len(s.Countries) > 0 && !containsFold(s.Countries, sub.Country) {
		return false
	}
	if len(s.Cities) > 0 && !containsFold(s.Cities, sub.City) {
		return false
	}
	if s.UserAgentContains != "" &&
		!strings.Contains(strings.ToLower(sub.UserAgent), strings.ToLower(s.UserAgentContains)) {
		return false
	}
	if s.SubscribedAfter != nil && sub.SubscribedAt.Before(*s.SubscribedAfter) {
		return false
	}
	if s.LastSeenAfter != nil && sub.LastSeenAt.Before(*s.LastSeenAfter) {
		return false
	}
	return true
}

func containsFold(list []string, v string) bool {
	return slices.ContainsFunc(list, func(x string) bool { return strings.EqualFold(x, v) })
}

type BulkAction string

const (
	BulkActivate   BulkAction = "activate"
	BulkDeactivate BulkAction = "deactivate"
	BulkDelete     BulkAction = "delete"
)

type BulkResult struct {
	RequestedCount int `json:"requestedCount"`
	SuccessCount   int `json:"successCount"`
	FailedCount    int `json:"failedCount"`
}

// ExportRow is one CSV line of a subscriber export.
type ExportRow struct {
	Subscriber
	SiteName          string
	DomainName        string
	NotificationCount int64
}
