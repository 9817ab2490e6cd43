package campaign

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/subscriber"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusSent      Status = "sent"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusSent:
		return true
	}
	return false
}

type TargetType string

const (
	TargetAll        TargetType = "all"
	TargetSegment    TargetType = "segment"
	TargetIndividual TargetType = "individual"
)

func (t TargetType) Valid() bool {
	switch t {
	case TargetAll, TargetSegment, TargetIndividual:
		return true
	}
	return false
}

type TargetFilter struct {
	subscriber.Segment
	SubscriberIDs []int64 `json:"subscriberIds,omitempty"`
}

type Campaign struct {
	ID                  int64         `json:"id"`
	DomainID            int64         `json:"domainId"`
	OwnerID             uuid.UUID     `json:"ownerId"`
	Title               string        `json:"title"`
	Body                string        `json:"body"`
	IconURL             string        `json:"iconUrl,omitempty"`
	ImageURL            string        `json:"imageUrl,omitempty"`
	BadgeURL            string        `json:"badgeUrl,omitempty"`
	ClickURL            string        `json:"clickUrl,omitempty"`
	RequireInteraction  bool          `json:"requireInteraction"`
	ScheduledAt         *time.Time    `json:"scheduledAt,omitempty"`
	SentAt              *time.Time    `json:"sentAt,omitempty"`
	Status              Status        `json:"status"`
	TargetType          TargetType    `json:"targetType"`
	TargetFilter        *TargetFilter `json:"targetFilter,omitempty"`
	DispatchRequestedAt *time.Time    `json:"-"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// Validate checks the fields a campaign needs regardless of its state.
func (c *Campaign) Validate() error {
	if strings.TrimSpace(c.Title) == "" || strings.TrimSpace(c.Body) == "" {
		return fmt.Errorf("%w: title and body are required", domain.ErrInvalidInput)
	}
	if c.DomainID <= 0 {
		return fmt.Errorf("%w: domainId is required", domain.ErrInvalidInput)
	}
	if c.TargetType == "" {
		c.TargetType = TargetAll
	}
	if !c.TargetType.Valid() {
		return fmt.Errorf("%w: unknown target type %q", domain.ErrInvalidInput, c.TargetType)
	}
	if c.TargetType == TargetIndividual && (c.TargetFilter == nil || len(c.TargetFilter.SubscriberIDs) == 0) {
		return fmt.Errorf("%w: individual targeting needs subscriberIds", domain.ErrInvalidInput)
	}
	return nil
}

// InitialStatus is scheduled only for a send time strictly in the future.
func InitialStatus(scheduledAt *time.Time, now time.Time) Status {
	if scheduledAt != nil && scheduledAt.After(now) {
		return StatusScheduled
	}
	return StatusDraft
}

func (c *Campaign) Editable() error {
	if c.Status == StatusSent {
		return fmt.Errorf("%w: campaign %d already sent", domain.ErrConflict, c.ID)
	}
	return nil
}

// Patch is a partial edit of a draft or scheduled campaign.
type Patch struct {
	Title              *string
	Body               *string
	IconURL            *string
	ImageURL           *string
	BadgeURL           *string
	ClickURL           *string
	RequireInteraction *bool
	ScheduledAt        *time.Time
	TargetType         *TargetType
	TargetFilter       *TargetFilter
}

// Apply edits the campaign in place. Moving a schedule is allowed only
// forward in time, so a scheduled campaign never drops back to draft.
func (c *Campaign) Apply(p Patch, now time.Time) error {
	if err := c.Editable(); err != nil {
		return err
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.Title, p.Title)
	set(&c.Body, p.Body)
	set(&c.IconURL, p.IconURL)
	set(&c.ImageURL, p.ImageURL)
	set(&c.BadgeURL, p.BadgeURL)
	set(&c.ClickURL, p.ClickURL)
	if p.RequireInteraction != nil {
		c.RequireInteraction = *p.RequireInteraction
	}
	if p.TargetType != nil {
		c.TargetType = *p.TargetType
	}
	if p.TargetFilter != nil {
		c.TargetFilter = p.TargetFilter
	}
	if p.ScheduledAt != nil {
		if !p.ScheduledAt.After(now) {
			return fmt.Errorf("%w: scheduledAt must be in the future", domain.ErrInvalidInput)
		}
		at := p.ScheduledAt.UTC()
		c.ScheduledAt = &at
		c.Status = StatusScheduled
		c.DispatchRequestedAt = nil
	}
	c.UpdatedAt = now
	return c.Validate()
}

type Filter struct {
	OwnerID  uuid.UUID
	DomainID *int64
	Status   *Status
}
