package stats

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/growsome/trafficlens/internal/domain/campaign"
)

// Rate returns num/den as a percentage rounded to two decimals. A zero
// denominator yields 0.
func Rate(num, den int64) float64 {
	if den <= 0 {
		return 0
	}
	return math.Round(float64(num)/float64(den)*100*100) / 100
}

type CountryCount struct {
	Country string `json:"country"`
	Count   int64  `json:"count"`
}

type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// SubscriberCounts are the raw figures behind SubscriberStats.
type SubscriberCounts struct {
	Total        int64
	Active       int64
	NewToday     int64
	Delivered30d int64
	Clicked30d   int64
	TopCountries []CountryCount
	NewByDay     map[string]int64
}

type SubscriberStats struct {
	Total            int64          `json:"totalSubscribers"`
	Active           int64          `json:"activeSubscribers"`
	NewToday         int64          `json:"newToday"`
	ClickThroughRate float64        `json:"clickThroughRate"`
	TopCountries     []CountryCount `json:"topCountries"`
	Daily            []DayCount     `json:"dailySubscribers"`
}

const DayLayout = "2006-01-02"

// Build derives the public stats, filling every day of the trailing window.
func (c *SubscriberCounts) Build(now time.Time, days int) *SubscriberStats {
	out := &SubscriberStats{
		Total:            c.Total,
		Active:           c.Active,
		NewToday:         c.NewToday,
		ClickThroughRate: Rate(c.Clicked30d, c.Delivered30d),
		TopCountries:     c.TopCountries,
		Daily:            make([]DayCount, 0, days),
	}
	if out.TopCountries == nil {
		out.TopCountries = []CountryCount{}
	}
	today := now.UTC().Truncate(24 * time.Hour)
	for i := days - 1; i >= 0; i-- {
		d := today.AddDate(0, 0, -i).Format(DayLayout)
		out.Daily = append(out.Daily, DayCount{Date: d, Count: c.NewByDay[d]})
	}
	return out
}

type AnalyticsFilter struct {
	OwnerID  uuid.UUID
	DomainID *int64
	Status   *campaign.Status
	Since    time.Time
}

type CampaignMetrics struct {
	CampaignID  int64           `json:"campaignId"`
	DomainID    int64           `json:"domainId"`
	Title       string          `json:"title"`
	Status      campaign.Status `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	SentAt      *time.Time      `json:"sentAt,omitempty"`
	TotalSent   int64           `json:"totalSent"`
	TotalClicks int64           `json:"totalClicks"`
	TotalViews  int64           `json:"totalViews"`
	ClickRate   float64         `json:"clickRate"`
	ViewRate    float64         `json:"viewRate"`
}

func (m *CampaignMetrics) Derive() {
	m.ClickRate = Rate(m.TotalClicks, m.TotalSent)
	m.ViewRate = Rate(m.TotalViews, m.TotalSent)
}

// Daily is one materialised row of per-domain per-day counters.
type Daily struct {
	DomainID          int64     `json:"domainId"`
	Day               time.Time `json:"day"`
	NewSubscribers    int64     `json:"newSubscribers"`
	Unsubscribes      int64     `json:"unsubscribes"`
	CampaignsSent     int64     `json:"campaignsSent"`
	NotificationsSent int64     `json:"notificationsSent"`
	Clicks            int64     `json:"clicks"`
	ClickRate         float64   `json:"clickRate"`
}
