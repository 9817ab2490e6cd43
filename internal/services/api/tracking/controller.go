package tracking

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/auth"
	"github.com/growsome/trafficlens/internal/domain/campaign"
	"github.com/growsome/trafficlens/internal/domain/stats"
	"github.com/growsome/trafficlens/internal/services/api/httpx"
)

type Controller struct {
	log *zap.Logger
	uc  *Usecase
}

func NewController(log *zap.Logger, uc *Usecase) *Controller {
	return &Controller{log: log, uc: uc}
}

// BeaconRoutes are the unauthenticated endpoints the service worker posts to.
func (c *Controller) BeaconRoutes(r chi.Router) {
	r.Post("/click", c.click)
	r.Post("/close", c.close)
	r.Post("/view", c.view)
}

func (c *Controller) AnalyticsRoutes(r chi.Router) {
	r.Get("/campaigns", c.campaigns)
	r.Get("/daily", c.daily)
}

// beacon is the body posted by the service worker. The client timestamp is
// accepted for logging only.
type beacon struct {
	NotificationID int64      `json:"notificationId" validate:"gte=0"`
	CampaignID     int64      `json:"campaignId" validate:"gte=0"`
	Timestamp      *time.Time `json:"timestamp"`
	UserAgent      string     `json:"userAgent" validate:"max=1024"`
}

func (c *Controller) click(w http.ResponseWriter, r *http.Request) {
	var req beacon
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	ua := req.UserAgent
	if ua == "" {
		ua = r.UserAgent()
	}
	res, err := c.uc.TrackClick(r.Context(), ClickInput{
		NotificationID: req.NotificationID,
		CampaignID:     req.CampaignID,
		UserAgent:      ua,
	})
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, res)
}

func (c *Controller) close(w http.ResponseWriter, r *http.Request) {
	var req beacon
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	if err := c.uc.TrackClose(r.Context(), req.NotificationID); err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]int64{"notificationId": req.NotificationID})
}

func (c *Controller) view(w http.ResponseWriter, r *http.Request) {
	var req beacon
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	if err := c.uc.TrackView(r.Context(), req.NotificationID); err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]int64{"notificationId": req.NotificationID})
}

func (c *Controller) campaigns(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromCtx(r.Context())
	domainID, err := httpx.QueryInt64(r, "domainId")
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	days, err := httpx.QueryInt(r, "periodDays", DefaultPeriodDays)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	page, err := httpx.QueryPage(r)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	q := AnalyticsQuery{Owner: owner, DomainID: domainID, PeriodDays: days, Page: page}
	if s := r.URL.Query().Get("status"); s != "" {
		st := campaign.Status(s)
		q.Status = &st
	}
	list, total, err := c.uc.CampaignAnalytics(r.Context(), q)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, httpx.NewPaged(list, page, total))
}

func (c *Controller) daily(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromCtx(r.Context())
	domainID, err := httpx.QueryInt64(r, "domainId")
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	days, err := httpx.QueryInt(r, "days", DefaultDailyDays)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	rows, err := c.uc.Daily(r.Context(), owner, domainID, days)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	if rows == nil {
		rows = []*stats.Daily{}
	}
	httpx.OK(w, http.StatusOK, rows)
}
