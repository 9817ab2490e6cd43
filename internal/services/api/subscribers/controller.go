package subscribers

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/auth"
	"github.com/growsome/trafficlens/internal/domain/subscriber"
	"github.com/growsome/trafficlens/internal/services/api/httpx"
)

type Controller struct {
	log *zap.Logger
	uc  *Usecase
}

func NewController(log *zap.Logger, uc *Usecase) *Controller {
	return &Controller{log: log, uc: uc}
}

// PublicRoutes are called by browsers on customer sites.
func (c *Controller) PublicRoutes(r chi.Router) {
	r.Post("/", c.subscribe)
}

func (c *Controller) OwnerRoutes(r chi.Router) {
	r.Get("/", c.list)
	r.Post("/bulk", c.bulk)
	r.Get("/export", c.export)
	r.Get("/stats", c.stats)
}

type keysRequest struct {
	P256dh string `json:"p256dh" validate:"required,max=256"`
	Auth   string `json:"auth" validate:"required,max=128"`
}

type subscribeRequest struct {
	DomainID  int64       `json:"domainId" validate:"required,gt=0"`
	Endpoint  string      `json:"endpoint" validate:"required,https_url,max=2048"`
	Keys      keysRequest `json:"keys"`
	UserAgent string      `json:"userAgent" validate:"max=1024"`
}

type subscribeResponse struct {
	*subscriber.Subscriber
	Created bool `json:"created"`
}

type bulkRequest struct {
	Action        subscriber.BulkAction `json:"action" validate:"required,oneof=activate deactivate delete"`
	SubscriberIDs []int64               `json:"subscriberIds" validate:"required,min=1,max=1000"`
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (c *Controller) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	ua := req.UserAgent
	if ua == "" {
		ua = r.UserAgent()
	}
	s, created, err := c.uc.Subscribe(r.Context(), SubscribeInput{
		DomainID:  req.DomainID,
		Endpoint:  req.Endpoint,
		Keys:      subscriber.Keys{P256dh: req.Keys.P256dh, Auth: req.Keys.Auth},
		UserAgent: ua,
		ClientIP:  clientIP(r),
	})
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		httpx.Logger(r.Context(), c.log).Info("subscriber created", zap.Int64("subscriber_id", s.ID), zap.Int64("domain_id", s.DomainID))
	}
	httpx.OK(w, status, subscribeResponse{Subscriber: s, Created: created})
}

func filterFromQuery(r *http.Request) (subscriber.Filter, error) {
	owner, _ := auth.OwnerFromCtx(r.Context())
	domainID, err := httpx.QueryInt64(r, "domainId")
	if err != nil {
		return subscriber.Filter{}, err
	}
	active, err := httpx.QueryBool(r, "isActive")
	if err != nil {
		return subscriber.Filter{}, err
	}
	return subscriber.Filter{
		OwnerID:  owner,
		DomainID: domainID,
		Active:   active,
		Country:  strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("country"))),
	}, nil
}

func (c *Controller) list(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	page, err := httpx.QueryPage(r)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	list, total, err := c.uc.List(r.Context(), f, page)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, httpx.NewPaged(list, page, total))
}

func (c *Controller) bulk(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromCtx(r.Context())
	var req bulkRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	res, err := c.uc.Bulk(r.Context(), owner, req.Action, req.SubscriberIDs)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	httpx.Logger(r.Context(), c.log).Info("bulk action",
		zap.String("action", string(req.Action)),
		zap.Int("requested", res.RequestedCount),
		zap.Int("succeeded", res.SuccessCount),
	)
	httpx.OK(w, http.StatusOK, res)
}

func (c *Controller) export(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	// ownership is checked before the first byte so errors still get the envelope
	if err := c.uc.ownDomainFilter(r.Context(), f.OwnerID, f.DomainID); err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	name := fmt.Sprintf("subscribers-%s.csv", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := c.uc.Export(r.Context(), f, w); err != nil {
		httpx.Logger(r.Context(), c.log).Error("export interrupted", zap.Error(err))
	}
}

func (c *Controller) stats(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromCtx(r.Context())
	domainID, err := httpx.QueryInt64(r, "domainId")
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	st, err := c.uc.Stats(r.Context(), owner, domainID)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, st)
}
