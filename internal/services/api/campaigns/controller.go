package campaigns

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/auth"
	"github.com/growsome/trafficlens/internal/domain/campaign"
	"github.com/growsome/trafficlens/internal/services/api/httpx"
)

type Controller struct {
	log *zap.Logger
	uc  *Usecase
}

func NewController(log *zap.Logger, uc *Usecase) *Controller {
	return &Controller{log: log, uc: uc}
}

func (c *Controller) Routes(r chi.Router) {
	r.Post("/", c.create)
	r.Get("/", c.list)
	r.Get("/{id}", c.get)
	r.Patch("/{id}", c.update)
	r.Post("/{id}/send", c.send)
}

type createRequest struct {
	DomainID           int64                  `json:"domainId" validate:"required,gt=0"`
	Title              string                 `json:"title" validate:"required,max=200"`
	Body               string                 `json:"body" validate:"required,max=2000"`
	IconURL            string                 `json:"iconUrl" validate:"omitempty,url"`
	ImageURL           string                 `json:"imageUrl" validate:"omitempty,url"`
	BadgeURL           string                 `json:"badgeUrl" validate:"omitempty,url"`
	ClickURL           string                 `json:"clickUrl" validate:"omitempty,url"`
	RequireInteraction *bool                  `json:"requireInteraction"`
	ScheduledAt        *time.Time             `json:"scheduledAt"`
	TargetType         campaign.TargetType    `json:"targetType" validate:"omitempty,oneof=all segment individual"`
	TargetFilter       *campaign.TargetFilter `json:"targetFilter"`
}

type patchRequest struct {
	Title              *string                `json:"title" validate:"omitempty,min=1,max=200"`
	Body               *string                `json:"body" validate:"omitempty,min=1,max=2000"`
	IconURL            *string                `json:"iconUrl" validate:"omitempty,url"`
	ImageURL           *string                `json:"imageUrl" validate:"omitempty,url"`
	BadgeURL           *string                `json:"badgeUrl" validate:"omitempty,url"`
	ClickURL           *string                `json:"clickUrl" validate:"omitempty,url"`
	RequireInteraction *bool                  `json:"requireInteraction"`
	ScheduledAt        *time.Time             `json:"scheduledAt"`
	TargetType         *campaign.TargetType   `json:"targetType" validate:"omitempty,oneof=all segment individual"`
	TargetFilter       *campaign.TargetFilter `json:"targetFilter"`
}

func (c *Controller) create(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromCtx(r.Context())
	var req createRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	requireInteraction := true
	if req.RequireInteraction != nil {
		requireInteraction = *req.RequireInteraction
	}
	created, err := c.uc.Create(r.Context(), owner, &campaign.Campaign{
		DomainID:           req.DomainID,
		Title:              req.Title,
		Body:               req.Body,
		IconURL:            req.IconURL,
		ImageURL:           req.ImageURL,
		BadgeURL:           req.BadgeURL,
		ClickURL:           req.ClickURL,
		RequireInteraction: requireInteraction,
		ScheduledAt:        req.ScheduledAt,
		TargetType:         req.TargetType,
		TargetFilter:       req.TargetFilter,
	})
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	httpx.Logger(r.Context(), c.log).Info("campaign created",
		zap.Int64("campaign_id", created.ID), zap.String("status", string(created.Status)))
	httpx.OK(w, http.StatusCreated, created)
}

func (c *Controller) list(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromCtx(r.Context())
	domainID, err := httpx.QueryInt64(r, "domainId")
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	page, err := httpx.QueryPage(r)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	f := campaign.Filter{OwnerID: owner, DomainID: domainID}
	if s := r.URL.Query().Get("status"); s != "" {
		st := campaign.Status(s)
		f.Status = &st
	}
	list, total, err := c.uc.List(r.Context(), f, page)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, httpx.NewPaged(list, page, total))
}

func (c *Controller) get(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromCtx(r.Context())
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	got, err := c.uc.Get(r.Context(), owner, id)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, got)
}

func (c *Controller) update(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromCtx(r.Context())
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	var req patchRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	updated, err := c.uc.Update(r.Context(), owner, id, campaign.Patch{
		Title:              req.Title,
		Body:               req.Body,
		IconURL:            req.IconURL,
		ImageURL:           req.ImageURL,
		BadgeURL:           req.BadgeURL,
		ClickURL:           req.ClickURL,
		RequireInteraction: req.RequireInteraction,
		ScheduledAt:        req.ScheduledAt,
		TargetType:         req.TargetType,
		TargetFilter:       req.TargetFilter,
	})
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, updated)
}

func (c *Controller) send(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromCtx(r.Context())
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	res, err := c.uc.Send(r.Context(), owner, id)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, res)
}
