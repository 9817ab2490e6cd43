package sites

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/auth"
	"github.com/growsome/trafficlens/internal/domain/site"
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
	r.Put("/{id}", c.update)
	r.Delete("/{id}", c.delete)
}

type createRequest struct {
	Domain            string `json:"domain" validate:"required,max=253"`
	SiteName          string `json:"siteName" validate:"required,max=200"`
	ServiceWorkerPath string `json:"serviceWorkerPath" validate:"omitempty,max=255"`
}

type updateRequest struct {
	SiteName          *string `json:"siteName" validate:"omitempty,min=1,max=200"`
	ServiceWorkerPath *string `json:"serviceWorkerPath" validate:"omitempty,max=255"`
	IsActive          *bool   `json:"isActive"`
}

func (c *Controller) create(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromCtx(r.Context())
	var req createRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	d, err := c.uc.Create(r.Context(), owner, req.Domain, req.SiteName, req.ServiceWorkerPath)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	httpx.Logger(r.Context(), c.log).Info("domain registered", zap.Int64("domain_id", d.ID), zap.String("domain", d.Name))
	httpx.OK(w, http.StatusCreated, d)
}

func (c *Controller) list(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromCtx(r.Context())
	list, err := c.uc.List(r.Context(), owner)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	if list == nil {
		list = []*site.Domain{}
	}
	httpx.OK(w, http.StatusOK, list)
}

func (c *Controller) get(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromCtx(r.Context())
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	d, err := c.uc.Owned(r.Context(), owner, id)
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, d)
}

func (c *Controller) update(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromCtx(r.Context())
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	var req updateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	d, err := c.uc.Update(r.Context(), owner, id, site.Update{
		SiteName:          req.SiteName,
		ServiceWorkerPath: req.ServiceWorkerPath,
		Active:            req.IsActive,
	})
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	httpx.OK(w, http.StatusOK, d)
}

func (c *Controller) delete(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromCtx(r.Context())
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	if err := c.uc.Delete(r.Context(), owner, id); err != nil {
		httpx.WriteError(w, r, c.log, err)
		return
	}
	httpx.Logger(r.Context(), c.log).Info("domain deleted", zap.Int64("domain_id", id))
	httpx.OK(w, http.StatusOK, map[string]int64{"id": id})
}
