package sites

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/growsome/trafficlens/internal/domain"
	"github.com/growsome/trafficlens/internal/domain/site"
)

type Usecase struct {
	repo site.Repo
	keys site.KeyGenerator
}

func New(repo site.Repo, keys site.KeyGenerator) *Usecase {
	return &Usecase{repo: repo, keys: keys}
}

// Create registers a domain with a fresh VAPID keypair.
func (u *Usecase) Create(ctx context.Context, owner uuid.UUID, name, siteName, swPath string) (*site.Domain, error) {
	host, err := site.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	path, err := site.NormalizeServiceWorkerPath(swPath)
	if err != nil {
		return nil, err
	}
	pub, priv, err := u.keys()
	if err != nil {
		return nil, fmt.Errorf("provision keys: %w", err)
	}

	d := &site.Domain{
		OwnerID:           owner,
		Name:              host,
		SiteName:          siteName,
		ServiceWorkerPath: path,
		VAPIDPublicKey:    pub,
		VAPIDPrivateKey:   priv,
	}
	if err := u.repo.Create(ctx, d); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: domain %s already registered", domain.ErrConflict, host)
		}
		return nil, err
	}
	return d, nil
}

// Owned loads a domain and checks it belongs to owner.
func (u *Usecase) Owned(ctx context.Context, owner uuid.UUID, id int64) (*site.Domain, error) {
	d, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.OwnerID != owner {
		return nil, fmt.Errorf("%w: domain %d", domain.ErrForbidden, id)
	}
	return d, nil
}

func (u *Usecase) List(ctx context.Context, owner uuid.UUID) ([]*site.Domain, error) {
	return u.repo.ListByOwner(ctx, owner)
}

func (u *Usecase) Update(ctx context.Context, owner uuid.UUID, id int64, upd site.Update) (*site.Domain, error) {
	cur, err := u.Owned(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if upd.ServiceWorkerPath != nil {
		p, err := site.NormalizeServiceWorkerPath(*upd.ServiceWorkerPath)
		if err != nil {
			return nil, err
		}
		upd.ServiceWorkerPath = &p
	}
	if upd.Empty() {
		return cur, nil
	}
	return u.repo.Update(ctx, id, upd)
}

func (u *Usecase) Delete(ctx context.Context, owner uuid.UUID, id int64) error {
	if _, err := u.Owned(ctx, owner, id); err != nil {
		return err
	}
	return u.repo.Delete(ctx, id)
}
