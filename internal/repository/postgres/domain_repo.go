package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/growsome/trafficlens/internal/domain/site"
)

var _ site.Repo = (*DomainRepo)(nil)

type DomainRepo struct{ db *DB }

func NewDomainRepo(db *DB) *DomainRepo { return &DomainRepo{db: db} }

const domainCols = `id, owner_id, domain, site_name, service_worker_path, vapid_public_key, vapid_private_key, active, created_at, updated_at`

const (
	qDomainInsert = `
INSERT INTO domains (owner_id, domain, site_name, service_worker_path, vapid_public_key, vapid_private_key)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + domainCols + `;`

	qDomainGet = `SELECT ` + domainCols + ` FROM domains WHERE id = $1;`

	qDomainListByOwner = `
SELECT ` + domainCols + `
FROM domains
WHERE owner_id = $1
ORDER BY created_at DESC, id DESC;`

	qDomainUpdate = `
UPDATE domains
SET site_name           = COALESCE($2, site_name),
    service_worker_path = COALESCE($3, service_worker_path),
    active              = COALESCE($4, active),
    updated_at          = now()
WHERE id = $1
RETURNING ` + domainCols + `;`

	qDomainDelete = `DELETE FROM domains WHERE id = $1;`
)

func scanDomain(row pgx.Row, d *site.Domain) error {
	return row.Scan(
		&d.ID,
		&d.OwnerID,
		&d.Name,
		&d.SiteName,
		&d.ServiceWorkerPath,
		&d.VAPIDPublicKey,
		&d.VAPIDPrivateKey,
		&d.Active,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
}

func (r *DomainRepo) Create(ctx context.Context, d *site.Domain) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.execQueryer(ctx).QueryRow(ctx, qDomainInsert,
		d.OwnerID, d.Name, d.SiteName, d.ServiceWorkerPath, d.VAPIDPublicKey, d.VAPIDPrivateKey)
	return mapErr("insert domain", scanDomain(row, d))
}

func (r *DomainRepo) GetByID(ctx context.Context, id int64) (*site.Domain, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var d site.Domain
	if err := scanDomain(r.db.execQueryer(ctx).QueryRow(ctx, qDomainGet, id), &d); err != nil {
		return nil, mapErr("get domain", err)
	}
	return &d, nil
}

func (r *DomainRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*site.Domain, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qDomainListByOwner, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query domains: %w", err)
	}
	return collect(rows, scanDomain)
}

func (r *DomainRepo) Update(ctx context.Context, id int64, upd site.Update) (*site.Domain, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var d site.Domain
	row := r.db.execQueryer(ctx).QueryRow(ctx, qDomainUpdate, id, upd.SiteName, upd.ServiceWorkerPath, upd.Active)
	if err := scanDomain(row, &d); err != nil {
		return nil, mapErr("update domain", err)
	}
	return &d, nil
}

func (r *DomainRepo) Delete(ctx context.Context, id int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.execQueryer(ctx).Exec(ctx, qDomainDelete, id)
	if err != nil {
		return fmt.Errorf("delete domain: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
