package site

import (
	"context"

	"github.com/google/uuid"
)

type Repo interface {
	Create(ctx context.Context, d *Domain) error
	GetByID(ctx context.Context, id int64) (*Domain, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Domain, error)
	Update(ctx context.Context, id int64, upd Update) (*Domain, error)
	Delete(ctx context.Context, id int64) error
}

// KeyGenerator produces a VAPID keypair, both halves base64url encoded.
type KeyGenerator func() (publicKey, privateKey string, err error)
