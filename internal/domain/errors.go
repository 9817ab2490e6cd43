package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
)

var (
	ErrDomainNotFound      = fmt.Errorf("%w: domain", ErrNotFound)
	ErrInvalidSubscription = fmt.Errorf("%w: subscription needs endpoint and keys", ErrInvalidInput)
	ErrCampaignAlreadySent = fmt.Errorf("%w: campaign already sent", ErrConflict)
)
