package site

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/growsome/trafficlens/internal/domain"
)

const DefaultServiceWorkerPath = "/sw.js"

// Domain is a registered site. The private VAPID key never leaves the server.
type Domain struct {
	ID                int64     `json:"id"`
	OwnerID           uuid.UUID `json:"ownerId"`
	Name              string    `json:"domain"`
	SiteName          string    `json:"siteName"`
	ServiceWorkerPath string    `json:"serviceWorkerPath"`
	VAPIDPublicKey    string    `json:"vapidPublicKey"`
	VAPIDPrivateKey   string    `json:"-"`
	Active            bool      `json:"isActive"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Update is a partial update; nil fields are left unchanged.
type Update struct {
	SiteName          *string
	ServiceWorkerPath *string
	Active            *bool
}

func (u Update) Empty() bool {
	return u.SiteName == nil && u.ServiceWorkerPath == nil && u.Active == nil
}

var hostRe = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]([a-z0-9-]{0,61}[a-z0-9])?$`)

// NormalizeName trims and lower-cases a host name and checks it against an
// RFC 1035 style label pattern.
func NormalizeName(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.TrimSuffix(name, ".")
	if name == "" || len(name) > 253 || !hostRe.MatchString(name) {
		return "", fmt.Errorf("%w: malformed domain %q", domain.ErrInvalidInput, raw)
	}
	return name, nil
}

func NormalizeServiceWorkerPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return DefaultServiceWorkerPath, nil
	}
	if !strings.HasPrefix(p, "/") || strings.ContainsAny(p, " ?#") {
		return "", fmt.Errorf("%w: service worker path must be an absolute path", domain.ErrInvalidInput)
	}
	return p, nil
}
