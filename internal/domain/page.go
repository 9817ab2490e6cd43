package domain

import "math"

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100

	// MaxOffset bounds how deep a listing may page.
	MaxOffset = math.MaxInt32
)

type Page struct {
	Page  int
	Limit int
}

// NewPage clamps raw query values to the allowed window.
func NewPage(page, limit int) Page {
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if page < 1 {
		page = 1
	}
	if last := LastPage(limit); page > last {
		page = last
	}
	return Page{Page: page, Limit: limit}
}

// LastPage is the highest page whose offset stays within MaxOffset.
func LastPage(limit int) int {
	if limit < 1 {
		limit = DefaultPageLimit
	}
	return MaxOffset/limit + 1
}

func (p Page) Offset() int { return max(p.Page-1, 0) * p.Limit }

func (p Page) TotalPages(total int) int {
	if p.Limit <= 0 || total <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}
