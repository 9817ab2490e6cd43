package subscriber

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSegmentMatch(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sub := &Subscriber{
		Country:      "KR",
		City:         "Seoul",
		UserAgent:    "Mozilla/5.0 (Android 14) Chrome/124",
		SubscribedAt: t0,
		LastSeenAt:   t0.Add(48 * time.Hour),
	}
	after := func(d time.Duration) *time.Time { v := t0.Add(d); return &v }

	cases := []struct {
		name string
		seg  Segment
		want bool
	}{
		{"empty matches all", Segment{}, true},
		{"country folds case", Segment{Countries: []string{"us", "kr"}}, true},
		{"country miss", Segment{Countries: []string{"JP"}}, false},
		{"city", Segment{Cities: []string{"seoul"}}, true},
		{"user agent substring", Segment{UserAgentContains: "android"}, true},
		{"user agent miss", Segment{UserAgentContains: "iphone"}, false},
		{"subscribed after, inclusive", Segment{SubscribedAfter: after(0)}, true},
		{"subscribed after, later", Segment{SubscribedAfter: after(time.Hour)}, false},
		{"last seen after", Segment{LastSeenAfter: after(24 * time.Hour)}, true},
		{"all predicates conjoin", Segment{Countries: []string{"KR"}, Cities: []string{"Busan"}}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.seg.Match(sub))
		})
	}
}
