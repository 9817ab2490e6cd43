package campaign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growsome/trafficlens/internal/domain"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func draft() *Campaign {
	return &Campaign{ID: 1, DomainID: 7, Title: "Sale", Body: "50% off", Status: StatusDraft, TargetType: TargetAll}
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, StatusDraft, InitialStatus(nil, now))
	assert.Equal(t, StatusDraft, InitialStatus(ptr(now), now))
	assert.Equal(t, StatusDraft, InitialStatus(ptr(now.Add(-time.Hour)), now))
	assert.Equal(t, StatusScheduled, InitialStatus(ptr(now.Add(time.Minute)), now))
}

func TestValidate(t *testing.T) {
	c := draft()
	c.TargetType = ""
	require.NoError(t, c.Validate())
	assert.Equal(t, TargetAll, c.TargetType)

	cases := map[string]func(c *Campaign){
		"blank title":        func(c *Campaign) { c.Title = "  " },
		"blank body":         func(c *Campaign) { c.Body = "" },
		"no domain":          func(c *Campaign) { c.DomainID = 0 },
		"unknown target":     func(c *Campaign) { c.TargetType = "vip" },
		"individual, no ids": func(c *Campaign) { c.TargetType = TargetIndividual },
		"individual, empty":  func(c *Campaign) { c.TargetType = TargetIndividual; c.TargetFilter = &TargetFilter{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := draft()
			mutate(c)
			require.ErrorIs(t, c.Validate(), domain.ErrInvalidInput)
		})
	}
}

func TestApply(t *testing.T) {
	t.Run("edits fields of a draft", func(t *testing.T) {
		c := draft()
		require.NoError(t, c.Apply(Patch{Title: ptr("New"), RequireInteraction: ptr(true)}, now))
		assert.Equal(t, "New", c.Title)
		assert.Equal(t, "50% off", c.Body)
		assert.True(t, c.RequireInteraction)
		assert.Equal(t, StatusDraft, c.Status)
		assert.Equal(t, now, c.UpdatedAt)
	})

	t.Run("future schedule moves draft to scheduled", func(t *testing.T) {
		c := draft()
		at := now.Add(time.Hour)
		require.NoError(t, c.Apply(Patch{ScheduledAt: &at}, now))
		assert.Equal(t, StatusScheduled, c.Status)
		assert.Equal(t, at, *c.ScheduledAt)
	})

	t.Run("rescheduling clears the dispatch claim", func(t *testing.T) {
		c := draft()
		c.Status = StatusScheduled
		c.DispatchRequestedAt = ptr(now)
		require.NoError(t, c.Apply(Patch{ScheduledAt: ptr(now.Add(2 * time.Hour))}, now))
		assert.Nil(t, c.DispatchRequestedAt)
	})

	t.Run("past schedule is rejected", func(t *testing.T) {
		c := draft()
		require.ErrorIs(t, c.Apply(Patch{ScheduledAt: ptr(now.Add(-time.Minute))}, now), domain.ErrInvalidInput)
	})

	t.Run("sent campaign is immutable", func(t *testing.T) {
		c := draft()
		c.Status = StatusSent
		require.ErrorIs(t, c.Apply(Patch{Title: ptr("x")}, now), domain.ErrConflict)
		assert.Equal(t, "Sale", c.Title)
	})

	t.Run("patched fields are validated", func(t *testing.T) {
		c := draft()
		tt := TargetIndividual
		require.ErrorIs(t, c.Apply(Patch{TargetType: &tt}, now), domain.ErrInvalidInput)
	})
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusDraft, StatusScheduled, StatusSent} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("failed").Valid())
	assert.False(t, TargetType("").Valid())
}
