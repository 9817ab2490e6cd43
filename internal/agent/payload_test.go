package agent

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growsome/trafficlens/internal/domain/campaign"
)

func sampleCampaign() *campaign.Campaign {
	return &campaign.Campaign{
		ID:       7,
		DomainID: 1,
		Title:    "Sale",
		Body:     "50% off today",
		IconURL:  "https://shop.example.com/icon.png",
		ClickURL: "https://shop.example.com/sale",
	}
}

func TestBuildPayload_Shape(t *testing.T) {
	raw, err := BuildPayload(sampleCampaign(), 42, "https://shop.example.com/")
	require.NoError(t, err)

	var p Payload
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.Equal(t, "Sale", p.Title)
	assert.Equal(t, "50% off today", p.Body)
	assert.Equal(t, "campaign-7", p.Tag)
	assert.True(t, p.RequireInteraction)
	assert.Equal(t, "https://shop.example.com/sale", p.Data.URL)
	assert.EqualValues(t, 7, p.Data.CampaignID)
	assert.EqualValues(t, 42, p.Data.NotificationID)
	assert.NotEmpty(t, p.Actions)
	assert.NotContains(t, string(raw), `"image"`)
}

func TestBuildPayload_FallbackURL(t *testing.T) {
	c := sampleCampaign()
	c.ClickURL = ""
	raw, err := BuildPayload(c, 1, "https://shop.example.com/")
	require.NoError(t, err)

	var p Payload
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.Equal(t, "https://shop.example.com/", p.Data.URL)
}

func TestBuildPayload_TruncatesBody(t *testing.T) {
	for _, unit := range []string{"a", "한", "<"} {
		c := sampleCampaign()
		c.Body = strings.Repeat(unit, 5000)

		raw, err := BuildPayload(c, 1, "")
		require.NoError(t, err, unit)
		assert.LessOrEqual(t, len(raw), MaxPayloadSize, unit)

		var p Payload
		require.NoError(t, json.Unmarshal(raw, &p))
		assert.True(t, strings.HasSuffix(p.Body, "…"), unit)
		assert.Greater(t, len(p.Body), 100, unit)
	}
}

func TestBuildPayload_TooLargeWithoutBody(t *testing.T) {
	c := sampleCampaign()
	c.Title = strings.Repeat("t", MaxPayloadSize)
	_, err := BuildPayload(c, 1, "")
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestHandler_ServesWorker(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler("https://lens.example.com/api/").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sw.js", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Service-Worker-Allowed"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
	body := rec.Body.String()
	assert.Contains(t, body, `const TRACKING_BASE = "https://lens.example.com/api";`)
	assert.NotContains(t, body, trackingBasePlaceholder)
	assert.Contains(t, body, "notificationclick")
}
