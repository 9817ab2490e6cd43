package site

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growsome/trafficlens/internal/domain"
)

func TestNormalizeName(t *testing.T) {
	ok := map[string]string{
		"example.com":         "example.com",
		"  Shop.Example.COM ": "shop.example.com",
		"example.com.":        "example.com",
		"a-b.co.kr":           "a-b.co.kr",
	}
	for in, want := range ok {
		got, err := NormalizeName(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	bad := []string{"", "localhost", "http://example.com", "-bad.com", "exa mple.com", strings.Repeat("a", 64) + ".com"}
	for _, in := range bad {
		_, err := NormalizeName(in)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, in)
	}
}

func TestNormalizeServiceWorkerPath(t *testing.T) {
	p, err := NormalizeServiceWorkerPath("")
	require.NoError(t, err)
	assert.Equal(t, DefaultServiceWorkerPath, p)

	p, err = NormalizeServiceWorkerPath(" /static/push-sw.js ")
	require.NoError(t, err)
	assert.Equal(t, "/static/push-sw.js", p)

	for _, in := range []string{"sw.js", "/sw.js?v=1", "/a b.js"} {
		_, err := NormalizeServiceWorkerPath(in)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, in)
	}
}

func TestPrivateKeyNotSerialised(t *testing.T) {
	raw, err := json.Marshal(Domain{ID: 1, Name: "example.com", VAPIDPublicKey: "pub", VAPIDPrivateKey: "very-secret"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"vapidPublicKey":"pub"`)
	assert.NotContains(t, string(raw), "very-secret")
}

func TestUpdateEmpty(t *testing.T) {
	assert.True(t, Update{}.Empty())
	name := "x"
	assert.False(t, Update{SiteName: &name}.Empty())
}
