package cache

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashboard-gateway/internal/config"
	"dashboard-gateway/internal/model"
)

func newTestCache(t *testing.T, maxBytes int64, ttl time.Duration) *LogoCache {
	c, err := New(maxBytes, ttl)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestLogoCache_SetGet(t *testing.T) {
	c := newTestCache(t, 1<<20, time.Hour)

	logo := &model.Logo{ContentType: "image/png", ETag: `"abc"`, Data: []byte("png-bytes")}
	c.Set("AAPL", logo)
	c.Wait()

	got, ok := c.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, logo, got)

	_, ok = c.Get("MSFT")
	assert.False(t, ok)
}

func TestLogoCache_Expires(t *testing.T) {
	c := newTestCache(t, 1<<20, 50*time.Millisecond)

	c.Set("AAPL", &model.Logo{Data: []byte("x")})
	c.Wait()

	_, ok := c.Get("AAPL")
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := c.Get("AAPL")
		return !ok
	}, 3*time.Second, 20*time.Millisecond)
}

func TestLogoCache_RejectsOversizedEntry(t *testing.T) {
	c := newTestCache(t, 1024, time.Hour)

	c.Set("HUGE", &model.Logo{Data: bytes.Repeat([]byte("x"), 4096)})
	c.Wait()

	_, ok := c.Get("HUGE")
	assert.False(t, ok)
}

func TestLogoCache_NilIsEmpty(t *testing.T) {
	var c *LogoCache

	c.Set("AAPL", &model.Logo{})
	c.Wait()
	c.Close()

	_, ok := c.Get("AAPL")
	assert.False(t, ok)
}

func TestNewLogoCache_Disabled(t *testing.T) {
	c, err := NewLogoCache(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNewLogoCache_Enabled(t *testing.T) {
	cfg := &config.Config{}
	cfg.Logo.Cache = config.LogoCacheConfig{Enabled: true, MaxBytes: 1 << 20, TTLSeconds: 60}

	c, err := NewLogoCache(cfg)
	require.NoError(t, err)
	require.NotNil(t, c)
	defer c.Close()

	assert.Equal(t, time.Minute, c.ttl)
}
