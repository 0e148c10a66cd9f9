// File: internal/config/config_test.go
package config_test

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/magpie-cli/internal/config"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://x.com/i/bookmarks", cfg.Collector.BookmarksURL)
	assert.Equal(t, 100, cfg.Collector.MaxScrolls)
	assert.Equal(t, 2*time.Second, cfg.Collector.ScrollDelay)
	assert.Equal(t, 5, cfg.Collector.EmptyScrollThreshold)
	assert.Equal(t, `article[data-testid="tweet"]`, cfg.Collector.Selectors.Item)
	assert.Len(t, cfg.Collector.Selectors.LinkZones, 3)

	assert.Equal(t, 10, cfg.Resolver.Concurrency)
	assert.Equal(t, []string{"t.co"}, cfg.Resolver.ShortlinkHosts)

	assert.True(t, cfg.Articles.Enabled)
	assert.Equal(t, 2, cfg.Articles.Concurrency)

	assert.Equal(t, "csv", cfg.Export.Format)
	assert.False(t, cfg.Browser.Headless, "login flow needs a visible window by default")
}

func TestNewConfigFromViper_Overrides(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("collector.max_scrolls", 7)
	v.Set("export.format", "both")

	cfg, err := config.NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Collector.MaxScrolls)
	assert.Equal(t, "both", cfg.Export.Format)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero max scrolls", func(c *config.Config) { c.Collector.MaxScrolls = 0 }},
		{"negative scroll delay", func(c *config.Config) { c.Collector.ScrollDelay = -time.Second }},
		{"zero empty threshold", func(c *config.Config) { c.Collector.EmptyScrollThreshold = 0 }},
		{"missing item selector", func(c *config.Config) { c.Collector.Selectors.Item = "" }},
		{"zero resolver concurrency", func(c *config.Config) { c.Resolver.Concurrency = 0 }},
		{"zero article concurrency", func(c *config.Config) { c.Articles.Concurrency = 0 }},
		{"bogus export format", func(c *config.Config) { c.Export.Format = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.NewDefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAuthFilePath(t *testing.T) {
	cfg := config.NewDefaultConfig()

	cfg.Session.AuthFile = "/tmp/custom-auth.json"
	path, err := cfg.AuthFilePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom-auth.json", path)

	cfg.Session.AuthFile = ""
	path, err = cfg.AuthFilePath()
	require.NoError(t, err)
	assert.Contains(t, path, ".magpie")
	assert.Contains(t, path, "auth.json")
}
