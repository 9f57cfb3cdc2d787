package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.EmailEnabled())
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
save_dir: /srv/archive
max_items_total: 500
no_html: true
smtp_server: smtp.example.com
smtp_user: bot
smtp_pass: secret
to_email: team@example.com
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/archive", cfg.SaveDir)
	assert.Equal(t, 500, cfg.MaxItemsTotal)
	assert.True(t, cfg.NoHTML)
	assert.True(t, cfg.EmailEnabled())
	// untouched keys keep their defaults
	assert.Equal(t, 30, cfg.PageSize)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("save_dir: [unclosed"), 0o644))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max items", func(c *Config) { c.MaxItemsTotal = 0 }},
		{"zero page size", func(c *Config) { c.PageSize = 0 }},
		{"inverted timeout range", func(c *Config) { c.TimeoutMin = 10; c.TimeoutMax = 5 }},
		{"negative delay", func(c *Config) { c.DelayMin = -1 }},
		{"inverted download delay", func(c *Config) { c.DownloadDelayMin = 3; c.DownloadDelayMax = 1 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	cfg.TimeoutMin, cfg.TimeoutMax = 8, 12
	cfg.RetryDelay = 2.5

	lo, hi := cfg.TimeoutRange()
	assert.Equal(t, 8*time.Second, lo)
	assert.Equal(t, 12*time.Second, hi)
	assert.Equal(t, 2500*time.Millisecond, cfg.RetryBase())
}
