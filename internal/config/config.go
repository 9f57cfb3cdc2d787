/*
Package config holds the run configuration. Defaults can be overlaid by an
optional YAML file, and the command layer applies explicit flags on top.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the full set of tunables for a fetch run. Duration-like fields
// are seconds, matching the flag surface.
type Config struct {
	SaveDir   string `yaml:"save_dir"`
	OrgIDFile string `yaml:"org_id_file"`

	MaxItemsTotal int `yaml:"max_items_total"`
	PageSize      int `yaml:"page_size"`
	Days          int `yaml:"days"`

	TimeoutMin float64 `yaml:"timeout_min"`
	TimeoutMax float64 `yaml:"timeout_max"`

	DelayMin float64 `yaml:"delay_min"`
	DelayMax float64 `yaml:"delay_max"`

	DownloadDelayMin float64 `yaml:"download_delay_min"`
	DownloadDelayMax float64 `yaml:"download_delay_max"`

	MaxRetries         int     `yaml:"max_retries"`
	RetryDelay         float64 `yaml:"retry_delay"`
	DownloadRetryDelay float64 `yaml:"download_retry_delay"`

	NoHTML  bool `yaml:"no_html"`
	Workers int  `yaml:"workers"`

	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	SMTPUser   string `yaml:"smtp_user"`
	SMTPPass   string `yaml:"smtp_pass"`
	FromEmail  string `yaml:"from_email"`
	ToEmail    string `yaml:"to_email"`

	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`
}

// Default mirrors the tool's historical defaults.
func Default() Config {
	return Config{
		SaveDir:            "downloads",
		OrgIDFile:          "stockcodes/stock_orgids.json",
		MaxItemsTotal:      100,
		PageSize:           30,
		TimeoutMin:         8.0,
		TimeoutMax:         12.0,
		DelayMin:           1.0,
		DelayMax:           3.0,
		DownloadDelayMin:   0.5,
		DownloadDelayMax:   2.0,
		MaxRetries:         3,
		RetryDelay:         2.0,
		DownloadRetryDelay: 1.0,
		Workers:            1,
		SMTPPort:           587,
		GeminiModel:        "gemini-2.0-flash",
	}
}

// LoadFile overlays a YAML file on top of the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxItemsTotal <= 0 {
		errs = append(errs, fmt.Errorf("max-items-total must be positive, got %d", c.MaxItemsTotal))
	}
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page-size must be positive, got %d", c.PageSize))
	}
	if c.TimeoutMin <= 0 || c.TimeoutMax < c.TimeoutMin {
		errs = append(errs, fmt.Errorf("timeout range %.1f-%.1f is invalid", c.TimeoutMin, c.TimeoutMax))
	}
	if c.DelayMin < 0 || c.DelayMax < c.DelayMin {
		errs = append(errs, fmt.Errorf("delay range %.1f-%.1f is invalid", c.DelayMin, c.DelayMax))
	}
	if c.DownloadDelayMin < 0 || c.DownloadDelayMax < c.DownloadDelayMin {
		errs = append(errs, fmt.Errorf("download delay range %.1f-%.1f is invalid", c.DownloadDelayMin, c.DownloadDelayMax))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max-retries must not be negative, got %d", c.MaxRetries))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	return errors.Join(errs...)
}

// EmailEnabled reports whether the SMTP settings are complete enough to send.
func (c *Config) EmailEnabled() bool {
	return c.SMTPServer != "" && c.SMTPUser != "" && c.SMTPPass != "" && c.ToEmail != ""
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// TimeoutRange returns the per-attempt timeout window.
func (c *Config) TimeoutRange() (time.Duration, time.Duration) {
	return seconds(c.TimeoutMin), seconds(c.TimeoutMax)
}

// DelayRange returns the between-requests delay window.
func (c *Config) DelayRange() (time.Duration, time.Duration) {
	return seconds(c.DelayMin), seconds(c.DelayMax)
}

// DownloadDelayRange returns the between-downloads delay window.
func (c *Config) DownloadDelayRange() (time.Duration, time.Duration) {
	return seconds(c.DownloadDelayMin), seconds(c.DownloadDelayMax)
}

// RetryBase returns the search retry backoff base.
func (c *Config) RetryBase() time.Duration {
	return seconds(c.RetryDelay)
}

// DownloadRetryBase returns the download retry backoff base.
func (c *Config) DownloadRetryBase() time.Duration {
	return seconds(c.DownloadRetryDelay)
}
