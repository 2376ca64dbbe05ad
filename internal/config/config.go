// Package config loads issuebot settings from issuebot.yaml, ISSUEBOT_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// ISSUEBOT_BROWSER_HEADLESS=true
const EnvPrefix = "ISSUEBOT"

// DefaultFile is the config file looked up in the working directory
const DefaultFile = "issuebot.yaml"

// Config holds everything a workflow run needs
type Config struct {
	BaseURL     string
	ProjectKey  string
	ProjectName string
	CookieFile  string

	Browser BrowserConfig
	Actions ActionConfig
	Doppler DopplerConfig

	RecordPath   string
	SnapshotPath string
}

// BrowserConfig controls the launched browser
type BrowserConfig struct {
	Headless   bool
	NoSandbox  bool
	SlowMotion time.Duration
	Width      int
	Height     int
	ProfileDir string
	Bin        string
}

// ActionConfig holds the executor budgets applied to every workflow step
type ActionConfig struct {
	Timeout          time.Duration
	ConfirmWindow    time.Duration
	Backoff          time.Duration
	PollInterval     time.Duration
	ResolveWait      time.Duration
	TechniqueTimeout time.Duration
}

// DopplerConfig points at the secrets service
type DopplerConfig struct {
	BaseURL string
	Token   string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base-url", "https://automationbot999.atlassian.net")
	v.SetDefault("project.key", "DEMO")
	v.SetDefault("project.name", "JiraAutomationDemo")
	v.SetDefault("cookie-file", "jira_cookies.json")

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.no-sandbox", false)
	v.SetDefault("browser.slow-motion", 0)
	v.SetDefault("browser.width", 1280)
	v.SetDefault("browser.height", 720)
	v.SetDefault("browser.profile-dir", "")
	v.SetDefault("browser.bin", "")

	v.SetDefault("actions.timeout", "30s")
	v.SetDefault("actions.confirm-window", "20s")
	v.SetDefault("actions.backoff", "600ms")
	v.SetDefault("actions.poll-interval", "500ms")
	v.SetDefault("actions.resolve-wait", "5s")
	v.SetDefault("actions.technique-timeout", "2s")

	v.SetDefault("doppler.base-url", "https://api.doppler.com")
	v.SetDefault("doppler.token", "")

	v.SetDefault("record", "")
	v.SetDefault("snapshot", "")
}

// Load reads path, or issuebot.yaml in the working directory when path is
// empty. A missing default file is not an error; a missing explicit one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// The secrets token keeps its historical name
	_ = v.BindEnv("doppler.token", EnvPrefix+"_DOPPLER_TOKEN", "JIRA_TOKEN")

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		BaseURL:     strings.TrimRight(v.GetString("base-url"), "/"),
		ProjectKey:  v.GetString("project.key"),
		ProjectName: v.GetString("project.name"),
		CookieFile:  v.GetString("cookie-file"),
		Browser: BrowserConfig{
			Headless:   v.GetBool("browser.headless"),
			NoSandbox:  v.GetBool("browser.no-sandbox"),
			SlowMotion: v.GetDuration("browser.slow-motion"),
			Width:      v.GetInt("browser.width"),
			Height:     v.GetInt("browser.height"),
			ProfileDir: v.GetString("browser.profile-dir"),
			Bin:        v.GetString("browser.bin"),
		},
		Actions: ActionConfig{
			Timeout:          v.GetDuration("actions.timeout"),
			ConfirmWindow:    v.GetDuration("actions.confirm-window"),
			Backoff:          v.GetDuration("actions.backoff"),
			PollInterval:     v.GetDuration("actions.poll-interval"),
			ResolveWait:      v.GetDuration("actions.resolve-wait"),
			TechniqueTimeout: v.GetDuration("actions.technique-timeout"),
		},
		Doppler: DopplerConfig{
			BaseURL: strings.TrimRight(v.GetString("doppler.base-url"), "/"),
			Token:   v.GetString("doppler.token"),
		},
		RecordPath:   v.GetString("record"),
		SnapshotPath: v.GetString("snapshot"),
	}
}

// Validate rejects settings no workflow could run with
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base-url must be an http(s) URL, got %q", c.BaseURL)
	}
	if c.ProjectKey == "" {
		return errors.New("project.key must be set")
	}
	if c.Actions.Timeout <= 0 {
		return fmt.Errorf("actions.timeout must be positive, got %s", c.Actions.Timeout)
	}
	if c.Actions.PollInterval <= 0 {
		return fmt.Errorf("actions.poll-interval must be positive, got %s", c.Actions.PollInterval)
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d", c.Browser.Width, c.Browser.Height)
	}
	return nil
}
