package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Google struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		BaseURL      string `yaml:"base_url"`
	} `yaml:"google"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Reminders struct {
		LeadMinutes         int `yaml:"lead_minutes"`
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	} `yaml:"reminders"`

	Defaults struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"defaults"`

	Monitoring struct {
		AuthCallbackPort  int  `yaml:"auth_callback_port"`
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/donna.db"
	}
	if cfg.Defaults.Timezone == "" {
		cfg.Defaults.Timezone = "America/New_York"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ReminderLead() time.Duration {
	if c.Reminders.LeadMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Reminders.LeadMinutes) * time.Minute
}

func (c *Config) PollInterval() time.Duration {
	if c.Reminders.PollIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Reminders.PollIntervalSeconds) * time.Second
}
