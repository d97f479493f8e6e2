package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration, loaded from a YAML file with
// environment variable overrides so deployments stay twelve-factor friendly.
type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Auth struct {
		JWTAccessSecret  string        `yaml:"jwt_access_secret"`
		JWTRefreshSecret string        `yaml:"jwt_refresh_secret"`
		AccessTTL        time.Duration `yaml:"access_ttl"`
		RefreshTTL       time.Duration `yaml:"refresh_ttl"`
		AdminEmails      []string      `yaml:"admin_emails"`
		WebhookSecret    string        `yaml:"webhook_secret"`
		GoogleClientID   string        `yaml:"google_client_id"`
	} `yaml:"auth"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers    []string `yaml:"brokers"`
		AuditTopic string   `yaml:"audit_topic"`
	} `yaml:"kafka"`
	Uploads struct {
		Dir     string `yaml:"dir"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"uploads"`
}

// Load reads YAML config from path and applies defaults and env overrides.
// An empty path yields a config built from defaults and environment only.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CERTO_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("JWT_ACCESS_SECRET"); v != "" {
		c.Auth.JWTAccessSecret = v
	}
	if v := os.Getenv("JWT_REFRESH_SECRET"); v != "" {
		c.Auth.JWTRefreshSecret = v
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		c.Auth.WebhookSecret = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		c.Auth.GoogleClientID = v
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Auth.JWTAccessSecret == "" {
		// Development default; override in production.
		c.Auth.JWTAccessSecret = "dev-access-secret-change-me"
	}
	if c.Auth.JWTRefreshSecret == "" {
		c.Auth.JWTRefreshSecret = "dev-refresh-secret-change-me"
	}
	if c.Auth.AccessTTL == 0 {
		c.Auth.AccessTTL = 24 * time.Hour
	}
	if c.Auth.RefreshTTL == 0 {
		c.Auth.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.Uploads.Dir == "" {
		c.Uploads.Dir = "uploads"
	}
	if c.Uploads.BaseURL == "" {
		c.Uploads.BaseURL = "/files"
	}
	if c.Kafka.AuditTopic == "" {
		c.Kafka.AuditTopic = "certo.audit"
	}
}
