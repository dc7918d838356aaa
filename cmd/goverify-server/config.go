package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	goVerify "github.com/MrEthical07/goVerify"
	"gopkg.in/yaml.v3"
)

// ServerConfig is the on-disk configuration. Every field can be overridden
// by a GOVERIFY_* environment variable; see applyEnv.
type ServerConfig struct {
	Server struct {
		Addr              string        `yaml:"addr"`
		TrustForwardedFor bool          `yaml:"trust_forwarded_for"`
		CORSOrigins       []string      `yaml:"cors_origins"`
		ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
		MetricsPath       string        `yaml:"metrics_path"`
	} `yaml:"server"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Database struct {
		URL           string        `yaml:"url"`
		PurgeSchedule string        `yaml:"purge_schedule"`
		PurgeAfter    time.Duration `yaml:"purge_after"`
	} `yaml:"database"`

	Verification struct {
		SecretKey          string          `yaml:"secret_key"`
		DefaultCountryCode string          `yaml:"default_country_code"`
		ProductionMode     bool            `yaml:"production_mode"`
		BackoffSchedule    []time.Duration `yaml:"backoff_schedule"`
		MaxResends         *int            `yaml:"max_resends"`
		RateLimitEnabled   *bool           `yaml:"rate_limit_enabled"`
		Audit              bool            `yaml:"audit"`
		Metrics            bool            `yaml:"metrics"`
	} `yaml:"verification"`

	CallerAuth struct {
		HS256Key string `yaml:"hs256_key"`
		Issuer   string `yaml:"issuer"`
		Audience string `yaml:"audience"`
	} `yaml:"caller_auth"`

	Notify struct {
		AppName string `yaml:"app_name"`

		Twilio struct {
			AccountSID string `yaml:"account_sid"`
			AuthToken  string `yaml:"auth_token"`
			FromPhone  string `yaml:"from_phone"`
		} `yaml:"twilio"`

		SendGrid struct {
			APIKey      string `yaml:"api_key"`
			FromName    string `yaml:"from_name"`
			FromAddress string `yaml:"from_address"`
			Sandbox     bool   `yaml:"sandbox"`
		} `yaml:"sendgrid"`

		SMTP struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
			From     string `yaml:"from"`
		} `yaml:"smtp"`
	} `yaml:"notify"`
}

func defaultServerConfig() ServerConfig {
	var cfg ServerConfig
	cfg.Server.Addr = ":8080"
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Server.MetricsPath = "/metrics"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Database.PurgeSchedule = "0 3 * * *"
	cfg.Database.PurgeAfter = 30 * 24 * time.Hour
	cfg.Notify.AppName = AppName
	return cfg
}

// LoadConfig reads path (when non-empty) over the defaults, then applies
// environment overrides.
func LoadConfig(path string) (ServerConfig, error) {
	cfg := defaultServerConfig()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *ServerConfig) error {
	cfg.Server.Addr = getEnv("GOVERIFY_ADDR", cfg.Server.Addr)
	cfg.Server.TrustForwardedFor = getEnvBool("GOVERIFY_TRUST_FORWARDED_FOR", cfg.Server.TrustForwardedFor)
	if v := os.Getenv("GOVERIFY_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitCSV(v)
	}

	cfg.Redis.Addr = getEnv("GOVERIFY_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("GOVERIFY_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("GOVERIFY_REDIS_DB", cfg.Redis.DB)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.URL = getEnv("GOVERIFY_DATABASE_URL", cfg.Database.URL)
	cfg.Database.PurgeSchedule = getEnv("GOVERIFY_PURGE_SCHEDULE", cfg.Database.PurgeSchedule)

	cfg.Verification.SecretKey = getEnv("GOVERIFY_SECRET_KEY", cfg.Verification.SecretKey)
	cfg.Verification.DefaultCountryCode = getEnv("GOVERIFY_DEFAULT_COUNTRY_CODE", cfg.Verification.DefaultCountryCode)
	cfg.Verification.ProductionMode = getEnvBool("GOVERIFY_PRODUCTION_MODE", cfg.Verification.ProductionMode)
	cfg.Verification.Audit = getEnvBool("GOVERIFY_AUDIT", cfg.Verification.Audit)
	cfg.Verification.Metrics = getEnvBool("GOVERIFY_METRICS", cfg.Verification.Metrics)
	if v := os.Getenv("GOVERIFY_BACKOFF_SCHEDULE"); v != "" {
		schedule, err := parseDurations(v)
		if err != nil {
			return fmt.Errorf("GOVERIFY_BACKOFF_SCHEDULE: %w", err)
		}
		cfg.Verification.BackoffSchedule = schedule
	}

	cfg.CallerAuth.HS256Key = getEnv("GOVERIFY_CALLER_HS256_KEY", cfg.CallerAuth.HS256Key)
	cfg.CallerAuth.Issuer = getEnv("GOVERIFY_CALLER_ISSUER", cfg.CallerAuth.Issuer)
	cfg.CallerAuth.Audience = getEnv("GOVERIFY_CALLER_AUDIENCE", cfg.CallerAuth.Audience)

	cfg.Notify.Twilio.AccountSID = getEnv("GOVERIFY_TWILIO_ACCOUNT_SID", cfg.Notify.Twilio.AccountSID)
	cfg.Notify.Twilio.AuthToken = getEnv("GOVERIFY_TWILIO_AUTH_TOKEN", cfg.Notify.Twilio.AuthToken)
	cfg.Notify.Twilio.FromPhone = getEnv("GOVERIFY_TWILIO_FROM_PHONE", cfg.Notify.Twilio.FromPhone)
	cfg.Notify.SendGrid.APIKey = getEnv("GOVERIFY_SENDGRID_API_KEY", cfg.Notify.SendGrid.APIKey)
	cfg.Notify.SMTP.Password = getEnv("GOVERIFY_SMTP_PASSWORD", cfg.Notify.SMTP.Password)
	return nil
}

// EngineConfig overlays the file settings on goVerify.DefaultConfig.
func (c ServerConfig) EngineConfig() (goVerify.Config, error) {
	cfg := goVerify.DefaultConfig()

	if c.Verification.SecretKey == "" {
		return cfg, errors.New("verification.secret_key (GOVERIFY_SECRET_KEY) is required")
	}
	cfg.Secret.Key = []byte(c.Verification.SecretKey)

	if c.Verification.DefaultCountryCode != "" {
		cfg.Phone.DefaultCountryCode = c.Verification.DefaultCountryCode
	}
	if len(c.Verification.BackoffSchedule) > 0 {
		cfg.Backoff.Schedule = append([]time.Duration(nil), c.Verification.BackoffSchedule...)
	}
	if c.Verification.MaxResends != nil {
		cfg.Backoff.MaxResends = *c.Verification.MaxResends
	}
	if c.Verification.RateLimitEnabled != nil {
		cfg.RateLimit.Enabled = *c.Verification.RateLimitEnabled
	}

	cfg.Security.ProductionMode = c.Verification.ProductionMode
	cfg.Audit.Enabled = c.Verification.Audit || c.Verification.ProductionMode
	cfg.Metrics.Enabled = c.Verification.Metrics
	cfg.Metrics.EnableLatencyHistograms = c.Verification.Metrics

	return cfg, cfg.Validate()
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trim := strings.TrimSpace(p); trim != "" {
			out = append(out, trim)
		}
	}
	return out
}

func parseDurations(v string) ([]time.Duration, error) {
	parts := splitCSV(v)
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(p)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
