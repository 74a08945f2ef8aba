// Package config loads service settings from the environment, an optional .env file and
// an optional YAML file (CONFIG_FILE).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"

	AuthModeSupabase = "supabase"
	AuthModeDev      = "dev"

	DefaultTable     = "email_submissions"
	DefaultAdminPath = "/admin"
	DefaultCampaign  = "Claim Canva Pro"
	DefaultTimeZone  = "Asia/Jakarta"
)

type SupabaseConfig struct {
	URL     string `yaml:"url" mapstructure:"url"`
	AnonKey string `yaml:"anonKey" mapstructure:"anon_key"`
	Table   string `yaml:"table" mapstructure:"table"`
}

// Configured reports whether every setting the hosted store needs is present.
func (c SupabaseConfig) Configured() bool {
	return c.URL != "" && c.AnonKey != "" && c.Table != ""
}

type RateLimitConfig struct {
	PerMinute float64 `yaml:"perMinute" mapstructure:"per_minute"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

type EventsConfig struct {
	AMQPURL  string `yaml:"amqpUrl" mapstructure:"amqp_url"`
	Exchange string `yaml:"exchange" mapstructure:"exchange"`
}

type Config struct {
	Addr string `yaml:"addr"`

	StoreBackend string         `yaml:"storeBackend"`
	Supabase     SupabaseConfig `yaml:"supabase"`
	DatabaseURL  string         `yaml:"databaseUrl"`

	AuthMode         string        `yaml:"authMode"`
	DevAdminEmail    string        `yaml:"devAdminEmail"`
	DevAdminPassword string        `yaml:"-"`
	SessionTTL       time.Duration `yaml:"sessionTTL"`

	AdminPath     string   `yaml:"adminPath"`
	Organizations []string `yaml:"organizations"`
	CampaignName  string   `yaml:"campaignName"`
	TimeZone      string   `yaml:"timeZone"`

	SubmitRateLimit RateLimitConfig `yaml:"submitRateLimit"`
	IdempotencyTTL  time.Duration   `yaml:"idempotencyTTL"`
	Events          EventsConfig    `yaml:"events"`

	// JWT is set when local token verification is configured.
	JWT *JWTConfig `yaml:"jwt,omitempty"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	if out.Supabase.AnonKey != "" {
		out.Supabase.AnonKey = "****"
	}
	if out.DatabaseURL != "" {
		out.DatabaseURL = "****"
	}
	if out.Events.AMQPURL != "" {
		out.Events.AMQPURL = "****"
	}
	out.DevAdminPassword = ""
	return out
}

// bindings maps config keys to the environment variables that may carry them, in
// priority order. The VITE_ names are accepted for deployments that share one .env with
// the web front end.
var bindings = map[string][]string{
	"addr":                   {"HTTP_ADDR", "ADDR"},
	"store_backend":          {"STORE_BACKEND"},
	"supabase.url":           {"SUPABASE_URL", "VITE_SUPABASE_URL"},
	"supabase.anon_key":      {"SUPABASE_ANON_KEY", "SUPABASE_KEY", "VITE_SUPABASE_ANON_KEY"},
	"supabase.table":         {"SUPABASE_TABLE", "VITE_SUPABASE_TABLE"},
	"database_url":           {"DATABASE_URL"},
	"auth_mode":              {"AUTH_MODE"},
	"dev_admin_email":        {"DEV_ADMIN_EMAIL"},
	"dev_admin_password":     {"DEV_ADMIN_PASSWORD"},
	"session_ttl":            {"SESSION_TTL"},
	"admin_path":             {"ADMIN_PATH", "VITE_ADMIN_PATH"},
	"organizations":          {"ORGANIZATIONS"},
	"campaign_name":          {"CAMPAIGN_NAME"},
	"time_zone":              {"TIME_ZONE"},
	"submit_rate.per_minute": {"SUBMIT_RATE_PER_MINUTE"},
	"submit_rate.burst":      {"SUBMIT_RATE_BURST"},
	"idempotency_ttl":        {"IDEMPOTENCY_TTL"},
	"events.amqp_url":        {"EVENTS_AMQP_URL"},
	"events.exchange":        {"EVENTS_EXCHANGE"},
	"log_level":              {"LOG_LEVEL"},
	"log_format":             {"LOG_FORMAT"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("store_backend", BackendSupabase)
	v.SetDefault("supabase.table", DefaultTable)
	v.SetDefault("auth_mode", AuthModeSupabase)
	v.SetDefault("session_ttl", time.Hour)
	v.SetDefault("admin_path", DefaultAdminPath)
	v.SetDefault("campaign_name", DefaultCampaign)
	v.SetDefault("time_zone", DefaultTimeZone)
	v.SetDefault("submit_rate.per_minute", 10.0)
	v.SetDefault("submit_rate.burst", 5)
	v.SetDefault("idempotency_ttl", 24*time.Hour)
	v.SetDefault("events.exchange", "claims")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Load reads .env (when present), then the environment and CONFIG_FILE.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	if err := bind(v); err != nil {
		return Config{}, err
	}
	if path := strings.TrimSpace(v.GetString("config_file")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return FromViper(v)
}

func bind(v *viper.Viper) error {
	setDefaults(v)
	if err := v.BindEnv("config_file", "CONFIG_FILE"); err != nil {
		return err
	}
	for key, envs := range jwtBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and env bindings but no file; tests and
// the CLI layer their own sources on top.
func NewViper() *viper.Viper {
	v := viper.New()
	_ = bind(v)
	return v
}

// FromViper builds and validates a Config.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Addr:         strings.TrimSpace(v.GetString("addr")),
		StoreBackend: strings.ToLower(strings.TrimSpace(v.GetString("store_backend"))),
		Supabase: SupabaseConfig{
			URL:     strings.TrimSpace(v.GetString("supabase.url")),
			AnonKey: strings.TrimSpace(v.GetString("supabase.anon_key")),
			Table:   strings.TrimSpace(v.GetString("supabase.table")),
		},
		DatabaseURL:      strings.TrimSpace(v.GetString("database_url")),
		AuthMode:         strings.ToLower(strings.TrimSpace(v.GetString("auth_mode"))),
		DevAdminEmail:    strings.TrimSpace(v.GetString("dev_admin_email")),
		DevAdminPassword: v.GetString("dev_admin_password"),
		SessionTTL:       v.GetDuration("session_ttl"),
		AdminPath:        NormalizePath(v.GetString("admin_path")),
		Organizations:    splitList(v.Get("organizations")),
		CampaignName:     strings.TrimSpace(v.GetString("campaign_name")),
		TimeZone:         strings.TrimSpace(v.GetString("time_zone")),
		SubmitRateLimit: RateLimitConfig{
			PerMinute: v.GetFloat64("submit_rate.per_minute"),
			Burst:     v.GetInt("submit_rate.burst"),
		},
		IdempotencyTTL: v.GetDuration("idempotency_ttl"),
		Events: EventsConfig{
			AMQPURL:  strings.TrimSpace(v.GetString("events.amqp_url")),
			Exchange: strings.TrimSpace(v.GetString("events.exchange")),
		},
		LogLevel:  strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		LogFormat: strings.ToLower(strings.TrimSpace(v.GetString("log_format"))),
	}
	if cfg.CampaignName == "" {
		cfg.CampaignName = DefaultCampaign
	}
	jwtCfg, ok, err := jwtConfigFromViper(v)
	if err != nil {
		return cfg, err
	}
	if ok {
		cfg.JWT = &jwtCfg
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case BackendSupabase, BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be one of supabase, postgres, memory (got %q)", c.StoreBackend))
	}
	switch c.AuthMode {
	case AuthModeSupabase:
	case AuthModeDev:
		if c.DevAdminEmail == "" || c.DevAdminPassword == "" {
			errs = append(errs, errors.New("DEV_ADMIN_EMAIL and DEV_ADMIN_PASSWORD are required when AUTH_MODE=dev"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_MODE must be supabase or dev (got %q)", c.AuthMode))
	}
	if c.AdminPath == "/" {
		errs = append(errs, errors.New("ADMIN_PATH must not be /"))
	}
	if c.SubmitRateLimit.PerMinute < 0 || c.SubmitRateLimit.Burst < 0 {
		errs = append(errs, errors.New("SUBMIT_RATE_PER_MINUTE and SUBMIT_RATE_BURST must not be negative"))
	}
	return errors.Join(errs...)
}

// splitList accepts both YAML lists and a comma-separated env value. Organization names
// contain spaces, so viper's whitespace splitting cannot be used.
func splitList(raw any) []string {
	var items []string
	switch x := raw.(type) {
	case nil:
	case string:
		items = strings.Split(x, ",")
	case []string:
		items = x
	case []any:
		for _, it := range x {
			items = append(items, fmt.Sprint(it))
		}
	default:
		items = strings.Split(fmt.Sprint(x), ",")
	}

	var out []string
	for _, item := range items {
		if p := strings.TrimSpace(item); p != "" {
			out = append(out, p)
		}
	}
	return out
}
