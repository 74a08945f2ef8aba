package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// JWTConfig configures local verification of admin access tokens against a JWKS endpoint.
type JWTConfig struct {
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
	JWKSURL  string `yaml:"jwksUrl"`

	ClockSkew              time.Duration `yaml:"clockSkew"`
	JWKSRefreshInterval    time.Duration `yaml:"jwksRefreshInterval"`
	JWKSMinRefreshInterval time.Duration `yaml:"jwksMinRefreshInterval"`

	HTTPTimeout time.Duration `yaml:"httpTimeout"`
}

var jwtBindings = map[string][]string{
	"jwt.issuer":                    {"JWT_ISSUER"},
	"jwt.audience":                  {"JWT_AUDIENCE"},
	"jwt.jwks_url":                  {"JWT_JWKS_URL"},
	"jwt.clock_skew":                {"JWT_CLOCK_SKEW"},
	"jwt.jwks_refresh_interval":     {"JWT_JWKS_REFRESH_INTERVAL"},
	"jwt.jwks_min_refresh_interval": {"JWT_JWKS_MIN_REFRESH_INTERVAL"},
}

// jwtConfigFromViper reports ok=false when none of issuer, audience and JWKS URL is set.
// Setting only some of them is an error.
func jwtConfigFromViper(v *viper.Viper) (JWTConfig, bool, error) {
	issuer := strings.TrimSpace(v.GetString("jwt.issuer"))
	audience := strings.TrimSpace(v.GetString("jwt.audience"))
	jwksURL := strings.TrimSpace(v.GetString("jwt.jwks_url"))
	if issuer == "" && audience == "" && jwksURL == "" {
		return JWTConfig{}, false, nil
	}
	if issuer == "" || audience == "" || jwksURL == "" {
		return JWTConfig{}, false, fmt.Errorf("JWT_ISSUER, JWT_AUDIENCE and JWT_JWKS_URL must be set together")
	}

	cfg := JWTConfig{
		Issuer:                 issuer,
		Audience:               audience,
		JWKSURL:                jwksURL,
		ClockSkew:              30 * time.Second,
		JWKSRefreshInterval:    5 * time.Minute,
		JWKSMinRefreshInterval: 10 * time.Second,
		HTTPTimeout:            5 * time.Second,
	}
	durations := []struct {
		key, env string
		dst      *time.Duration
	}{
		{"jwt.clock_skew", "JWT_CLOCK_SKEW", &cfg.ClockSkew},
		{"jwt.jwks_refresh_interval", "JWT_JWKS_REFRESH_INTERVAL", &cfg.JWKSRefreshInterval},
		{"jwt.jwks_min_refresh_interval", "JWT_JWKS_MIN_REFRESH_INTERVAL", &cfg.JWKSMinRefreshInterval},
	}
	for _, d := range durations {
		raw := strings.TrimSpace(v.GetString(d.key))
		if raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return JWTConfig{}, false, fmt.Errorf("%s must be a duration (e.g. 30s): %w", d.env, err)
		}
		*d.dst = parsed
	}
	return cfg, true, nil
}
