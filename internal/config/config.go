// Package config loads service settings from defaults, an optional config
// file and the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved service configuration.
type Config struct {
	Addr         string
	AllowOrigins []string

	DatabaseURL string
	DBMigrate   bool
	RedisURL    string
	CacheTTL    time.Duration

	AuthMode       string
	AuthHMACSecret string
	AuthJWKSURL    string
	RoleClaim      string
	RegionClaim    string
	DistrictClaim  string

	RateRPS   float64
	RateBurst int

	AllowUnknownRoles  bool
	TrustExplicitScope bool

	WebhookURLs        []string
	WebhookSecret      string
	WebhookMaxAttempts int

	SeedFile  string
	LogLevel  string
	LogFormat string
}

// env names follow the deployment conventions already in use.
var envBindings = map[string]string{
	"http.port":                   "PORT",
	"http.allow_origins":          "ALLOW_ORIGINS",
	"database.url":                "DATABASE_URL",
	"database.migrate":            "DB_MIGRATE",
	"redis.url":                   "REDIS_URL",
	"redis.cache_ttl":             "CACHE_TTL",
	"auth.mode":                   "AUTH_MODE",
	"auth.hmac_secret":            "AUTH_HMAC_SECRET",
	"auth.jwks_url":               "AUTH_JWKS_URL",
	"auth.role_claim":             "AUTH_ROLE_CLAIM",
	"auth.region_claim":           "AUTH_REGION_CLAIM",
	"auth.district_claim":         "AUTH_DISTRICT_CLAIM",
	"rate.rps":                    "RATE_RPS",
	"rate.burst":                  "RATE_BURST",
	"access.allow_unknown_roles":  "ACCESS_ALLOW_UNKNOWN_ROLES",
	"access.trust_explicit_scope": "ACCESS_TRUST_EXPLICIT_SCOPE",
	"webhook.urls":                "WEBHOOK_URLS",
	"webhook.secret":              "WEBHOOK_SECRET",
	"webhook.max_attempts":        "WEBHOOK_MAX_ATTEMPTS",
	"seed.file":                   "SEED_FILE",
	"log.level":                   "LOG_LEVEL",
	"log.format":                  "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.allow_origins", "")
	v.SetDefault("database.migrate", true)
	v.SetDefault("redis.cache_ttl", "5m")
	v.SetDefault("auth.mode", "dev")
	v.SetDefault("auth.role_claim", "role")
	v.SetDefault("auth.region_claim", "region")
	v.SetDefault("auth.district_claim", "district")
	v.SetDefault("rate.rps", 0)
	v.SetDefault("rate.burst", 20)
	v.SetDefault("access.allow_unknown_roles", false)
	v.SetDefault("access.trust_explicit_scope", false)
	v.SetDefault("webhook.max_attempts", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration. file may be empty; CONFIG_FILE in the
// environment is used when it is.
func Load(file string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	_ = v.BindEnv("config.file", "CONFIG_FILE")
	if file == "" {
		file = v.GetString("config.file")
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Addr:               ":" + strings.TrimPrefix(v.GetString("http.port"), ":"),
		AllowOrigins:       splitList(v.GetString("http.allow_origins")),
		DatabaseURL:        strings.TrimSpace(v.GetString("database.url")),
		DBMigrate:          v.GetBool("database.migrate"),
		RedisURL:           strings.TrimSpace(v.GetString("redis.url")),
		CacheTTL:           v.GetDuration("redis.cache_ttl"),
		AuthMode:           strings.ToLower(strings.TrimSpace(v.GetString("auth.mode"))),
		AuthHMACSecret:     v.GetString("auth.hmac_secret"),
		AuthJWKSURL:        strings.TrimSpace(v.GetString("auth.jwks_url")),
		RoleClaim:          v.GetString("auth.role_claim"),
		RegionClaim:        v.GetString("auth.region_claim"),
		DistrictClaim:      v.GetString("auth.district_claim"),
		RateRPS:            v.GetFloat64("rate.rps"),
		RateBurst:          v.GetInt("rate.burst"),
		AllowUnknownRoles:  v.GetBool("access.allow_unknown_roles"),
		TrustExplicitScope: v.GetBool("access.trust_explicit_scope"),
		WebhookURLs:        splitList(v.GetString("webhook.urls")),
		WebhookSecret:      v.GetString("webhook.secret"),
		WebhookMaxAttempts: v.GetInt("webhook.max_attempts"),
		SeedFile:           v.GetString("seed.file"),
		LogLevel:           v.GetString("log.level"),
		LogFormat:          v.GetString("log.format"),
	}
	switch cfg.AuthMode {
	case "dev":
	case "hmac":
		if cfg.AuthHMACSecret == "" {
			return Config{}, fmt.Errorf("auth.hmac_secret is required when auth.mode=hmac")
		}
	case "jwks":
		if cfg.AuthJWKSURL == "" {
			return Config{}, fmt.Errorf("auth.jwks_url is required when auth.mode=jwks")
		}
	default:
		return Config{}, fmt.Errorf("auth.mode must be dev, hmac or jwks, got %q", cfg.AuthMode)
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
