package config

import (
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer          string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL         string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience        string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey      string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	ShareBaseURL        string        `mapstructure:"SHARE_BASE_URL"`
	ShareTokenTTL       time.Duration `mapstructure:"SHARE_TOKEN_TTL"`
	ShareRateLimitRPS   float64       `mapstructure:"SHARE_RATE_LIMIT_RPS"`
	ShareRateLimitBurst int           `mapstructure:"SHARE_RATE_LIMIT_BURST"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	MetricsEnabled      bool          `mapstructure:"METRICS_ENABLED"`
	TrustedProxies      []string      `mapstructure:"TRUSTED_PROXIES"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("SHARE_BASE_URL", "http://localhost:3000/share")
	v.SetDefault("SHARE_TOKEN_TTL", "0s")
	v.SetDefault("SHARE_RATE_LIMIT_RPS", 5)
	v.SetDefault("SHARE_RATE_LIMIT_BURST", 20)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("METRICS_ENABLED", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
		"CORS_ORIGINS", "SHARE_BASE_URL", "SHARE_TOKEN_TTL",
		"SHARE_RATE_LIMIT_RPS", "SHARE_RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
		"METRICS_ENABLED", "TRUSTED_PROXIES",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	if len(cfg.TrustedProxies) == 1 && strings.Contains(cfg.TrustedProxies[0], ",") {
		cfg.TrustedProxies = strings.Split(cfg.TrustedProxies[0], ",")
	}
	cfg.ShareBaseURL = strings.TrimRight(cfg.ShareBaseURL, "/")

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: identity is taken from X-User-ID / X-User-Role headers without verification.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT verification source (a signing key or a JWKS endpoint) is required.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf(
			"AUTH_SIGNING_KEY or AUTH_JWKS_URL must be set when ENV=%q; "+
				"refusing to start without token verification", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters, got %d", len(c.AuthSigningKey))
	}
	if c.ShareTokenTTL < 0 {
		return fmt.Errorf("SHARE_TOKEN_TTL must not be negative, got %s", c.ShareTokenTTL)
	}
	if c.ShareRateLimitRPS <= 0 || c.ShareRateLimitBurst <= 0 {
		return fmt.Errorf("SHARE_RATE_LIMIT_RPS and SHARE_RATE_LIMIT_BURST must be positive")
	}
	if c.ShareBaseURL == "" {
		return fmt.Errorf("SHARE_BASE_URL is required")
	}
	if _, err := c.TrustedProxyNets(); err != nil {
		return err
	}
	return nil
}

// TrustedProxyNets parses TRUSTED_PROXIES. Entries are CIDR ranges or bare
// addresses; an empty list means forwarding headers are never trusted.
func (c *Config) TrustedProxyNets() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: invalid address %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}
