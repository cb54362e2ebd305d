// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable; nested structs contribute their prefix.
type Config struct {
	Env         string `envconfig:"APP_ENV" default:"development"`
	Port        string `envconfig:"APP_PORT" default:"8080"`
	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:3000"`

	// TrustedProxies lists CIDRs or single addresses of reverse proxies whose
	// X-Forwarded-For is believed.  Empty means clients are identified by
	// the TCP peer address.
	TrustedProxies   []string     `envconfig:"TRUSTED_PROXIES"`
	TrustedProxyNets []*net.IPNet `ignored:"true"`

	ReadTimeout     time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"10s"`

	DB     DBConfig
	Keys   KeyConfig
	Tokens TokenConfig
	Cookie CookieConfig

	BcryptCost int `envconfig:"BCRYPT_COST" default:"10"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	AMQPURL       string `envconfig:"RABBITMQ_URL"`
	AuditLogPath  string `envconfig:"AUDIT_LOG_PATH" default:"logs/auth-audit.log"`
	PurgeInterval string `envconfig:"PURGE_INTERVAL" default:"@every 1h"`

	Admin AdminConfig

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
}

// DBConfig describes the MySQL connection.
type DBConfig struct {
	User string `envconfig:"DB_USER" required:"true"`
	Pass string `envconfig:"DB_PASS"`
	Host string `envconfig:"DB_HOST" default:"127.0.0.1"`
	Port string `envconfig:"DB_PORT" default:"3306"`
	Name string `envconfig:"DB_NAME" required:"true"`
}

// KeyConfig locates the RSA key pair.  Each key is given inline (PEM with
// literal \n allowed) or as a file path; the inline value wins.
type KeyConfig struct {
	PrivateKey     string `envconfig:"PRIVATE_KEY"`
	PrivateKeyPath string `envconfig:"PRIVATE_KEY_PATH"`
	PublicKey      string `envconfig:"PUBLIC_KEY"`
	PublicKeyPath  string `envconfig:"PUBLIC_KEY_PATH"`
}

type TokenConfig struct {
	AccessTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"1h"`
	RefreshTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"8760h"`
}

// CookieConfig controls the auth cookies.  Secure defaults to true in
// production when COOKIE_SECURE is unset.
type CookieConfig struct {
	Secure string `envconfig:"COOKIE_SECURE"`
	Domain string `envconfig:"COOKIE_DOMAIN"`
}

// AdminConfig seeds the first ADMIN account.  All four values must be set.
type AdminConfig struct {
	Email     string `envconfig:"ADMIN_EMAIL"`
	Password  string `envconfig:"ADMIN_PASSWORD"`
	FirstName string `envconfig:"ADMIN_FIRST_NAME"`
	LastName  string `envconfig:"ADMIN_LAST_NAME"`
}

// Complete reports whether every admin seed value is present.
func (a AdminConfig) Complete() bool {
	return a.Email != "" && a.Password != "" && a.FirstName != "" && a.LastName != ""
}

// Partial reports whether some, but not all, admin seed values are present.
func (a AdminConfig) Partial() bool {
	some := a.Email != "" || a.Password != "" || a.FirstName != "" || a.LastName != ""
	return some && !a.Complete()
}

// Load reads a .env file when one exists and then processes the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// LoadWorker is Load for processes that never sign or verify tokens, so the
// key pair is optional.
func LoadWorker() (Config, error) {
	_ = godotenv.Load()
	return process()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg, err := process()
	if err != nil {
		return Config{}, err
	}
	if cfg.Keys.PrivateKey == "" && cfg.Keys.PrivateKeyPath == "" {
		return Config{}, errors.New("PRIVATE_KEY or PRIVATE_KEY_PATH must be provided")
	}
	if cfg.Keys.PublicKey == "" && cfg.Keys.PublicKeyPath == "" {
		return Config{}, errors.New("PUBLIC_KEY or PUBLIC_KEY_PATH must be provided")
	}
	return cfg, nil
}

func process() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	cfg.RateLimit = cfg.RateLimit.normalize()
	nets, err := parseProxies(cfg.TrustedProxies)
	if err != nil {
		return Config{}, err
	}
	cfg.TrustedProxyNets = nets
	return cfg, nil
}

// parseProxies accepts CIDRs and bare IPs; a bare IP becomes a single-host
// network.
func parseProxies(entries []string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if _, n, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, n)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: invalid address %q", entry)
		}
		bits := 128
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 32
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets, nil
}

// IsProduction returns true when the application runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// SecureCookies resolves COOKIE_SECURE against the environment default.
func (c Config) SecureCookies() bool {
	if c.Cookie.Secure == "" {
		return c.IsProduction()
	}
	b, err := strconv.ParseBool(c.Cookie.Secure)
	if err != nil {
		return c.IsProduction()
	}
	return b
}
