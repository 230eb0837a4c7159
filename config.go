package identity

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
)

// AppConfig holds every runtime setting the service needs. Values are
// resolved once at startup and passed to component constructors; nothing
// reads configuration ambiently after that.
type AppConfig struct {
	ListenAddr      string
	DatabaseDSN     string
	SigningKey      string
	TokenExpiration int // hours
	Issuer          string
	Audience        []string
	AuthScheme      string
	ContextKey      string
	Debug           bool

	// Bootstrap admin seeded when the store has no admins yet. Leaving
	// the email empty disables seeding.
	BootstrapAdminName     string
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

var _ Config = (*AppConfig)(nil)

// LoadDefaults populates AppConfig with development defaults. The signing
// key is deliberately left empty: Validate refuses to start without one.
func (c *AppConfig) LoadDefaults() {
	c.ListenAddr = ":8572"
	c.DatabaseDSN = "file:identity.db?cache=shared&_pragma=foreign_keys(1)"
	c.TokenExpiration = 24
	c.Issuer = "campuskit.identity"
	c.AuthScheme = "Bearer"
	c.ContextKey = "user"
}

// LoadConfig builds an AppConfig by applying defaults and overlaying
// values from the environment.
func LoadConfig() *AppConfig {
	cfg := &AppConfig{}
	cfg.LoadDefaults()
	cfg.loadEnv()
	return cfg
}

func (c *AppConfig) loadEnv() {
	if v := os.Getenv("IDENTITY_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("IDENTITY_DATABASE_DSN"); v != "" {
		c.DatabaseDSN = v
	}
	if v := os.Getenv("IDENTITY_SIGNING_KEY"); v != "" {
		c.SigningKey = v
	}
	if v := os.Getenv("IDENTITY_TOKEN_TTL_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil {
			c.TokenExpiration = hours
		}
	}
	if v := os.Getenv("IDENTITY_ISSUER"); v != "" {
		c.Issuer = v
	}
	if v := os.Getenv("IDENTITY_AUDIENCE"); v != "" {
		c.Audience = strings.Split(v, ",")
	}
	if v := os.Getenv("IDENTITY_DEBUG"); v != "" {
		c.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("IDENTITY_BOOTSTRAP_ADMIN_NAME"); v != "" {
		c.BootstrapAdminName = v
	}
	if v := os.Getenv("IDENTITY_BOOTSTRAP_ADMIN_EMAIL"); v != "" {
		c.BootstrapAdminEmail = v
	}
	if v := os.Getenv("IDENTITY_BOOTSTRAP_ADMIN_PASSWORD"); v != "" {
		c.BootstrapAdminPassword = v
	}
}

// Validate enforces the startup contract. A missing signing key is a hard
// failure, never a silent default.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.SigningKey) == "" {
		return errors.New("signing key is required, set IDENTITY_SIGNING_KEY", errors.CategoryValidation).
			WithTextCode("MISSING_SIGNING_KEY")
	}

	if c.TokenExpiration <= 0 {
		return errors.New("token expiration must be a positive number of hours", errors.CategoryValidation).
			WithTextCode("INVALID_TOKEN_TTL")
	}

	return nil
}

// TokenLifetime returns the configured token lifetime as a duration
func (c *AppConfig) TokenLifetime() time.Duration {
	return time.Duration(c.TokenExpiration) * time.Hour
}

func (c *AppConfig) GetSigningKey() string     { return c.SigningKey }
func (c *AppConfig) GetTokenExpiration() int   { return c.TokenExpiration }
func (c *AppConfig) GetIssuer() string         { return c.Issuer }
func (c *AppConfig) GetAudience() []string     { return c.Audience }
func (c *AppConfig) GetAuthScheme() string     { return c.AuthScheme }
func (c *AppConfig) GetContextKey() string     { return c.ContextKey }
