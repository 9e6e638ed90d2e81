package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig       `envPrefix:"APP_"`
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Log       LogConfig       `envPrefix:"LOG_"`
	Database  DatabaseConfig  `envPrefix:"DATABASE_"`
	Session   SessionConfig   `envPrefix:"SESSION_"`
	Mail      MailConfig      `envPrefix:"MAIL_"`
	MagicLink MagicLinkConfig `envPrefix:"MAGIC_LINK_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	JWT       JWTConfig       `envPrefix:"JWT_"`
	OpenAPI   OpenAPIConfig   `envPrefix:"OPENAPI_"`
}

type AppConfig struct {
	Name        string `env:"NAME" envDefault:"Payslip Manager"`
	URL         string `env:"URL" envDefault:"http://localhost:8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	Host            string        `env:"HOST" envDefault:"localhost"`
	SecureHeaders   bool          `env:"SECURE_HEADERS" envDefault:"true"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

type LogConfig struct {
	Level      string `env:"LEVEL" envDefault:"info"`
	Format     string `env:"FORMAT" envDefault:"json"`
	Output     string `env:"OUTPUT" envDefault:"stdout"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"10"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"MAX_AGE_DAYS" envDefault:"7"`
	Compress   bool   `env:"COMPRESS" envDefault:"true"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"data/payslips.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type SessionConfig struct {
	Enabled  bool          `env:"ENABLED" envDefault:"true"`
	Store    string        `env:"STORE" envDefault:"database"`
	Name     string        `env:"NAME" envDefault:"payslip_session"`
	MaxAge   time.Duration `env:"MAX_AGE" envDefault:"24h"`
	Path     string        `env:"PATH" envDefault:"/"`
	Domain   string        `env:"DOMAIN"`
	Secure   bool          `env:"SECURE" envDefault:"false"`
	HttpOnly bool          `env:"HTTP_ONLY" envDefault:"true"`
	SameSite string        `env:"SAME_SITE" envDefault:"lax"`
}

type MailConfig struct {
	Host         string `env:"HOST" envDefault:"localhost"`
	Port         int    `env:"PORT" envDefault:"587"`
	Username     string `env:"USERNAME"`
	Password     string `env:"PASSWORD"`
	Encryption   string `env:"ENCRYPTION" envDefault:"starttls"`
	FromAddress  string `env:"FROM_ADDRESS" envDefault:"noreply@example.com"`
	FromName     string `env:"FROM_NAME"`
	TemplatesDir string `env:"TEMPLATES_DIR"`
}

type MagicLinkConfig struct {
	ExpiryMinutes int `env:"EXPIRY_MINUTES" envDefault:"15"`
	BaseURL         string        `env:"BASE_URL"`
	TokenBytes      int           `env:"TOKEN_BYTES" envDefault:"32"`
	RequireAccount  bool          `env:"REQUIRE_ACCOUNT" envDefault:"false"`
	AutoCreate      bool          `env:"AUTO_CREATE_ACCOUNTS" envDefault:"true"`
	RevealUnknown   bool          `env:"REVEAL_UNKNOWN" envDefault:"false"`
	SuccessRedirect string        `env:"SUCCESS_REDIRECT" envDefault:"/"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	Retention       time.Duration `env:"RETENTION" envDefault:"24h"`
}

func (c MagicLinkConfig) Expiry() time.Duration {
	if c.ExpiryMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.ExpiryMinutes) * time.Minute
}

type CountingMode string

const (
	CountAll      CountingMode = "all"
	CountFailures CountingMode = "failures"
	CountSuccess  CountingMode = "success"
)

type RateLimitConfig struct {
	Enabled   bool          `env:"ENABLED" envDefault:"true"`
	Store     string        `env:"STORE" envDefault:"memory"`
	Rate      int           `env:"RATE" envDefault:"3"`
	Period    time.Duration `env:"PERIOD" envDefault:"10m"`
	CountMode CountingMode  `env:"COUNT_MODE" envDefault:"all"`
}

type JWTConfig struct {
	SecretKey       string        `env:"SECRET_KEY"`
	Issuer          string        `env:"ISSUER" envDefault:"payslip-auth"`
	AccessExpiry    time.Duration `env:"ACCESS_EXPIRY" envDefault:"24h"`
	RevocationStore string        `env:"REVOCATION_STORE" envDefault:"database"`
}

type OpenAPIConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Version string `env:"VERSION" envDefault:"1.0.0"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	if c, ok := cfg.(*Config); ok {
		return c.Validate()
	}
	return nil
}

func (c *Config) Validate() error {
	if err := validateJWTConfig(&c.JWT); err != nil {
		return err
	}
	return validateMagicLinkConfig(&c.MagicLink)
}

var weakSecretPatterns = []string{"password", "secret", "test", "example", "default", "change"}

func validateJWTConfig(cfg *JWTConfig) error {
	if cfg.SecretKey == "" {
		return nil
	}
	if len(cfg.SecretKey) < 32 {
		return errors.New("JWT secret key must be at least 32 characters long")
	}
	lower := strings.ToLower(cfg.SecretKey)
	for _, pattern := range weakSecretPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("JWT secret key contains weak patterns (%q)", pattern)
		}
	}
	return nil
}

func validateMagicLinkConfig(cfg *MagicLinkConfig) error {
	if cfg.TokenBytes < 16 {
		return errors.New("magic link token length must be at least 16 bytes")
	}
	if cfg.TokenBytes > 128 {
		return errors.New("magic link token length cannot exceed 128 bytes")
	}
	if cfg.ExpiryMinutes <= 0 {
		return errors.New("magic link expiry must be a positive number of minutes")
	}
	return nil
}
