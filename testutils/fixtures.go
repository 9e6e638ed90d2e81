package testutils

import (
	"time"

	"github.com/tech-arch1tect/payslip-auth/config"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:        "Payslip Manager",
			URL:         "http://localhost:8080",
			Environment: "test",
		},
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            "0",
			SecureHeaders:   true,
			ShutdownTimeout: 5 * time.Second,
		},
		Log: config.LogConfig{
			Level:  "debug",
			Format: "console",
			Output: "stdout",
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			DSN:         ":memory:",
			AutoMigrate: true,
		},
		Session: config.SessionConfig{
			Enabled:  true,
			Store:    "memory",
			Name:     "payslip_session",
			MaxAge:   time.Hour,
			Path:     "/",
			HttpOnly: true,
			SameSite: "lax",
		},
		Mail: config.MailConfig{
			Host:        "localhost",
			Port:        1025,
			Encryption:  "none",
			FromAddress: "payslips@example.com",
			FromName:    "Payslip Manager",
		},
		MagicLink: config.MagicLinkConfig{
			ExpiryMinutes:   15,
			TokenBytes:      32,
			AutoCreate:      true,
			SuccessRedirect: "/dashboard",
			CleanupInterval: time.Hour,
			Retention:       24 * time.Hour,
		},
		RateLimit: config.RateLimitConfig{
			Enabled:   true,
			Store:     "memory",
			Rate:      3,
			Period:    10 * time.Minute,
			CountMode: config.CountAll,
		},
		JWT: config.JWTConfig{
			SecretKey:       "k7Qp2vXz9LmN4rTw8YbC1dFg6HjK3sVu",
			Issuer:          "payslip-auth-test",
			AccessExpiry:    24 * time.Hour,
			RevocationStore: "memory",
		},
		OpenAPI: config.OpenAPIConfig{
			Enabled: true,
			Version: "1.0.0",
		},
	}
}

var TestEmails = struct {
	Valid     string
	Mixed     string
	Other     string
	Malformed []string
}{
	Valid: "jane.doe@example.com",
	Mixed: "  Jane.Doe@Example.COM ",
	Other: "john.smith@example.com",
	Malformed: []string{
		"",
		"not-an-email",
		"@example.com",
		"jane@",
		"Jane Doe <jane@example.com>",
	},
}
