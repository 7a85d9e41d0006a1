// Package container provides dependency injection and lifecycle management
// for the approval service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/jd-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/jd-approval/internal/infrastructure/worker"
	httpapi "github.com/garyjia/jd-approval/internal/interfaces/http"
	"github.com/garyjia/jd-approval/internal/interfaces/websocket"
	"github.com/garyjia/jd-approval/pkg/database"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database database.Config

	// Auth configures access token signing
	Auth AuthConfig

	// Workflow configures the approval engine
	Workflow WorkflowConfig

	// Lark messaging; empty credentials select the log-only messenger
	Lark lark.Config

	// Reminder worker configuration
	Reminder ReminderConfig

	// Presence gateway configuration
	Presence websocket.GatewayConfig

	// Server configuration
	Server httpapi.ServerConfig
}

// AuthConfig holds access token settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// WorkflowConfig holds approval engine settings.
type WorkflowConfig struct {
	// StepDueIn stamps advisory due dates; zero disables them
	StepDueIn time.Duration

	// CancelPolicy is an expr rule; empty uses the built-in rule
	CancelPolicy string
}

// ReminderConfig holds overdue reminder settings.
type ReminderConfig struct {
	Enabled bool
	worker.ReminderWorkerConfig
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: database.Config{
			Path:            "data/approval.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Auth: AuthConfig{
			Issuer:   "jd-approval",
			TokenTTL: 24 * time.Hour,
		},
		Reminder: ReminderConfig{
			Enabled:              true,
			ReminderWorkerConfig: worker.DefaultReminderWorkerConfig(),
		},
		Presence: websocket.DefaultGatewayConfig(),
		Server:   httpapi.DefaultServerConfig(),
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if c.Workflow.StepDueIn < 0 {
		return fmt.Errorf("workflow.step_due_in must not be negative")
	}

	if (c.Lark.AppID == "") != (c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret must be set together")
	}

	return nil
}
