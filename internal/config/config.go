package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// EnvPrefix prefixes every environment override, e.g. JDA_SERVER_PORT
const EnvPrefix = "JDA"

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Reminder ReminderConfig `mapstructure:"reminder"`
	Presence PresenceConfig `mapstructure:"presence"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// AuthConfig holds access token configuration
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// WorkflowConfig holds approval engine configuration
type WorkflowConfig struct {
	// StepDueIn stamps an advisory due date on each step; zero disables it
	StepDueIn time.Duration `mapstructure:"step_due_in"`
	// CancelPolicy is an expr rule; empty uses the built-in rule
	CancelPolicy string `mapstructure:"cancel_policy"`
}

// LarkConfig holds Lark messaging configuration
type LarkConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

// Enabled reports whether Lark credentials are configured
func (c LarkConfig) Enabled() bool {
	return c.AppID != "" && c.AppSecret != ""
}

// ReminderConfig holds overdue reminder worker configuration
type ReminderConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Schedule   string        `mapstructure:"schedule"`
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

// PresenceConfig holds realtime gateway configuration
type PresenceConfig struct {
	SendQueueSize   int           `mapstructure:"send_queue_size"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
}

// Load loads configuration from an optional .env file, the config file and
// environment variables, in increasing order of precedence. A missing
// config file is not an error.
func Load(configPath string) (*Config, error) {
	// .env only fills variables that are not set already
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{})

	// Database defaults
	v.SetDefault("database.path", "data/approval.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "jd-approval")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	// Workflow defaults
	v.SetDefault("workflow.step_due_in", time.Duration(0))
	v.SetDefault("workflow.cancel_policy", "")

	// Lark defaults
	v.SetDefault("lark.app_id", "")
	v.SetDefault("lark.app_secret", "")
	v.SetDefault("lark.base_url", "")

	// Reminder defaults
	v.SetDefault("reminder.enabled", true)
	v.SetDefault("reminder.schedule", "*/15 * * * *")
	v.SetDefault("reminder.run_timeout", time.Minute)

	// Presence defaults
	v.SetDefault("presence.send_queue_size", 64)
	v.SetDefault("presence.write_timeout", 10*time.Second)
	v.SetDefault("presence.pong_wait", 60*time.Second)
	v.SetDefault("presence.max_message_bytes", 4096)
}

// bindEnvVars binds the conventional names of secrets in addition to the
// prefixed ones
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"auth.jwt_secret": {EnvPrefix + "_AUTH_JWT_SECRET", "JWT_SECRET"},
		"lark.app_id":     {EnvPrefix + "_LARK_APP_ID", "LARK_APP_ID"},
		"lark.app_secret": {EnvPrefix + "_LARK_APP_SECRET", "LARK_APP_SECRET"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}

	if c.Workflow.StepDueIn < 0 {
		return fmt.Errorf("workflow.step_due_in must not be negative")
	}

	if (c.Lark.AppID == "") != (c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret must be set together")
	}

	if c.Reminder.Enabled {
		if _, err := cron.ParseStandard(c.Reminder.Schedule); err != nil {
			return fmt.Errorf("reminder.schedule is invalid: %w", err)
		}
	}

	if c.Presence.SendQueueSize < 0 {
		return fmt.Errorf("presence.send_queue_size must not be negative")
	}

	return nil
}
