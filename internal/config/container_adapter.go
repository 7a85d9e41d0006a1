package config

import (
	"github.com/garyjia/jd-approval/internal/container"
	"github.com/garyjia/jd-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/jd-approval/internal/infrastructure/worker"
	httpapi "github.com/garyjia/jd-approval/internal/interfaces/http"
	"github.com/garyjia/jd-approval/internal/interfaces/websocket"
	"github.com/garyjia/jd-approval/pkg/database"
	"github.com/garyjia/jd-approval/pkg/utils"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: database.Config{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
		},
		Auth: container.AuthConfig{
			JWTSecret: c.Auth.JWTSecret,
			Issuer:    c.Auth.Issuer,
			TokenTTL:  c.Auth.TokenTTL,
		},
		Workflow: container.WorkflowConfig{
			StepDueIn:    c.Workflow.StepDueIn,
			CancelPolicy: c.Workflow.CancelPolicy,
		},
		Lark: lark.Config{
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
			BaseURL:   c.Lark.BaseURL,
		},
		Reminder: container.ReminderConfig{
			Enabled: c.Reminder.Enabled,
			ReminderWorkerConfig: worker.ReminderWorkerConfig{
				Schedule:   c.Reminder.Schedule,
				RunTimeout: c.Reminder.RunTimeout,
			},
		},
		Presence: websocket.GatewayConfig{
			SendQueueSize:   c.Presence.SendQueueSize,
			WriteTimeout:    c.Presence.WriteTimeout,
			PongWait:        c.Presence.PongWait,
			MaxMessageBytes: c.Presence.MaxMessageBytes,
			AllowedOrigins:  c.Server.AllowedOrigins,
		},
		Server: httpapi.ServerConfig{
			Host:           c.Server.Host,
			Port:           c.Server.Port,
			ReadTimeout:    c.Server.ReadTimeout,
			WriteTimeout:   c.Server.WriteTimeout,
			AllowedOrigins: c.Server.AllowedOrigins,
		},
	}
}

// LoggerConfig returns the logger settings in the form utils.NewLogger takes
func (c *Config) LoggerConfig() utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Logger.Level,
		OutputPath: c.Logger.OutputPath,
		Format:     c.Logger.Format,
	}
}
