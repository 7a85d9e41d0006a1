package container

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/jd-approval/internal/application/dispatcher"
	"github.com/garyjia/jd-approval/internal/application/policy"
	"github.com/garyjia/jd-approval/internal/application/port"
	"github.com/garyjia/jd-approval/internal/application/presence"
	"github.com/garyjia/jd-approval/internal/application/service"
	"github.com/garyjia/jd-approval/internal/application/workflow"
	"github.com/garyjia/jd-approval/internal/infrastructure/export"
	"github.com/garyjia/jd-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/jd-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/jd-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/jd-approval/internal/infrastructure/worker"
	"github.com/garyjia/jd-approval/internal/interfaces/websocket"
	"github.com/garyjia/jd-approval/migrations"
	"github.com/garyjia/jd-approval/pkg/database"
	"github.com/garyjia/jd-approval/pkg/utils"
)

// Notification channels recorded with every delivery attempt
const (
	ChannelLark = "lark"
	ChannelLog  = "log"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// MessagingBundle holds the outbound message sender and its channel name.
type MessagingBundle struct {
	Sender  port.MessageSender
	Channel string
}

// RealtimeBundle holds the presence hub and its websocket gateway.
type RealtimeBundle struct {
	Hub     *presence.Hub
	Bridge  *presence.EventBridge
	Gateway *websocket.Gateway
}

// ProvideDatabase opens the database and applies pending migrations.
func ProvideDatabase(cfg *database.Config, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(*cfg, logger)
	if err != nil {
		return nil, err
	}

	applied, err := database.NewMigrator(db, logger).Run(migrations.FS)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Migrations applied", zap.Int("count", applied))

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Workflow:     repository.NewWorkflowRepository(sqlDB, logger),
		Document:     repository.NewDocumentRepository(sqlDB, logger),
		Actor:        repository.NewActorRepository(sqlDB, logger),
		Notification: repository.NewNotificationRepository(sqlDB, logger),
	}, nil
}

// ProvideMessaging selects the Lark messenger when credentials are set and
// the log-only sender otherwise.
func ProvideMessaging(cfg *lark.Config, logger *zap.Logger) *MessagingBundle {
	if cfg == nil || cfg.AppID == "" || cfg.AppSecret == "" {
		logger.Info("Lark credentials not configured, notifications go to the log")
		return &MessagingBundle{Sender: lark.NewLogMessenger(logger), Channel: ChannelLog}
	}

	client := lark.NewSDKClient(*cfg, logger)
	logger.Info("Lark messenger enabled", zap.String("app_id", client.GetAppID()))
	return &MessagingBundle{Sender: lark.NewMessenger(client, logger), Channel: ChannelLark}
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewSugarLogger(logger.Named("dispatcher"))),
	), nil
}

// WorkflowDeps holds dependencies required for creating the workflow engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Config     *WorkflowConfig
	Logger     *zap.Logger
}

// ProvideWorkflowEngine compiles the cancel policy and creates the engine.
// An invalid policy expression fails start-up.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.Engine, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}

	cfg := deps.Config
	if cfg == nil {
		cfg = &WorkflowConfig{}
	}

	cancelPolicy, err := policy.NewCancelPolicy(cfg.CancelPolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid cancel policy: %w", err)
	}

	return workflow.NewEngine(
		deps.Repos.Workflow,
		deps.Repos.Document,
		deps.Repos.Actor,
		deps.TxManager,
		cancelPolicy,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(utils.NewSugarLogger(deps.Logger.Named("workflow"))),
		workflow.WithStepDueIn(cfg.StepDueIn),
	), nil
}

// ServiceDeps holds dependencies required for creating application services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Messaging  *MessagingBundle
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Messaging == nil {
		return nil, fmt.Errorf("messaging is required")
	}

	serviceLogger := utils.NewSugarLogger(deps.Logger.Named("service"))

	return &ServiceBundle{
		Notification: service.NewNotificationService(
			deps.Repos.Workflow,
			deps.Repos.Document,
			deps.Repos.Actor,
			deps.Repos.Notification,
			deps.Messaging.Sender,
			deps.Messaging.Channel,
			serviceLogger,
		),
		Reminder: service.NewReminderService(
			deps.Repos.Workflow,
			deps.TxManager,
			deps.Dispatcher,
			serviceLogger,
		),
		History: service.NewHistoryService(
			deps.Repos.Actor,
			export.NewExcelHistoryRenderer(deps.Logger),
			serviceLogger,
		),
	}, nil
}

// ProvideRealtime creates the presence hub and the websocket gateway.
func ProvideRealtime(cfg *websocket.GatewayConfig, tokens websocket.TokenVerifier, documents websocket.DocumentLookup, identities port.IdentityProvider, logger *zap.Logger) (*RealtimeBundle, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token verifier is required")
	}
	gatewayCfg := websocket.DefaultGatewayConfig()
	if cfg != nil {
		gatewayCfg = *cfg
	}

	hub := presence.NewHub(utils.NewSugarLogger(logger.Named("presence")))
	return &RealtimeBundle{
		Hub:     hub,
		Bridge:  presence.NewEventBridge(hub),
		Gateway: websocket.NewGateway(gatewayCfg, hub, tokens, documents, identities, logger.Named("websocket")),
	}, nil
}

// RegisterEventHandlers subscribes notification delivery and presence
// fan-out to every committed workflow event.
func RegisterEventHandlers(d dispatcher.Dispatcher, services *ServiceBundle, realtime *RealtimeBundle) {
	d.SubscribeAll("notification", services.Notification.HandleEvent)
	d.SubscribeAll("presence", realtime.Bridge.HandleEvent)
}

// ProvideWorkers creates the worker manager with the reminder worker
// registered when reminders are enabled.
func ProvideWorkers(cfg *ReminderConfig, reminders service.ReminderService, logger *zap.Logger) (*worker.Manager, error) {
	manager := worker.NewManager(logger)
	if cfg == nil || !cfg.Enabled {
		logger.Info("Reminder worker disabled")
		return manager, nil
	}

	reminderWorker, err := worker.NewReminderWorker(cfg.ReminderWorkerConfig, reminders, logger.Named("reminder"))
	if err != nil {
		return nil, err
	}
	manager.Register(reminderWorker)
	return manager, nil
}
