// Command issue-token registers an actor in the built-in directory and
// prints a signed access token for it. It is meant for local use.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/jd-approval/internal/config"
	"github.com/garyjia/jd-approval/internal/domain/entity"
	"github.com/garyjia/jd-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/jd-approval/migrations"
	"github.com/garyjia/jd-approval/pkg/auth"
	"github.com/garyjia/jd-approval/pkg/database"
	"github.com/garyjia/jd-approval/pkg/utils"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to the YAML config file")
		id         = flag.String("id", "", "actor id (required)")
		email      = flag.String("email", "", "actor email (required)")
		firstName  = flag.String("first-name", "", "first name")
		lastName   = flag.String("last-name", "", "last name")
		role       = flag.String("role", string(entity.RoleEmployee), "SUPER_ADMIN, ORG_ADMIN, HR_MANAGER, HIRING_MANAGER or EMPLOYEE")
		org        = flag.String("org", "", "organization id (required)")
		openID     = flag.String("lark-open-id", "", "Lark open_id for direct messages")
	)
	flag.Parse()

	actor := &entity.Actor{
		ID:             strings.TrimSpace(*id),
		Email:          strings.TrimSpace(*email),
		FirstName:      *firstName,
		LastName:       *lastName,
		Role:           entity.Role(strings.ToUpper(*role)),
		OrganizationID: strings.TrimSpace(*org),
		LarkOpenID:     *openID,
	}
	if err := validate(actor); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid actor: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr so stdout carries only the token
	logCfg := cfg.LoggerConfig()
	logCfg.OutputPath = "stderr"
	logger, err := utils.NewLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	token, err := run(context.Background(), cfg, actor, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func validate(a *entity.Actor) error {
	switch {
	case a.ID == "":
		return fmt.Errorf("-id is required")
	case a.Email == "":
		return fmt.Errorf("-email is required")
	case a.OrganizationID == "":
		return fmt.Errorf("-org is required")
	case !a.Role.IsValid():
		return fmt.Errorf("unknown role %q", a.Role)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, actor *entity.Actor, logger *zap.Logger) (string, error) {
	db, err := database.New(database.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout,
	}, logger)
	if err != nil {
		return "", err
	}
	defer db.Close()

	if _, err := database.NewMigrator(db, logger).Run(migrations.FS); err != nil {
		return "", fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := repository.NewActorRepository(db.DB, logger).Upsert(ctx, actor); err != nil {
		return "", err
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return "", err
	}
	return tokens.Issue(auth.Principal{
		ActorID:        actor.ID,
		Role:           string(actor.Role),
		OrganizationID: actor.OrganizationID,
	})
}
