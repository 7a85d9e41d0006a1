package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/jd-approval/internal/application/port"
	"github.com/garyjia/jd-approval/internal/domain/entity"
	"github.com/garyjia/jd-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/jd-approval/pkg/apperrors"
)

// ActorRepository implements port.ActorRepository on the actors table
type ActorRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewActorRepository creates a new actor repository
func NewActorRepository(db *sql.DB, logger *zap.Logger) port.ActorRepository {
	return &ActorRepository{
		db:     db,
		logger: logger,
	}
}

const actorColumns = `
	id, email, first_name, last_name, role, organization_id,
	lark_open_id, created_at, updated_at
`

// Upsert inserts the actor or updates the existing row with the same id
func (r *ActorRepository) Upsert(ctx context.Context, actor *entity.Actor) error {
	query := `
		INSERT INTO actors (` + actorColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			role = excluded.role,
			organization_id = excluded.organization_id,
			lark_open_id = excluded.lark_open_id,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	if actor.CreatedAt.IsZero() {
		actor.CreatedAt = now
	}
	actor.UpdatedAt = now
	actor.Email = strings.ToLower(strings.TrimSpace(actor.Email))

	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		actor.ID,
		actor.Email,
		actor.FirstName,
		actor.LastName,
		actor.Role,
		actor.OrganizationID,
		actor.LarkOpenID,
		actor.CreatedAt,
		actor.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert actor", zap.String("actor_id", actor.ID), zap.Error(err))
		return sqlite.MapError("upsert actor", err)
	}

	return nil
}

// GetByID retrieves an actor by ID
func (r *ActorRepository) GetByID(ctx context.Context, id string) (*entity.Actor, error) {
	return r.getOne(ctx, `SELECT `+actorColumns+` FROM actors WHERE id = ?`, id)
}

// GetByEmail retrieves an actor by email, case-insensitively
func (r *ActorRepository) GetByEmail(ctx context.Context, email string) (*entity.Actor, error) {
	return r.getOne(ctx, `SELECT `+actorColumns+` FROM actors WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
}

// Resolve returns a NotFoundError for unknown actors
func (r *ActorRepository) Resolve(ctx context.Context, actorID string) (*entity.Identity, error) {
	actor, err := r.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, apperrors.NewNotFoundError("actor", actorID)
	}
	return actor.Identity(), nil
}

func (r *ActorRepository) getOne(ctx context.Context, query string, arg string) (*entity.Actor, error) {
	var actor entity.Actor

	err := sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, arg).Scan(
		&actor.ID,
		&actor.Email,
		&actor.FirstName,
		&actor.LastName,
		&actor.Role,
		&actor.OrganizationID,
		&actor.LarkOpenID,
		&actor.CreatedAt,
		&actor.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get actor", zap.String("key", arg), zap.Error(err))
		return nil, sqlite.MapError("get actor", err)
	}

	return &actor, nil
}
