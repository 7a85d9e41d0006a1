package repository

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/jd-approval/internal/application/port"
	"github.com/garyjia/jd-approval/internal/domain/entity"
	"github.com/garyjia/jd-approval/internal/infrastructure/persistence/sqlite"
)

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new notification record
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	query := `
		INSERT INTO notifications (
			workflow_id, recipient_id, kind, channel, status,
			error_message, created_at, sent_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Status == "" {
		n.Status = entity.NotificationStatusPending
	}

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		n.WorkflowID,
		n.RecipientID,
		n.Kind,
		n.Channel,
		n.Status,
		n.ErrorMessage,
		n.CreatedAt,
		nullTime(n.SentAt),
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.String("workflow_id", n.WorkflowID),
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err))
		return sqlite.MapError("create notification", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return sqlite.MapError("create notification", err)
	}

	n.ID = id
	return nil
}

// MarkSent marks a notification as delivered
func (r *NotificationRepository) MarkSent(ctx context.Context, id int64) error {
	query := `UPDATE notifications SET status = ?, sent_at = ?, error_message = '' WHERE id = ?`

	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		entity.NotificationStatusSent, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to mark notification sent", zap.Int64("id", id), zap.Error(err))
		return sqlite.MapError("mark notification sent", err)
	}

	return nil
}

// UpdateStatus updates the status and error message of a notification
func (r *NotificationRepository) UpdateStatus(ctx context.Context, id int64, status string, errorMsg string) error {
	query := `UPDATE notifications SET status = ?, error_message = ? WHERE id = ?`

	if _, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query, status, errorMsg, id); err != nil {
		r.logger.Error("Failed to update notification status",
			zap.Int64("id", id),
			zap.String("status", status),
			zap.Error(err))
		return sqlite.MapError("update notification status", err)
	}

	return nil
}

// ListByWorkflowID returns the delivery log of a workflow, oldest first
func (r *NotificationRepository) ListByWorkflowID(ctx context.Context, workflowID string) ([]*entity.Notification, error) {
	query := `
		SELECT id, workflow_id, recipient_id, kind, channel, status,
			error_message, created_at, sent_at
		FROM notifications
		WHERE workflow_id = ?
		ORDER BY id ASC
	`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, workflowID)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.String("workflow_id", workflowID), zap.Error(err))
		return nil, sqlite.MapError("list notifications", err)
	}
	defer rows.Close()

	var notifications []*entity.Notification
	for rows.Next() {
		var n entity.Notification
		var sentAt sql.NullTime

		if err := rows.Scan(
			&n.ID,
			&n.WorkflowID,
			&n.RecipientID,
			&n.Kind,
			&n.Channel,
			&n.Status,
			&n.ErrorMessage,
			&n.CreatedAt,
			&sentAt,
		); err != nil {
			return nil, sqlite.MapError("scan notification", err)
		}

		if sentAt.Valid {
			n.SentAt = &sentAt.Time
		}
		notifications = append(notifications, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, sqlite.MapError("iterate notifications", err)
	}

	return notifications, nil
}
