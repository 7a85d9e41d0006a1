package repository

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/jd-approval/internal/application/port"
	"github.com/garyjia/jd-approval/internal/domain/entity"
	"github.com/garyjia/jd-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/jd-approval/pkg/apperrors"
)

// DocumentRepository implements port.DocumentRepository
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) port.DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a document
func (r *DocumentRepository) Create(ctx context.Context, doc *entity.Document) error {
	query := `
		INSERT INTO documents (
			id, organization_id, title, status, manager_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = entity.DocumentStatusDraft
	}

	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		doc.ID,
		doc.OrganizationID,
		doc.Title,
		doc.Status,
		doc.ManagerID,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create document", zap.String("document_id", doc.ID), zap.Error(err))
		return sqlite.MapError("create document", err)
	}

	return nil
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	query := `
		SELECT id, organization_id, title, status, manager_id,
			active_workflow_id, created_at, updated_at
		FROM documents
		WHERE id = ?
	`

	var doc entity.Document
	var activeWorkflowID sql.NullString

	err := sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&doc.ID,
		&doc.OrganizationID,
		&doc.Title,
		&doc.Status,
		&doc.ManagerID,
		&activeWorkflowID,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get document by ID", zap.String("document_id", id), zap.Error(err))
		return nil, sqlite.MapError("get document", err)
	}

	doc.ActiveWorkflowID = activeWorkflowID.String
	return &doc, nil
}

// GetDocumentStatus returns a NotFoundError for unknown documents
func (r *DocumentRepository) GetDocumentStatus(ctx context.Context, documentID string) (entity.DocumentStatus, error) {
	var status entity.DocumentStatus
	err := sqlite.ExecutorFor(ctx, r.db).
		QueryRowContext(ctx, `SELECT status FROM documents WHERE id = ?`, documentID).
		Scan(&status)
	if err == sql.ErrNoRows {
		return "", apperrors.NewNotFoundError("document", documentID)
	}
	if err != nil {
		r.logger.Error("Failed to get document status", zap.String("document_id", documentID), zap.Error(err))
		return "", sqlite.MapError("get document status", err)
	}
	return status, nil
}

// GetDocumentOrganization returns the owning organization of a document
func (r *DocumentRepository) GetDocumentOrganization(ctx context.Context, documentID string) (string, error) {
	var orgID string
	err := sqlite.ExecutorFor(ctx, r.db).
		QueryRowContext(ctx, `SELECT organization_id FROM documents WHERE id = ?`, documentID).
		Scan(&orgID)
	if err == sql.ErrNoRows {
		return "", apperrors.NewNotFoundError("document", documentID)
	}
	if err != nil {
		r.logger.Error("Failed to get document organization", zap.String("document_id", documentID), zap.Error(err))
		return "", sqlite.MapError("get document organization", err)
	}
	return orgID, nil
}

// SetDocumentStatus updates the status of a document
func (r *DocumentRepository) SetDocumentStatus(ctx context.Context, documentID string, status entity.DocumentStatus) error {
	query := `UPDATE documents SET status = ?, updated_at = ? WHERE id = ?`

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query, status, time.Now().UTC(), documentID)
	if err != nil {
		r.logger.Error("Failed to set document status",
			zap.String("document_id", documentID),
			zap.String("status", string(status)),
			zap.Error(err))
		return sqlite.MapError("set document status", err)
	}

	return expectOneRow(result, "document", documentID)
}

// LockActiveWorkflow claims the document for workflowID unless another workflow holds it
func (r *DocumentRepository) LockActiveWorkflow(ctx context.Context, documentID, workflowID string) error {
	query := `
		UPDATE documents
		SET active_workflow_id = ?, updated_at = ?
		WHERE id = ? AND (active_workflow_id IS NULL OR active_workflow_id = ?)
	`

	exec := sqlite.ExecutorFor(ctx, r.db)
	result, err := exec.ExecContext(ctx, query, workflowID, time.Now().UTC(), documentID, workflowID)
	if err != nil {
		r.logger.Error("Failed to lock document", zap.String("document_id", documentID), zap.Error(err))
		return sqlite.MapError("lock document", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return sqlite.MapError("lock document", err)
	}
	if affected == 1 {
		return nil
	}

	var exists int
	err = exec.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, documentID).Scan(&exists)
	if err == sql.ErrNoRows {
		return apperrors.NewNotFoundError("document", documentID)
	}
	if err != nil {
		return sqlite.MapError("lock document", err)
	}
	return apperrors.NewConflictError("document", documentID, "another workflow holds the document")
}

// ReleaseWorkflowLock clears the lock when workflowID holds it
func (r *DocumentRepository) ReleaseWorkflowLock(ctx context.Context, documentID, workflowID string) error {
	query := `
		UPDATE documents
		SET active_workflow_id = NULL, updated_at = ?
		WHERE id = ? AND active_workflow_id = ?
	`

	if _, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query, time.Now().UTC(), documentID, workflowID); err != nil {
		r.logger.Error("Failed to release document lock",
			zap.String("document_id", documentID),
			zap.String("workflow_id", workflowID),
			zap.Error(err))
		return sqlite.MapError("release document lock", err)
	}

	return nil
}

func expectOneRow(result sql.Result, resource, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return sqlite.MapError("update "+resource, err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError(resource, id)
	}
	return nil
}
