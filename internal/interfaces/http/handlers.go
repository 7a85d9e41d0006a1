package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/jd-approval/internal/application/port"
	"github.com/garyjia/jd-approval/internal/application/service"
	"github.com/garyjia/jd-approval/internal/application/workflow"
	"github.com/garyjia/jd-approval/internal/domain/entity"
	"github.com/garyjia/jd-approval/pkg/apperrors"
	"github.com/garyjia/jd-approval/pkg/auth"
	"github.com/garyjia/jd-approval/pkg/utils"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine    workflow.Engine
	documents port.DocumentRepository
	history   service.HistoryService
	logger    Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	engine workflow.Engine,
	documents port.DocumentRepository,
	history service.HistoryService,
	logger Logger,
) *Handlers {
	return &Handlers{
		engine:    engine,
		documents: documents,
		history:   history,
		logger:    logger,
	}
}

// Response is the envelope of every JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// CreateWorkflowRequest is the body of POST /api/workflows
type CreateWorkflowRequest struct {
	DocumentID  string   `json:"documentId"`
	ApproverIDs []string `json:"approverIds"`
}

// CommentRequest is the body of decision and comment endpoints
type CommentRequest struct {
	Comment string `json:"comment"`
}

// CancelRequest is the body of POST /api/workflows/:id/cancel
type CancelRequest struct {
	Reason string `json:"reason"`
}

// CreateDocumentRequest is the body of POST /api/documents
type CreateDocumentRequest struct {
	Title string `json:"title"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// CreateWorkflow handles POST /api/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var req CreateWorkflowRequest
	if !h.bind(c, &req) {
		return
	}

	wf, err := h.engine.CreateWorkflow(c.Request.Context(), workflow.CreateWorkflowInput{
		DocumentID:  req.DocumentID,
		ApproverIDs: req.ApproverIDs,
		RequestedBy: principalOf(c).ActorID,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to create workflow", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: wf})
}

// ListPending handles GET /api/workflows/pending
func (h *Handlers) ListPending(c *gin.Context) {
	principal := principalOf(c)

	workflows, err := h.engine.GetPendingForActor(c.Request.Context(), principal.ActorID)
	if err != nil {
		respondError(c, h.logger, "Failed to list pending workflows", err)
		return
	}

	visible := make([]*entity.Workflow, 0, len(workflows))
	for _, wf := range workflows {
		if canSee(principal, wf.OrganizationID) {
			visible = append(visible, wf)
		}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: visible})
}

// GetDocumentWorkflow handles GET /api/workflows/document/:documentId
func (h *Handlers) GetDocumentWorkflow(c *gin.Context) {
	documentID := c.Param("documentId")

	wf, err := h.engine.GetWorkflow(c.Request.Context(), documentID)
	if err == nil && !canSee(principalOf(c), wf.OrganizationID) {
		err = apperrors.NewNotFoundError("workflow", "document "+documentID)
	}
	if err != nil {
		respondError(c, h.logger, "Failed to get document workflow", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: wf})
}

// GetWorkflow handles GET /api/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	wf, ok := h.visibleWorkflow(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: wf})
}

// Approve handles POST /api/workflows/:id/approve
func (h *Handlers) Approve(c *gin.Context) {
	h.decide(c, entity.ActionApprove)
}

// Reject handles POST /api/workflows/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	h.decide(c, entity.ActionReject)
}

// RequestChanges handles POST /api/workflows/:id/request-changes
func (h *Handlers) RequestChanges(c *gin.Context) {
	h.decide(c, entity.ActionRequestChanges)
}

func (h *Handlers) decide(c *gin.Context, action entity.ActionType) {
	var req CommentRequest
	if !h.bind(c, &req) {
		return
	}

	wf, err := h.engine.RecordDecision(c.Request.Context(), workflow.DecisionInput{
		WorkflowID: c.Param("id"),
		ActorID:    principalOf(c).ActorID,
		Action:     action,
		Comment:    req.Comment,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to record decision", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: wf})
}

// Comment handles POST /api/workflows/:id/comment
func (h *Handlers) Comment(c *gin.Context) {
	var req CommentRequest
	if !h.bind(c, &req) {
		return
	}

	wf, err := h.engine.AddComment(c.Request.Context(), workflow.CommentInput{
		WorkflowID: c.Param("id"),
		ActorID:    principalOf(c).ActorID,
		Comment:    req.Comment,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to add comment", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: wf})
}

// Cancel handles POST /api/workflows/:id/cancel
func (h *Handlers) Cancel(c *gin.Context) {
	var req CancelRequest
	if !h.bind(c, &req) {
		return
	}

	wf, err := h.engine.CancelWorkflow(c.Request.Context(), workflow.CancelInput{
		WorkflowID:  c.Param("id"),
		RequestedBy: principalOf(c).ActorID,
		Reason:      req.Reason,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to cancel workflow", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: wf})
}

// ExportHistory handles GET /api/workflows/:id/history/export
func (h *Handlers) ExportHistory(c *gin.Context) {
	wf, ok := h.visibleWorkflow(c)
	if !ok {
		return
	}

	export, err := h.history.Export(c.Request.Context(), wf)
	if err != nil {
		respondError(c, h.logger, "Failed to export history", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	c.Data(http.StatusOK, export.ContentType, export.Content)
}

// CreateDocument handles POST /api/documents
func (h *Handlers) CreateDocument(c *gin.Context) {
	var req CreateDocumentRequest
	if !h.bind(c, &req) {
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		respondError(c, h.logger, "Invalid document", apperrors.NewValidationError("title", "is required"))
		return
	}

	principal := principalOf(c)
	doc := &entity.Document{
		ID:             utils.NewID(),
		OrganizationID: principal.OrganizationID,
		Title:          title,
		Status:         entity.DocumentStatusDraft,
		ManagerID:      principal.ActorID,
	}
	if err := h.documents.Create(c.Request.Context(), doc); err != nil {
		respondError(c, h.logger, "Failed to create document", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: doc})
}

// GetDocument handles GET /api/documents/:id
func (h *Handlers) GetDocument(c *gin.Context) {
	id := c.Param("id")

	doc, err := h.documents.GetByID(c.Request.Context(), id)
	if err == nil && (doc == nil || !canSee(principalOf(c), doc.OrganizationID)) {
		err = apperrors.NewNotFoundError("document", id)
	}
	if err != nil {
		respondError(c, h.logger, "Failed to get document", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: doc})
}

// visibleWorkflow loads :id and hides workflows of other organizations
func (h *Handlers) visibleWorkflow(c *gin.Context) (*entity.Workflow, bool) {
	id := c.Param("id")

	wf, err := h.engine.GetWorkflowByID(c.Request.Context(), id)
	if err == nil && !canSee(principalOf(c), wf.OrganizationID) {
		err = apperrors.NewNotFoundError("workflow", id)
	}
	if err != nil {
		respondError(c, h.logger, "Failed to get workflow", err)
		return nil, false
	}
	return wf, true
}

// bind decodes an optional JSON body; an empty body leaves req zero
func (h *Handlers) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, h.logger, "Invalid request body", apperrors.NewValidationError("body", "malformed JSON"))
		return false
	}
	return true
}

// canSee reports whether principal may read records of organizationID
func canSee(principal auth.Principal, organizationID string) bool {
	return principal.Role == string(entity.RoleSuperAdmin) || principal.OrganizationID == organizationID
}
