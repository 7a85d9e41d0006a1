package service

import (
	"context"
	"fmt"

	"github.com/garyjia/jd-approval/internal/application/port"
	"github.com/garyjia/jd-approval/internal/domain/entity"
)

// HistoryExport is a rendered audit trail
type HistoryExport struct {
	Filename    string
	ContentType string
	Content     []byte
}

// HistoryService renders workflow audit trails for download
type HistoryService interface {
	Export(ctx context.Context, wf *entity.Workflow) (*HistoryExport, error)
}

type historyServiceImpl struct {
	identities port.IdentityProvider
	renderer   port.HistoryRenderer
	logger     Logger
}

// NewHistoryService creates a new HistoryService
func NewHistoryService(identities port.IdentityProvider, renderer port.HistoryRenderer, logger Logger) HistoryService {
	return &historyServiceImpl{
		identities: identities,
		renderer:   renderer,
		logger:     logger,
	}
}

// Export renders wf with actor ids replaced by display names where known
func (s *historyServiceImpl) Export(ctx context.Context, wf *entity.Workflow) (*HistoryExport, error) {
	names := make(map[string]string)
	for _, step := range wf.Steps {
		s.resolveName(ctx, names, step.ApproverID)
		for _, a := range step.Actions {
			s.resolveName(ctx, names, a.ActorID)
		}
	}

	content, err := s.renderer.Render(wf, names)
	if err != nil {
		s.logger.Error("Failed to render history", "error", err, "workflow_id", wf.ID)
		return nil, fmt.Errorf("render history: %w", err)
	}

	s.logger.Info("History exported", "workflow_id", wf.ID, "bytes", len(content))

	return &HistoryExport{
		Filename:    fmt.Sprintf("workflow-%s-history.%s", wf.ID, s.renderer.Extension()),
		ContentType: s.renderer.ContentType(),
		Content:     content,
	}, nil
}

func (s *historyServiceImpl) resolveName(ctx context.Context, names map[string]string, actorID string) {
	if _, done := names[actorID]; done {
		return
	}
	names[actorID] = actorID

	identity, err := s.identities.Resolve(ctx, actorID)
	if err == nil && identity.DisplayName != "" {
		names[actorID] = identity.DisplayName
	}
}
