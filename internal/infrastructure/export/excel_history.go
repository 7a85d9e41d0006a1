package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/jd-approval/internal/application/port"
	"github.com/garyjia/jd-approval/internal/domain/entity"
)

const (
	summarySheet = "Summary"
	historySheet = "History"
	timeLayout   = "2006-01-02 15:04:05"
)

var historyHeader = []interface{}{"#", "Time (UTC)", "Step", "Approver", "Actor", "Action", "Comment"}

// ExcelHistoryRenderer renders a workflow audit trail as an xlsx workbook
type ExcelHistoryRenderer struct {
	logger *zap.Logger
}

// NewExcelHistoryRenderer creates a new renderer
func NewExcelHistoryRenderer(logger *zap.Logger) *ExcelHistoryRenderer {
	return &ExcelHistoryRenderer{logger: logger}
}

// ContentType is the xlsx media type
func (r *ExcelHistoryRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension is the file extension without the dot
func (r *ExcelHistoryRenderer) Extension() string {
	return "xlsx"
}

// Render writes a summary sheet and one history row per action, followed by
// a status row for every step without actions. actorNames maps actor ids to display names; missing ids print as-is.
func (r *ExcelHistoryRenderer) Render(wf *entity.Workflow, actorNames map[string]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to name summary sheet: %w", err)
	}
	if _, err := f.NewSheet(historySheet); err != nil {
		return nil, fmt.Errorf("failed to create history sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	name := func(id string) string {
		if n, ok := actorNames[id]; ok && n != "" {
			return n
		}
		return id
	}

	summary := [][]interface{}{
		{"Workflow", wf.ID},
		{"Document", wf.DocumentID},
		{"Organization", wf.OrganizationID},
		{"Created by", name(wf.CreatedBy)},
		{"Status", string(wf.Status)},
		{"Current step", wf.CurrentStepOrder},
		{"Created at", formatTime(&wf.CreatedAt)},
		{"Completed at", formatTime(wf.CompletedAt)},
	}
	if wf.CancelReason != "" {
		summary = append(summary, []interface{}{"Cancel reason", wf.CancelReason})
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(summary)), bold); err != nil {
		return nil, fmt.Errorf("failed to style summary: %w", err)
	}

	if err := f.SetSheetRow(historySheet, "A1", &historyHeader); err != nil {
		return nil, fmt.Errorf("failed to write history header: %w", err)
	}
	if err := f.SetCellStyle(historySheet, "A1", "G1", bold); err != nil {
		return nil, fmt.Errorf("failed to style history header: %w", err)
	}

	stepOf := make(map[string]*entity.Step, len(wf.Steps))
	for _, s := range wf.Steps {
		stepOf[s.ID] = s
	}

	for i, action := range wf.History() {
		order, approver := 0, ""
		if s, ok := stepOf[action.StepID]; ok {
			order, approver = s.Order, name(s.ApproverID)
		}
		row := []interface{}{
			i + 1,
			action.CreatedAt.UTC().Format(timeLayout),
			order,
			approver,
			name(action.ActorID),
			string(action.Action),
			action.Comment,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write history row: %w", err)
		}
	}

	// steps nobody acted on still show up with their status
	next := len(wf.History()) + 2
	for _, s := range wf.Steps {
		if len(s.Actions) > 0 {
			continue
		}
		row := []interface{}{"", "", s.Order, name(s.ApproverID), "", string(s.Status), ""}
		cell, _ := excelize.CoordinatesToCellName(1, next)
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write step row: %w", err)
		}
		next++
	}

	_ = f.SetColWidth(summarySheet, "A", "A", 16)
	_ = f.SetColWidth(summarySheet, "B", "B", 40)
	_ = f.SetColWidth(historySheet, "B", "B", 20)
	_ = f.SetColWidth(historySheet, "D", "E", 24)
	_ = f.SetColWidth(historySheet, "G", "G", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	r.logger.Info("Rendered workflow history",
		zap.String("workflow_id", wf.ID),
		zap.Int("actions", len(wf.History())),
		zap.Int("bytes", buf.Len()))

	return buf.Bytes(), nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// Verify interface compliance
var _ port.HistoryRenderer = (*ExcelHistoryRenderer)(nil)
