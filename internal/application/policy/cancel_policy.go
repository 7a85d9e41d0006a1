package policy

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/garyjia/jd-approval/internal/domain/entity"
)

// DefaultCancelRule lets the creator, a super admin, or an org admin or
// HR manager of the workflow's organization cancel it
const DefaultCancelRule = `actor.id == workflow.createdBy
	|| actor.role == "SUPER_ADMIN"
	|| (actor.role in ["ORG_ADMIN", "HR_MANAGER"] && actor.organizationId == workflow.organizationId)`

// ActorVars is the actor as seen by a rule
type ActorVars struct {
	ID             string `expr:"id"`
	Role           string `expr:"role"`
	OrganizationID string `expr:"organizationId"`
}

// WorkflowVars is the workflow as seen by a rule
type WorkflowVars struct {
	ID             string `expr:"id"`
	DocumentID     string `expr:"documentId"`
	CreatedBy      string `expr:"createdBy"`
	OrganizationID string `expr:"organizationId"`
	Status         string `expr:"status"`
}

// Env is the evaluation environment of a cancel rule
type Env struct {
	Actor    ActorVars    `expr:"actor"`
	Workflow WorkflowVars `expr:"workflow"`
}

// CancelPolicy decides who may cancel a workflow
type CancelPolicy struct {
	rule    string
	program *vm.Program
}

// NewCancelPolicy compiles rule, falling back to DefaultCancelRule when blank
func NewCancelPolicy(rule string) (*CancelPolicy, error) {
	if strings.TrimSpace(rule) == "" {
		rule = DefaultCancelRule
	}

	program, err := expr.Compile(rule, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid cancel rule: %w", err)
	}

	return &CancelPolicy{rule: rule, program: program}, nil
}

// Rule returns the source of the compiled rule
func (p *CancelPolicy) Rule() string {
	return p.rule
}

// Allows evaluates the rule for actor against wf
func (p *CancelPolicy) Allows(actor *entity.Identity, wf *entity.Workflow) (bool, error) {
	env := Env{
		Actor: ActorVars{
			ID:             actor.ActorID,
			Role:           string(actor.Role),
			OrganizationID: actor.OrganizationID,
		},
		Workflow: WorkflowVars{
			ID:             wf.ID,
			DocumentID:     wf.DocumentID,
			CreatedBy:      wf.CreatedBy,
			OrganizationID: wf.OrganizationID,
			Status:         string(wf.Status),
		},
	}

	out, err := expr.Run(p.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate cancel rule: %w", err)
	}

	allowed, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("cancel rule returned %T, want bool", out)
	}
	return allowed, nil
}
