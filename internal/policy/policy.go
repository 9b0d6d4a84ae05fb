// Package policy decides whether an identity may perform an operation on a
// resource. Every row-level rule of the service lives here so it can be tested
// without a transport or a store.
package policy

import (
	"slices"

	"github.com/celerix-dev/celerix-tasks/internal/apperr"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

// Operation names an action guarded by Authorize.
type Operation string

const (
	WorkflowCreate Operation = "workflow.create"
	WorkflowRead   Operation = "workflow.read"
	WorkflowUpdate Operation = "workflow.update"
	WorkflowDelete Operation = "workflow.delete"
	TaskRead       Operation = "task.read"
	TaskUpdate     Operation = "task.update"
	TaskAdvance    Operation = "task.advance"
	TaskDelete     Operation = "task.delete"
)

// StageMove describes a stage transition. From is nil when the task's current
// stage no longer exists in its workflow.
type StageMove struct {
	From *schema.WorkflowStage
	To   schema.WorkflowStage
}

// Resource is what an operation acts on. Only the fields relevant to the
// operation need to be set.
type Resource struct {
	Workflow *schema.Workflow
	Task     *schema.Task
	Move     *StageMove
}

// RequireRole fails with a forbidden error unless id holds one of roles.
func RequireRole(id schema.Identity, roles ...schema.Role) error {
	if slices.Contains(roles, id.Role) {
		return nil
	}
	return apperr.Forbidden("Insufficient permissions")
}

// Authorize reports whether id may perform op on res.
func Authorize(id schema.Identity, op Operation, res Resource) error {
	switch op {
	case WorkflowCreate:
		return RequireRole(id, schema.RoleAdmin, schema.RoleManager)

	case WorkflowRead:
		w := res.Workflow
		if id.Role == schema.RoleMember && !w.IsDefault && w.CreatedBy != id.ID {
			return apperr.Forbidden("Not authorized to access this workflow")
		}
		return nil

	case WorkflowUpdate, WorkflowDelete:
		verb := "update"
		if op == WorkflowDelete {
			verb = "delete"
		}
		w := res.Workflow
		if w.CreatedBy != id.ID && id.Role != schema.RoleAdmin {
			return apperr.Forbidden("Not authorized to %s this workflow", verb)
		}
		if w.IsDefault && id.Role != schema.RoleAdmin {
			return apperr.Forbidden("Cannot %s default workflow", verb)
		}
		return nil

	case TaskRead:
		if !id.Role.Privileged() && !res.Task.IsAssigned(id.ID) {
			return apperr.Forbidden("Not authorized to access this task")
		}
		return nil

	case TaskUpdate:
		if !id.Role.Privileged() && !res.Task.IsAssigned(id.ID) {
			return apperr.Forbidden("Not authorized to update this task")
		}
		return nil

	case TaskAdvance:
		if !id.Role.Privileged() && !res.Task.IsAssigned(id.ID) {
			return apperr.Forbidden("Not authorized to update this task")
		}
		if m := res.Move; m != nil && !id.Role.Privileged() && m.From != nil && m.To.Order < m.From.Order {
			return apperr.Forbidden("Cannot move task to previous stage")
		}
		return nil

	case TaskDelete:
		if !id.Role.Privileged() {
			return apperr.Forbidden("Not authorized to delete tasks")
		}
		return nil
	}
	return apperr.Forbidden("Unknown operation %q", op)
}
