package tasks

import (
	"context"
	"errors"

	"github.com/celerix-dev/celerix-tasks/internal/apperr"
	"github.com/celerix-dev/celerix-tasks/internal/store"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

// Detail is a task with its workflow, assignees and creator resolved.
// ActivityLogs is only filled in by Get.
type Detail struct {
	schema.Task
	Workflow     *schema.WorkflowSummary `json:"workflow"`
	Assignees    []schema.UserSummary    `json:"assignees"`
	Creator      *schema.UserSummary     `json:"creator"`
	ActivityLogs []schema.ActivityLog    `json:"activityLogs,omitempty"`
}

// expand resolves relations for a batch of tasks with one lookup per
// distinct workflow and a single user query. Missing relations are left empty.
func (s *Service) expand(ctx context.Context, list []schema.Task) ([]Detail, error) {
	workflows := map[string]*schema.WorkflowSummary{}
	var userIDs []string
	for _, t := range list {
		if _, seen := workflows[t.WorkflowID]; !seen {
			w, err := s.workflows.Get(ctx, t.WorkflowID)
			switch {
			case err == nil:
				sum := w.Summary()
				workflows[t.WorkflowID] = &sum
			case errors.Is(err, store.ErrNotFound):
				workflows[t.WorkflowID] = nil
			default:
				return nil, apperr.Internal(err, "loading workflow")
			}
		}
		userIDs = append(userIDs, t.AssignedTo...)
		userIDs = append(userIDs, t.CreatedBy)
	}

	users := map[string]schema.UserSummary{}
	found, err := s.users.ListByIDs(ctx, uniqueIDs(userIDs))
	if err != nil {
		return nil, apperr.Internal(err, "loading users")
	}
	for i := range found {
		users[found[i].ID] = found[i].Summary()
	}

	out := make([]Detail, 0, len(list))
	for _, t := range list {
		d := Detail{Task: t, Workflow: workflows[t.WorkflowID], Assignees: []schema.UserSummary{}}
		for _, id := range t.AssignedTo {
			if u, ok := users[id]; ok {
				d.Assignees = append(d.Assignees, u)
			}
		}
		if u, ok := users[t.CreatedBy]; ok {
			d.Creator = &u
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Service) expandOne(ctx context.Context, t *schema.Task) (*Detail, error) {
	list, err := s.expand(ctx, []schema.Task{*t})
	if err != nil {
		return nil, err
	}
	return &list[0], nil
}
