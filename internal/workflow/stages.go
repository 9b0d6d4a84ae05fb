// Package workflow owns the stage model tasks progress through and the
// workflow CRUD operations.
package workflow

import (
	"strings"

	"github.com/google/uuid"

	"github.com/celerix-dev/celerix-tasks/internal/apperr"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

// StageInput is a stage as submitted by a client. A nil Order defaults to the
// stage's position in the list and an empty ID gets a fresh one.
type StageInput struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Order *int   `json:"order" yaml:"order"`
	Color string `json:"color" yaml:"color"`
}

// NormalizeStages turns client input into stages ready for validation.
// A stage sent without an id takes the id of the existing stage with the
// same name, or failing that the same order, so resending a stage set does
// not strand tasks on ids that no longer exist.
func NormalizeStages(in []StageInput, existing []schema.WorkflowStage) []schema.WorkflowStage {
	out := make([]schema.WorkflowStage, 0, len(in))
	used := map[string]bool{}
	for i, s := range in {
		st := schema.WorkflowStage{
			ID:    s.ID,
			Name:  strings.TrimSpace(s.Name),
			Order: i,
			Color: s.Color,
		}
		if s.Order != nil {
			st.Order = *s.Order
		}
		if st.ID != "" {
			used[st.ID] = true
		}
		out = append(out, st)
	}

	match := func(same func(schema.WorkflowStage, schema.WorkflowStage) bool) {
		for i := range out {
			if out[i].ID != "" {
				continue
			}
			for _, old := range existing {
				if !used[old.ID] && same(out[i], old) {
					out[i].ID = old.ID
					used[old.ID] = true
					break
				}
			}
		}
	}
	match(func(a, b schema.WorkflowStage) bool { return strings.EqualFold(a.Name, strings.TrimSpace(b.Name)) })
	match(func(a, b schema.WorkflowStage) bool { return a.Order == b.Order })

	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
	}
	return out
}

// ValidateStages checks a stage set before it is persisted.
func ValidateStages(stages []schema.WorkflowStage) error {
	if len(stages) == 0 {
		return apperr.Validation("At least one stage is required")
	}
	orders := make(map[int]struct{}, len(stages))
	ids := make(map[string]struct{}, len(stages))
	for _, s := range stages {
		if strings.TrimSpace(s.Name) == "" {
			return apperr.Validation("Stage name is required")
		}
		if s.Order < 0 {
			return apperr.Validation("Stage order must not be negative")
		}
		if _, dup := orders[s.Order]; dup {
			return apperr.Validation("Stage orders must be unique")
		}
		orders[s.Order] = struct{}{}
		if _, dup := ids[s.ID]; dup {
			return apperr.Validation("Stage ids must be unique")
		}
		ids[s.ID] = struct{}{}
	}
	return nil
}

// InitialStage returns the stage with the lowest order.
func InitialStage(w *schema.Workflow) (schema.WorkflowStage, error) {
	if len(w.Stages) == 0 {
		return schema.WorkflowStage{}, apperr.Validation("Workflow has no stages")
	}
	first := w.Stages[0]
	for _, s := range w.Stages[1:] {
		if s.Order < first.Order {
			first = s
		}
	}
	return first, nil
}

// FindStage looks a stage up by id.
func FindStage(w *schema.Workflow, id string) (schema.WorkflowStage, error) {
	for _, s := range w.Stages {
		if s.ID == id {
			return s, nil
		}
	}
	return schema.WorkflowStage{}, apperr.NotFound("Stage not found")
}

// IsDone reports whether entering s completes a task.
func IsDone(s schema.WorkflowStage) bool {
	return strings.EqualFold(strings.TrimSpace(s.Name), "done")
}
