package tasks

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/celerix-dev/celerix-tasks/internal/apperr"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

// CreateInput is the payload for creating a task.
type CreateInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    schema.Priority `json:"priority"`
	WorkflowID  string          `json:"workflowId"`
	AssignedTo  []string        `json:"assignedTo"`
	DueDate     *time.Time      `json:"dueDate"`
	Tags        []string        `json:"tags"`
	ProjectID   string          `json:"projectId"`
}

// NullableTime is a patchable timestamp. Set is true whenever the field was
// present in the payload, so an explicit null clears the value while an
// absent field leaves it alone.
type NullableTime struct {
	Set   bool
	Value *time.Time
}

// ClearTime is a NullableTime that clears the field.
var ClearTime = NullableTime{Set: true}

// SetTime returns a NullableTime that sets the field to t.
func SetTime(t time.Time) NullableTime {
	return NullableTime{Set: true, Value: &t}
}

func (n *NullableTime) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		n.Value = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	n.Value = &t
	return nil
}

// Patch is a field-level update. Nil fields are left unchanged. The stage,
// workflow, completion time and creator cannot be patched.
type Patch struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Priority    *schema.Priority `json:"priority"`
	AssignedTo  *[]string        `json:"assignedTo"`
	DueDate     NullableTime     `json:"dueDate"`
	Tags        *[]string        `json:"tags"`
	ProjectID   *string          `json:"projectId"`
}

// Fields lists the JSON names of the fields the patch sets.
func (p Patch) Fields() []string {
	fields := []string{}
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(p.Title != nil, "title")
	add(p.Description != nil, "description")
	add(p.Priority != nil, "priority")
	add(p.AssignedTo != nil, "assignedTo")
	add(p.DueDate.Set, "dueDate")
	add(p.Tags != nil, "tags")
	add(p.ProjectID != nil, "projectId")
	return fields
}

func (p Patch) validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return apperr.Validation("Title is required")
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return apperr.Validation("Invalid priority")
	}
	return nil
}

// apply merges the patch into t.
func (p Patch) apply(t *schema.Task) {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.AssignedTo != nil {
		t.AssignedTo = uniqueIDs(*p.AssignedTo)
	}
	if p.DueDate.Set {
		t.DueDate = nil
		if p.DueDate.Value != nil {
			due := *p.DueDate.Value
			t.DueDate = &due
		}
	}
	if p.Tags != nil {
		t.Tags = nonNil(*p.Tags)
	}
	if p.ProjectID != nil {
		t.ProjectID = *p.ProjectID
		if t.ProjectID == "" {
			t.ProjectID = schema.DefaultProject
		}
	}
}

// uniqueIDs drops blanks and repeats, keeping first occurrences in order.
func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// added returns the ids in after that are not in before.
func added(before, after []string) []string {
	var out []string
	for _, id := range after {
		if !slices.Contains(before, id) {
			out = append(out, id)
		}
	}
	return out
}
