package schema

import (
	"slices"
	"time"
)

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a unit of work bound to a workflow. CurrentStage always refers to a
// stage id of the bound workflow. CompletedAt is set once, on entering a
// "done" stage, and never cleared.
type Task struct {
	ID           string     `json:"id" bson:"_id"`
	Title        string     `json:"title" bson:"title"`
	Description  string     `json:"description" bson:"description"`
	Priority     Priority   `json:"priority" bson:"priority"`
	CurrentStage string     `json:"currentStage" bson:"currentStage"`
	AssignedTo   []string   `json:"assignedTo" bson:"assignedTo"`
	DueDate      *time.Time `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	CompletedAt  *time.Time `json:"completedAt" bson:"completedAt"`
	WorkflowID   string     `json:"workflowId" bson:"workflowId"`
	ProjectID    string     `json:"projectId" bson:"projectId"`
	CreatedBy    string     `json:"createdBy" bson:"createdBy"`
	Tags         []string   `json:"tags" bson:"tags"`
	CreatedAt    time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// IsAssigned reports whether userID is among the task's assignees.
func (t *Task) IsAssigned(userID string) bool {
	return slices.Contains(t.AssignedTo, userID)
}

// Completed reports whether the task has reached a done stage.
func (t *Task) Completed() bool {
	return t.CompletedAt != nil
}
