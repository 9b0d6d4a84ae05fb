package schema

import "time"

// DefaultProject is the project id used when neither the caller nor the workflow names one.
const DefaultProject = "default"

// WorkflowStage is a named, ordered position a task can occupy.
type WorkflowStage struct {
	ID    string `json:"id" bson:"id"`
	Name  string `json:"name" bson:"name"`
	Order int    `json:"order" bson:"order"`
	Color string `json:"color,omitempty" bson:"color,omitempty"`
}

// Workflow is an ordered set of stages that tasks progress through.
type Workflow struct {
	ID          string          `json:"id" bson:"_id"`
	Name        string          `json:"name" bson:"name"`
	Description string          `json:"description" bson:"description"`
	Stages      []WorkflowStage `json:"stages" bson:"stages"`
	CreatedBy   string          `json:"createdBy" bson:"createdBy"`
	IsDefault   bool            `json:"isDefault" bson:"isDefault"`
	ProjectID   string          `json:"projectId" bson:"projectId"`
	CreatedAt   time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt" bson:"updatedAt"`
}

// WorkflowSummary is the relation-expanded view of a workflow embedded in a task.
type WorkflowSummary struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Stages []WorkflowStage `json:"stages"`
}

// Summary returns the fields of w that task responses expose.
func (w *Workflow) Summary() WorkflowSummary {
	return WorkflowSummary{ID: w.ID, Name: w.Name, Stages: w.Stages}
}
