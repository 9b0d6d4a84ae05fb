package schema

import "time"

// Fields is a free-form key-value map attached to activity entries and
// notifications. Values written by the service are strings, string slices and numbers.
type Fields map[string]any

// Action identifies what happened to a task.
type Action string

const (
	ActionTaskCreated  Action = "TASK_CREATED"
	ActionStageChanged Action = "STAGE_CHANGED"
	ActionTaskUpdated  Action = "TASK_UPDATED"
)

// ActivityLog is an immutable entry in a task's history. Entries are only
// removed in bulk, together with the task they describe.
type ActivityLog struct {
	ID        string    `json:"id" bson:"_id"`
	TaskID    string    `json:"taskId" bson:"taskId"`
	UserID    string    `json:"userId" bson:"userId"`
	Action    Action    `json:"action" bson:"action"`
	Details   Fields    `json:"details" bson:"details"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// NotificationType classifies an inbox message.
type NotificationType string

const (
	NotifyTaskAssigned NotificationType = "task_assigned"
	NotifyStageChanged NotificationType = "stage_changed"
	NotifyDueDate      NotificationType = "due_date"
	NotifyCompleted    NotificationType = "completed"
	NotifyMention      NotificationType = "mention"
)

// Notification is a message in a user's inbox.
type Notification struct {
	ID        string           `json:"id" bson:"_id"`
	UserID    string           `json:"userId" bson:"userId"`
	Message   string           `json:"message" bson:"message"`
	TaskID    string           `json:"taskId,omitempty" bson:"taskId,omitempty"`
	Type      NotificationType `json:"type" bson:"type"`
	Read      bool             `json:"read" bson:"read"`
	Metadata  Fields           `json:"metadata" bson:"metadata"`
	CreatedAt time.Time        `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt" bson:"updatedAt"`
}
