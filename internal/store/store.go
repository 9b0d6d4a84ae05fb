// Package store defines the repositories the services persist through and the
// filters they query with. Backends live in the embedded and mongostore subpackages.
package store

import (
	"context"
	"errors"

	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write would violate a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// Collection names shared by every backend.
const (
	CollectionUsers         = "users"
	CollectionWorkflows     = "workflows"
	CollectionTasks         = "tasks"
	CollectionActivity      = "activitylogs"
	CollectionNotifications = "notifications"
)

// UserRepository persists accounts.
type UserRepository interface {
	// Create inserts u. It returns ErrDuplicate when the email is taken.
	Create(ctx context.Context, u *schema.User) error
	GetByID(ctx context.Context, id string) (*schema.User, error)
	// GetByEmail matches the already-normalized email exactly.
	GetByEmail(ctx context.Context, email string) (*schema.User, error)
	// ListByIDs returns the users that exist among ids, in no particular order.
	ListByIDs(ctx context.Context, ids []string) ([]schema.User, error)
}

// WorkflowRepository persists workflows.
type WorkflowRepository interface {
	Create(ctx context.Context, w *schema.Workflow) error
	Get(ctx context.Context, id string) (*schema.Workflow, error)
	// List returns matching workflows, newest first.
	List(ctx context.Context, filter WorkflowFilter) ([]schema.Workflow, error)
	Replace(ctx context.Context, w *schema.Workflow) error
	Delete(ctx context.Context, id string) error
}

// TaskRepository persists tasks.
type TaskRepository interface {
	Create(ctx context.Context, t *schema.Task) error
	Get(ctx context.Context, id string) (*schema.Task, error)
	// List returns one page of matching tasks, newest first, and the total
	// number of matches. A zero Page returns every match.
	List(ctx context.Context, filter TaskFilter, page Page) ([]schema.Task, int, error)
	Replace(ctx context.Context, t *schema.Task) error
	Delete(ctx context.Context, id string) error
}

// ActivityRepository persists the append-only task history.
type ActivityRepository interface {
	Append(ctx context.Context, entry *schema.ActivityLog) error
	// ListByTask returns the newest entries first; limit <= 0 means no limit.
	ListByTask(ctx context.Context, taskID string, limit int) ([]schema.ActivityLog, error)
	DeleteByTask(ctx context.Context, taskID string) (int, error)
}

// NotificationRepository persists user inboxes.
type NotificationRepository interface {
	Create(ctx context.Context, n *schema.Notification) error
	// ListByUser returns the newest notifications first.
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]schema.Notification, error)
	// MarkRead flags a notification owned by userID as read.
	MarkRead(ctx context.Context, userID, id string) (*schema.Notification, error)
}

// Store bundles the repositories of one backend with its lifecycle.
type Store interface {
	Users() UserRepository
	Workflows() WorkflowRepository
	Tasks() TaskRepository
	Activity() ActivityRepository
	Notifications() NotificationRepository

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	// Close flushes pending writes and releases connections.
	Close(ctx context.Context) error
}
