// Package activity writes the task history and user notifications that
// accompany task changes, and serves the notification inbox.
package activity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/celerix-dev/celerix-tasks/internal/apperr"
	"github.com/celerix-dev/celerix-tasks/internal/store"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

// Recorder appends activity entries and notifications. Log and Notify never
// fail the caller: a write that does not go through is logged and dropped.
type Recorder struct {
	activity      store.ActivityRepository
	notifications store.NotificationRepository
	log           *slog.Logger
	now           func() time.Time
	newID         func() string
}

func NewRecorder(activity store.ActivityRepository, notifications store.NotificationRepository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		activity:      activity,
		notifications: notifications,
		log:           logger,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
}

// Log appends an entry to a task's history.
func (r *Recorder) Log(ctx context.Context, taskID, actorID string, action schema.Action, details schema.Fields) {
	if details == nil {
		details = schema.Fields{}
	}
	entry := &schema.ActivityLog{
		ID:        r.newID(),
		TaskID:    taskID,
		UserID:    actorID,
		Action:    action,
		Details:   details,
		CreatedAt: r.now(),
	}
	if err := r.activity.Append(ctx, entry); err != nil {
		r.log.WarnContext(ctx, "activity log write failed",
			"task_id", taskID, "action", action, "error", err)
	}
}

// Notify puts a message in userID's inbox.
func (r *Recorder) Notify(ctx context.Context, userID, taskID string, typ schema.NotificationType, message string) {
	now := r.now()
	n := &schema.Notification{
		ID:        r.newID(),
		UserID:    userID,
		Message:   message,
		TaskID:    taskID,
		Type:      typ,
		Metadata:  schema.Fields{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.notifications.Create(ctx, n); err != nil {
		r.log.WarnContext(ctx, "notification write failed",
			"user_id", userID, "task_id", taskID, "type", typ, "error", err)
	}
}

// NotifyAll sends the same message to every user in userIDs except skip.
func (r *Recorder) NotifyAll(ctx context.Context, userIDs []string, skip, taskID string, typ schema.NotificationType, message string) {
	for _, id := range userIDs {
		if id == skip {
			continue
		}
		r.Notify(ctx, id, taskID, typ, message)
	}
}

// Recent returns the newest limit entries of a task's history.
func (r *Recorder) Recent(ctx context.Context, taskID string, limit int) ([]schema.ActivityLog, error) {
	entries, err := r.activity.ListByTask(ctx, taskID, limit)
	if err != nil {
		return nil, apperr.Internal(err, "loading activity")
	}
	if entries == nil {
		entries = []schema.ActivityLog{}
	}
	return entries, nil
}

// Purge removes a task's whole history. Unlike Log, failures are returned.
func (r *Recorder) Purge(ctx context.Context, taskID string) (int, error) {
	n, err := r.activity.DeleteByTask(ctx, taskID)
	if err != nil {
		return 0, apperr.Internal(err, "deleting activity")
	}
	return n, nil
}

// Inbox lists the caller's notifications, newest first.
func (r *Recorder) Inbox(ctx context.Context, id schema.Identity, unreadOnly bool) ([]schema.Notification, error) {
	list, err := r.notifications.ListByUser(ctx, id.ID, unreadOnly)
	if err != nil {
		return nil, apperr.Internal(err, "loading notifications")
	}
	if list == nil {
		list = []schema.Notification{}
	}
	return list, nil
}

// MarkRead flags one of the caller's notifications as read.
func (r *Recorder) MarkRead(ctx context.Context, id schema.Identity, notificationID string) (*schema.Notification, error) {
	n, err := r.notifications.MarkRead(ctx, id.ID, notificationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Notification not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "updating notification")
	}
	return n, nil
}
