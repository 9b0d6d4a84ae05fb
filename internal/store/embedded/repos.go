package embedded

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/celerix-dev/celerix-tasks/internal/engine"
	"github.com/celerix-dev/celerix-tasks/internal/store"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

// newestFirst orders by creation time descending, then id for a stable order.
func newestFirst(aAt, bAt time.Time, aID, bID string) int {
	if c := bAt.Compare(aAt); c != 0 {
		return c
	}
	return cmp.Compare(aID, bID)
}

type userRepo struct {
	ms *engine.MemStore
}

func (r *userRepo) Create(_ context.Context, u *schema.User) error {
	return insert(r.ms, store.CollectionUsers, u.ID, u, func(docs map[string]json.RawMessage) error {
		for _, doc := range docs {
			var existing struct {
				Email string `json:"email"`
			}
			if err := json.Unmarshal(doc, &existing); err != nil {
				return err
			}
			if existing.Email == u.Email {
				return store.ErrDuplicate
			}
		}
		return nil
	})
}

func (r *userRepo) GetByID(_ context.Context, id string) (*schema.User, error) {
	return get[schema.User](r.ms, store.CollectionUsers, id)
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*schema.User, error) {
	users, err := scan(r.ms, store.CollectionUsers, func(u *schema.User) bool { return u.Email == email })
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, store.ErrNotFound
	}
	return &users[0], nil
}

func (r *userRepo) ListByIDs(_ context.Context, ids []string) ([]schema.User, error) {
	var out []schema.User
	for _, id := range ids {
		u, err := get[schema.User](r.ms, store.CollectionUsers, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, nil
}

type workflowRepo struct {
	ms *engine.MemStore
}

func (r *workflowRepo) Create(_ context.Context, w *schema.Workflow) error {
	return insert(r.ms, store.CollectionWorkflows, w.ID, w, nil)
}

func (r *workflowRepo) Get(_ context.Context, id string) (*schema.Workflow, error) {
	return get[schema.Workflow](r.ms, store.CollectionWorkflows, id)
}

func (r *workflowRepo) List(_ context.Context, filter store.WorkflowFilter) ([]schema.Workflow, error) {
	list, err := scan(r.ms, store.CollectionWorkflows, filter.Matches)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(list, func(a, b schema.Workflow) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return list, nil
}

func (r *workflowRepo) Replace(_ context.Context, w *schema.Workflow) error {
	return replace(r.ms, store.CollectionWorkflows, w.ID, w)
}

func (r *workflowRepo) Delete(_ context.Context, id string) error {
	return remove(r.ms, store.CollectionWorkflows, id)
}

type taskRepo struct {
	ms *engine.MemStore
}

func (r *taskRepo) Create(_ context.Context, t *schema.Task) error {
	return insert(r.ms, store.CollectionTasks, t.ID, t, nil)
}

func (r *taskRepo) Get(_ context.Context, id string) (*schema.Task, error) {
	return get[schema.Task](r.ms, store.CollectionTasks, id)
}

func (r *taskRepo) List(_ context.Context, filter store.TaskFilter, page store.Page) ([]schema.Task, int, error) {
	list, err := scan(r.ms, store.CollectionTasks, filter.Matches)
	if err != nil {
		return nil, 0, err
	}
	slices.SortFunc(list, func(a, b schema.Task) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	lo, hi := page.Window(len(list))
	return list[lo:hi], len(list), nil
}

func (r *taskRepo) Replace(_ context.Context, t *schema.Task) error {
	return replace(r.ms, store.CollectionTasks, t.ID, t)
}

func (r *taskRepo) Delete(_ context.Context, id string) error {
	return remove(r.ms, store.CollectionTasks, id)
}

type activityRepo struct {
	ms *engine.MemStore
}

func (r *activityRepo) Append(_ context.Context, entry *schema.ActivityLog) error {
	return insert(r.ms, store.CollectionActivity, entry.ID, entry, nil)
}

func (r *activityRepo) ListByTask(_ context.Context, taskID string, limit int) ([]schema.ActivityLog, error) {
	list, err := scan(r.ms, store.CollectionActivity, func(a *schema.ActivityLog) bool { return a.TaskID == taskID })
	if err != nil {
		return nil, err
	}
	slices.SortFunc(list, func(a, b schema.ActivityLog) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *activityRepo) DeleteByTask(_ context.Context, taskID string) (int, error) {
	removed := r.ms.DeleteWhere(store.CollectionActivity, func(_ string, doc json.RawMessage) bool {
		var entry struct {
			TaskID string `json:"taskId"`
		}
		return json.Unmarshal(doc, &entry) == nil && entry.TaskID == taskID
	})
	return removed, nil
}

type notificationRepo struct {
	ms *engine.MemStore
}

func (r *notificationRepo) Create(_ context.Context, n *schema.Notification) error {
	return insert(r.ms, store.CollectionNotifications, n.ID, n, nil)
}

func (r *notificationRepo) ListByUser(_ context.Context, userID string, unreadOnly bool) ([]schema.Notification, error) {
	list, err := scan(r.ms, store.CollectionNotifications, func(n *schema.Notification) bool {
		return n.UserID == userID && (!unreadOnly || !n.Read)
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(list, func(a, b schema.Notification) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return list, nil
}

func (r *notificationRepo) MarkRead(_ context.Context, userID, id string) (*schema.Notification, error) {
	n, err := get[schema.Notification](r.ms, store.CollectionNotifications, id)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, store.ErrNotFound
	}
	if n.Read {
		return n, nil
	}
	n.Read = true
	n.UpdatedAt = time.Now().UTC()
	if err := replace(r.ms, store.CollectionNotifications, n.ID, n); err != nil {
		return nil, err
	}
	return n, nil
}
