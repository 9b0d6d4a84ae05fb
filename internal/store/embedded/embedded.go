// Package embedded implements the store repositories on top of the in-process
// document engine.
package embedded

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/celerix-dev/celerix-tasks/internal/engine"
	"github.com/celerix-dev/celerix-tasks/internal/store"
)

// Store serves every repository from one MemStore.
type Store struct {
	engine        *engine.MemStore
	users         *userRepo
	workflows     *workflowRepo
	tasks         *taskRepo
	activity      *activityRepo
	notifications *notificationRepo
}

var _ store.Store = (*Store)(nil)

// New wraps an existing engine.
func New(ms *engine.MemStore) *Store {
	return &Store{
		engine:        ms,
		users:         &userRepo{ms: ms},
		workflows:     &workflowRepo{ms: ms},
		tasks:         &taskRepo{ms: ms},
		activity:      &activityRepo{ms: ms},
		notifications: &notificationRepo{ms: ms},
	}
}

// Open loads everything p holds into a new engine that writes back to p.
// A nil persister yields a purely in-memory store.
func Open(p engine.Persister) (*Store, error) {
	if p == nil {
		return New(engine.NewMemStore(nil, nil)), nil
	}
	initial, err := p.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}
	return New(engine.NewMemStore(initial, p)), nil
}

func (s *Store) Users() store.UserRepository                 { return s.users }
func (s *Store) Workflows() store.WorkflowRepository         { return s.workflows }
func (s *Store) Tasks() store.TaskRepository                 { return s.tasks }
func (s *Store) Activity() store.ActivityRepository          { return s.activity }
func (s *Store) Notifications() store.NotificationRepository { return s.notifications }

// Ping always succeeds; the engine lives in process.
func (s *Store) Ping(context.Context) error { return nil }

// Close waits for pending writes and closes the persister.
func (s *Store) Close(context.Context) error { return s.engine.Close() }

// Engine exposes the underlying document engine.
func (s *Store) Engine() *engine.MemStore { return s.engine }

func decode[T any](doc json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return &v, nil
}

func get[T any](ms *engine.MemStore, collection, id string) (*T, error) {
	doc, err := ms.Get(collection, id)
	if errors.Is(err, engine.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode[T](doc)
}

// insert stores v under a fresh id; it fails with ErrDuplicate when the id is taken.
func insert(ms *engine.MemStore, collection, id string, v any, extra func(map[string]json.RawMessage) error) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	return ms.PutChecked(collection, id, doc, func(docs map[string]json.RawMessage) error {
		if _, ok := docs[id]; ok {
			return store.ErrDuplicate
		}
		if extra != nil {
			return extra(docs)
		}
		return nil
	})
}

// replace overwrites an existing document; it fails with ErrNotFound when the id is absent.
func replace(ms *engine.MemStore, collection, id string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	return ms.PutChecked(collection, id, doc, func(docs map[string]json.RawMessage) error {
		if _, ok := docs[id]; !ok {
			return store.ErrNotFound
		}
		return nil
	})
}

func remove(ms *engine.MemStore, collection, id string) error {
	if err := ms.Delete(collection, id); errors.Is(err, engine.ErrNotFound) {
		return store.ErrNotFound
	} else if err != nil {
		return err
	}
	return nil
}

// scan decodes a snapshot of the collection, keeping the records keep accepts.
func scan[T any](ms *engine.MemStore, collection string, keep func(*T) bool) ([]T, error) {
	var out []T
	for _, doc := range ms.Snapshot(collection) {
		v, err := decode[T](doc)
		if err != nil {
			return nil, err
		}
		if keep == nil || keep(v) {
			out = append(out, *v)
		}
	}
	return out, nil
}
