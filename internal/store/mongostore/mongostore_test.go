package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/celerix-dev/celerix-tasks/internal/store"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

func TestTaskQuery(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := taskQuery(store.TaskFilter{
		WorkflowID:  "w1",
		Priority:    schema.PriorityHigh,
		AssignedTo:  "u1",
		Search:      "a.b",
		CreatedFrom: &from,
	})

	assert.Equal(t, "w1", q["workflowId"])
	assert.Equal(t, schema.PriorityHigh, q["priority"])
	assert.Equal(t, "u1", q["assignedTo"])
	assert.Equal(t, bson.M{"$gte": from}, q["createdAt"])
	assert.NotContains(t, q, "projectId")

	or, ok := q["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, or, 3)
	rx := or[0].(bson.M)["title"].(primitive.Regex)
	assert.Equal(t, `a\.b`, rx.Pattern, "search terms are matched literally")
	assert.Equal(t, "i", rx.Options)

	assert.Empty(t, taskQuery(store.TaskFilter{}))
}

func TestWorkflowQuery(t *testing.T) {
	q := workflowQuery(store.WorkflowFilter{ProjectID: "p", VisibleTo: "u1"})
	assert.Equal(t, "p", q["projectId"])
	assert.Equal(t, bson.A{bson.M{"isDefault": true}, bson.M{"createdBy": "u1"}}, q["$or"])
}

func TestIndexModelsCoverEveryCollection(t *testing.T) {
	models := indexModels()
	for _, name := range []string{
		store.CollectionUsers, store.CollectionWorkflows, store.CollectionTasks,
		store.CollectionActivity, store.CollectionNotifications,
	} {
		assert.NotEmpty(t, models[name], name)
	}
}

// TestMongoRoundTrip runs only when MONGO_TEST_URI points at a disposable server.
func TestMongoRoundTrip(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := Open(ctx, uri, "celerix_tasks_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close(context.Background())
	})

	require.NoError(t, s.Users().Create(ctx, &schema.User{ID: "u1", Email: "a@b.c"}))
	assert.ErrorIs(t, s.Users().Create(ctx, &schema.User{ID: "u2", Email: "a@b.c"}), store.ErrDuplicate)

	task := &schema.Task{ID: "t1", Title: "Ship", AssignedTo: []string{"u1"}, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.Tasks().Create(ctx, task))
	list, total, err := s.Tasks().List(ctx, store.TaskFilter{AssignedTo: "u1", Search: "shi"}, store.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].CompletedAt)

	require.NoError(t, s.Activity().Append(ctx, &schema.ActivityLog{ID: "a1", TaskID: "t1", CreatedAt: time.Now().UTC()}))
	n, err := s.Activity().DeleteByTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Tasks().Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
