package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-tasks/internal/activity"
	"github.com/celerix-dev/celerix-tasks/internal/analytics"
	"github.com/celerix-dev/celerix-tasks/internal/auth"
	"github.com/celerix-dev/celerix-tasks/internal/store"
	"github.com/celerix-dev/celerix-tasks/internal/store/embedded"
	"github.com/celerix-dev/celerix-tasks/internal/tasks"
	"github.com/celerix-dev/celerix-tasks/internal/workflow"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

type envelope struct {
	Success     bool            `json:"success"`
	Message     string          `json:"message"`
	Data        json.RawMessage `json:"data"`
	Count       int             `json:"count"`
	Total       int             `json:"total"`
	Pages       int             `json:"pages"`
	CurrentPage int             `json:"currentPage"`
}

type testServer struct {
	r     *gin.Engine
	store *embedded.Store
}

func setupTestRouter(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := embedded.Open(nil)
	require.NoError(t, err)
	tokens, err := auth.NewTokens(auth.TokenConfig{Secret: "access", RefreshSecret: "refresh", AccessTTL: time.Hour})
	require.NoError(t, err)

	recorder := activity.NewRecorder(st.Activity(), st.Notifications(), nil)
	h := &Handler{
		Store:     st,
		Auth:      auth.NewService(st.Users(), tokens, nil),
		Workflows: workflow.NewService(st.Workflows(), nil),
		Tasks:     tasks.NewService(st, recorder, nil),
		Analytics: analytics.NewService(st.Tasks(), nil),
		Activity:  recorder,
	}
	return &testServer{r: NewRouter(h), store: st}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)

	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

type account struct {
	ID      string
	Token   string
	Refresh string
}

func (s *testServer) register(t *testing.T, name string, role schema.Role) account {
	t.Helper()
	w, env := s.do(t, "POST", "/auth/register", "", gin.H{
		"name": name, "email": name + "@example.com", "password": "secret1", "role": role,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var session auth.Session
	require.NoError(t, json.Unmarshal(env.Data, &session))
	return account{ID: session.User.ID, Token: session.AccessToken, Refresh: session.RefreshToken}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

var kanban = gin.H{
	"name": "Kanban",
	"stages": []gin.H{
		{"name": "Todo", "order": 0},
		{"name": "Doing", "order": 1},
		{"name": "Done", "order": 2},
	},
}

func stageID(t *testing.T, w schema.Workflow, name string) string {
	t.Helper()
	for _, st := range w.Stages {
		if st.Name == name {
			return st.ID
		}
	}
	t.Fatalf("no stage %q in %v", name, w.Stages)
	return ""
}

func TestHealth(t *testing.T) {
	s := setupTestRouter(t)

	w, _ := s.do(t, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res map[string]any
	json.Unmarshal(w.Body.Bytes(), &res)
	assert.Equal(t, "OK", res["status"])
	assert.Equal(t, true, res["databaseConnected"])
}

func TestUnknownRoute(t *testing.T) {
	s := setupTestRouter(t)

	w, env := s.do(t, "GET", "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Route not found", env.Message)
}

func TestCORSPreflight(t *testing.T) {
	s := setupTestRouter(t)

	w, _ := s.do(t, "OPTIONS", "/tasks", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuthFlow(t *testing.T) {
	s := setupTestRouter(t)
	ann := s.register(t, "ann", "")

	w, env := s.do(t, "POST", "/auth/register", "", gin.H{
		"name": "Ann", "email": "ANN@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User already exists", env.Message)

	w, env = s.do(t, "POST", "/auth/login", "", gin.H{"email": "ann@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", env.Message)

	w, _ = s.do(t, "POST", "/auth/login", "", gin.H{"email": " Ann@Example.com ", "password": "secret1"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, "GET", "/auth/profile", ann.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decode[auth.Profile](t, env.Data)
	assert.Equal(t, schema.RoleMember, profile.Role)
	assert.NotContains(t, string(env.Data), "password")

	w, env = s.do(t, "POST", "/auth/refresh", "", gin.H{"refreshToken": ann.Refresh})
	require.Equal(t, http.StatusOK, w.Code)
	fresh := decode[map[string]string](t, env.Data)["accessToken"]
	w, _ = s.do(t, "GET", "/auth/profile", fresh, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// An access token is not a refresh token.
	w, env = s.do(t, "POST", "/auth/refresh", "", gin.H{"refreshToken": ann.Token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid refresh token", env.Message)
}

func TestRegisterValidation(t *testing.T) {
	s := setupTestRouter(t)

	tests := map[string]struct {
		body gin.H
		msg  string
	}{
		"missing fields": {gin.H{"email": "a@b.co"}, "Please fill all fields"},
		"short password": {gin.H{"name": "A", "email": "a@b.co", "password": "123"}, "Password must be at least 6 characters"},
		"bad email":      {gin.H{"name": "A", "email": "nope", "password": "secret1"}, "Please provide a valid email"},
		"bad role":       {gin.H{"name": "A", "email": "a@b.co", "password": "secret1", "role": "owner"}, "Invalid role"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w, env := s.do(t, "POST", "/auth/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.msg, env.Message)
		})
	}
}

func TestAuthenticationRequired(t *testing.T) {
	s := setupTestRouter(t)

	w, env := s.do(t, "GET", "/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Authentication required", env.Message)

	w, env = s.do(t, "GET", "/tasks", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid token", env.Message)
}

func TestWorkflowRoutes(t *testing.T) {
	s := setupTestRouter(t)
	mgr := s.register(t, "max", schema.RoleManager)
	mem := s.register(t, "mia", schema.RoleMember)

	w, env := s.do(t, "POST", "/workflows", mem.Token, kanban)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Insufficient permissions", env.Message)

	w, env = s.do(t, "POST", "/workflows", mgr.Token, kanban)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	wf := decode[schema.Workflow](t, env.Data)
	assert.Equal(t, schema.DefaultProject, wf.ProjectID)

	// Members do not see a non-default workflow they did not create.
	w, env = s.do(t, "GET", "/workflows", mem.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.Count)
	w, _ = s.do(t, "GET", "/workflows/"+wf.ID, mem.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(t, "PUT", "/workflows/"+wf.ID, mgr.Token, gin.H{"name": "Board", "isDefault": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Board", decode[schema.Workflow](t, env.Data).Name)

	w, env = s.do(t, "GET", "/workflows", mem.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.Count)

	w, env = s.do(t, "DELETE", "/workflows/"+wf.ID, mgr.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Cannot delete default workflow", env.Message)

	w, _ = s.do(t, "GET", "/workflows/missing", mgr.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateWorkflowDuplicateOrders(t *testing.T) {
	s := setupTestRouter(t)
	mgr := s.register(t, "max", schema.RoleManager)

	w, env := s.do(t, "POST", "/workflows", mgr.Token, gin.H{
		"name":   "Broken",
		"stages": []gin.H{{"name": "A", "order": 0}, {"name": "B", "order": 0}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)

	list, err := s.store.Workflows().List(context.Background(), store.WorkflowFilter{})
	require.NoError(t, err)
	assert.Empty(t, list, "no workflow may be persisted")
}

func TestTaskLifecycleToDone(t *testing.T) {
	s := setupTestRouter(t)
	mgr := s.register(t, "max", schema.RoleManager)
	mem := s.register(t, "mia", schema.RoleMember)

	_, env := s.do(t, "POST", "/workflows", mgr.Token, kanban)
	wf := decode[schema.Workflow](t, env.Data)

	w, env := s.do(t, "POST", "/tasks", mgr.Token, gin.H{
		"title": "Write release notes", "workflowId": wf.ID, "assignedTo": []string{mem.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[tasks.Detail](t, env.Data)
	assert.Equal(t, stageID(t, wf, "Todo"), created.CurrentStage)
	assert.Equal(t, schema.PriorityMedium, created.Priority)
	require.Len(t, created.Assignees, 1)
	assert.Equal(t, "mia", created.Assignees[0].Name)

	w, env = s.do(t, "PATCH", "/tasks/"+created.ID+"/stage", mem.Token, gin.H{"stageId": stageID(t, wf, "Done")})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Task moved to Done", env.Message)
	moved := decode[tasks.Detail](t, env.Data)
	require.NotNil(t, moved.CompletedAt)

	w, env = s.do(t, "GET", "/notifications", mem.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	inbox := decode[[]schema.Notification](t, env.Data)
	var completed *schema.Notification
	for i := range inbox {
		if inbox[i].Type == schema.NotifyCompleted {
			completed = &inbox[i]
		}
	}
	require.NotNil(t, completed, "assignee should be told the task completed")

	w, env = s.do(t, "PATCH", "/notifications/"+completed.ID+"/read", mem.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[schema.Notification](t, env.Data).Read)

	w, _ = s.do(t, "PATCH", "/notifications/"+completed.ID+"/read", mgr.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "notifications belong to their owner")

	// Members cannot move backwards; managers can.
	w, env = s.do(t, "PATCH", "/tasks/"+created.ID+"/stage", mem.Token, gin.H{"stageId": stageID(t, wf, "Todo")})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Cannot move task to previous stage", env.Message)
	w, _ = s.do(t, "PATCH", "/tasks/"+created.ID+"/stage", mgr.Token, gin.H{"stageId": stageID(t, wf, "Todo")})
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, "PATCH", "/tasks/"+created.ID+"/stage", mgr.Token, gin.H{"stageId": "nowhere"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid stage", env.Message)

	w, env = s.do(t, "PATCH", "/tasks/"+created.ID+"/stage", mgr.Token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "stageId is required", env.Message)

	w, env = s.do(t, "GET", "/tasks/"+created.ID, mem.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[tasks.Detail](t, env.Data)
	assert.NotNil(t, detail.CompletedAt, "completion is never cleared")
	assert.Len(t, detail.ActivityLogs, 3)
}

func TestUpdateTaskRoute(t *testing.T) {
	s := setupTestRouter(t)
	mgr := s.register(t, "max", schema.RoleManager)
	mem := s.register(t, "mia", schema.RoleMember)
	other := s.register(t, "ned", schema.RoleMember)

	_, env := s.do(t, "POST", "/workflows", mgr.Token, kanban)
	wf := decode[schema.Workflow](t, env.Data)
	_, env = s.do(t, "POST", "/tasks", mgr.Token, gin.H{"title": "Fix login", "workflowId": wf.ID, "assignedTo": []string{mem.ID}})
	task := decode[tasks.Detail](t, env.Data)

	w, env := s.do(t, "PUT", "/tasks/"+task.ID, other.Token, gin.H{"title": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Not authorized to update this task", env.Message)

	w, env = s.do(t, "PUT", "/tasks/"+task.ID, mem.Token, gin.H{"priority": "urgent"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Message, "Priority must be one of")

	w, env = s.do(t, "PUT", "/tasks/"+task.ID, mem.Token, gin.H{"title": "Fix login flow", "priority": "high"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[tasks.Detail](t, env.Data)
	assert.Equal(t, "Fix login flow", updated.Title)
	assert.Equal(t, schema.PriorityHigh, updated.Priority)

	stored, err := s.store.Tasks().Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fix login flow", stored.Title)
}

func TestUpdateTaskClearsDueDate(t *testing.T) {
	s := setupTestRouter(t)
	mgr := s.register(t, "max", schema.RoleManager)

	_, env := s.do(t, "POST", "/workflows", mgr.Token, kanban)
	wf := decode[schema.Workflow](t, env.Data)
	w, env := s.do(t, "POST", "/tasks", mgr.Token, gin.H{"title": "Old report", "workflowId": wf.ID, "dueDate": "2020-01-01T00:00:00Z"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	task := decode[tasks.Detail](t, env.Data)

	_, env = s.do(t, "GET", "/tasks/analytics/overview", mgr.Token, nil)
	assert.Equal(t, 1, decode[analytics.Overview](t, env.Data).Overdue)

	w, _ = s.do(t, "PUT", "/tasks/"+task.ID, mgr.Token, gin.H{"title": "Old report v2"})
	require.Equal(t, http.StatusOK, w.Code)
	stored, err := s.store.Tasks().Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.DueDate)

	w, _ = s.do(t, "PUT", "/tasks/"+task.ID, mgr.Token, gin.H{"dueDate": nil})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stored, err = s.store.Tasks().Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.DueDate)

	_, env = s.do(t, "GET", "/tasks/analytics/overview", mgr.Token, nil)
	assert.Equal(t, 0, decode[analytics.Overview](t, env.Data).Overdue)

	w, _ = s.do(t, "PUT", "/tasks/"+task.ID, mgr.Token, gin.H{"dueDate": "next week"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteTaskRoute(t *testing.T) {
	s := setupTestRouter(t)
	mgr := s.register(t, "max", schema.RoleManager)
	mem := s.register(t, "mia", schema.RoleMember)

	_, env := s.do(t, "POST", "/workflows", mgr.Token, kanban)
	wf := decode[schema.Workflow](t, env.Data)
	_, env = s.do(t, "POST", "/tasks", mgr.Token, gin.H{"title": "Temp", "workflowId": wf.ID, "assignedTo": []string{mem.ID}})
	task := decode[tasks.Detail](t, env.Data)

	w, _ := s.do(t, "DELETE", "/tasks/"+task.ID, mem.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(t, "DELETE", "/tasks/"+task.ID, mgr.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Task deleted successfully", env.Message)

	logs, err := s.store.Activity().ListByTask(context.Background(), task.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)

	w, _ = s.do(t, "GET", "/tasks/"+task.ID, mgr.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTasksScopesMembers(t *testing.T) {
	s := setupTestRouter(t)
	mgr := s.register(t, "max", schema.RoleManager)
	mem := s.register(t, "mia", schema.RoleMember)
	other := s.register(t, "ned", schema.RoleMember)

	_, env := s.do(t, "POST", "/workflows", mgr.Token, kanban)
	wf := decode[schema.Workflow](t, env.Data)
	for i, who := range []string{mem.ID, other.ID, mem.ID, other.ID, mem.ID} {
		w, _ := s.do(t, "POST", "/tasks", mgr.Token, gin.H{
			"title": "Task " + string(rune('A'+i)), "workflowId": wf.ID, "assignedTo": []string{who},
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	// The assignedTo filter is ignored for members.
	w, env := s.do(t, "GET", "/tasks?assignedTo="+other.ID, mem.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, env.Total)
	for _, d := range decode[[]tasks.Detail](t, env.Data) {
		assert.Contains(t, d.AssignedTo, mem.ID)
	}

	w, env = s.do(t, "GET", "/tasks?page=2&limit=2", mgr.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, env.Total)
	assert.Equal(t, 2, env.Count)
	assert.Equal(t, 3, env.Pages)
	assert.Equal(t, 2, env.CurrentPage)

	w, env = s.do(t, "GET", "/tasks?search=task%20e", mgr.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.Total)

	w, _ = s.do(t, "GET", "/tasks?page=abc", mgr.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(t, "GET", "/tasks?priority=urgent", mgr.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyticsOverviewRoute(t *testing.T) {
	s := setupTestRouter(t)
	mgr := s.register(t, "max", schema.RoleManager)
	mem := s.register(t, "mia", schema.RoleMember)

	_, env := s.do(t, "POST", "/workflows", mgr.Token, kanban)
	wf := decode[schema.Workflow](t, env.Data)
	_, env = s.do(t, "POST", "/tasks", mgr.Token, gin.H{"title": "Mine", "workflowId": wf.ID, "assignedTo": []string{mem.ID}, "priority": "high"})
	mine := decode[tasks.Detail](t, env.Data)
	s.do(t, "POST", "/tasks", mgr.Token, gin.H{"title": "Theirs", "workflowId": wf.ID})
	s.do(t, "PATCH", "/tasks/"+mine.ID+"/stage", mem.Token, gin.H{"stageId": stageID(t, wf, "Done")})

	w, env := s.do(t, "GET", "/tasks/analytics/overview", mem.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	o := decode[analytics.Overview](t, env.Data)
	assert.Equal(t, []analytics.Bucket{{ID: "high", Count: 1}}, o.ByPriority)
	assert.Equal(t, []analytics.Bucket{{ID: "completed", Count: 1}}, o.ByCompletion)
	require.NotNil(t, o.AvgCompletionDays)

	w, env = s.do(t, "GET", "/tasks/analytics/overview", mgr.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	o = decode[analytics.Overview](t, env.Data)
	assert.Len(t, o.ByCompletion, 2)

	w, env = s.do(t, "GET", "/tasks/analytics/overview?startDate=2000-01-01&endDate=2000-12-31", mgr.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	o = decode[analytics.Overview](t, env.Data)
	assert.Empty(t, o.ByStage)
	assert.Nil(t, o.AvgCompletionDays)

	w, env = s.do(t, "GET", "/tasks/analytics/overview?startDate=yesterday", mgr.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "startDate must be a date", env.Message)
}
