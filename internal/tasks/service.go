// Package tasks implements the task lifecycle: creation on a workflow's
// initial stage, stage transitions, field updates and deletion.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/celerix-dev/celerix-tasks/internal/activity"
	"github.com/celerix-dev/celerix-tasks/internal/apperr"
	"github.com/celerix-dev/celerix-tasks/internal/policy"
	"github.com/celerix-dev/celerix-tasks/internal/store"
	"github.com/celerix-dev/celerix-tasks/internal/workflow"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

// RecentActivity is how many history entries Get attaches to a task.
const RecentActivity = 20

type Service struct {
	tasks     store.TaskRepository
	workflows store.WorkflowRepository
	users     store.UserRepository
	recorder  *activity.Recorder
	log       *slog.Logger
	now       func() time.Time
	newID     func() string
}

func NewService(st store.Store, recorder *activity.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tasks:     st.Tasks(),
		workflows: st.Workflows(),
		users:     st.Users(),
		recorder:  recorder,
		log:       logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Create places a new task on the initial stage of its workflow.
func (s *Service) Create(ctx context.Context, actor schema.Identity, in CreateInput) (*Detail, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("Title is required")
	}
	priority := in.Priority
	if priority == "" {
		priority = schema.PriorityMedium
	}
	if !priority.Valid() {
		return nil, apperr.Validation("Invalid priority")
	}

	wf, err := s.workflow(ctx, in.WorkflowID)
	if err != nil {
		return nil, err
	}
	first, err := workflow.InitialStage(wf)
	if err != nil {
		return nil, err
	}

	projectID := in.ProjectID
	if projectID == "" {
		projectID = wf.ProjectID
	}
	if projectID == "" {
		projectID = schema.DefaultProject
	}

	now := s.now()
	t := &schema.Task{
		ID:           s.newID(),
		Title:        title,
		Description:  in.Description,
		Priority:     priority,
		CurrentStage: first.ID,
		AssignedTo:   uniqueIDs(in.AssignedTo),
		DueDate:      in.DueDate,
		WorkflowID:   wf.ID,
		ProjectID:    projectID,
		CreatedBy:    actor.ID,
		Tags:         nonNil(in.Tags),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, apperr.Internal(err, "creating task")
	}

	s.recorder.Log(ctx, t.ID, actor.ID, schema.ActionTaskCreated, schema.Fields{
		"title":    t.Title,
		"priority": string(t.Priority),
	})
	for _, id := range t.AssignedTo {
		s.recorder.Notify(ctx, id, t.ID, schema.NotifyTaskAssigned, fmt.Sprintf("New task assigned: \"%s\"", t.Title))
	}
	s.log.InfoContext(ctx, "task created", "task_id", t.ID, "workflow_id", wf.ID, "actor", actor.ID)
	return s.expandOne(ctx, t)
}

// AdvanceStage moves a task to stageID. Entering a stage named "done" for the
// first time stamps the completion time. The returned stage is the target.
func (s *Service) AdvanceStage(ctx context.Context, actor schema.Identity, taskID, stageID string) (*Detail, schema.WorkflowStage, error) {
	var none schema.WorkflowStage

	t, err := s.task(ctx, taskID)
	if err != nil {
		return nil, none, err
	}
	if err := policy.Authorize(actor, policy.TaskAdvance, policy.Resource{Task: t}); err != nil {
		return nil, none, err
	}
	wf, err := s.workflow(ctx, t.WorkflowID)
	if err != nil {
		return nil, none, err
	}
	target, err := workflow.FindStage(wf, stageID)
	if err != nil {
		return nil, none, apperr.Validation("Invalid stage")
	}
	move := &policy.StageMove{To: target}
	if current, err := workflow.FindStage(wf, t.CurrentStage); err == nil {
		move.From = &current
	}
	if err := policy.Authorize(actor, policy.TaskAdvance, policy.Resource{Task: t, Move: move}); err != nil {
		return nil, none, err
	}

	previous := t.CurrentStage
	t.CurrentStage = target.ID
	completed := false
	if workflow.IsDone(target) && t.CompletedAt == nil {
		at := s.now()
		t.CompletedAt = &at
		completed = true
	}
	t.UpdatedAt = s.now()
	if err := s.replace(ctx, t); err != nil {
		return nil, none, err
	}

	if completed {
		s.recorder.NotifyAll(ctx, t.AssignedTo, "", t.ID, schema.NotifyCompleted,
			fmt.Sprintf("Task completed: \"%s\"", t.Title))
	}
	s.recorder.Log(ctx, t.ID, actor.ID, schema.ActionStageChanged, schema.Fields{
		"previousStage": previous,
		"newStage":      target.ID,
		"stageName":     target.Name,
	})
	s.recorder.NotifyAll(ctx, t.AssignedTo, actor.ID, t.ID, schema.NotifyStageChanged,
		fmt.Sprintf("Task \"%s\" moved to %s", t.Title, target.Name))

	d, err := s.expandOne(ctx, t)
	if err != nil {
		return nil, none, err
	}
	return d, target, nil
}

// Update merges patch into a task and notifies users newly assigned by it.
func (s *Service) Update(ctx context.Context, actor schema.Identity, taskID string, patch Patch) (*Detail, error) {
	t, err := s.task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.TaskUpdate, policy.Resource{Task: t}); err != nil {
		return nil, err
	}
	if err := patch.validate(); err != nil {
		return nil, err
	}

	before := t.AssignedTo
	patch.apply(t)
	t.UpdatedAt = s.now()
	if err := s.replace(ctx, t); err != nil {
		return nil, err
	}

	s.recorder.Log(ctx, t.ID, actor.ID, schema.ActionTaskUpdated, schema.Fields{"fields": patch.Fields()})
	for _, id := range added(before, t.AssignedTo) {
		s.recorder.Notify(ctx, id, t.ID, schema.NotifyTaskAssigned,
			fmt.Sprintf("You've been assigned to task: \"%s\"", t.Title))
	}
	return s.expandOne(ctx, t)
}

// Delete removes a task together with its history.
func (s *Service) Delete(ctx context.Context, actor schema.Identity, taskID string) error {
	t, err := s.task(ctx, taskID)
	if err != nil {
		return err
	}
	if err := policy.Authorize(actor, policy.TaskDelete, policy.Resource{Task: t}); err != nil {
		return err
	}
	purged, err := s.recorder.Purge(ctx, t.ID)
	if err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, t.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Task not found")
		}
		return apperr.Internal(err, "deleting task")
	}
	s.log.InfoContext(ctx, "task deleted", "task_id", t.ID, "actor", actor.ID, "activity_removed", purged)
	return nil
}

// Get returns a task with its most recent history.
func (s *Service) Get(ctx context.Context, actor schema.Identity, taskID string) (*Detail, error) {
	t, err := s.task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.TaskRead, policy.Resource{Task: t}); err != nil {
		return nil, err
	}
	d, err := s.expandOne(ctx, t)
	if err != nil {
		return nil, err
	}
	d.ActivityLogs, err = s.recorder.Recent(ctx, t.ID, RecentActivity)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListResult is one page of tasks.
type ListResult struct {
	Tasks []Detail
	Total int
	Page  store.Page
}

// Pages is the number of pages the whole result spans.
func (r *ListResult) Pages() int {
	return r.Page.Pages(r.Total)
}

// List returns matching tasks, newest first. Members only ever see tasks
// assigned to them, whatever assignee filter they pass.
func (s *Service) List(ctx context.Context, actor schema.Identity, filter store.TaskFilter, page store.Page) (*ListResult, error) {
	filter = ScopeFilter(actor, filter)
	list, total, err := s.tasks.List(ctx, filter, page)
	if err != nil {
		return nil, apperr.Internal(err, "listing tasks")
	}
	details, err := s.expand(ctx, list)
	if err != nil {
		return nil, err
	}
	return &ListResult{Tasks: details, Total: total, Page: page}, nil
}

// ScopeFilter restricts filter to what actor may see.
func ScopeFilter(actor schema.Identity, filter store.TaskFilter) store.TaskFilter {
	if !actor.Role.Privileged() {
		filter.AssignedTo = actor.ID
	}
	return filter
}

func (s *Service) task(ctx context.Context, id string) (*schema.Task, error) {
	t, err := s.tasks.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Task not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "loading task")
	}
	return t, nil
}

func (s *Service) workflow(ctx context.Context, id string) (*schema.Workflow, error) {
	if id == "" {
		return nil, apperr.NotFound("Workflow not found")
	}
	w, err := s.workflows.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Workflow not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "loading workflow")
	}
	return w, nil
}

func (s *Service) replace(ctx context.Context, t *schema.Task) error {
	if err := s.tasks.Replace(ctx, t); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Task not found")
		}
		return apperr.Internal(err, "saving task")
	}
	return nil
}
