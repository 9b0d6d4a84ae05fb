package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/celerix-dev/celerix-tasks/internal/apperr"
	"github.com/celerix-dev/celerix-tasks/internal/policy"
	"github.com/celerix-dev/celerix-tasks/internal/store"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

// CreateInput is the payload for creating a workflow.
type CreateInput struct {
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description" yaml:"description"`
	Stages      []StageInput `json:"stages" yaml:"stages"`
	ProjectID   string       `json:"projectId" yaml:"projectId"`
	IsDefault   bool         `json:"isDefault" yaml:"isDefault"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name        *string       `json:"name"`
	Description *string       `json:"description"`
	Stages      *[]StageInput `json:"stages"`
	ProjectID   *string       `json:"projectId"`
	IsDefault   *bool         `json:"isDefault"`
}

// Service implements workflow CRUD on top of a repository.
type Service struct {
	workflows store.WorkflowRepository
	log       *slog.Logger
	now       func() time.Time
}

func NewService(workflows store.WorkflowRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		workflows: workflows,
		log:       logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create validates the stage set and stores a new workflow owned by actor.
func (s *Service) Create(ctx context.Context, actor schema.Identity, in CreateInput) (*schema.Workflow, error) {
	if err := policy.Authorize(actor, policy.WorkflowCreate, policy.Resource{}); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("Workflow name is required")
	}
	stages := NormalizeStages(in.Stages, nil)
	if err := ValidateStages(stages); err != nil {
		return nil, err
	}

	projectID := in.ProjectID
	if projectID == "" {
		projectID = schema.DefaultProject
	}
	now := s.now()
	w := &schema.Workflow{
		ID:          uuid.NewString(),
		Name:        name,
		Description: in.Description,
		Stages:      stages,
		CreatedBy:   actor.ID,
		IsDefault:   in.IsDefault,
		ProjectID:   projectID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.workflows.Create(ctx, w); err != nil {
		return nil, apperr.Internal(err, "creating workflow")
	}
	s.log.InfoContext(ctx, "workflow created", "workflow_id", w.ID, "actor", actor.ID, "stages", len(stages))
	return w, nil
}

// List returns the workflows actor may see, newest first.
func (s *Service) List(ctx context.Context, actor schema.Identity, projectID string) ([]schema.Workflow, error) {
	filter := store.WorkflowFilter{ProjectID: projectID}
	if !actor.Role.Privileged() {
		filter.VisibleTo = actor.ID
	}
	list, err := s.workflows.List(ctx, filter)
	if err != nil {
		return nil, apperr.Internal(err, "listing workflows")
	}
	if list == nil {
		list = []schema.Workflow{}
	}
	return list, nil
}

// Get returns one workflow if actor may read it.
func (s *Service) Get(ctx context.Context, actor schema.Identity, id string) (*schema.Workflow, error) {
	w, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.WorkflowRead, policy.Resource{Workflow: w}); err != nil {
		return nil, err
	}
	return w, nil
}

// Update merges patch into the workflow. A replaced stage set is validated
// before anything is written.
func (s *Service) Update(ctx context.Context, actor schema.Identity, id string, patch Patch) (*schema.Workflow, error) {
	w, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.WorkflowUpdate, policy.Resource{Workflow: w}); err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperr.Validation("Workflow name is required")
		}
		w.Name = name
	}
	if patch.Description != nil {
		w.Description = *patch.Description
	}
	if patch.Stages != nil {
		stages := NormalizeStages(*patch.Stages, w.Stages)
		if err := ValidateStages(stages); err != nil {
			return nil, err
		}
		w.Stages = stages
	}
	if patch.ProjectID != nil {
		w.ProjectID = *patch.ProjectID
		if w.ProjectID == "" {
			w.ProjectID = schema.DefaultProject
		}
	}
	if patch.IsDefault != nil {
		w.IsDefault = *patch.IsDefault
	}
	w.UpdatedAt = s.now()

	if err := s.workflows.Replace(ctx, w); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("Workflow not found")
		}
		return nil, apperr.Internal(err, "updating workflow")
	}
	return w, nil
}

// Delete removes a workflow. Tasks bound to it are left in place.
func (s *Service) Delete(ctx context.Context, actor schema.Identity, id string) error {
	w, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Authorize(actor, policy.WorkflowDelete, policy.Resource{Workflow: w}); err != nil {
		return err
	}
	if err := s.workflows.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Workflow not found")
		}
		return apperr.Internal(err, "deleting workflow")
	}
	s.log.InfoContext(ctx, "workflow deleted", "workflow_id", id, "actor", actor.ID)
	return nil
}

// Resolve loads a workflow without an access check, for use by other services.
func (s *Service) Resolve(ctx context.Context, id string) (*schema.Workflow, error) {
	return s.load(ctx, id)
}

func (s *Service) load(ctx context.Context, id string) (*schema.Workflow, error) {
	w, err := s.workflows.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Workflow not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "loading workflow")
	}
	return w, nil
}
