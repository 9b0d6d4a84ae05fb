// Package seed loads workflow definitions from YAML and creates the ones
// that do not exist yet.
package seed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/celerix-dev/celerix-tasks/internal/store"
	"github.com/celerix-dev/celerix-tasks/internal/workflow"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

// System is the identity seeded workflows are created as.
var System = schema.Identity{ID: "system", Name: "System", Role: schema.RoleAdmin}

// File is the document a seed file holds.
type File struct {
	Workflows []workflow.CreateInput `yaml:"workflows"`
}

// Result counts what Apply did.
type Result struct {
	Created int
	Skipped int
}

// Parse decodes a seed document.
func Parse(r io.Reader) (*File, error) {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	return &f, nil
}

// ParseFile reads and decodes the seed file at path.
func ParseFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening seed file: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

// Seeder creates workflows through the workflow service so seeded data is
// validated like any other.
type Seeder struct {
	workflows store.WorkflowRepository
	svc       *workflow.Service
	log       *slog.Logger
}

func New(workflows store.WorkflowRepository, svc *workflow.Service, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{workflows: workflows, svc: svc, log: logger}
}

// Apply creates every workflow in f unless one with the same name already
// exists in the same project. It stops at the first invalid definition.
func (s *Seeder) Apply(ctx context.Context, f *File) (Result, error) {
	var res Result
	for i, in := range f.Workflows {
		project := in.ProjectID
		if project == "" {
			project = schema.DefaultProject
		}
		existing, err := s.workflows.List(ctx, store.WorkflowFilter{ProjectID: project, Name: in.Name})
		if err != nil {
			return res, fmt.Errorf("looking up workflow %q: %w", in.Name, err)
		}
		if len(existing) > 0 {
			s.log.InfoContext(ctx, "workflow exists, skipping", "name", in.Name, "project", project)
			res.Skipped++
			continue
		}
		w, err := s.svc.Create(ctx, System, in)
		if err != nil {
			return res, fmt.Errorf("workflow %d (%q): %w", i, in.Name, err)
		}
		s.log.InfoContext(ctx, "workflow seeded", "id", w.ID, "name", w.Name, "project", w.ProjectID)
		res.Created++
	}
	return res, nil
}
