// Package analytics computes read-only rollups over a set of tasks.
package analytics

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/celerix-dev/celerix-tasks/internal/apperr"
	"github.com/celerix-dev/celerix-tasks/internal/store"
	"github.com/celerix-dev/celerix-tasks/internal/tasks"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

const (
	Completed = "completed"
	Pending   = "pending"
)

// Bucket is the size of one group.
type Bucket struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// Overview holds the five rollups of one task snapshot.
type Overview struct {
	ByStage           []Bucket `json:"byStage"`
	ByPriority        []Bucket `json:"byPriority"`
	ByCompletion      []Bucket `json:"byCompletion"`
	Overdue           int      `json:"overdue"`
	AvgCompletionDays *float64 `json:"avgCompletionDays"`
}

// Compute derives every rollup from the same list of tasks. Buckets are sorted
// by count, largest first, then by id.
func Compute(list []schema.Task, now time.Time) Overview {
	byStage := map[string]int{}
	byPriority := map[string]int{}
	byCompletion := map[string]int{}
	overdue := 0
	var totalDays float64
	completed := 0

	for _, t := range list {
		byStage[t.CurrentStage]++
		byPriority[string(t.Priority)]++
		if t.Completed() {
			byCompletion[Completed]++
			totalDays += t.CompletedAt.Sub(t.CreatedAt).Hours() / 24
			completed++
		} else {
			byCompletion[Pending]++
			if t.DueDate != nil && t.DueDate.Before(now) {
				overdue++
			}
		}
	}

	o := Overview{
		ByStage:      buckets(byStage),
		ByPriority:   buckets(byPriority),
		ByCompletion: buckets(byCompletion),
		Overdue:      overdue,
	}
	if completed > 0 {
		avg := totalDays / float64(completed)
		o.AvgCompletionDays = &avg
	}
	return o
}

func buckets(counts map[string]int) []Bucket {
	out := make([]Bucket, 0, len(counts))
	for id, n := range counts {
		out = append(out, Bucket{ID: id, Count: n})
	}
	slices.SortFunc(out, func(a, b Bucket) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Filter narrows the task set an overview is computed over.
type Filter struct {
	ProjectID string
	StartDate *time.Time
	EndDate   *time.Time
}

type Service struct {
	tasks store.TaskRepository
	log   *slog.Logger
	now   func() time.Time
}

func NewService(tasks store.TaskRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tasks: tasks, log: logger, now: time.Now}
}

// Overview loads the tasks actor may see with a single query and summarizes them.
func (s *Service) Overview(ctx context.Context, actor schema.Identity, f Filter) (*Overview, error) {
	filter := tasks.ScopeFilter(actor, store.TaskFilter{
		ProjectID:   f.ProjectID,
		CreatedFrom: f.StartDate,
		CreatedTo:   f.EndDate,
	})
	list, _, err := s.tasks.List(ctx, filter, store.Page{})
	if err != nil {
		return nil, apperr.Internal(err, "loading tasks")
	}
	o := Compute(list, s.now())
	s.log.DebugContext(ctx, "analytics computed", "actor", actor.ID, "tasks", len(list))
	return &o, nil
}
