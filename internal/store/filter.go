package store

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

// MaxPageSize bounds Page.Limit.
const MaxPageSize = 100

// Page selects a window of a sorted result set. Number is 1-based.
type Page struct {
	Number int
	Limit  int
}

// NewPage clamps number and limit to sane values, applying the listing defaults.
func NewPage(number, limit int) Page {
	if number < 1 {
		number = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return Page{Number: number, Limit: limit}
}

// IsZero reports whether the page selects everything.
func (p Page) IsZero() bool {
	return p.Limit == 0
}

// Skip is the number of records before the page.
func (p Page) Skip() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit
}

// Pages returns how many pages total records span.
func (p Page) Pages(total int) int {
	if p.Limit == 0 {
		return 1
	}
	return int(math.Ceil(float64(total) / float64(p.Limit)))
}

// Window applies the page to a slice of n items, returning the bounds to slice with.
func (p Page) Window(n int) (int, int) {
	if p.IsZero() {
		return 0, n
	}
	lo := min(p.Skip(), n)
	hi := min(lo+p.Limit, n)
	return lo, hi
}

// TaskFilter selects tasks. Empty fields match everything.
type TaskFilter struct {
	WorkflowID  string
	ProjectID   string
	Stage       string
	Priority    schema.Priority
	AssignedTo  string
	Search      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// Matches reports whether t satisfies every set field of f.
func (f TaskFilter) Matches(t *schema.Task) bool {
	if f.WorkflowID != "" && t.WorkflowID != f.WorkflowID {
		return false
	}
	if f.ProjectID != "" && t.ProjectID != f.ProjectID {
		return false
	}
	if f.Stage != "" && t.CurrentStage != f.Stage {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.AssignedTo != "" && !t.IsAssigned(f.AssignedTo) {
		return false
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.Search != "" && !matchesSearch(t, f.Search) {
		return false
	}
	return true
}

// matchesSearch is a case-insensitive substring match over title, description and tags.
func matchesSearch(t *schema.Task, term string) bool {
	term = strings.ToLower(term)
	if strings.Contains(strings.ToLower(t.Title), term) ||
		strings.Contains(strings.ToLower(t.Description), term) {
		return true
	}
	return slices.ContainsFunc(t.Tags, func(tag string) bool {
		return strings.Contains(strings.ToLower(tag), term)
	})
}

// WorkflowFilter selects workflows. VisibleTo, when set, restricts the result
// to default workflows and workflows created by that user.
type WorkflowFilter struct {
	ProjectID string
	Name      string
	VisibleTo string
}

// Matches reports whether w satisfies every set field of f.
func (f WorkflowFilter) Matches(w *schema.Workflow) bool {
	if f.ProjectID != "" && w.ProjectID != f.ProjectID {
		return false
	}
	if f.Name != "" && w.Name != f.Name {
		return false
	}
	if f.VisibleTo != "" && !w.IsDefault && w.CreatedBy != f.VisibleTo {
		return false
	}
	return true
}
