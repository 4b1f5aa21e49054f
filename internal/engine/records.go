package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"agencyops/internal/domain"
)

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	ID       string
	Name     string
	ClientID string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Project{}, invalid("name", "project name is required")
	}
	p := domain.Project{
		ID:        newID(opts.ID),
		Name:      opts.Name,
		Status:    "active",
		CreatedAt: e.timestamp(),
	}
	if opts.ClientID != "" {
		p.ClientID = &opts.ClientID
	}
	if err := e.Repo.InsertProject(ctx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

// UpdateProject renames a project or changes its status. Empty values are left as they are.
func (e Engine) UpdateProject(ctx context.Context, id, name, status string) (domain.Project, error) {
	switch status {
	case "", "active", "paused", "archived":
	default:
		return domain.Project{}, invalid("status", "unknown project status %q", status)
	}
	if err := e.Repo.UpdateProject(ctx, id, strings.TrimSpace(name), status); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, id)
}

// DeleteProject removes a project with its tasks, costs, time entries and documents.
func (e Engine) DeleteProject(ctx context.Context, id string) error {
	return e.Repo.DeleteProject(ctx, id)
}

func (e Engine) AddClient(ctx context.Context, id, name string) (domain.Client, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Client{}, invalid("name", "client name is required")
	}
	c := domain.Client{ID: newID(id), Name: name, CreatedAt: e.timestamp()}
	if err := e.Repo.InsertClient(ctx, c); err != nil {
		return domain.Client{}, fmt.Errorf("insert client: %w", err)
	}
	return c, nil
}

func (e Engine) AddService(ctx context.Context, id, name string) (domain.Service, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Service{}, invalid("name", "service name is required")
	}
	s := domain.Service{ID: newID(id), Name: name}
	if err := e.Repo.InsertService(ctx, s); err != nil {
		return domain.Service{}, fmt.Errorf("insert service: %w", err)
	}
	return s, nil
}

func (e Engine) AddSeniorityLevel(ctx context.Context, id, name string) (domain.SeniorityLevel, error) {
	if strings.TrimSpace(name) == "" {
		return domain.SeniorityLevel{}, invalid("name", "seniority name is required")
	}
	s := domain.SeniorityLevel{ID: newID(id), Name: name}
	if err := e.Repo.InsertSeniorityLevel(ctx, s); err != nil {
		return domain.SeniorityLevel{}, fmt.Errorf("insert seniority level: %w", err)
	}
	return s, nil
}

func (e Engine) AddPerson(ctx context.Context, id, name string, billableRate, costRate float64) (domain.Person, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Person{}, invalid("name", "person name is required")
	}
	if billableRate < 0 || costRate < 0 {
		return domain.Person{}, invalid("rate", "rates must not be negative")
	}
	p := domain.Person{ID: newID(id), Name: name, BillableRate: billableRate, CostRate: costRate, CreatedAt: e.timestamp()}
	if err := e.Repo.InsertPerson(ctx, p); err != nil {
		return domain.Person{}, fmt.Errorf("insert person: %w", err)
	}
	return p, nil
}

// SetPersonRates changes a person's current rates. Time already tracked by the
// person is valued at the new rate from then on.
func (e Engine) SetPersonRates(ctx context.Context, id string, billableRate, costRate *float64) (domain.Person, error) {
	if (billableRate != nil && *billableRate < 0) || (costRate != nil && *costRate < 0) {
		return domain.Person{}, invalid("rate", "rates must not be negative")
	}
	if err := e.Repo.UpdatePersonRates(ctx, id, billableRate, costRate); err != nil {
		return domain.Person{}, fmt.Errorf("update person %s: %w", id, err)
	}
	return e.Repo.GetPerson(ctx, id)
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID             string
	ProjectID      string
	Title          string
	ServiceID      string
	SeniorityID    string
	EstimatedHours *float64
	EstimatedRate  *float64
}

func (e Engine) AddTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.ProjectID == "" {
		return domain.Task{}, invalid("project_id", "project is required")
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, invalid("title", "title is required")
	}
	if opts.EstimatedHours != nil && *opts.EstimatedHours < 0 {
		return domain.Task{}, invalid("estimated_hours", "must not be negative")
	}
	if opts.EstimatedRate != nil && *opts.EstimatedRate < 0 {
		return domain.Task{}, invalid("estimated_rate", "must not be negative")
	}
	t := domain.Task{
		ID:             newID(opts.ID),
		ProjectID:      opts.ProjectID,
		Title:          opts.Title,
		EstimatedHours: opts.EstimatedHours,
		EstimatedRate:  opts.EstimatedRate,
		CreatedAt:      e.timestamp(),
	}
	if opts.ServiceID != "" {
		t.ServiceID = &opts.ServiceID
	}
	if opts.SeniorityID != "" {
		t.SeniorityID = &opts.SeniorityID
	}
	if err := e.Repo.InsertTask(ctx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

// SetTaskEstimate replaces a task's planned hours and rate. A nil value clears
// the field, which takes the task out of variance reporting.
func (e Engine) SetTaskEstimate(ctx context.Context, id string, hours, rate *float64) (domain.Task, error) {
	if hours != nil && *hours < 0 {
		return domain.Task{}, invalid("estimated_hours", "must not be negative")
	}
	if rate != nil && *rate < 0 {
		return domain.Task{}, invalid("estimated_rate", "must not be negative")
	}
	if err := e.Repo.UpdateTaskEstimate(ctx, id, hours, rate); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, id)
}

// CostCreateOptions are parameters for recording a direct cost.
type CostCreateOptions struct {
	ProjectID   string
	Description string
	Amount      float64
	Category    string
	IsEstimated bool
	IncurredOn  string
}

func (e Engine) AddCost(ctx context.Context, opts CostCreateOptions) (domain.Cost, error) {
	if opts.ProjectID == "" {
		return domain.Cost{}, invalid("project_id", "project is required")
	}
	if opts.Category == "" {
		opts.Category = "other"
	}
	c := domain.Cost{
		ID:          uuid.NewString(),
		ProjectID:   opts.ProjectID,
		Description: opts.Description,
		Amount:      opts.Amount,
		Category:    opts.Category,
		IsEstimated: opts.IsEstimated,
		IncurredOn:  opts.IncurredOn,
		CreatedAt:   e.timestamp(),
	}
	if err := e.Repo.InsertCost(ctx, c); err != nil {
		return domain.Cost{}, fmt.Errorf("insert cost: %w", err)
	}
	return c, nil
}

// TimeEntryOptions are parameters for tracking time. StartTimer ignores Duration.
type TimeEntryOptions struct {
	ProjectID string
	TaskID    string
	PersonID  string
	StartedAt time.Time
	Duration  time.Duration
	Billable  bool
	Note      string
}

// LogTime records a completed entry.
func (e Engine) LogTime(ctx context.Context, opts TimeEntryOptions) (domain.TimeEntry, error) {
	if opts.Duration <= 0 {
		return domain.TimeEntry{}, invalid("duration", "must be positive")
	}
	entry, err := e.newTimeEntry(ctx, opts)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	ended := entry.startedAt.Add(opts.Duration).UTC().Format(time.RFC3339)
	entry.EndedAt = &ended
	entry.DurationSeconds = int64(opts.Duration / time.Second)
	if err := e.Repo.InsertTimeEntry(ctx, entry.TimeEntry); err != nil {
		return domain.TimeEntry{}, fmt.Errorf("insert time entry: %w", err)
	}
	return entry.TimeEntry, nil
}

// StartTimer records a running entry with no end marker.
func (e Engine) StartTimer(ctx context.Context, opts TimeEntryOptions) (domain.TimeEntry, error) {
	entry, err := e.newTimeEntry(ctx, opts)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if err := e.Repo.InsertTimeEntry(ctx, entry.TimeEntry); err != nil {
		return domain.TimeEntry{}, fmt.Errorf("insert time entry: %w", err)
	}
	return entry.TimeEntry, nil
}

// StopTimer completes a running entry at the current time.
func (e Engine) StopTimer(ctx context.Context, id string) (domain.TimeEntry, error) {
	entry, err := e.Repo.GetTimeEntry(ctx, id)
	if err != nil {
		return domain.TimeEntry{}, fmt.Errorf("get time entry %s: %w", id, err)
	}
	if entry.Completed() {
		return domain.TimeEntry{}, invalid("time_entry", "entry %s is already stopped", id)
	}
	started, err := time.Parse(time.RFC3339, entry.StartedAt)
	if err != nil {
		return domain.TimeEntry{}, fmt.Errorf("parse started_at of entry %s: %w", id, err)
	}
	now := e.now().UTC()
	duration := int64(now.Sub(started) / time.Second)
	if duration < 0 {
		duration = 0
	}
	ended := now.Format(time.RFC3339)
	if err := e.Repo.StopTimeEntry(ctx, id, ended, duration); err != nil {
		return domain.TimeEntry{}, fmt.Errorf("stop time entry %s: %w", id, err)
	}
	entry.EndedAt = &ended
	entry.DurationSeconds = duration
	return entry.TimeEntry, nil
}

type pendingEntry struct {
	domain.TimeEntry
	startedAt time.Time
}

func (e Engine) newTimeEntry(ctx context.Context, opts TimeEntryOptions) (pendingEntry, error) {
	if opts.ProjectID == "" {
		return pendingEntry{}, invalid("project_id", "project is required")
	}
	if opts.PersonID == "" {
		return pendingEntry{}, invalid("person_id", "person is required")
	}
	if opts.TaskID != "" {
		task, err := e.Repo.GetTask(ctx, opts.TaskID)
		if err != nil {
			return pendingEntry{}, fmt.Errorf("get task %s: %w", opts.TaskID, err)
		}
		if task.ProjectID != opts.ProjectID {
			return pendingEntry{}, invalid("task_id", "task %s is not in project %s", opts.TaskID, opts.ProjectID)
		}
	}
	started := opts.StartedAt
	if started.IsZero() {
		started = e.now()
	}
	started = started.UTC().Truncate(time.Second)
	entry := pendingEntry{
		TimeEntry: domain.TimeEntry{
			ID:        uuid.NewString(),
			ProjectID: opts.ProjectID,
			PersonID:  opts.PersonID,
			StartedAt: started.Format(time.RFC3339),
			Billable:  opts.Billable,
			Note:      opts.Note,
		},
		startedAt: started,
	}
	if opts.TaskID != "" {
		entry.TaskID = &opts.TaskID
	}
	return entry, nil
}
