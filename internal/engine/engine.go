package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/sirupsen/logrus"

	"agencyops/internal/config"
	"agencyops/internal/domain"
	"agencyops/internal/events"
	"agencyops/internal/logging"
	"agencyops/internal/repo"
)

// Store is the read surface the calculators depend on, plus the single write
// performed by the budget synchronizer. repo.Repo implements it.
type Store interface {
	ListRevenueDocuments(ctx context.Context, projectID string, kind domain.DocumentKind, status domain.DocumentStatus) ([]domain.RevenueDocument, error)
	ListCosts(ctx context.Context, projectID string) ([]domain.Cost, error)
	ListTimeEntriesByProject(ctx context.Context, projectID string) ([]domain.RatedTimeEntry, error)
	ListTimeEntriesByTask(ctx context.Context, taskID string) ([]domain.RatedTimeEntry, error)
	ListServiceTrackedTasks(ctx context.Context, projectID string) ([]domain.TrackedTask, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	UpdateProjectBudget(ctx context.Context, projectID string, budget float64) error
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Store  Store
	Rates  RateResolver
	Events events.Writer
	Config *config.Config
	Log    logrus.FieldLogger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, log logrus.FieldLogger) Engine {
	r := repo.Repo{DB: db}
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   r,
		Store:  r,
		Rates:  CurrentProfileRate{},
		Events: events.Writer{Now: time.Now},
		Config: cfg,
		Log:    log,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) store() Store {
	if e.Store != nil {
		return e.Store
	}
	return e.Repo
}

func (e Engine) rates() RateResolver {
	if e.Rates != nil {
		return e.Rates
	}
	return CurrentProfileRate{}
}

func (e Engine) logger() logrus.FieldLogger {
	if e.Log != nil {
		return e.Log
	}
	return logging.Discard()
}

func (e Engine) batchSize() int {
	if e.Config != nil && e.Config.Analytics.BatchSize > 0 {
		return e.Config.Analytics.BatchSize
	}
	return config.DefaultBatchSize
}
