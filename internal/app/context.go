package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"agencyops/internal/config"
	"agencyops/internal/db"
	"agencyops/internal/engine"
	"agencyops/internal/logging"
	"agencyops/internal/migrate"
	"agencyops/internal/repo"
)

// Workspace is an opened, migrated workspace with its config, logger and engine.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
	Log    *logrus.Logger
	Engine engine.Engine
}

// Open opens the workspace database, applies pending migrations and loads
// agency.yml (defaults when absent). A non-empty logLevel overrides the
// configured one.
func Open(dir, logLevel string) (*Workspace, error) {
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	if logLevel == "" {
		logLevel = cfg.Log.Level
	}
	log, err := logging.New(logLevel)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	version, err := migrate.Migrate(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.WithFields(logrus.Fields{"db": db.Path(dir), "schema_version": version}).Debug("workspace opened")
	return &Workspace{
		Dir:    dir,
		DB:     conn,
		Config: cfg,
		Log:    log,
		Engine: engine.New(conn, cfg, log),
	}, nil
}

func (w *Workspace) Close() error {
	return w.DB.Close()
}

// ResolveProject prefers the override, then the only project in the workspace.
func ResolveProject(ctx context.Context, override string, r repo.Repo) (string, error) {
	if override != "" {
		if _, err := r.GetProject(ctx, override); err != nil {
			return "", fmt.Errorf("project %s: %w", override, err)
		}
		return override, nil
	}
	projects, err := r.ListProjects(ctx)
	if err != nil {
		return "", err
	}
	if len(projects) != 1 {
		return "", fmt.Errorf("project not specified; use --project")
	}
	return projects[0].ID, nil
}
