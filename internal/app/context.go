// Package app wires a workspace into a ready engine: config, logger, store and schema.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"planboard/internal/config"
	"planboard/internal/db"
	"planboard/internal/engine"
	"planboard/internal/logging"
	"planboard/internal/migrate"
)

type Options struct {
	Workspace string
	// Config overrides planboard.yml when set.
	Config *config.Config
}

type App struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
	Logger    *logrus.Logger

	logCloser io.Closer
}

// Open loads the workspace config, opens the store and applies pending migrations.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load(opts.Workspace)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	logger, closer, err := logging.New(cfg.Log, opts.Workspace)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("open db: %w", err)
	}
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		closer.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.WithFields(logrus.Fields{"version": version, "db": db.Path(opts.Workspace)}).Debug("schema ready")
	return &App{
		Workspace: opts.Workspace,
		Config:    cfg,
		DB:        conn,
		Engine:    engine.New(conn, cfg, logger),
		Logger:    logger,
		logCloser: closer,
	}, nil
}

func (a *App) Close() error {
	err := a.DB.Close()
	if a.logCloser != nil {
		if cerr := a.logCloser.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
