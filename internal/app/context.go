// Package app wires configuration, local state and the client into an engine.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"cfgadmin/internal/config"
	"cfgadmin/internal/db"
	"cfgadmin/internal/engine"
	"cfgadmin/internal/events"
	"cfgadmin/internal/migrate"
	"cfgadmin/internal/repo"
	"cfgadmin/internal/store"
	adminsdk "cfgadmin/sdk/go"
)

type Options struct {
	Workspace string
	Config    *config.Config
	Logger    *zap.Logger
}

// App is an opened workspace: a configured client, its token cache, the write
// journal and the engine on top.
type App struct {
	Config *config.Config
	Client *adminsdk.Client
	Engine *engine.Engine
	// Repo is nil with the memory cache backend.
	Repo *repo.Repo

	closers []func() error
}

// Open builds an App from opts. The SQLite database holds the journal for
// every backend but memory, and the tokens for the sqlite backend.
func Open(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, fmt.Errorf("config.server.timeout: %w", err)
	}
	c := adminsdk.New(cfg.Server.URL)
	c.BearerToken = cfg.Server.Token
	c.Product = cfg.Server.Product
	c.Timeout = timeout
	c.Logger = log.Named("client")

	a := &App{Config: cfg, Client: c}
	switch cfg.Cache.Backend {
	case config.CacheMemory, "":
		c.Tokens = adminsdk.NewMemoryTokens()
	case config.CacheSQLite, config.CacheBadger:
		conn, err := openDB(opts.Workspace, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		a.Repo = &repo.Repo{DB: conn}
		c.Observer = events.Writer{DB: conn, Logger: log.Named("journal")}
		c.Tokens = a.Repo
		if cfg.Cache.Backend == config.CacheBadger {
			path := cfg.Cache.Path
			if path == "" {
				path = filepath.Join(db.StateDir(opts.Workspace), "tokens")
			}
			tokens, err := store.Open(store.Config{Path: path, Logger: log.Named("badger")})
			if err != nil {
				a.Close()
				return nil, err
			}
			a.closers = append(a.closers, tokens.Close)
			c.Tokens = tokens
		}
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
	a.Engine = engine.New(c, engine.Options{Versions: cfg.Version, Logger: log.Named("engine")})
	return a, nil
}

func openDB(workspace string, cfg *config.Config) (*sql.DB, error) {
	dbCfg := db.Config{Workspace: workspace}
	if cfg.Cache.Backend == config.CacheSQLite {
		dbCfg.Path = cfg.Cache.Path
	}
	conn, err := db.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate state db: %w", err)
	}
	return conn, nil
}

// Close releases local state, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
