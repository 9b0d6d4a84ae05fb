// Package app wires configuration, a store backend and the services into a
// runnable daemon.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-tasks/internal/activity"
	"github.com/celerix-dev/celerix-tasks/internal/analytics"
	"github.com/celerix-dev/celerix-tasks/internal/api"
	"github.com/celerix-dev/celerix-tasks/internal/auth"
	"github.com/celerix-dev/celerix-tasks/internal/config"
	"github.com/celerix-dev/celerix-tasks/internal/engine"
	"github.com/celerix-dev/celerix-tasks/internal/store"
	"github.com/celerix-dev/celerix-tasks/internal/store/embedded"
	"github.com/celerix-dev/celerix-tasks/internal/store/mongostore"
	"github.com/celerix-dev/celerix-tasks/internal/tasks"
	"github.com/celerix-dev/celerix-tasks/internal/vault"
	"github.com/celerix-dev/celerix-tasks/internal/workflow"
)

// App holds one opened store and the services built on it.
type App struct {
	Store     store.Store
	Auth      *auth.Service
	Workflows *workflow.Service
	Tasks     *tasks.Service
	Analytics *analytics.Service
	Activity  *activity.Recorder
	Log       *slog.Logger
}

// New opens the configured store and builds every service on top of it.
// The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tokens, err := newTokens(cfg, logger)
	if err != nil {
		return nil, err
	}
	st, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	recorder := activity.NewRecorder(st.Activity(), st.Notifications(), logger)
	return &App{
		Store:     st,
		Auth:      auth.NewService(st.Users(), tokens, logger),
		Workflows: workflow.NewService(st.Workflows(), logger),
		Tasks:     tasks.NewService(st, recorder, logger),
		Analytics: analytics.NewService(st.Tasks(), logger),
		Activity:  recorder,
		Log:       logger,
	}, nil
}

// Router returns the HTTP handler for the app.
func (a *App) Router() *gin.Engine {
	return api.NewRouter(&api.Handler{
		Store:     a.Store,
		Auth:      a.Auth,
		Workflows: a.Workflows,
		Tasks:     a.Tasks,
		Analytics: a.Analytics,
		Activity:  a.Activity,
		Log:       a.Log,
	})
}

// Close flushes pending writes and releases the store.
func (a *App) Close(ctx context.Context) error {
	return a.Store.Close(ctx)
}

func newTokens(cfg *config.Config, logger *slog.Logger) (*auth.Tokens, error) {
	access, refresh, err := cfg.TokenTTLs()
	if err != nil {
		return nil, err
	}
	tc := auth.TokenConfig{
		Secret:        cfg.JWT.Secret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     access,
		RefreshTTL:    refresh,
	}
	if cfg.Store.Driver == config.DriverMemory && (tc.Secret == "" || tc.RefreshSecret == "") {
		logger.Warn("no JWT secrets configured, using random per-process secrets")
		tc.Secret, tc.RefreshSecret = randomSecret(), randomSecret()
	}
	return auth.NewTokens(tc)
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// OpenStore opens the backend named by cfg.Store.Driver.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Info("using in-memory store; data is lost on exit")
		return embedded.Open(nil)

	case config.DriverFile, config.DriverSQLite:
		target := cfg.Store.DataDir
		if cfg.Store.Driver == config.DriverSQLite {
			target = cfg.Store.SQLitePath
		}
		p, err := OpenPersister(cfg.Store.Driver, target, cfg.Store.EncryptionKey)
		if err != nil {
			return nil, err
		}
		st, err := embedded.Open(p)
		if err != nil {
			p.Close()
			return nil, err
		}
		logger.Info("embedded store opened", "driver", cfg.Store.Driver, "path", target,
			"encrypted", cfg.Store.EncryptionKey != "", "collections", len(st.Engine().Collections()))
		return st, nil

	case config.DriverMongo:
		if cfg.Store.EncryptionKey != "" {
			logger.Warn("store.encryption_key is ignored by the mongo driver")
		}
		st, err := mongostore.Open(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to MongoDB", "database", cfg.Mongo.Database)
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// OpenPersister opens a file or sqlite persister at target, sealing documents
// when hexKey is set.
func OpenPersister(driver, target, hexKey string) (engine.Persister, error) {
	var p engine.Persister
	switch driver {
	case config.DriverFile:
		fp, err := engine.NewFilePersistence(target)
		if err != nil {
			return nil, err
		}
		p = fp
	case config.DriverSQLite:
		sp, err := engine.OpenSQLite(target)
		if err != nil {
			return nil, err
		}
		p = sp
	default:
		return nil, fmt.Errorf("driver %q has no persister", driver)
	}
	if hexKey == "" {
		return p, nil
	}
	key, err := vault.ParseKey(hexKey)
	if err != nil {
		p.Close()
		return nil, err
	}
	c, err := vault.NewCipher(key)
	if err != nil {
		p.Close()
		return nil, err
	}
	return engine.NewSealedPersister(p, c), nil
}

// ParseLocation splits a "driver:target" migration endpoint such as
// "file:./data" or "sqlite:./data/tasks.db".
func ParseLocation(s string) (driver, target string, err error) {
	driver, target, ok := strings.Cut(s, ":")
	if !ok || target == "" {
		return "", "", fmt.Errorf("invalid location %q, want driver:path", s)
	}
	switch driver {
	case config.DriverFile, config.DriverSQLite:
		return driver, target, nil
	}
	return "", "", fmt.Errorf("unsupported migration driver %q", driver)
}
