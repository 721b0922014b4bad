package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/alias"
	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/config"
	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/db/bunx"
	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/killswitch"
	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/migrations"
	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/repository"
	"github.com/hwenwur/oh-my-ddl/pkg/sdk"
	"github.com/pterm/pterm"
	"github.com/uptrace/bun"
)

type contextKey string

const appKey contextKey = "ohmyddl-app"

// App is the per-run state shared by all commands. It is injected into the command context by
// the root command's PersistentPreRunE and consumed by every subcommand.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Aliases *alias.Table

	// Prompt asks for credentials when no usable session file exists
	Prompt func() (sdk.Credential, error)

	// SessionOptions are appended to the options derived from Config
	SessionOptions []sdk.Option

	notice  <-chan killswitch.Notice
	cacheDB *bun.DB
	cache   *repository.BunCacheRepository
}

// InjectApp adds the app to the command context.
func InjectApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the command context.
func FromContext(ctx context.Context) (*App, bool) {
	app, ok := ctx.Value(appKey).(*App)
	return app, ok
}

// MustFromContext retrieves the app or panics. Only RunE functions of commands below the root
// may use it.
func MustFromContext(ctx context.Context) *App {
	app, ok := FromContext(ctx)
	if !ok {
		panic("ohmyddl: app not found in context - this is a bug in ohmyddl")
	}
	return app
}

// NewApp builds the app for cfg. Output of the logger goes to stderr through pterm.
func NewApp(cfg *config.Config) *App {
	level := pterm.LogLevelError
	if cfg.Debug {
		level = pterm.LogLevelDebug
	}
	logger := pterm.DefaultLogger.WithLevel(level).WithWriter(os.Stderr)

	return &App{
		Config:  cfg,
		Logger:  slog.New(pterm.NewSlogHandler(logger)),
		Aliases: alias.New(cfg.Aliases),
		Prompt:  promptCredential,
	}
}

// CacheRepository opens the shared result cache named by cache_dsn, applying pending migrations.
// It returns nil when no DSN is configured.
func (a *App) CacheRepository(ctx context.Context) (*repository.BunCacheRepository, error) {
	if a.Config.CacheDSN == "" {
		return nil, nil
	}
	if a.cache != nil {
		return a.cache, nil
	}
	db, err := a.CacheDB(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := migrations.Apply(ctx, db); err != nil {
		return nil, err
	}
	a.cache = repository.NewBunCacheRepository(db)
	return a.cache, nil
}

// CacheDB opens the cache database without touching its schema.
func (a *App) CacheDB(ctx context.Context) (*bun.DB, error) {
	if a.Config.CacheDSN == "" {
		return nil, fmt.Errorf("cache_dsn is not configured (set OHMYDDL_CACHE_DSN or cache_dsn in the config file)")
	}
	if a.cacheDB != nil {
		return a.cacheDB, nil
	}
	db, err := bunx.NewDB(ctx, a.Config.CacheDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}
	a.cacheDB = db
	return db, nil
}

// Close releases the cache database.
func (a *App) Close() error {
	db := a.cacheDB
	a.cacheDB, a.cache = nil, nil
	return bunx.Close(db)
}

// sessionOptions derives the session configuration. A configured cache DSN replaces the
// in-file cache.
func (a *App) sessionOptions(ctx context.Context) ([]sdk.Option, error) {
	opts := []sdk.Option{
		sdk.WithLogger(a.Logger),
		sdk.WithTransportConfig(a.transportConfig()),
		sdk.WithTTLs(a.Config.TTL),
	}
	repo, err := a.CacheRepository(ctx)
	if err != nil {
		return nil, err
	}
	if repo != nil {
		opts = append(opts, sdk.WithCacheStore(repo))
	}
	return append(opts, a.SessionOptions...), nil
}

func (a *App) transportConfig() sdk.TransportConfig {
	tc := a.Config.TransportConfig()
	tc.Logger = a.Logger
	return tc
}

// OpenSession restores the saved session, or asks for credentials and logs in when there is none
// or relogin is set. The returned session is authenticated.
func (a *App) OpenSession(ctx context.Context, relogin bool) (*sdk.Session, error) {
	opts, err := a.sessionOptions(ctx)
	if err != nil {
		return nil, err
	}
	path := a.Config.SessionFile

	if !relogin {
		s, err := sdk.LoadSession(path, opts...)
		switch {
		case err == nil:
			if err := s.EnsureAuthenticated(ctx); err != nil {
				return nil, err
			}
			return s, nil
		case errors.Is(err, fs.ErrNotExist):
			a.Logger.Debug("no saved session", "path", path)
		default:
			pterm.Warning.Printf("Ignoring unreadable session file %s: %v\n", path, err)
		}
	}

	cred, err := a.Prompt()
	if err != nil {
		return nil, err
	}
	s := sdk.NewSession(cred, opts...)
	if err := s.Login(ctx); err != nil {
		return nil, err
	}
	pterm.Success.Printf("Logged in as %s\n", cred.AccountID)
	return s, nil
}

// Persist saves s to the configured session file. Failures are printed as warnings.
func (a *App) Persist(s *sdk.Session) {
	if s == nil {
		return
	}
	if err := s.Save(a.Config.SessionFile); err != nil {
		pterm.Warning.Printf("Could not save session to %s: %v\n", a.Config.SessionFile, err)
	}
}
