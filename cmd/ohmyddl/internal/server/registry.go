package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/telemetry"
	"github.com/hwenwur/oh-my-ddl/pkg/sdk"
	"github.com/moby/locker"
	"go.opentelemetry.io/otel/attribute"
)

// ErrUnknownToken is returned for tokens that are malformed or have no persisted session.
var ErrUnknownToken = errors.New("unknown session token")

// AccountPurger drops shared cached results of an account. The bun cache repository satisfies it.
type AccountPurger interface {
	DeleteByAccount(ctx context.Context, accountID string) (int64, error)
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// DataDir holds one session file per token
	DataDir string
	// Size bounds how many restored sessions stay in memory
	Size int
	// SessionOptions are applied to every session created or restored
	SessionOptions []sdk.Option
	// Purger, when set, is asked to forget an account's cached results on logout
	Purger AccountPurger
	// Metrics, when set, counts logins by outcome
	Metrics *telemetry.ServerMetrics
}

const tracerName = "ohmyddl/server"

// Registry maps session tokens to sessions. A token's session file is the source of truth; the
// in-memory LRU only saves restores. Work on one token, its restore included, is serialized under
// the token's lock; work on different tokens runs in parallel.
type Registry struct {
	dataDir string
	opts    []sdk.Option
	purger  AccountPurger
	metrics *telemetry.ServerMetrics

	sessions *lru.Cache[string, *sdk.Session]
	locks    *locker.Locker
}

// NewRegistry creates the data directory if needed.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("registry data dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	size := cfg.Size
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, *sdk.Session](size)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &Registry{
		dataDir:  cfg.DataDir,
		opts:     cfg.SessionOptions,
		purger:   cfg.Purger,
		metrics:  cfg.Metrics,
		sessions: cache,
		locks:    locker.New(),
	}, nil
}

// ValidToken reports whether token has the shape of an issued token. It keeps request data out of
// file paths.
func ValidToken(token string) bool {
	id, err := uuid.Parse(token)
	return err == nil && id.String() == token
}

func (r *Registry) path(token string) string {
	return filepath.Join(r.dataDir, token)
}

// Create logs cred in and, on success, persists the session under a new token.
func (r *Registry) Create(ctx context.Context, cred sdk.Credential) (token string, err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "registry.Create",
		attribute.String(telemetry.AttrAccountID, cred.AccountID),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	s := sdk.NewSession(cred, r.opts...)
	err = s.Login(ctx)
	outcome := sdk.OutcomeOf(err).String()
	span.SetAttributes(attribute.String(telemetry.AttrOutcome, outcome))
	if r.metrics != nil {
		r.metrics.RecordLogin(ctx, outcome)
	}
	if err != nil {
		return "", err
	}

	token = uuid.NewString()
	r.locks.Lock(token)
	defer r.unlock(token)

	if err := s.Save(r.path(token)); err != nil {
		return "", fmt.Errorf("persist session: %w", err)
	}
	r.sessions.Add(token, s)
	return token, nil
}

// Exists reports whether token names a live session.
func (r *Registry) Exists(token string) bool {
	if !ValidToken(token) {
		return false
	}
	if r.sessions.Contains(token) {
		return true
	}
	_, err := os.Stat(r.path(token))
	return err == nil
}

// Do runs fn with the session of token while holding the token's lock, then persists the session
// whatever fn returned. fn gets a context carrying the registry.Do span.
func (r *Registry) Do(ctx context.Context, token string, fn func(context.Context, *sdk.Session) error) (err error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "registry.Do")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	if !ValidToken(token) {
		return ErrUnknownToken
	}
	r.locks.Lock(token)
	defer r.unlock(token)

	s, err := r.restore(token)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String(telemetry.AttrAccountID, s.Credential().AccountID))

	fnErr := fn(ctx, s)
	if err := s.Save(r.path(token)); err != nil {
		log.Printf("Warning: failed to persist session %s: %v", token, err)
	}
	return fnErr
}

// Delete forgets token and removes its session file. Shared cached results of the account are
// purged when a purger is configured.
func (r *Registry) Delete(ctx context.Context, token string) error {
	if !ValidToken(token) {
		return ErrUnknownToken
	}
	r.locks.Lock(token)
	defer r.unlock(token)

	s, err := r.restore(token)
	if err != nil {
		return err
	}

	r.sessions.Remove(token)
	if err := os.Remove(r.path(token)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	if r.purger != nil {
		account := s.Credential().AccountID
		if _, err := r.purger.DeleteByAccount(ctx, account); err != nil {
			log.Printf("Warning: failed to purge cached results of %s: %v", account, err)
		}
	}
	return nil
}

// restore returns the cached session of token or loads it from disk. The caller holds the token's
// lock, so a session evicted from the LRU is reloaded only after the last writer saved it.
func (r *Registry) restore(token string) (*sdk.Session, error) {
	if s, ok := r.sessions.Get(token); ok {
		return s, nil
	}
	s, err := sdk.LoadSession(r.path(token), r.opts...)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrUnknownToken
		}
		return nil, err
	}
	r.sessions.Add(token, s)
	return s, nil
}

func (r *Registry) unlock(token string) {
	if err := r.locks.Unlock(token); err != nil {
		log.Printf("Warning: unlock session %s: %v", token, err)
	}
}
