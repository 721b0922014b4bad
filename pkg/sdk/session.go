package sdk

import (
	"log/slog"
	"sync"
	"time"
)

// TTLs sets how long each operation's results stay fresh.
type TTLs struct {
	Terms      time.Duration `mapstructure:"terms"`
	Courses    time.Duration `mapstructure:"courses"`
	Works      time.Duration `mapstructure:"works"`
	Unfinished time.Duration `mapstructure:"unfinished"`
}

// DefaultTTLs keeps the term list for a day and per-course data for ten minutes.
func DefaultTTLs() TTLs {
	return TTLs{
		Terms:      24 * time.Hour,
		Courses:    10 * time.Minute,
		Works:      10 * time.Minute,
		Unfinished: 10 * time.Minute,
	}
}

// Session is an authenticated conversation with the portal for one account. It owns the
// transport, the result cache and the login state. A Session serializes its own operations;
// callers sharing one between goroutines get them one at a time.
type Session struct {
	mu sync.Mutex

	cred      Credential
	transport *Transport
	endpoints Endpoints

	credentialClassifier ResponseClassifier
	probeClassifier      ResponseClassifier
	parser               PageParser

	store CacheStore
	ttls  TTLs

	authenticated   bool
	lastRefreshedAt time.Time
	provenance      string

	// runtime handles, never persisted
	logger       *slog.Logger
	now          func() time.Time
	transportCfg TransportConfig
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used by the session and its transport.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEndpoints points the session at different upstream URLs.
func WithEndpoints(ep Endpoints) Option {
	return func(s *Session) { s.endpoints = ep }
}

// WithCacheStore replaces the in-memory cache. Entries of an external store are not written to
// the session file.
func WithCacheStore(store CacheStore) Option {
	return func(s *Session) {
		if store != nil {
			s.store = store
		}
	}
}

// WithTransportConfig sets timeouts and retry policy.
func WithTransportConfig(cfg TransportConfig) Option {
	return func(s *Session) { s.transportCfg = cfg }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithParser replaces the HTML page parser.
func WithParser(p PageParser) Option {
	return func(s *Session) {
		if p != nil {
			s.parser = p
		}
	}
}

// WithTTLs sets per-operation freshness. Zero fields keep their default.
func WithTTLs(ttls TTLs) Option {
	return func(s *Session) {
		def := DefaultTTLs()
		if ttls.Terms <= 0 {
			ttls.Terms = def.Terms
		}
		if ttls.Courses <= 0 {
			ttls.Courses = def.Courses
		}
		if ttls.Works <= 0 {
			ttls.Works = def.Works
		}
		if ttls.Unfinished <= 0 {
			ttls.Unfinished = def.Unfinished
		}
		s.ttls = ttls
	}
}

// WithClassifiers replaces the marker oracles for the credential step and the probe.
func WithClassifiers(credential, probe ResponseClassifier) Option {
	return func(s *Session) {
		if credential != nil {
			s.credentialClassifier = credential
		}
		if probe != nil {
			s.probeClassifier = probe
		}
	}
}

// NewSession creates an unauthenticated session. Nothing is sent until the first operation.
func NewSession(cred Credential, opts ...Option) *Session {
	s := &Session{
		cred:                 cred,
		endpoints:            DefaultEndpoints(),
		credentialClassifier: DefaultCredentialClassifier(),
		probeClassifier:      DefaultProbeClassifier(),
		parser:               HTMLPageParser{},
		store:                NewMemoryCache(),
		ttls:                 DefaultTTLs(),
		logger:               slog.Default(),
		now:                  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.transportCfg.Logger == nil {
		s.transportCfg.Logger = s.logger
	}
	s.transport = NewTransport(s.transportCfg)
	return s
}

// Credential returns the account the session logs in with.
func (s *Session) Credential() Credential {
	return s.cred
}

// LastRefreshedAt is the time of the last successful network-backed computation.
func (s *Session) LastRefreshedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefreshedAt
}

// Provenance is the path the session was last loaded from or saved to, or "".
func (s *Session) Provenance() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provenance
}

// Transport exposes the underlying HTTP transport.
func (s *Session) Transport() *Transport {
	return s.transport
}
