package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Login runs the full SSO handshake, replacing whatever authentication state the session had.
// A failed handshake leaves the session unauthenticated and is not retried.
func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.login(ctx)
}

// Probe asks the portal whether the session cookies are still accepted. It issues exactly one
// request. A body that is neither the logged-in nor the logged-out page is a *ProtocolDriftError.
func (s *Session) Probe(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probe(ctx)
}

// EnsureAuthenticated probes the session once and logs in when the portal no longer accepts it.
// Later calls return immediately until the next Login or restore.
func (s *Session) EnsureAuthenticated(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureAuthenticated(ctx)
}

// IsAuthenticated reports whether the session completed a handshake or a successful probe.
// It does not touch the network.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *Session) ensureAuthenticated(ctx context.Context) error {
	if s.authenticated {
		return nil
	}
	ok, err := s.probe(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	s.logger.Info("session is not logged in, running handshake", "account", s.cred.AccountID)
	return s.login(ctx)
}

func (s *Session) probe(ctx context.Context) (bool, error) {
	resp, err := s.transport.Get(ctx, s.endpoints.Probe, nil, "")
	if err != nil {
		return false, fmt.Errorf("liveness probe: %w", err)
	}
	switch s.probeClassifier.Classify(resp.Body) {
	case VerdictAuthenticated:
		s.authenticated = true
		return true, nil
	case VerdictAnonymous:
		s.authenticated = false
		return false, nil
	default:
		s.authenticated = false
		drift := &ProtocolDriftError{Step: StepProbe, Location: resp.URL, Reason: "unrecognized probe response", Body: resp.Body}
		s.logger.Error("protocol drift", "detail", drift.Verbose())
		return false, drift
	}
}

func (s *Session) login(ctx context.Context) error {
	s.authenticated = false
	if err := s.handshake(ctx); err != nil {
		var drift *ProtocolDriftError
		if errors.As(err, &drift) {
			s.logger.Error("protocol drift", "detail", drift.Verbose())
		} else {
			s.logger.Warn("login failed", "account", s.cred.AccountID, "outcome", OutcomeOf(err).String(), "error", err)
		}
		return err
	}
	s.authenticated = true
	s.logger.Info("login succeeded", "account", s.cred.AccountID)
	return nil
}

func (s *Session) handshake(ctx context.Context) error {
	ep := s.endpoints

	// step 1: the redirect target tells which branch the server wants
	resp, err := s.transport.Get(ctx, ep.PortalEntry, nil, ep.PortalReferer)
	if err != nil {
		return err
	}
	switch {
	case strings.HasPrefix(resp.URL, ep.LandingPrefix):
		s.logger.Debug("reusing existing oauth session")
	case resp.URL == ep.OAuthLogin:
		s.logger.Debug("submitting credentials")
		if resp, err = s.submitCredentials(ctx); err != nil {
			return err
		}
	default:
		return &ProtocolDriftError{Step: StepPortalEntry, Location: resp.URL, Body: resp.Body}
	}

	// step 3
	form, err := parseLoginForm(resp.Body, resp.URL)
	if err != nil {
		return &ProtocolDriftError{Step: StepContinuation, Location: resp.URL, Reason: err.Error(), Body: resp.Body}
	}
	resp, err = s.transport.PostForm(ctx, form.Action, form.Fields, "")
	if err != nil {
		return err
	}
	if resp.URL != ep.PortalHome {
		return &ProtocolDriftError{Step: StepContinuation, Location: resp.URL, Body: resp.Body}
	}

	// step 4: only the cookie side effect matters
	if _, err := s.transport.Get(ctx, ep.SetCookie, url.Values{"fid": {form.FID}}, ""); err != nil {
		return err
	}
	return nil
}

// submitCredentials is step 2. It returns the landing response that carries the continuation form.
func (s *Session) submitCredentials(ctx context.Context) (*Response, error) {
	form := url.Values{
		"username":     {s.cred.AccountID},
		"password":     {s.cred.Secret},
		"login_submit": {submitMarker},
	}
	resp, err := s.transport.PostForm(ctx, s.endpoints.OAuthLogin, form, "")
	if err != nil {
		return nil, err
	}
	switch s.credentialClassifier.Classify(resp.Body) {
	case VerdictBadCredentials:
		return nil, ErrInvalidCredentials
	case VerdictRateLimited:
		return nil, ErrRateLimited
	}
	if !strings.HasPrefix(resp.URL, s.endpoints.LandingPrefix) {
		return nil, &ProtocolDriftError{Step: StepCredentials, Location: resp.URL, Body: resp.Body}
	}
	return resp, nil
}
