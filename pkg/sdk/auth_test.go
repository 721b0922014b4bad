package sdk

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_CredentialBranch(t *testing.T) {
	p := newFakePortal(t)
	s := newTestSession(p)

	require.NoError(t, s.Login(context.Background()))
	assert.True(t, s.IsAuthenticated())

	assert.Equal(t, 1, p.hitCount("/sso/shu"))
	assert.Equal(t, 2, p.hitCount("/oauth/login"), "redirect target plus credential POST")
	assert.Equal(t, 1, p.hitCount("/sso/continue"))
	assert.Equal(t, 1, p.hitCount("/setcookie.jsp"))

	ok, err := s.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, ok, "cookie from the finalization step should be replayed")
}

func TestLogin_ReusesExistingOAuthSession(t *testing.T) {
	p := newFakePortal(t)
	p.oauthSession = true
	s := newTestSession(p)

	require.NoError(t, s.Login(context.Background()))
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, 0, p.hitCount("/oauth/login"), "credentials must not be submitted")
	assert.Equal(t, 1, p.hitCount("/setcookie.jsp"))
}

func TestLogin_UnrecognizedFirstRedirect(t *testing.T) {
	p := newFakePortal(t)
	p.entryRedirect = "/elsewhere"
	s := newTestSession(p)

	err := s.Login(context.Background())
	require.Error(t, err)

	var drift *ProtocolDriftError
	require.ErrorAs(t, err, &drift)
	assert.Equal(t, StepPortalEntry, drift.Step)
	assert.Equal(t, p.srv.URL+"/elsewhere", drift.Location)
	assert.Equal(t, ProtocolDrift, OutcomeOf(err))

	_, posts := p.snapshot()
	assert.Zero(t, posts, "no POST after an unrecognized redirect")
	assert.False(t, s.IsAuthenticated())
}

func TestLogin_CredentialFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
		outcome AuthOutcome
	}{
		{name: "wrong password", body: "<p>认证失败</p>", wantErr: ErrInvalidCredentials, outcome: CredentialError},
		{name: "throttled", body: "<p>连续出错次数太多</p>", wantErr: ErrRateLimited, outcome: RateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePortal(t)
			p.credentialBody = tt.body
			s := newTestSession(p)

			err := s.Login(context.Background())
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.outcome, OutcomeOf(err))
			assert.False(t, s.IsAuthenticated())
			assert.Zero(t, p.hitCount("/sso/continue"))
		})
	}
}

func TestLogin_WrongSecretRejectedByPortal(t *testing.T) {
	p := newFakePortal(t)
	s := NewSession(Credential{AccountID: testAccount, Secret: "nope"},
		WithEndpoints(p.endpoints()), WithLogger(discardLogger()))

	err := s.Login(context.Background())
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.False(t, s.IsAuthenticated())
}

func TestLogin_UnexpectedLandingAfterCredentials(t *testing.T) {
	p := newFakePortal(t)
	p.credentialBody = "<html>please answer the captcha</html>"
	s := newTestSession(p)

	err := s.Login(context.Background())
	var drift *ProtocolDriftError
	require.ErrorAs(t, err, &drift)
	assert.Equal(t, StepCredentials, drift.Step)
	assert.Equal(t, p.srv.URL+"/oauth/login", drift.Location)
}

func TestLogin_ContinuationDrift(t *testing.T) {
	t.Run("missing form", func(t *testing.T) {
		p := newFakePortal(t)
		p.landingBody = "<html><body>nothing here</body></html>"
		s := newTestSession(p)

		err := s.Login(context.Background())
		var drift *ProtocolDriftError
		require.ErrorAs(t, err, &drift)
		assert.Equal(t, StepContinuation, drift.Step)
		assert.Contains(t, drift.Reason, "userLogin")
		assert.Zero(t, p.hitCount("/sso/continue"))
	})

	t.Run("wrong final page", func(t *testing.T) {
		p := newFakePortal(t)
		p.portalRedirect = "/elsewhere"
		s := newTestSession(p)

		err := s.Login(context.Background())
		var drift *ProtocolDriftError
		require.ErrorAs(t, err, &drift)
		assert.Equal(t, StepContinuation, drift.Step)
		assert.Equal(t, p.srv.URL+"/elsewhere", drift.Location)
		assert.Zero(t, p.hitCount("/setcookie.jsp"))
	})
}

func TestProbe(t *testing.T) {
	t.Run("logged in", func(t *testing.T) {
		p := newFakePortal(t)
		p.probeBody = "afterLogin"
		s := newTestSession(p)

		ok, err := s.Probe(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, s.IsAuthenticated())

		requests, _ := p.snapshot()
		assert.Equal(t, 1, requests, "the probe is a single request")
	})

	t.Run("logged out", func(t *testing.T) {
		p := newFakePortal(t)
		s := newTestSession(p)

		ok, err := s.Probe(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ambiguous", func(t *testing.T) {
		p := newFakePortal(t)
		p.probeBody = "<html>502 Bad Gateway</html>"
		s := newTestSession(p)

		ok, err := s.Probe(context.Background())
		assert.False(t, ok)
		var drift *ProtocolDriftError
		require.ErrorAs(t, err, &drift)
		assert.Equal(t, StepProbe, drift.Step)
	})
}

func TestEnsureAuthenticated(t *testing.T) {
	p := newFakePortal(t)
	s := newTestSession(p)
	ctx := context.Background()

	require.NoError(t, s.EnsureAuthenticated(ctx))
	assert.Equal(t, 1, p.hitCount("/topjs"))
	assert.Equal(t, 1, p.hitCount("/sso/shu"))

	before, _ := p.snapshot()
	require.NoError(t, s.EnsureAuthenticated(ctx))
	after, _ := p.snapshot()
	assert.Equal(t, before, after, "an authenticated session is not probed again")
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want AuthOutcome
	}{
		{nil, Authenticated},
		{fmt.Errorf("wrapped: %w", ErrInvalidCredentials), CredentialError},
		{ErrRateLimited, RateLimited},
		{fmt.Errorf("x: %w", &ProtocolDriftError{Step: StepProbe}), ProtocolDrift},
		{&TransportError{Method: "GET", URL: "http://x", Attempts: 4, Err: errors.New("reset")}, TransportFailure},
		{ErrInvalidTermID, OtherFailure},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, OutcomeOf(tt.err))
		})
	}
}

func TestProtocolDriftError_Verbose(t *testing.T) {
	err := &ProtocolDriftError{Step: StepPortalEntry, Location: "http://example.test/x", Body: "<html>maintenance</html>"}
	assert.Contains(t, err.Error(), "portal entry")
	assert.Contains(t, err.Error(), "http://example.test/x")
	assert.Contains(t, err.Verbose(), "maintenance")
}
