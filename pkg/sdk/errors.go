package sdk

import (
	"errors"
	"fmt"

	"github.com/kylelemons/godebug/pretty"
)

var (
	// ErrInvalidCredentials is returned when the SSO portal rejects the account id or secret.
	// Retrying with the same credentials will not help.
	ErrInvalidCredentials = errors.New("invalid account id or password")

	// ErrRateLimited is returned when the SSO portal refuses further attempts for the account.
	// The credentials may be valid; the caller has to wait.
	ErrRateLimited = errors.New("too many consecutive login failures")

	// ErrMalformedRequest is returned for requests that cannot be built (bad URL, bad parameters).
	// These are never retried.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrNoSessionPath is returned by Save when neither a destination nor a provenance path exists.
	ErrNoSessionPath = errors.New("no session path: pass a destination or load the session from a file first")

	// ErrInvalidAccountID is returned when an account id does not have the expected length.
	ErrInvalidAccountID = errors.New("invalid account id")

	// ErrInvalidTermID is returned by ListCourses for term ids it cannot translate.
	ErrInvalidTermID = errors.New("invalid term id")
)

var prettyConf = &pretty.Config{IncludeUnexported: false, SkipZeroFields: true, TrackCycles: true}

// Step identifies a point in the login handshake.
type Step int

const (
	StepPortalEntry  Step = 1
	StepCredentials  Step = 2
	StepContinuation Step = 3
	StepFinalize     Step = 4
	StepProbe        Step = 5
)

func (s Step) String() string {
	switch s {
	case StepPortalEntry:
		return "portal entry"
	case StepCredentials:
		return "credential submission"
	case StepContinuation:
		return "login continuation form"
	case StepFinalize:
		return "cookie finalization"
	case StepProbe:
		return "liveness probe"
	default:
		return fmt.Sprintf("step %d", int(s))
	}
}

// ProtocolDriftError reports that the upstream service behaved in a way the handshake does not
// recognize: an unexpected redirect target, a missing form, or an undecidable probe body.
type ProtocolDriftError struct {
	Step     Step
	Location string
	Reason   string

	// Body is the response body that triggered the error. It is only rendered by Verbose.
	Body string
}

func (e *ProtocolDriftError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("login failed at %s (%d): %s (url: %s)", e.Step, int(e.Step), e.Reason, e.Location)
	}
	return fmt.Sprintf("login failed at %s (%d): unexpected url %s", e.Step, int(e.Step), e.Location)
}

// Verbose renders the error with the full response context for logging.
func (e *ProtocolDriftError) Verbose() string {
	return fmt.Sprintf("%s\n\tContext:\n%s", e.Error(), prettyConf.Sprint(e))
}

// TransportError is returned when a request could not be completed at the network layer.
type TransportError struct {
	Method   string
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthOutcome classifies the result of a login attempt or of any operation that may have run one.
type AuthOutcome int

const (
	Authenticated AuthOutcome = iota
	CredentialError
	RateLimited
	ProtocolDrift
	TransportFailure
	OtherFailure
)

func (o AuthOutcome) String() string {
	switch o {
	case Authenticated:
		return "authenticated"
	case CredentialError:
		return "credential error"
	case RateLimited:
		return "rate limited"
	case ProtocolDrift:
		return "protocol drift"
	case TransportFailure:
		return "transport failure"
	default:
		return "failure"
	}
}

// OutcomeOf maps an error returned by this package to its AuthOutcome. A nil error is Authenticated.
func OutcomeOf(err error) AuthOutcome {
	if err == nil {
		return Authenticated
	}
	var drift *ProtocolDriftError
	var transport *TransportError
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return CredentialError
	case errors.Is(err, ErrRateLimited):
		return RateLimited
	case errors.As(err, &drift):
		return ProtocolDrift
	case errors.As(err, &transport):
		return TransportFailure
	default:
		return OtherFailure
	}
}
