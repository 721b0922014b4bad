package sdk

import "strings"

// Verdict is what a ResponseClassifier concluded from a response body.
type Verdict int

const (
	// VerdictUnknown means no marker matched.
	VerdictUnknown Verdict = iota
	VerdictBadCredentials
	VerdictRateLimited
	VerdictAuthenticated
	VerdictAnonymous
)

// ResponseClassifier inspects a response body for known markers.
type ResponseClassifier interface {
	Classify(body string) Verdict
}

// Marker maps a literal substring to a verdict.
type Marker struct {
	Substring string
	Verdict   Verdict
}

// MarkerClassifier returns the verdict of the first marker found in the body.
type MarkerClassifier []Marker

func (m MarkerClassifier) Classify(body string) Verdict {
	for _, marker := range m {
		if marker.Substring != "" && strings.Contains(body, marker.Substring) {
			return marker.Verdict
		}
	}
	return VerdictUnknown
}

// DefaultCredentialClassifier recognizes the failure pages of the OAuth login form.
func DefaultCredentialClassifier() MarkerClassifier {
	return MarkerClassifier{
		{Substring: "认证失败", Verdict: VerdictBadCredentials},
		{Substring: "连续出错次数太多", Verdict: VerdictRateLimited},
	}
}

// DefaultProbeClassifier recognizes the two states of the liveness endpoint.
func DefaultProbeClassifier() MarkerClassifier {
	return MarkerClassifier{
		{Substring: "afterLogin", Verdict: VerdictAuthenticated},
		{Substring: "beforeLogin", Verdict: VerdictAnonymous},
	}
}
