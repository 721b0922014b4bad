package sdk

import (
	"fmt"
	"strings"
)

// AccountIDLength is the length of a campus account id (student number).
const AccountIDLength = 8

// Credential identifies the account used for the SSO handshake. It is immutable once a Session is
// constructed.
type Credential struct {
	AccountID string
	Secret    string
}

// NewCredential validates the account id and returns a Credential.
func NewCredential(accountID, secret string) (Credential, error) {
	accountID = strings.TrimSpace(accountID)
	if len(accountID) != AccountIDLength {
		return Credential{}, fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidAccountID, AccountIDLength, len(accountID))
	}
	if secret == "" {
		return Credential{}, fmt.Errorf("password is required")
	}
	return Credential{AccountID: accountID, Secret: secret}, nil
}
