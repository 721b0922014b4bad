package cmd

import (
	"fmt"
	"os"

	"github.com/hwenwur/oh-my-ddl/pkg/sdk"
	"github.com/pterm/pterm"
)

// promptCredential asks for the account id and password on the terminal. The password is masked.
func promptCredential() (sdk.Credential, error) {
	if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice == 0 {
		return sdk.Credential{}, fmt.Errorf("no saved session and stdin is not a terminal; run ohmyddl interactively once to log in")
	}

	account, err := pterm.DefaultInteractiveTextInput.Show("Account ID")
	if err != nil {
		return sdk.Credential{}, fmt.Errorf("read account id: %w", err)
	}
	secret, err := pterm.DefaultInteractiveTextInput.WithMask("*").Show("Password")
	if err != nil {
		return sdk.Credential{}, fmt.Errorf("read password: %w", err)
	}
	return sdk.NewCredential(account, secret)
}
