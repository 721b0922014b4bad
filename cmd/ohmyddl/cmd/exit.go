package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/hwenwur/oh-my-ddl/pkg/sdk"
	"github.com/pterm/pterm"
)

// Exit codes, one per failure class.
const (
	exitFailure     = 1
	exitCredentials = 2
	exitRateLimited = 3
	exitDrift       = 4
	exitNetwork     = 5
)

func exitCode(err error) int {
	switch sdk.OutcomeOf(err) {
	case sdk.Authenticated:
		return 0
	case sdk.CredentialError:
		return exitCredentials
	case sdk.RateLimited:
		return exitRateLimited
	case sdk.ProtocolDrift:
		return exitDrift
	case sdk.TransportFailure:
		return exitNetwork
	default:
		return exitFailure
	}
}

// reportError prints err with a hint matching its class. Protocol drift is printed with the
// offending response when verbose is set.
func reportError(w io.Writer, err error, verbose bool) {
	printer := pterm.Error.WithWriter(w)

	switch sdk.OutcomeOf(err) {
	case sdk.CredentialError:
		printer.Println("Login failed: account id or password is wrong. Run again with -c to enter them.")
	case sdk.RateLimited:
		printer.Println("Login refused: too many failed attempts. Wait a while before trying again.")
	case sdk.ProtocolDrift:
		var drift *sdk.ProtocolDriftError
		errors.As(err, &drift)
		if verbose {
			printer.Println(drift.Verbose())
		} else {
			printer.Println(err.Error())
		}
		printer.Println("The portal answered in an unexpected way; it may have changed. Run with -v for details.")
	case sdk.TransportFailure:
		printer.Println(fmt.Sprintf("Network error: %v", err))
	default:
		printer.Println(err.Error())
	}
}
