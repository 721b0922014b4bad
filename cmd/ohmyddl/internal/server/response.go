package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/hwenwur/oh-my-ddl/pkg/sdk"
)

// Ret is the application status code carried in every API response body.
type Ret int

const (
	RetOK             Ret = 0
	RetInvalidToken   Ret = 1
	RetBadCredentials Ret = 2
	RetInvalidRequest Ret = 3
	RetRateLimited    Ret = 4
	RetUnknown        Ret = -1
)

var retMessages = map[Ret]string{
	RetOK:             "OK",
	RetInvalidToken:   "invalid token",
	RetBadCredentials: "username or password error",
	RetInvalidRequest: "invalid request message",
	RetRateLimited:    "too many failed attempts, try again later",
	RetUnknown:        "unknown error",
}

// Message is the fixed text of the code.
func (r Ret) Message() string {
	return retMessages[r]
}

// apiResponse is the envelope shared by every endpoint. Endpoint-specific fields are added by
// embedding it.
type apiResponse struct {
	Ret     Ret    `json:"ret"`
	Message string `json:"message"`
}

func newResponse(ret Ret, extra string) apiResponse {
	msg := ret.Message()
	if extra != "" {
		msg += "," + extra
	}
	return apiResponse{Ret: ret, Message: msg}
}

// retFor maps a session error to its code and the detail worth showing the caller.
func retFor(err error) (Ret, string) {
	switch {
	case err == nil:
		return RetOK, ""
	case errors.Is(err, ErrUnknownToken):
		return RetInvalidToken, ""
	case errors.Is(err, sdk.ErrInvalidAccountID):
		return RetBadCredentials, ""
	case errors.Is(err, sdk.ErrInvalidTermID), errors.Is(err, sdk.ErrMalformedRequest):
		return RetInvalidRequest, err.Error()
	}

	switch sdk.OutcomeOf(err) {
	case sdk.CredentialError:
		return RetBadCredentials, ""
	case sdk.RateLimited:
		return RetRateLimited, ""
	default:
		return RetUnknown, err.Error()
	}
}

// writeJSON sends v with status 200; application failures travel in the ret field.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	ret, extra := retFor(err)
	writeJSON(w, newResponse(ret, extra))
}
