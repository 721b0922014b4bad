// Package killswitch asks a remote document whether the tool has been switched off upstream.
package killswitch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds the check when the caller's client has no timeout.
const DefaultTimeout = 5 * time.Second

// maxBody caps how much of the notice document is read.
const maxBody = 64 << 10

// Notice is the remote availability document.
type Notice struct {
	Disabled bool   `json:"disabled"`
	Message  string `json:"message"`
}

// Check fetches the notice at url in the background. The returned channel receives the notice
// and is then closed; it is closed without a value when url is empty or the check fails for any
// reason. Callers poll it without blocking.
func Check(ctx context.Context, client *http.Client, url string) <-chan Notice {
	out := make(chan Notice, 1)
	if url == "" {
		close(out)
		return out
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	} else if client.Timeout == 0 {
		c := *client
		c.Timeout = DefaultTimeout
		client = &c
	}

	go func() {
		defer close(out)
		notice, err := fetch(ctx, client, url)
		if err != nil {
			return
		}
		out <- notice
	}()
	return out
}

// Poll returns the notice if the check has already finished with one.
func Poll(ch <-chan Notice) (Notice, bool) {
	select {
	case n, ok := <-ch:
		return n, ok
	default:
		return Notice{}, false
	}
}

func fetch(ctx context.Context, client *http.Client, url string) (Notice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Notice{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Notice{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Notice{}, &statusError{code: resp.StatusCode}
	}
	var n Notice
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&n); err != nil {
		return Notice{}, err
	}
	return n, nil
}

type statusError struct{ code int }

func (e *statusError) Error() string { return http.StatusText(e.code) }
