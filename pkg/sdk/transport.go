package sdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTimeout bounds a single HTTP attempt (connect + headers + body).
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRetries is how many times a transient failure is retried.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the fixed pause between attempts.
	DefaultRetryDelay = time.Second
)

// TransportConfig configures a Transport. Zero values select the defaults.
type TransportConfig struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Logger     *slog.Logger

	// RoundTripper replaces http.DefaultTransport; tests use it to inject failures.
	RoundTripper http.RoundTripper
}

// Request describes one call made through the Transport.
type Request struct {
	Method  string
	URL     string
	Params  url.Values
	Form    url.Values
	Referer string
}

// Response is a fully read HTTP response. URL is the final URL after redirects.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       string
}

// TransportState is the serializable part of a Transport.
type TransportState struct {
	Cookies []StoredCookie `json:"cookies"`
	Referer string         `json:"referer,omitempty"`
}

// Transport is an HTTP client with browser headers, a sticky referer, an exportable cookie jar and
// bounded retry of network-layer failures. HTTP error statuses are returned as responses.
type Transport struct {
	client     *http.Client
	jar        *sessionJar
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	headers http.Header

	// sleep is swapped in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTransport builds a Transport with an empty cookie jar.
func NewTransport(cfg TransportConfig) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	jar := newSessionJar()
	return &Transport{
		client: &http.Client{
			Transport: cfg.RoundTripper,
			Jar:       jar,
			Timeout:   cfg.Timeout,
		},
		jar:        jar,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		headers:    browserHeaders(),
		sleep:      sleepContext,
	}
}

// Get issues a GET request.
func (t *Transport) Get(ctx context.Context, rawURL string, params url.Values, referer string) (*Response, error) {
	return t.Do(ctx, Request{Method: http.MethodGet, URL: rawURL, Params: params, Referer: referer})
}

// PostForm issues a form-encoded POST request.
func (t *Transport) PostForm(ctx context.Context, rawURL string, form url.Values, referer string) (*Response, error) {
	return t.Do(ctx, Request{Method: http.MethodPost, URL: rawURL, Form: form, Referer: referer})
}

// Do executes the request, retrying network-layer failures up to the configured bound.
func (t *Transport) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	target, err := buildURL(req.URL, req.Params)
	if err != nil {
		return nil, err
	}
	if req.Referer != "" {
		t.mu.Lock()
		t.headers.Set("Referer", req.Referer)
		t.mu.Unlock()
	}

	var body string
	if req.Form != nil {
		body = req.Form.Encode()
	}

	for attempt := 1; ; attempt++ {
		resp, err := t.attempt(ctx, method, target, body, req.Form != nil)
		if err == nil {
			return resp, nil
		}
		if isMalformed(err) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &TransportError{Method: method, URL: target, Attempts: attempt, Err: ctxErr}
		}
		t.logger.Error("request failed", "method", method, "url", target, "attempt", attempt, "error", err)
		if attempt > t.maxRetries {
			return nil, &TransportError{Method: method, URL: target, Attempts: attempt, Err: err}
		}
		t.logger.Warn("retrying request", "remaining", t.maxRetries-attempt+1, "delay", t.retryDelay)
		if err := t.sleep(ctx, t.retryDelay); err != nil {
			return nil, &TransportError{Method: method, URL: target, Attempts: attempt, Err: err}
		}
	}
}

func (t *Transport) attempt(ctx context.Context, method, target, body string, isForm bool) (*Response, error) {
	var reader io.Reader
	if isForm {
		reader = strings.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	t.mu.Lock()
	for key, values := range t.headers {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	t.mu.Unlock()
	if isForm {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(data),
	}, nil
}

// State exports the cookies and sticky headers for persistence.
func (t *Transport) State() TransportState {
	t.mu.Lock()
	referer := t.headers.Get("Referer")
	t.mu.Unlock()
	return TransportState{Cookies: t.jar.export(), Referer: referer}
}

// Restore loads previously exported state into the Transport.
func (t *Transport) Restore(state TransportState) error {
	if err := t.jar.restore(state.Cookies); err != nil {
		return err
	}
	if state.Referer != "" {
		t.mu.Lock()
		t.headers.Set("Referer", state.Referer)
		t.mu.Unlock()
	}
	return nil
}

// Header returns the current value of a session-level header.
func (t *Transport) Header(key string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.headers.Get(key)
}

func buildURL(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not an absolute URL", ErrMalformedRequest, rawURL)
	}
	if len(params) > 0 {
		query := u.Query()
		for key, values := range params {
			for _, v := range values {
				query.Add(key, v)
			}
		}
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isMalformed reports whether err came from request construction.
func isMalformed(err error) bool {
	return errors.Is(err, ErrMalformedRequest)
}
