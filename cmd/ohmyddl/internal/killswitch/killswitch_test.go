package killswitch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wait drains the channel the way a caller that is done with its work would.
func wait(t *testing.T, ch <-chan Notice) (Notice, bool) {
	t.Helper()
	select {
	case n, ok := <-ch:
		return n, ok
	case <-time.After(5 * time.Second):
		t.Fatal("check did not finish")
		return Notice{}, false
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    Notice
		wantOK  bool
	}{
		{
			name: "disabled",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"disabled": true, "message": "portal changed, please upgrade"}`))
			},
			want:   Notice{Disabled: true, Message: "portal changed, please upgrade"},
			wantOK: true,
		},
		{
			name: "enabled",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"disabled": false}`))
			},
			want:   Notice{},
			wantOK: true,
		},
		{
			name: "server error is swallowed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "garbage is swallowed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			got, ok := wait(t, Check(context.Background(), srv.Client(), srv.URL))
			require.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheck_EmptyURLAndUnreachable(t *testing.T) {
	_, ok := wait(t, Check(context.Background(), nil, ""))
	assert.False(t, ok)

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	_, ok = wait(t, Check(context.Background(), nil, url))
	assert.False(t, ok)
}

func TestPoll_DoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{"disabled": true}`))
	}))
	defer srv.Close()
	defer close(release)

	ch := Check(context.Background(), srv.Client(), srv.URL)
	_, ok := Poll(ch)
	assert.False(t, ok)
}
