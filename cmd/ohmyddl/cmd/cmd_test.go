package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/alias"
	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/config"
	"github.com/hwenwur/oh-my-ddl/pkg/sdk"
	"github.com/hwenwur/oh-my-ddl/pkg/sdk/sdktest"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, portal *sdktest.Portal) *App {
	t.Helper()
	cfg, err := config.Load(config.New(), "")
	require.NoError(t, err)
	cfg.SessionFile = filepath.Join(t.TempDir(), "session")

	app := NewApp(cfg)
	app.SessionOptions = []sdk.Option{sdk.WithEndpoints(portal.Endpoints())}
	app.Prompt = func() (sdk.Credential, error) {
		return sdk.NewCredential(sdktest.Account, sdktest.Secret)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app
}

// run invokes c's RunE the way the root command would, with app in the context.
func run(t *testing.T, app *App, c *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetContext(InjectApp(context.Background(), app))
	err := c.RunE(c, args)
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"credentials", fmt.Errorf("login: %w", sdk.ErrInvalidCredentials), exitCredentials},
		{"rate limited", sdk.ErrRateLimited, exitRateLimited},
		{"drift", &sdk.ProtocolDriftError{Step: sdk.StepContinuation, Location: "http://x"}, exitDrift},
		{"transport", &sdk.TransportError{Method: "GET", URL: "http://x", Attempts: 3, Err: errors.New("refused")}, exitNetwork},
		{"other", errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestReportError(t *testing.T) {
	drift := &sdk.ProtocolDriftError{Step: sdk.StepFinalize, Location: "http://x/setcookie", Body: "<html>unexpected</html>"}

	var buf bytes.Buffer
	reportError(&buf, drift, false)
	assert.Contains(t, buf.String(), "cookie finalization")
	assert.NotContains(t, buf.String(), "unexpected</html>")

	buf.Reset()
	reportError(&buf, drift, true)
	assert.Contains(t, buf.String(), "unexpected</html>")

	buf.Reset()
	reportError(&buf, sdk.ErrInvalidCredentials, false)
	assert.Contains(t, buf.String(), "-c")
}

func TestBuildDeadlines(t *testing.T) {
	at := func(day int) *time.Time {
		v := time.Date(2020, 3, day, 23, 59, 0, 0, time.UTC)
		return &v
	}
	courses := []sdk.CourseInfo{
		{PageURL: "c1", Name: "数据结构与算法"},
		{PageURL: "c2", Name: "大学英语"},
		{PageURL: "c3", Name: "电路原理"},
	}
	works := map[string][]sdk.WorkInfo{
		"c1": {
			{Name: "作业三", End: nil, Status: "待做"},
			{Name: "作业二", End: at(10), Status: "待做"},
			{Name: "作业一", End: at(1), Status: "已完成"},
		},
		"c2": {{Name: "Unit 1", End: at(8), Status: "已完成"}},
		"c3": {
			{Name: "实验", End: at(5), Status: "待做"},
			{Name: "预习", End: nil, Status: "待做"},
		},
	}

	rows, idle := buildDeadlines(courses, works, alias.New(alias.DefaultRules))

	var names []string
	for _, r := range rows {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"电路-实验", "数据结构-作业二", "数据结构-作业三", "电路-预习"}, names)
	assert.Equal(t, []string{"大学英语"}, idle)
	assert.Equal(t, "unknown", formatTime(rows[3].End))
	assert.Equal(t, "2020-03-05 23:59", formatTime(rows[0].End))
}

func TestDeadlines_EndToEnd(t *testing.T) {
	portal := sdktest.NewPortal(t)
	app := newTestApp(t, portal)

	out, err := run(t, app, &cobra.Command{RunE: func(c *cobra.Command, _ []string) error {
		return runDeadlines(c, MustFromContext(c.Context()))
	}})
	require.NoError(t, err)

	assert.Contains(t, out, sdktest.Account)
	assert.Contains(t, out, "2020-03-08 23:59")
	assert.Contains(t, out, "大学英语")
	report := strings.Index(out, "数据结构-实验报告")
	exercise := strings.Index(out, "数据结构-课堂练习")
	require.True(t, report >= 0 && exercise >= 0, out)
	assert.Less(t, report, exercise, "unknown deadlines are listed last")

	_, err = os.Stat(app.Config.SessionFile)
	require.NoError(t, err, "session is persisted")
	assert.Equal(t, 1, portal.Logins())

	t.Run("second run reuses the saved session", func(t *testing.T) {
		again := newTestApp(t, portal)
		again.Config.SessionFile = app.Config.SessionFile
		again.Prompt = func() (sdk.Credential, error) {
			return sdk.Credential{}, errors.New("prompted")
		}

		out, err := run(t, again, &cobra.Command{RunE: func(c *cobra.Command, _ []string) error {
			return runDeadlines(c, MustFromContext(c.Context()))
		}})
		require.NoError(t, err)
		assert.Contains(t, out, "数据结构-实验报告")
		assert.Equal(t, 1, portal.Logins())
	})

	t.Run("status probes the saved session", func(t *testing.T) {
		out, err := run(t, app, statusCmd)
		require.NoError(t, err)
		assert.Contains(t, out, sdktest.Account)
		assert.Contains(t, out, "Session is valid")

		portal.ExpireSessions()
		out, err = run(t, app, statusCmd)
		require.NoError(t, err)
		assert.Contains(t, out, "no longer accepts")
	})

	t.Run("logout removes the session file", func(t *testing.T) {
		out, err := run(t, app, logoutCmd)
		require.NoError(t, err)
		assert.Contains(t, out, "Logged out")
		_, err = os.Stat(app.Config.SessionFile)
		assert.True(t, os.IsNotExist(err))

		out, err = run(t, app, logoutCmd)
		require.NoError(t, err)
		assert.Contains(t, out, "No saved session")
	})
}

func TestDeadlines_BadCredentials(t *testing.T) {
	portal := sdktest.NewPortal(t)
	portal.SetSecret("rotated")
	app := newTestApp(t, portal)

	_, err := run(t, app, &cobra.Command{RunE: func(c *cobra.Command, _ []string) error {
		return runDeadlines(c, MustFromContext(c.Context()))
	}})
	require.Error(t, err)
	assert.Equal(t, exitCredentials, exitCode(err))
	_, statErr := os.Stat(app.Config.SessionFile)
	assert.True(t, os.IsNotExist(statErr), "nothing is saved after a failed login")
}

func TestCacheCommands(t *testing.T) {
	portal := sdktest.NewPortal(t)
	app := newTestApp(t, portal)
	app.Config.CacheDSN = filepath.Join(t.TempDir(), "cache.db")

	_, err := run(t, app, cacheMigrateCmd)
	require.NoError(t, err)

	_, err = run(t, app, termsCmd)
	require.NoError(t, err)

	out, err := run(t, app, cacheStatusCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "applied")
	assert.Contains(t, out, "list_terms")

	pruneOlderThan = time.Hour
	out, err = run(t, app, cachePruneCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 0")
}

func TestCacheCommands_RequireDSN(t *testing.T) {
	app := newTestApp(t, sdktest.NewPortal(t))

	_, err := run(t, app, cacheStatusCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache_dsn")
}

func TestServeHandler_SharedCache(t *testing.T) {
	portal := sdktest.NewPortal(t)
	app := newTestApp(t, portal)
	app.Config.DataDir = filepath.Join(t.TempDir(), "data")
	app.Config.CacheDSN = filepath.Join(t.TempDir(), "cache.db")

	handler, err := newAPIHandler(context.Background(), app)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}
	post := func(path, body string) map[string]any {
		t.Helper()
		resp, err := client.Post(srv.URL+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	out := post("/api/login", `{"username":"`+sdktest.Account+`","password":"`+sdktest.Secret+`"}`)
	require.EqualValues(t, 0, out["ret"], out)

	out = post("/api/get_unfinish_works", `{}`)
	require.EqualValues(t, 0, out["ret"], out)

	repo, err := app.CacheRepository(context.Background())
	require.NoError(t, err)
	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, stats, "results land in the shared cache")

	out = post("/api/logout", `{}`)
	require.EqualValues(t, 0, out["ret"], out)

	stats, err = repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stats, "logout purges the account's cached results")
}
