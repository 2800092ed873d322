package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/hopper/internal/config"
	"github.com/standardbeagle/hopper/internal/debug"
	"github.com/standardbeagle/hopper/internal/errors"
	"github.com/standardbeagle/hopper/internal/version"
)

// getTestSocketPath returns a socket path short enough for sun_path limits
func getTestSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "hopper")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func testProject(t *testing.T, files ...string) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0644))
	}
	return root
}

func testConfig(root string) *config.Config {
	cfg := config.Default(root)
	cfg.Search.PreferenceOrder = []string{config.StrategyNative}
	return cfg
}

func startServer(t *testing.T, cfg *config.Config) (*IndexServer, *Client) {
	t.Helper()
	cfg.Server.Socket = getTestSocketPath(t)
	srv := NewIndexServer(cfg, debug.NewLogger(nil))
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	client := NewClient(cfg.Server.Socket)
	require.NoError(t, client.WaitForReady(5*time.Second))
	return srv, client
}

func TestGetSocketPath(t *testing.T) {
	assert.Equal(t, "/run/custom.sock", GetSocketPath(config.Server{Socket: "/run/custom.sock"}))

	a := GetSocketPath(config.Server{})
	b := GetSocketPath(config.Server{Instance: "other"})
	assert.Equal(t, a, GetSocketPath(config.Server{}), "derived path is stable")
	assert.NotEqual(t, a, b, "instances get separate daemons")
	assert.Equal(t, os.TempDir(), filepath.Dir(a))
	assert.True(t, strings.HasPrefix(filepath.Base(a), "hopper-"))
	assert.True(t, strings.HasSuffix(a, ".sock"))
}

func TestServer_PingIncludesBuildID(t *testing.T) {
	_, client := startServer(t, testConfig(testProject(t)))

	ping, err := client.Ping()
	require.NoError(t, err)
	assert.Equal(t, version.BuildID(), ping.BuildID)
	assert.Equal(t, version.Version, ping.Version)
	assert.Equal(t, os.Getpid(), ping.PID)
}

func TestServer_StartTwice(t *testing.T) {
	srv, _ := startServer(t, testConfig(testProject(t)))
	assert.Error(t, srv.Start())
}

func TestServer_Queries(t *testing.T) {
	root := testProject(t, "readMe.txt", "read_me.md", "docs/Makefile", "Makefile", "userModel.go", "user_model.py")
	_, client := startServer(t, testConfig(root))
	ctx := context.Background()

	status, err := client.GetStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.Initialized)
	assert.Empty(t, status.Projects)

	recorded, err := client.Opened(ctx, filepath.Join(root, "readMe.txt"))
	require.NoError(t, err)
	assert.False(t, recorded, "events before the first query are dropped")

	m, err := client.FirstMatch(ctx, root, "rm")
	require.NoError(t, err)
	require.True(t, m.Found)
	assert.Contains(t, []string{filepath.Join(root, "readMe.txt"), filepath.Join(root, "read_me.md")}, m.Path)

	m, err = client.NextMatch(ctx, root, filepath.Join(root, "userModel.go"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "user_model.py"), m.Path)

	m, err = client.FirstMatch(ctx, root, "qq")
	require.NoError(t, err)
	assert.False(t, m.Found)
	assert.Equal(t, "could not find match", m.Message)

	snap, err := client.Search(ctx, root, "rm", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.MatchesCount)
	assert.Len(t, snap.Matches, 1)
	assert.False(t, snap.IsUpdating)

	files, err := client.Files(ctx, root)
	require.NoError(t, err)
	assert.Contains(t, files, filepath.Join(root, "userModel.go"))

	paths, err := client.ByName(ctx, root, "Makefile")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(root, "Makefile"), filepath.Join(root, "docs", "Makefile")}, paths)

	recorded, err = client.Opened(ctx, filepath.Join(root, "read_me.md"))
	require.NoError(t, err)
	assert.True(t, recorded)

	timings, err := client.Profile(ctx, root, 1)
	require.NoError(t, err)
	require.Len(t, timings, 1)
	assert.Equal(t, config.StrategyNative, timings[0].Strategy)

	require.NoError(t, client.Refresh(ctx, root))

	status, err = client.GetStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Initialized)
	assert.Equal(t, []string{config.StrategyNative}, status.Strategies)
	require.Len(t, status.Projects, 1)
	assert.Equal(t, root, status.Projects[0].Root)
	assert.Nil(t, status.Watch)
}

func TestServer_InputErrors(t *testing.T) {
	root := testProject(t, "a.txt")
	_, client := startServer(t, testConfig(root))
	ctx := context.Background()

	_, err := client.FirstMatch(ctx, filepath.Join(root, "missing"), "a")
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusBadRequest, remote.Status)
	assert.True(t, remote.IsInput())

	_, err = client.Search(ctx, root, "a", -1, 10)
	require.ErrorAs(t, err, &remote)
	assert.True(t, remote.IsInput())

	_, err = client.Files(ctx)
	require.ErrorAs(t, err, &remote)
	assert.True(t, remote.IsInput())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"input", errors.NewInputError("key", "", "must not be empty"), http.StatusBadRequest, KindInput},
		{"timeout", errors.NewTimeoutError("/p", time.Second), http.StatusGatewayTimeout, KindTimeout},
		{"internal", errors.NewIndexingError("list", os.ErrPermission), http.StatusInternalServerError, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"kind":"`+tt.kind+`"`)
		})
	}
}

func TestDecodeRequest_RejectsGet(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/first", nil)
	var body FirstMatchRequest
	assert.False(t, decodeRequest(rec, req, &body))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_WatchPicksUpNewFiles(t *testing.T) {
	root := testProject(t, "existing.txt")
	cfg := testConfig(root)
	cfg.Watch.Enabled = true
	cfg.Watch.DebounceMs = 20
	_, client := startServer(t, cfg)
	ctx := context.Background()

	_, err := client.FirstMatch(ctx, root, "e")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "freshFile.txt"), nil, 0644))
	require.Eventually(t, func() bool {
		snap, err := client.Search(ctx, root, "ff", 0, 10)
		return err == nil && !snap.IsUpdating && snap.MatchesCount == 1
	}, 5*time.Second, 20*time.Millisecond)

	status, err := client.GetStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.Watch)
	assert.Equal(t, 1, status.Watch.Roots)
}

func TestServer_ShutdownRequest(t *testing.T) {
	srv, client := startServer(t, testConfig(testProject(t)))

	require.NoError(t, client.Shutdown(false))

	done := make(chan struct{})
	go func() {
		srv.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after /shutdown")
	}

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.False(t, client.IsServerRunning())
	_, err := os.Stat(srv.GetServerSocketPath())
	assert.True(t, os.IsNotExist(err), "socket is removed")
}
