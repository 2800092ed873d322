package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/hopper/internal/config"
	"github.com/standardbeagle/hopper/internal/debug"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
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

func newTestServer(t *testing.T, root string) *Server {
	t.Helper()
	cfg := config.Default(root)
	cfg.Search.PreferenceOrder = []string{config.StrategyNative}
	s, err := NewServer(cfg, debug.NewLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

// callTool invokes a registered handler directly and decodes its JSON text.
func callTool(t *testing.T, s *Server, name string, args interface{}) (map[string]interface{}, bool) {
	t.Helper()
	handler := s.GetHandlerForTesting(name)
	require.NotNil(t, handler, "tool %s not registered", name)

	raw, err := json.Marshal(args)
	require.NoError(t, err)
	result, err := handler(context.Background(), &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Arguments: raw},
	})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)

	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out, result.IsError
}

func TestTools_FirstAndNextMatch(t *testing.T) {
	root := testProject(t, "userModel.go", "user_model.py", "readMe.txt")
	s := newTestServer(t, root)

	out, isErr := callTool(t, s, "first_match", FirstMatchParams{Root: root, Key: "rm"})
	require.False(t, isErr, "%v", out)
	assert.Equal(t, true, out["found"])
	assert.Equal(t, filepath.Join(root, "readMe.txt"), out["path"])

	out, isErr = callTool(t, s, "next_match", NextMatchParams{Root: root, Path: filepath.Join(root, "userModel.go")})
	require.False(t, isErr)
	assert.Equal(t, filepath.Join(root, "user_model.py"), out["path"])

	out, isErr = callTool(t, s, "first_match", FirstMatchParams{Root: root, Key: "rn"})
	require.False(t, isErr)
	assert.Equal(t, false, out["found"])
	assert.Equal(t, "could not find match", out["message"])
	assert.Equal(t, []interface{}{"rm"}, out["suggestions"])
}

func TestTools_Search(t *testing.T) {
	root := testProject(t, "readMe.txt", "read_me.md", "other.txt")
	s := newTestServer(t, root)

	require.Eventually(t, func() bool {
		out, isErr := callTool(t, s, "search", map[string]interface{}{"root": root, "key": "rm"})
		return !isErr && out["isUpdating"] == false
	}, 5*time.Second, 10*time.Millisecond)

	out, isErr := callTool(t, s, "search", map[string]interface{}{"root": root, "key": "rm", "limit": 1})
	require.False(t, isErr)
	assert.Equal(t, float64(3), out["totalCount"])
	assert.Equal(t, float64(2), out["matchesCount"])
	assert.Len(t, out["matches"], 1)

	out, isErr = callTool(t, s, "search", map[string]interface{}{"root": root, "key": "rm", "offset": -1})
	assert.True(t, isErr)
	assert.Equal(t, "input", out["kind"])
}

func TestTools_Listings(t *testing.T) {
	root := testProject(t, "a/Makefile", "Makefile", "b/other_file.go")
	s := newTestServer(t, root)

	out, isErr := callTool(t, s, "list_files", ListFilesParams{Roots: []string{root}})
	require.False(t, isErr)
	assert.Equal(t, float64(3), out["count"])

	out, isErr = callTool(t, s, "find_by_name", FindByNameParams{Root: root, Name: "Makefile"})
	require.False(t, isErr)
	assert.ElementsMatch(t, []interface{}{filepath.Join(root, "Makefile"), filepath.Join(root, "a", "Makefile")}, out["paths"])

	out, isErr = callTool(t, s, "list_files", ListFilesParams{})
	assert.True(t, isErr)
	assert.Equal(t, "input", out["kind"])
}

func TestTools_OpenedRefreshStatusProfile(t *testing.T) {
	root := testProject(t, "app_config.go", "api_client.go")
	s := newTestServer(t, root)

	out, isErr := callTool(t, s, "refresh", RefreshParams{Root: root})
	require.False(t, isErr)
	assert.Equal(t, true, out["success"])

	out, isErr = callTool(t, s, "opened", OpenedParams{Path: filepath.Join(root, "app_config.go")})
	require.False(t, isErr)
	assert.Equal(t, true, out["recorded"])

	_, isErr = callTool(t, s, "opened", OpenedParams{})
	assert.True(t, isErr)

	out, isErr = callTool(t, s, "status", struct{}{})
	require.False(t, isErr)
	projects, ok := out["projects"].([]interface{})
	require.True(t, ok)
	assert.Len(t, projects, 1)
	assert.Equal(t, []interface{}{"native"}, out["strategies"])

	out, isErr = callTool(t, s, "profile", ProfileParams{Root: root, Rounds: 1})
	require.False(t, isErr)
	assert.Len(t, out["timings"], 1)
}

func TestTools_Info(t *testing.T) {
	s := newTestServer(t, testProject(t))

	out, isErr := callTool(t, s, "info", InfoParams{})
	require.False(t, isErr)
	assert.Contains(t, out, "tools")

	out, isErr = callTool(t, s, "info", InfoParams{Tool: "version"})
	require.False(t, isErr)
	assert.NotEmpty(t, out["build_id"])

	out, isErr = callTool(t, s, "info", InfoParams{Tool: "search"})
	require.False(t, isErr)
	assert.Equal(t, "search", out["tool"])

	_, isErr = callTool(t, s, "info", InfoParams{Tool: "nope"})
	assert.True(t, isErr)
}

func TestTools_InvalidArguments(t *testing.T) {
	s := newTestServer(t, testProject(t))
	handler := s.GetHandlerForTesting("first_match")

	result, err := handler(context.Background(), &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`{"root": 7}`)},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestRecoverFromPanic(t *testing.T) {
	s := newTestServer(t, testProject(t))

	result, err := s.recoverFromPanic("boom", func() (*mcp.CallToolResult, error) {
		panic("kaboom")
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	text := result.Content[0].(*mcp.TextContent).Text
	assert.Contains(t, text, "kaboom")
	assert.Contains(t, text, `"kind":"internal"`)
}

func TestServer_ListToolsOverSession(t *testing.T) {
	s := newTestServer(t, testProject(t))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"info", "first_match", "next_match", "search", "list_files",
		"find_by_name", "opened", "refresh", "status", "profile",
	}, names)

	require.NoError(t, session.Close())
	_ = serverSession.Wait()
}
