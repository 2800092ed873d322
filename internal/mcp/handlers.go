package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/hopper/internal/search"
	"github.com/standardbeagle/hopper/internal/version"
)

// DefaultSearchLimit applies when a search call names no limit.
const DefaultSearchLimit = 20

// DefaultProfileRounds applies when a profile call names no round count.
const DefaultProfileRounds = 3

type InfoParams struct {
	Tool string `json:"tool,omitempty"`
}

type FirstMatchParams struct {
	Root string `json:"root"`
	Key  string `json:"key"`
}

type NextMatchParams struct {
	Root string `json:"root"`
	Path string `json:"path"`
}

type SearchParams struct {
	Root   string `json:"root"`
	Key    string `json:"key"`
	Offset int    `json:"offset,omitempty"`
	Limit  *int   `json:"limit,omitempty"`
}

type ListFilesParams struct {
	Roots []string `json:"roots"`
}

type FindByNameParams struct {
	Root string `json:"root"`
	Name string `json:"name"`
}

type OpenedParams struct {
	Path string `json:"path"`
}

type RefreshParams struct {
	Root string `json:"root"`
}

type ProfileParams struct {
	Root   string `json:"root"`
	Rounds int    `json:"rounds,omitempty"`
}

// decodeParams unmarshals tool arguments; empty arguments leave v zeroed.
func decodeParams(req *mcp.CallToolRequest, v interface{}) error {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

// watch adds a root that just answered a query to the watcher.
func (s *Server) watch(root string) {
	if s.watcher == nil {
		return
	}
	canonical, err := search.CanonicalRoot(root)
	if err != nil {
		return
	}
	if err := s.watcher.Watch(canonical); err != nil {
		s.logger.Error("watch %s: %v", canonical, err)
	}
}

var toolHelp = map[string]string{
	"first_match":  `{"root": "/src/app", "key": "rm"} opens readMe.txt, read_me.md or README_MAIN.go, most recently touched first`,
	"next_match":   `{"root": "/src/app", "path": "/src/app/userModel.go"} alternates to user_model.py`,
	"search":       `{"root": "/src/app", "key": "rm", "offset": 0, "limit": 20} returns totalCount, isUpdating, matchesCount and one page of matches`,
	"list_files":   `{"roots": ["/src/app", "/src/lib"]}`,
	"find_by_name": `{"root": "/src/app", "name": "Makefile"}`,
	"opened":       `{"path": "/src/app/readMe.txt"}`,
	"refresh":      `{"root": "/src/app"}`,
	"status":       `{}`,
	"profile":      `{"root": "/src/app", "rounds": 3}`,
}

func (s *Server) handleInfo(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params InfoParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}

	tool := strings.ToLower(strings.TrimSpace(params.Tool))
	switch tool {
	case "":
		return createJSONResponse(map[string]interface{}{
			"name":  "hopper",
			"about": "Keys are the first letter of each word of a file name: camelCase, snake_case, kebab-case and dotted words all split (readMe.txt, read_me.md and read-me.js are all 'rm'). Extensions are ignored.",
			"tools": toolHelp,
		})
	case "version":
		return createJSONResponse(map[string]interface{}{
			"server_version": version.FullInfo(),
			"build_id":       version.BuildID(),
			"go_version":     runtime.Version(),
			"platform":       runtime.GOOS + "/" + runtime.GOARCH,
			"strategies":     s.strategies,
		})
	}
	example, ok := toolHelp[tool]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", params.Tool)
	}
	return createJSONResponse(map[string]string{"tool": tool, "example": example})
}

func (s *Server) handleFirstMatch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params FirstMatchParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	match, err := s.service.OpenFirstMatch(ctx, params.Root, params.Key)
	if err != nil {
		return nil, err
	}
	s.watch(params.Root)
	return createJSONResponse(match)
}

func (s *Server) handleNextMatch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params NextMatchParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	match, err := s.service.OpenNextMatch(ctx, params.Root, params.Path)
	if err != nil {
		return nil, err
	}
	s.watch(params.Root)
	return createJSONResponse(match)
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params SearchParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	limit := DefaultSearchLimit
	if params.Limit != nil {
		limit = *params.Limit
	}
	snap, err := s.service.UpdateSearch(params.Root, params.Key, params.Offset, limit)
	if err != nil {
		return nil, err
	}
	s.watch(params.Root)
	return createJSONResponse(snap)
}

func (s *Server) handleListFiles(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params ListFilesParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	files, err := s.service.ListAllFiles(ctx, params.Roots)
	if err != nil {
		return nil, err
	}
	for _, root := range params.Roots {
		s.watch(root)
	}
	if files == nil {
		files = []string{}
	}
	return createJSONResponse(map[string]interface{}{"files": files, "count": len(files)})
}

func (s *Server) handleFindByName(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params FindByNameParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	paths, err := s.service.ListByExactName(ctx, params.Root, params.Name)
	if err != nil {
		return nil, err
	}
	s.watch(params.Root)
	return createJSONResponse(map[string]interface{}{"paths": paths})
}

func (s *Server) handleOpened(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params OpenedParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	if params.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	s.service.OnBufferOpen(params.Path)
	return createJSONResponse(map[string]bool{"recorded": true})
}

func (s *Server) handleRefresh(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params RefreshParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	if err := s.service.ForceRefresh(params.Root); err != nil {
		return nil, err
	}
	s.watch(params.Root)
	return createJSONResponse(map[string]interface{}{"success": true, "root": params.Root})
}

type projectStatus struct {
	Root       string `json:"root"`
	TotalCount int    `json:"total_count"`
	IsUpdating bool   `json:"is_updating"`
}

func (s *Server) handleStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects := []projectStatus{}
	for _, info := range s.engine.Projects() {
		projects = append(projects, projectStatus{
			Root:       info.RootPath,
			TotalCount: info.TotalCount(),
			IsUpdating: info.IsUpdating(),
		})
	}
	status := map[string]interface{}{
		"projects":   projects,
		"queue_len":  s.engine.QueueLen(),
		"enqueued":   s.engine.Enqueued(),
		"strategies": s.strategies,
	}
	if s.watcher != nil {
		status["watch"] = s.watcher.GetStats()
	}
	return createJSONResponse(status)
}

func (s *Server) handleProfile(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params ProfileParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	rounds := params.Rounds
	if rounds <= 0 {
		rounds = DefaultProfileRounds
	}
	timings, err := s.service.Profile(ctx, params.Root, rounds)
	if err != nil {
		return nil, err
	}
	return createJSONResponse(map[string]interface{}{"timings": timings})
}
