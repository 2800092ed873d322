// Package mcp serves the jump-to-file queries as Model Context Protocol tools
// over stdio. The server owns its own engine; it does not talk to the daemon.
package mcp

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/hopper/internal/config"
	hdebug "github.com/standardbeagle/hopper/internal/debug"
	"github.com/standardbeagle/hopper/internal/enumerate"
	"github.com/standardbeagle/hopper/internal/indexing"
	"github.com/standardbeagle/hopper/internal/search"
	"github.com/standardbeagle/hopper/internal/version"
)

// Server wraps an mcp.Server around one search.Service
type Server struct {
	server  *mcp.Server
	service *search.Service
	engine  *indexing.Engine
	watcher *indexing.Watcher
	cfg     *config.Config
	logger  *hdebug.Logger

	strategies []string
	handlers   map[string]mcp.ToolHandler
}

// NewServer builds the engine from cfg and registers every tool.
func NewServer(cfg *config.Config, logger *hdebug.Logger) (*Server, error) {
	chain, err := enumerate.FromConfig(cfg.Search)
	if err != nil {
		return nil, err
	}
	return newServer(cfg, chain, chain.Strategies(), logger)
}

func newServer(cfg *config.Config, en enumerate.Enumerator, strategies []enumerate.Strategy, logger *hdebug.Logger) (*Server, error) {
	engine := indexing.New(en, logger)

	s := &Server{
		service:  search.New(engine, strategies, search.OptionsFromConfig(cfg.Wait), logger),
		engine:   engine,
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[string]mcp.ToolHandler),
	}
	for _, st := range strategies {
		s.strategies = append(s.strategies, st.Name())
	}

	if cfg.Watch.Enabled {
		watcher, err := indexing.NewWatcher(engine, cfg.Search, cfg.Watch.Debounce(), logger)
		if err != nil {
			logger.Error("file watching disabled: %v", err)
		} else {
			s.watcher = watcher
		}
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "hopper",
		Version: version.Version,
	}, nil)
	s.registerTools()

	hdebug.LogMCP("MCP server initialized with strategies %v\n", s.strategies)
	return s, nil
}

// addTool registers a tool and keeps its handler for direct calls in tests.
func (s *Server) addTool(tool *mcp.Tool, handler mcp.ToolHandler) {
	name := tool.Name
	wrapped := func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.recoverFromPanic(name, func() (*mcp.CallToolResult, error) {
			return handler(ctx, req)
		})
	}
	s.handlers[name] = wrapped
	s.server.AddTool(tool, wrapped)
}

func rootSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Description: "Project root directory (absolute path recommended)",
	}
}

func (s *Server) registerTools() {
	s.addTool(&mcp.Tool{
		Name:        "info",
		Description: "Describe the hopper tools and how file keys are derived from names. Use 'info version' for build details.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"tool": {
					Type:        "string",
					Description: "Tool name to describe, or 'version'",
				},
			},
		},
	}, s.handleInfo)

	s.addTool(&mcp.Tool{
		Name:        "first_match",
		Description: "Return the best ranked file whose name abbreviates to key (readMe.txt -> rm). Waits for indexing up to the configured timeout.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"root": rootSchema(),
				"key": {
					Type:        "string",
					Description: "Abbreviation built from the first letter of each word in the file name. Empty opens the most recently touched file",
				},
			},
			Required: []string{"root", "key"},
		},
	}, s.handleFirstMatch)

	s.addTool(&mcp.Tool{
		Name:        "next_match",
		Description: "Return the best ranked file that shares a key with path, other than path itself (e.g. userModel.go -> user_model.py).",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"root": rootSchema(),
				"path": {
					Type:        "string",
					Description: "File currently open",
				},
			},
			Required: []string{"root", "path"},
		},
	}, s.handleNextMatch)

	s.addTool(&mcp.Tool{
		Name:        "search",
		Description: "Page through the files for key without waiting. Poll again while isUpdating is true.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"root": rootSchema(),
				"key": {
					Type:        "string",
					Description: "File key; empty lists every keyed file",
				},
				"offset": {
					Type:        "integer",
					Description: "Matches to skip (default 0)",
				},
				"limit": {
					Type:        "integer",
					Description: fmt.Sprintf("Maximum matches to return (default %d)", DefaultSearchLimit),
				},
			},
			Required: []string{"root"},
		},
	}, s.handleSearch)

	s.addTool(&mcp.Tool{
		Name:        "list_files",
		Description: "List every keyed file under one or more roots, sorted, each path once.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"roots": {
					Type:        "array",
					Description: "Project roots",
					Items:       &jsonschema.Schema{Type: "string"},
				},
			},
			Required: []string{"roots"},
		},
	}, s.handleListFiles)

	s.addTool(&mcp.Tool{
		Name:        "find_by_name",
		Description: "List every file under root with exactly this base name (e.g. Makefile).",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"root": rootSchema(),
				"name": {
					Type:        "string",
					Description: "Base file name, no directory separators",
				},
			},
			Required: []string{"root", "name"},
		},
	}, s.handleFindByName)

	s.addTool(&mcp.Tool{
		Name:        "opened",
		Description: "Record that a file was opened so it ranks first among files with the same key.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": {
					Type:        "string",
					Description: "File that was opened",
				},
			},
			Required: []string{"path"},
		},
	}, s.handleOpened)

	s.addTool(&mcp.Tool{
		Name:        "refresh",
		Description: "Rescan root in the background.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"root": rootSchema(),
			},
			Required: []string{"root"},
		},
	}, s.handleRefresh)

	s.addTool(&mcp.Tool{
		Name:        "status",
		Description: "Show indexed projects, queue depth and watcher statistics.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleStatus)

	s.addTool(&mcp.Tool{
		Name:        "profile",
		Description: "Time each configured listing strategy against root.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"root": rootSchema(),
				"rounds": {
					Type:        "integer",
					Description: "Runs per strategy (default 3)",
				},
			},
			Required: []string{"root"},
		},
	}, s.handleProfile)
}

// recoverFromPanic turns handler panics and errors into tool error results
func (s *Server) recoverFromPanic(operation string, handler func() (*mcp.CallToolResult, error)) (result *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in %s: %v\n%s", operation, r, debug.Stack())
			result, err = createErrorResponse(operation, fmt.Errorf("internal error: %v", r))
		}
	}()

	result, err = handler()
	if err != nil {
		s.logger.Debug("%s failed: %v", operation, err)
		return createErrorResponse(operation, err)
	}
	return result, nil
}

// Start serves tools over stdio until ctx is done or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	hdebug.LogMCP("starting MCP server with stdio transport\n")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Shutdown stops the watcher and the engine
func (s *Server) Shutdown(ctx context.Context) error {
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			s.logger.Error("closing watcher: %v", err)
		}
	}
	return s.engine.Close()
}

// GetHandlerForTesting returns the wrapped handler registered for toolName
func (s *Server) GetHandlerForTesting(toolName string) mcp.ToolHandler {
	return s.handlers[toolName]
}
