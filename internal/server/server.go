// Package server exposes the query service to editors and the CLI as a
// JSON-over-HTTP daemon on a unix socket.
//
// The indexing engine is created lazily by the first request that needs it,
// with the configuration loaded at daemon start; buffer-open events that
// arrive before that are dropped.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/hopper/internal/config"
	"github.com/standardbeagle/hopper/internal/debug"
	"github.com/standardbeagle/hopper/internal/enumerate"
	"github.com/standardbeagle/hopper/internal/errors"
	"github.com/standardbeagle/hopper/internal/indexing"
	"github.com/standardbeagle/hopper/internal/search"
	"github.com/standardbeagle/hopper/internal/version"
)

// DefaultProfileRounds is used when a profile request names no round count.
const DefaultProfileRounds = 3

// IndexServer serves one Engine to any number of clients
type IndexServer struct {
	cfg    *config.Config
	logger *debug.Logger

	initOnce   sync.Once
	initErr    error
	service    *search.Service
	strategies []string
	watcher    *indexing.Watcher

	listener     net.Listener
	server       *http.Server
	startTime    time.Time
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	mu           sync.RWMutex
	running      bool
	socketPath   string
}

// NewIndexServer creates a server for cfg. Nothing is indexed until a request
// names a root.
func NewIndexServer(cfg *config.Config, logger *debug.Logger) *IndexServer {
	return &IndexServer{
		cfg:          cfg,
		logger:       logger,
		startTime:    time.Now(),
		shutdownChan: make(chan struct{}),
		socketPath:   GetSocketPath(cfg.Server),
	}
}

// GetSocketPath returns the socket for a server section. Without an explicit
// path it is derived from the user name and instance, so each user (and each
// named instance) gets its own daemon.
func GetSocketPath(sc config.Server) string {
	if sc.Socket != "" {
		return sc.Socket
	}
	name := os.Getenv("USER")
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	hash := xxhash.Sum64String(name + "\x00" + sc.Instance)
	return filepath.Join(os.TempDir(), fmt.Sprintf("hopper-%016x.sock", hash))
}

// SetSocketPath overrides the socket path; used by tests.
func (s *IndexServer) SetSocketPath(path string) {
	s.socketPath = path
}

// GetServerSocketPath returns the socket path this server is using
func (s *IndexServer) GetServerSocketPath() string {
	return s.socketPath
}

// Start begins listening for client connections
func (s *IndexServer) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	socketPath := s.GetServerSocketPath()
	_ = os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("failed to create socket: %w", err)
	}
	s.listener = listener

	// Make socket accessible to user only
	_ = os.Chmod(socketPath, 0600)

	mux := http.NewServeMux()
	s.registerHandlers(mux)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server: %v", err)
		}
	}()

	s.logger.Info("listening on %s (pid %d)", socketPath, os.Getpid())
	return nil
}

// registerHandlers sets up RPC endpoints
func (s *IndexServer) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/refresh", s.handleRefresh)
	mux.HandleFunc("/first", s.handleFirst)
	mux.HandleFunc("/next", s.handleNext)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/files", s.handleFiles)
	mux.HandleFunc("/byname", s.handleByName)
	mux.HandleFunc("/opened", s.handleOpened)
	mux.HandleFunc("/profile", s.handleProfile)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/shutdown", s.handleShutdown)
}

// ensureService creates the engine, its worker and, when enabled, the
// watcher on first use.
func (s *IndexServer) ensureService() (*search.Service, error) {
	s.initOnce.Do(func() {
		chain, err := enumerate.FromConfig(s.cfg.Search)
		if err != nil {
			s.initErr = err
			return
		}
		engine := indexing.New(chain, s.logger)

		var names []string
		for _, st := range chain.Strategies() {
			names = append(names, st.Name())
		}

		var watcher *indexing.Watcher
		if s.cfg.Watch.Enabled {
			watcher, err = indexing.NewWatcher(engine, s.cfg.Search, s.cfg.Watch.Debounce(), s.logger)
			if err != nil {
				// Queries still work without change notifications
				s.logger.Error("file watching disabled: %v", err)
				watcher = nil
			}
		}

		service := search.New(engine, chain.Strategies(), search.OptionsFromConfig(s.cfg.Wait), s.logger)

		s.mu.Lock()
		s.service = service
		s.strategies = names
		s.watcher = watcher
		s.mu.Unlock()
		debug.LogMCP("engine initialized with strategies %v\n", names)
	})
	if s.initErr != nil {
		return nil, s.initErr
	}
	return s.service, nil
}

// initialized returns the service if a request already created it.
func (s *IndexServer) initialized() *search.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.service
}

// watch adds root to the watcher once it is known to be a valid project.
func (s *IndexServer) watch(root string) {
	s.mu.RLock()
	watcher := s.watcher
	s.mu.RUnlock()
	if watcher == nil {
		return
	}
	canonical, err := search.CanonicalRoot(root)
	if err != nil {
		return
	}
	if err := watcher.Watch(canonical); err != nil {
		s.logger.Error("watch %s: %v", canonical, err)
	}
}

func (s *IndexServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	svc, err := s.ensureService()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := svc.ForceRefresh(req.Root); err != nil {
		writeError(w, err)
		return
	}
	s.watch(req.Root)
	writeJSON(w, RefreshResponse{Success: true, Message: fmt.Sprintf("refresh requested for %s", req.Root)})
}

func (s *IndexServer) handleFirst(w http.ResponseWriter, r *http.Request) {
	var req FirstMatchRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	svc, err := s.ensureService()
	if err != nil {
		writeError(w, err)
		return
	}
	match, err := svc.OpenFirstMatch(r.Context(), req.Root, req.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	s.watch(req.Root)
	writeJSON(w, match)
}

func (s *IndexServer) handleNext(w http.ResponseWriter, r *http.Request) {
	var req NextMatchRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	svc, err := s.ensureService()
	if err != nil {
		writeError(w, err)
		return
	}
	match, err := svc.OpenNextMatch(r.Context(), req.Root, req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	s.watch(req.Root)
	writeJSON(w, match)
}

func (s *IndexServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	svc, err := s.ensureService()
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := svc.UpdateSearch(req.Root, req.Key, req.Offset, req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	s.watch(req.Root)
	writeJSON(w, snap)
}

func (s *IndexServer) handleFiles(w http.ResponseWriter, r *http.Request) {
	var req FilesRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	svc, err := s.ensureService()
	if err != nil {
		writeError(w, err)
		return
	}
	files, err := svc.ListAllFiles(r.Context(), req.Roots)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, root := range req.Roots {
		s.watch(root)
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, FilesResponse{Files: files})
}

func (s *IndexServer) handleByName(w http.ResponseWriter, r *http.Request) {
	var req ByNameRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	svc, err := s.ensureService()
	if err != nil {
		writeError(w, err)
		return
	}
	paths, err := svc.ListByExactName(r.Context(), req.Root, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	s.watch(req.Root)
	writeJSON(w, ByNameResponse{Paths: paths})
}

// handleOpened never initializes the engine: with no index there is
// nothing to re-rank.
func (s *IndexServer) handleOpened(w http.ResponseWriter, r *http.Request) {
	var req OpenedRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	svc := s.initialized()
	if svc == nil || req.Path == "" {
		writeJSON(w, OpenedResponse{Recorded: false})
		return
	}
	svc.OnBufferOpen(req.Path)
	writeJSON(w, OpenedResponse{Recorded: true})
}

func (s *IndexServer) handleProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	svc, err := s.ensureService()
	if err != nil {
		writeError(w, err)
		return
	}
	rounds := req.Rounds
	if rounds <= 0 {
		rounds = DefaultProfileRounds
	}
	timings, err := svc.Profile(r.Context(), req.Root, rounds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, ProfileResponse{Timings: timings})
}

// handleStatus returns the current engine state
func (s *IndexServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := StatusResponse{
		Projects:      []ProjectStatus{},
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		NumGoroutines: runtime.NumGoroutine(),
	}

	s.mu.RLock()
	svc := s.service
	status.Strategies = s.strategies
	watcher := s.watcher
	s.mu.RUnlock()

	if svc != nil {
		engine := svc.Engine()
		status.Initialized = true
		status.QueueLen = engine.QueueLen()
		status.Enqueued = engine.Enqueued()
		for _, info := range engine.Projects() {
			status.Projects = append(status.Projects, ProjectStatus{
				Root:       info.RootPath,
				TotalCount: info.TotalCount(),
				IsUpdating: info.IsUpdating(),
			})
		}
	}
	if watcher != nil {
		stats := watcher.GetStats()
		status.Watch = &stats
	}
	writeJSON(w, status)
}

// handlePing responds to health check requests
func (s *IndexServer) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, PingResponse{
		Uptime:  time.Since(s.startTime).Seconds(),
		Version: version.Version,
		BuildID: version.BuildID(),
		PID:     os.Getpid(),
	})
}

// handleShutdown acknowledges and then signals Wait
func (s *IndexServer) handleShutdown(w http.ResponseWriter, r *http.Request) {
	var req ShutdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Allow empty body
		req = ShutdownRequest{}
	}

	writeJSON(w, ShutdownResponse{Success: true, Message: "Server shutting down"})

	// Trigger shutdown after response is sent
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.signalShutdown()
	}()
}

func (s *IndexServer) signalShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
}

// Wait blocks until a client asks the server to shut down
func (s *IndexServer) Wait() {
	<-s.shutdownChan
}

// Shutdown stops serving, then stops the watcher and the engine
func (s *IndexServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	var errs []error
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}
	s.wg.Wait()

	if s.listener != nil {
		_ = s.listener.Close()
	}
	_ = os.Remove(s.GetServerSocketPath())

	s.mu.RLock()
	svc, watcher := s.service, s.watcher
	s.mu.RUnlock()
	if watcher != nil {
		if err := watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if svc != nil {
		if err := svc.Engine().Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.signalShutdown()
	s.logger.Info("index server shut down")
	return errors.NewMultiError(errs).ErrorOrNil()
}

func decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		writeJSONStatus(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "POST required", Kind: KindInput})
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, errors.NewInputError("request", "", err.Error()))
		return false
	}
	return true
}

// writeError maps the error taxonomy onto status codes: bad input is 400, a
// bounded wait that expired is 504, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.IsInput(err):
		writeJSONStatus(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: KindInput})
	case errors.IsTimeout(err):
		writeJSONStatus(w, http.StatusGatewayTimeout, ErrorResponse{Error: err.Error(), Kind: KindTimeout})
	default:
		writeJSONStatus(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Kind: KindInternal})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
