package server

import (
	"github.com/standardbeagle/hopper/internal/enumerate"
	"github.com/standardbeagle/hopper/internal/indexing"
	"github.com/standardbeagle/hopper/internal/search"
)

// RPC request/response types for client-server communication

// ErrorResponse is the body of every non-200 reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"` // input, timeout or internal
}

// Error kinds carried by ErrorResponse.
const (
	KindInput    = "input"
	KindTimeout  = "timeout"
	KindInternal = "internal"
)

// RefreshRequest forces a rebuild of one root
type RefreshRequest struct {
	Root string `json:"root"`
}

// RefreshResponse confirms the rebuild was requested
type RefreshResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// FirstMatchRequest asks for the best file for a key
type FirstMatchRequest struct {
	Root string `json:"root"`
	Key  string `json:"key"`
}

// NextMatchRequest asks for the alternate of the file currently open
type NextMatchRequest struct {
	Root string `json:"root"`
	Path string `json:"path"`
}

// MatchResponse carries the outcome of an open request
type MatchResponse = search.Match

// SearchRequest asks for a page of matches without waiting
type SearchRequest struct {
	Root   string `json:"root"`
	Key    string `json:"key"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// SearchResponse is the paginated snapshot
type SearchResponse = search.Snapshot

// FilesRequest lists every file under one or more roots
type FilesRequest struct {
	Roots []string `json:"roots"`
}

// FilesResponse contains the listing
type FilesResponse struct {
	Files []string `json:"files"`
}

// ByNameRequest looks up files by exact base name
type ByNameRequest struct {
	Root string `json:"root"`
	Name string `json:"name"`
}

// ByNameResponse contains the matching paths
type ByNameResponse struct {
	Paths []string `json:"paths"`
}

// OpenedRequest reports a buffer-open event
type OpenedRequest struct {
	Path string `json:"path"`
}

// OpenedResponse says whether the event was recorded; events before the
// first query are dropped
type OpenedResponse struct {
	Recorded bool `json:"recorded"`
}

// ProfileRequest times the configured strategies against a root
type ProfileRequest struct {
	Root   string `json:"root"`
	Rounds int    `json:"rounds,omitempty"`
}

// ProfileResponse contains one timing per strategy
type ProfileResponse struct {
	Timings []enumerate.Timing `json:"timings"`
}

// ProjectStatus describes one indexed root
type ProjectStatus struct {
	Root       string `json:"root"`
	TotalCount int    `json:"total_count"`
	IsUpdating bool   `json:"is_updating"`
}

// StatusResponse represents the current state of the daemon
type StatusResponse struct {
	Initialized   bool                 `json:"initialized"`
	Projects      []ProjectStatus      `json:"projects"`
	QueueLen      int                  `json:"queue_len"`
	Enqueued      int                  `json:"enqueued"`
	Strategies    []string             `json:"strategies"`
	Watch         *indexing.WatchStats `json:"watch,omitempty"`
	UptimeSeconds float64              `json:"uptime_seconds"`
	NumGoroutines int                  `json:"num_goroutines"`
}

// ShutdownRequest requests server shutdown
type ShutdownRequest struct {
	Force bool `json:"force,omitempty"`
}

// ShutdownResponse confirms shutdown
type ShutdownResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// PingResponse confirms server is alive
type PingResponse struct {
	Uptime  float64 `json:"uptime_seconds"`
	Version string  `json:"version"`
	BuildID string  `json:"build_id"`
	PID     int     `json:"pid"`
}
