package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/standardbeagle/hopper/internal/enumerate"
	"github.com/standardbeagle/hopper/internal/search"
)

// Client connects to a running IndexServer
type Client struct {
	httpClient *http.Client
	socketPath string
}

// RemoteError is a non-200 reply from the server.
type RemoteError struct {
	Status  int
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server error (%d %s): %s", e.Status, e.Kind, e.Message)
}

// Timeout reports whether the server gave up waiting for an updating project.
func (e *RemoteError) Timeout() bool {
	return e.Kind == KindTimeout
}

// IsInput reports whether the server rejected the request arguments.
func (e *RemoteError) IsInput() bool {
	return e.Kind == KindInput
}

// NewClient creates a client for the server listening on socketPath
func NewClient(socketPath string) *Client {
	// Create HTTP client that uses Unix socket
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 30 * time.Second,
	}

	return &Client{
		httpClient: httpClient,
		socketPath: socketPath,
	}
}

// SocketPath returns the socket this client dials
func (c *Client) SocketPath() string {
	return c.socketPath
}

// call posts req as JSON to endpoint and decodes the reply into resp.
func (c *Client) call(ctx context.Context, endpoint string, req, resp interface{}) error {
	var body io.Reader
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://unix"+endpoint, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to reach server at %s: %w", c.socketPath, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(httpResp.Body)
		var errResp ErrorResponse
		if json.Unmarshal(raw, &errResp) != nil || errResp.Error == "" {
			errResp = ErrorResponse{Error: string(bytes.TrimSpace(raw)), Kind: KindInternal}
		}
		return &RemoteError{Status: httpResp.StatusCode, Kind: errResp.Kind, Message: errResp.Error}
	}

	if resp == nil {
		return nil
	}
	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// IsServerRunning checks if the server is accessible
func (c *Client) IsServerRunning() bool {
	_, err := c.Ping()
	return err == nil
}

// Ping sends a health check to the server
func (c *Client) Ping() (*PingResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var resp PingResponse
	if err := c.call(ctx, "/ping", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetStatus retrieves the daemon state
func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call(ctx, "/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh asks for a rebuild of root
func (c *Client) Refresh(ctx context.Context, root string) error {
	return c.call(ctx, "/refresh", RefreshRequest{Root: root}, &RefreshResponse{})
}

// FirstMatch returns the best file for key under root
func (c *Client) FirstMatch(ctx context.Context, root, key string) (search.Match, error) {
	var resp MatchResponse
	err := c.call(ctx, "/first", FirstMatchRequest{Root: root, Key: key}, &resp)
	return resp, err
}

// NextMatch returns the alternate of path under root
func (c *Client) NextMatch(ctx context.Context, root, path string) (search.Match, error) {
	var resp MatchResponse
	err := c.call(ctx, "/next", NextMatchRequest{Root: root, Path: path}, &resp)
	return resp, err
}

// Search returns one page of matches without waiting for indexing
func (c *Client) Search(ctx context.Context, root, key string, offset, limit int) (*search.Snapshot, error) {
	var resp SearchResponse
	req := SearchRequest{Root: root, Key: key, Offset: offset, Limit: limit}
	if err := c.call(ctx, "/search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Files lists every keyed file under roots
func (c *Client) Files(ctx context.Context, roots ...string) ([]string, error) {
	var resp FilesResponse
	if err := c.call(ctx, "/files", FilesRequest{Roots: roots}, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// ByName lists every file under root with the given base name
func (c *Client) ByName(ctx context.Context, root, name string) ([]string, error) {
	var resp ByNameResponse
	if err := c.call(ctx, "/byname", ByNameRequest{Root: root, Name: name}, &resp); err != nil {
		return nil, err
	}
	return resp.Paths, nil
}

// Opened reports a buffer-open event. It returns false when the server had
// no index yet and dropped the event.
func (c *Client) Opened(ctx context.Context, path string) (bool, error) {
	var resp OpenedResponse
	if err := c.call(ctx, "/opened", OpenedRequest{Path: path}, &resp); err != nil {
		return false, err
	}
	return resp.Recorded, nil
}

// Profile times the configured strategies against root
func (c *Client) Profile(ctx context.Context, root string, rounds int) ([]enumerate.Timing, error) {
	var resp ProfileResponse
	if err := c.call(ctx, "/profile", ProfileRequest{Root: root, Rounds: rounds}, &resp); err != nil {
		return nil, err
	}
	return resp.Timings, nil
}

// Shutdown requests server shutdown
func (c *Client) Shutdown(force bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var resp ShutdownResponse
	if err := c.call(ctx, "/shutdown", ShutdownRequest{Force: force}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("shutdown failed: %s", resp.Message)
	}
	return nil
}

// WaitForReady waits until the server answers pings or timeout
func (c *Client) WaitForReady(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.IsServerRunning() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for server on %s", c.socketPath)
		case <-ticker.C:
		}
	}
}
