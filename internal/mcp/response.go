package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/hopper/internal/errors"
)

// createJSONResponse creates a standardized JSON response for MCP tools
func createJSONResponse(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}, nil
}

// errorKind classifies err the same way the daemon picks a status code.
func errorKind(err error) string {
	switch {
	case errors.IsInput(err):
		return "input"
	case errors.IsTimeout(err):
		return "timeout"
	default:
		return "internal"
	}
}

// createErrorResponse reports err inside the result with IsError set, so the
// model sees the failure instead of a protocol error.
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	errorData := map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"kind":      errorKind(err),
		"operation": operation,
	}
	if errors.IsTimeout(err) {
		errorData["hint"] = "the project is still being indexed; retry, or use search to poll isUpdating"
	}

	response, marshalErr := createJSONResponse(errorData)
	if marshalErr != nil {
		return nil, marshalErr
	}
	response.IsError = true
	return response, nil
}
