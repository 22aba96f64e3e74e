package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"charm.land/fantasy"
	"github.com/mark3labs/mcp-go/mcp"
)

// mcpFantasyTool adapts an MCP tool to the fantasy.AgentTool interface.
// It bridges the MCP tool protocol with fantasy's agent tool system, handling
// name prefixing, schema conversion, connection pooling, and result marshaling.
type mcpFantasyTool struct {
	toolInfo        fantasy.ToolInfo
	mapping         *toolMapping
	providerOptions fantasy.ProviderOptions
}

// Info returns the fantasy tool info including name, description, and parameter schema.
func (t *mcpFantasyTool) Info() fantasy.ToolInfo {
	return t.toolInfo
}

// Run executes the MCP tool by routing through the connection pool.
// It maps the prefixed tool name back to the original name, retrieves a healthy
// connection, invokes the tool, and converts the MCP result to a fantasy ToolResponse.
func (t *mcpFantasyTool) Run(ctx context.Context, call fantasy.ToolCall) (fantasy.ToolResponse, error) {
	// Parse and validate JSON arguments
	var arguments any
	input := call.Input
	if input == "" || input == "{}" {
		arguments = nil
	} else {
		var temp any
		if err := json.Unmarshal([]byte(input), &temp); err != nil {
			return fantasy.NewTextErrorResponse(fmt.Sprintf("invalid JSON arguments: %v", err)), nil
		}
		arguments = json.RawMessage(input)
	}

	// Get connection from pool with health check
	conn, err := t.mapping.manager.connectionPool.GetConnectionWithHealthCheck(
		ctx, t.mapping.serverName, t.mapping.serverConfig,
	)
	if err != nil {
		return fantasy.ToolResponse{}, fmt.Errorf("failed to get healthy connection from pool: %w", err)
	}

	// Call the MCP tool using the original (unprefixed) name
	result, err := conn.client.CallTool(ctx, mcp.CallToolRequest{
		Request: mcp.Request{
			Method: "tools/call",
		},
		Params: mcp.CallToolParams{
			Name:      t.mapping.originalName,
			Arguments: arguments,
		},
	})
	if err != nil {
		// Mark connection as unhealthy for automatic recovery
		t.mapping.manager.connectionPool.HandleConnectionError(t.mapping.serverName, err)
		return fantasy.ToolResponse{}, fmt.Errorf("failed to call mcp tool: %w", err)
	}

	// fantasy.ToolResponse carries only Content/IsError — there is no
	// separate metadata channel — so the structured MCP result (server,
	// content-block count, raw payload) rides along as a trailing
	// "details: {json}" line, the same convention internal/core's tools use
	// for truncation/diff metadata.
	content, details, err := mcpResultToResponse(t.mapping.originalName, t.mapping.serverName, result)
	if err != nil {
		return fantasy.ToolResponse{}, err
	}

	if result.IsError {
		return fantasy.NewTextErrorResponse(withDetails(content, details)), nil
	}
	return fantasy.NewTextResponse(withDetails(content, details)), nil
}

// mcpToolDetails is the structured metadata attached to an MCP-bridged tool
// result, mirroring internal/core's truncationDetails pattern: content stays
// human-readable, everything machine-relevant goes in details.
type mcpToolDetails struct {
	Tool          string `json:"tool"`
	Server        string `json:"server"`
	ContentBlocks int    `json:"contentBlocks"`
}

// mcpResultToResponse flattens an MCP CallToolResult into response text plus
// structured details. Text content blocks are joined with newlines for the
// text body; if there are none, the whole result is marshaled to JSON
// instead. The block count is reported in details so a caller can tell
// a truncated/partial bridge result from a single text blob.
func mcpResultToResponse(toolName, serverName string, result *mcp.CallToolResult) (string, mcpToolDetails, error) {
	details := mcpToolDetails{Tool: toolName, Server: serverName, ContentBlocks: len(result.Content)}

	var text string
	for _, block := range result.Content {
		if tb, ok := block.(mcp.TextContent); ok {
			if text != "" {
				text += "\n"
			}
			text += tb.Text
		}
	}
	if text != "" {
		return text, details, nil
	}

	// No text content blocks (e.g. image/embedded-resource only): fall back
	// to the raw marshaled result so the caller still has something to read.
	marshaledResult, err := json.Marshal(result)
	if err != nil {
		return "", mcpToolDetails{}, fmt.Errorf("failed to marshal mcp tool result: %w", err)
	}
	return string(marshaledResult), details, nil
}

// withDetails appends details as a trailing "details: {json}" line, matching
// internal/core's textResponse/textErrorResponse convention.
func withDetails(content string, details any) string {
	b, err := json.Marshal(details)
	if err != nil {
		return content
	}
	return content + "\n\ndetails: " + string(b)
}

// ProviderOptions returns provider-specific options for this tool.
func (t *mcpFantasyTool) ProviderOptions() fantasy.ProviderOptions {
	return t.providerOptions
}

// SetProviderOptions sets provider-specific options for this tool.
func (t *mcpFantasyTool) SetProviderOptions(opts fantasy.ProviderOptions) {
	t.providerOptions = opts
}
