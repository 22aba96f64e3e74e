package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"charm.land/fantasy"
)

type readArgs struct {
	Path   string `json:"path"`
	Offset int    `json:"offset,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".webp": true, ".svg": true, ".ico": true,
}

// NewReadTool creates the read core tool.
func NewReadTool(opts ...ToolOption) fantasy.AgentTool {
	cfg := ApplyOptions(opts)
	return &coreTool{
		info: fantasy.ToolInfo{
			Name:        "read",
			Description: "Read the contents of a file. Lines are numbered. Output is truncated to 2000 lines or 50KB; use offset/limit to page through large files.",
			Parameters: map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Path to the file to read (relative or absolute)",
				},
				"offset": map[string]any{
					"type":        "number",
					"description": "Line number to start reading from (1-indexed)",
				},
				"limit": map[string]any{
					"type":        "number",
					"description": "Maximum number of lines to read",
				},
			},
			Required: []string{"path"},
		},
		handler: func(ctx context.Context, call fantasy.ToolCall) (fantasy.ToolResponse, error) {
			return executeRead(ctx, call, cfg)
		},
	}
}

func executeRead(ctx context.Context, call fantasy.ToolCall, cfg ToolConfig) (fantasy.ToolResponse, error) {
	var args readArgs
	if err := parseArgs(call.Input, &args); err != nil {
		return fantasy.NewTextErrorResponse("path parameter is required"), nil
	}
	if args.Path == "" {
		return fantasy.NewTextErrorResponse("path parameter is required"), nil
	}

	absPath, err := resolvePathWithWorkDir(args.Path, cfg.WorkDir)
	if err != nil {
		return fantasy.NewTextErrorResponse(fmt.Sprintf("invalid path: %v", err)), nil
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fantasy.NewTextErrorResponse(fmt.Sprintf("cannot access '%s': %v", args.Path, err)), nil
	}
	if info.IsDir() {
		return fantasy.NewTextErrorResponse(fmt.Sprintf("'%s' is a directory", args.Path)), nil
	}
	if !cfg.AllowImages && imageExtensions[strings.ToLower(filepath.Ext(absPath))] {
		return fantasy.NewTextErrorResponse("Images are blocked by configuration"), nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return fantasy.NewTextErrorResponse(fmt.Sprintf("failed to read file: %v", err)), nil
	}

	lines := strings.Split(string(content), "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	totalLines := len(lines)

	// Apply offset (1-indexed)
	offset := 0
	if args.Offset > 0 {
		offset = args.Offset - 1
		if offset >= totalLines {
			return fantasy.NewTextErrorResponse(fmt.Sprintf("Offset %d is beyond end of file", args.Offset)), nil
		}
		lines = lines[offset:]
	}

	// Apply limit
	maxLines := defaultMaxLines
	if args.Limit > 0 {
		maxLines = args.Limit
	}
	truncatedByLines := len(lines) > maxLines
	if truncatedByLines {
		lines = lines[:maxLines]
	}

	// Number lines: "%5d→" — 5-width right-padded line number, no space, no colon.
	var result strings.Builder
	for i, line := range lines {
		lineNum := offset + i + 1
		result.WriteString(fmt.Sprintf("%5d→%s\n", lineNum, line))
	}

	tr := truncateHead(result.String(), 0, defaultMaxBytes)
	truncatedByBytes := tr.TruncBy == "bytes"

	if !truncatedByLines && !truncatedByBytes {
		return fantasy.NewTextResponse(tr.Content), nil
	}

	kept := len(lines)
	if truncatedByBytes {
		kept = tr.Kept
	}
	lastLine := offset + kept

	notice := fmt.Sprintf("\nShowing lines %d-%d of %d\nUse offset=%d to continue.", offset+1, lastLine, totalLines, lastLine+1)

	details := truncationDetails{
		Truncated:  true,
		TotalLines: totalLines,
	}
	if truncatedByBytes {
		details.TruncatedBy = "bytes"
		details.FirstLineExceedsLimit = tr.FirstLineExceedsLimit
	} else {
		details.TruncatedBy = "lines"
	}

	return textResponse(tr.Content+notice, truncation(details)), nil
}

// truncation wraps a truncationDetails value as {"truncation": ...} for the
// "details.truncation" object tools attach alongside a truncated response.
func truncation(d truncationDetails) map[string]any {
	return map[string]any{"truncation": d}
}

// resolvePathWithWorkDir resolves a path to an absolute path relative to the
// given workDir. If workDir is empty, os.Getwd() is used.
func resolvePathWithWorkDir(path, workDir string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	baseDir := workDir
	if baseDir == "" {
		var err error
		baseDir, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
	}
	return filepath.Clean(filepath.Join(baseDir, path)), nil
}
