package core

import (
	"context"
	"os"
	"sort"
	"strings"

	"charm.land/fantasy"
)

type lsArgs struct {
	Path  string `json:"path,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// NewLsTool creates the ls core tool.
func NewLsTool(opts ...ToolOption) fantasy.AgentTool {
	cfg := ApplyOptions(opts)
	return &coreTool{
		info: fantasy.ToolInfo{
			Name:        "ls",
			Description: "List directory contents. Entries are sorted alphabetically, with '/' suffix for directories. Includes dotfiles.",
			Parameters: map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Directory to list (default: current directory)",
				},
				"limit": map[string]any{
					"type":        "number",
					"description": "Maximum number of entries to return (default: 500)",
				},
			},
			Required: []string{},
		},
		handler: func(ctx context.Context, call fantasy.ToolCall) (fantasy.ToolResponse, error) {
			return executeLs(ctx, call, cfg.WorkDir)
		},
	}
}

func executeLs(ctx context.Context, call fantasy.ToolCall, workDir string) (fantasy.ToolResponse, error) {
	var args lsArgs
	_ = parseArgs(call.Input, &args) // optional args

	limit := 500
	if args.Limit > 0 {
		limit = args.Limit
	}

	dirPath := workDir
	if args.Path != "" {
		resolved, err := resolvePathWithWorkDir(args.Path, workDir)
		if err != nil {
			return fantasy.NewTextErrorResponse("Path not found"), nil
		}
		dirPath = resolved
	}
	if dirPath == "" {
		var err error
		dirPath, err = os.Getwd()
		if err != nil {
			return fantasy.NewTextErrorResponse("Path not found"), nil
		}
	}

	info, err := os.Stat(dirPath)
	if err != nil {
		return fantasy.NewTextErrorResponse("Path not found"), nil
	}
	if !info.IsDir() {
		return fantasy.NewTextErrorResponse("Not a directory"), nil
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fantasy.NewTextErrorResponse("Cannot read directory"), nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	if len(entries) == 0 {
		return fantasy.NewTextResponse("empty directory"), nil
	}

	entryLimitReached := len(entries) > limit
	if entryLimitReached {
		entries = entries[:limit]
	}

	var result strings.Builder
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		result.WriteString(name + "\n")
	}

	var details map[string]any
	if entryLimitReached {
		details = map[string]any{"entryLimitReached": true}
	}
	return textResponse(strings.TrimRight(result.String(), "\n"), details), nil
}
