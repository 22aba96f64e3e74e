package core

import (
	"context"
	"fmt"
	"os"
	"strings"

	"charm.land/fantasy"
)

type editArgs struct {
	Path    string `json:"path"`
	OldText string `json:"old_text"`
	NewText string `json:"new_text"`
}

// NewEditTool creates the edit core tool.
func NewEditTool(opts ...ToolOption) fantasy.AgentTool {
	cfg := ApplyOptions(opts)
	return &coreTool{
		info: fantasy.ToolInfo{
			Name:        "edit",
			Description: "Edit a file by replacing exact text. old_text must match exactly one location in the file (including whitespace); the call fails if it matches zero or more than one.",
			Parameters: map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Path to the file to edit (relative or absolute)",
				},
				"old_text": map[string]any{
					"type":        "string",
					"description": "Exact text to find and replace (must match exactly)",
				},
				"new_text": map[string]any{
					"type":        "string",
					"description": "New text to replace the old text with",
				},
			},
			Required: []string{"path", "old_text", "new_text"},
		},
		handler: func(ctx context.Context, call fantasy.ToolCall) (fantasy.ToolResponse, error) {
			return executeEdit(ctx, call, cfg.WorkDir)
		},
	}
}

func executeEdit(ctx context.Context, call fantasy.ToolCall, workDir string) (fantasy.ToolResponse, error) {
	var args editArgs
	if err := parseArgs(call.Input, &args); err != nil {
		return fantasy.NewTextErrorResponse("path, old_text, and new_text parameters are required"), nil
	}
	if args.Path == "" {
		return fantasy.NewTextErrorResponse("path parameter is required"), nil
	}

	absPath, err := resolvePathWithWorkDir(args.Path, workDir)
	if err != nil {
		return fantasy.NewTextErrorResponse(fmt.Sprintf("invalid path: %v", err)), nil
	}

	contentBytes, err := os.ReadFile(absPath)
	if err != nil {
		return fantasy.NewTextErrorResponse(fmt.Sprintf("failed to read file: %v", err)), nil
	}
	content := string(contentBytes)

	count := strings.Count(content, args.OldText)
	if count == 0 {
		return fantasy.NewTextErrorResponse(fmt.Sprintf("old_text not found in %s", args.Path)), nil
	}
	if count > 1 {
		return fantasy.NewTextErrorResponse(fmt.Sprintf("old_text matches %d locations in %s, must match exactly one location", count, args.Path)), nil
	}

	idx := strings.Index(content, args.OldText)
	newContent := content[:idx] + args.NewText + content[idx+len(args.OldText):]

	if err := os.WriteFile(absPath, []byte(newContent), 0644); err != nil {
		return fantasy.NewTextErrorResponse(fmt.Sprintf("failed to write file: %v", err)), nil
	}

	diff := generateDiff(args.Path, content, newContent, idx)
	newLineCount := strings.Count(newContent, "\n") + 1
	summary := fmt.Sprintf("Edited %s (%d lines)", args.Path, newLineCount)
	return textResponse(summary, map[string]any{"diff": diff}), nil
}

// generateDiff creates a unified-diff-shaped summary of the change, showing
// context lines around the replaced region.
func generateDiff(path, old, new string, changeIdx int) string {
	oldLines := strings.Split(old, "\n")
	newLines := strings.Split(new, "\n")

	lineNum := strings.Count(old[:changeIdx], "\n") + 1

	contextLines := 3
	start := max(lineNum-contextLines-1, 0)

	endOld := min(lineNum+contextLines+countNewlines(old[changeIdx:])+1, len(oldLines))
	endNew := min(lineNum+contextLines+countNewlines(new[changeIdx:])+1, len(newLines))

	var diff strings.Builder
	diff.WriteString(fmt.Sprintf("--- %s\n+++ %s\n", path, path))
	diff.WriteString(fmt.Sprintf("@@ -%d,%d +%d,%d @@\n", start+1, endOld-start, start+1, endNew-start))

	for i := start; i < endOld && i < len(oldLines); i++ {
		prefix := " "
		if i >= lineNum-1 && i < lineNum-1+countNewlines(old[changeIdx:])+1 {
			prefix = "-"
		}
		diff.WriteString(fmt.Sprintf("%s %s\n", prefix, oldLines[i]))
	}
	for i := lineNum - 1; i < lineNum-1+countNewlines(new[changeIdx:])+1 && i < len(newLines); i++ {
		diff.WriteString(fmt.Sprintf("+ %s\n", newLines[i]))
	}

	return diff.String()
}

func countNewlines(s string) int {
	return strings.Count(s, "\n")
}
