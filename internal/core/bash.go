package core

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"charm.land/fantasy"
)

const defaultBashTimeout = 120 * time.Second
const maxBashTimeout = 600 * time.Second

var bannedCommands = []string{
	"alias ", "bg ", "bind ", "builtin ",
	"caller ", "command ", "compgen ",
	"complete ", "compopt ", "coproc ",
	"dirs ", "disown ", "enable ",
	"fc ", "fg ", "hash ", "help ",
	"history ", "jobs ", "kill ",
	"logout ", "mapfile ", "popd ",
	"pushd ", "readonly ", "select ",
	"set ", "shopt ", "source ",
	"suspend ", "times ", "trap ",
	"type ", "typeset ", "ulimit ",
	"umask ", "unalias ", "wait ",
}

type bashArgs struct {
	Command string  `json:"command"`
	Timeout float64 `json:"timeout,omitempty"`
}

// NewBashTool creates the bash core tool.
func NewBashTool(opts ...ToolOption) fantasy.AgentTool {
	cfg := ApplyOptions(opts)
	return &coreTool{
		info: fantasy.ToolInfo{
			Name:        "bash",
			Description: "Run a command in a subshell rooted at the workspace directory. Captures stdout and stderr; large output is truncated and the full output is saved to a temp file.",
			Parameters: map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "Command to execute",
				},
				"timeout": map[string]any{
					"type":        "number",
					"description": "Timeout in seconds (optional, default 120s, max 600s)",
				},
			},
			Required: []string{"command"},
		},
		handler: func(ctx context.Context, call fantasy.ToolCall) (fantasy.ToolResponse, error) {
			return executeBash(ctx, call, cfg.WorkDir)
		},
	}
}

func executeBash(ctx context.Context, call fantasy.ToolCall, workDir string) (fantasy.ToolResponse, error) {
	var args bashArgs
	if err := parseArgs(call.Input, &args); err != nil {
		return fantasy.NewTextErrorResponse("command parameter is required"), nil
	}
	if args.Command == "" {
		return fantasy.NewTextErrorResponse("command parameter is required"), nil
	}

	for _, banned := range bannedCommands {
		if strings.HasPrefix(args.Command, banned) {
			return fantasy.NewTextErrorResponse(fmt.Sprintf("command '%s' is not allowed", args.Command)), nil
		}
	}

	timeout := defaultBashTimeout
	if args.Timeout > 0 {
		timeout = time.Duration(args.Timeout * float64(time.Second))
		if timeout > maxBashTimeout {
			timeout = maxBashTimeout
		}
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "bash", "-c", args.Command)
	if workDir != "" {
		cmd.Dir = workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if cmdCtx.Err() == context.DeadlineExceeded {
		return fantasy.NewTextErrorResponse(fmt.Sprintf("Command timed out after %d seconds", int(timeout.Seconds()))), nil
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return fantasy.NewTextErrorResponse(fmt.Sprintf("failed to run command: %v", err)), nil
		}
	}

	var result strings.Builder
	if stdout.Len() > 0 {
		result.WriteString(stdout.String())
	}
	if stderr.Len() > 0 {
		if result.Len() > 0 {
			result.WriteString("\n")
		}
		result.WriteString(stderr.String())
	}
	output := result.String()

	tr := truncateTail(output, defaultMaxLines, defaultMaxBytes)

	var details map[string]any
	if tr.Truncated {
		details = truncation(truncationDetails{
			Truncated:   true,
			TruncatedBy: tr.TruncBy,
			TotalLines:  tr.Total,
		})
		if fullPath, ferr := saveFullOutput(output); ferr == nil {
			details["fullOutputPath"] = fullPath
		}
	}

	responseText := tr.Content
	if exitCode != 0 {
		msg := fmt.Sprintf("Command exited with code %d", exitCode)
		if responseText != "" {
			msg = responseText + "\n" + msg
		}
		return textErrorResponse(msg, details), nil
	}
	return textResponse(responseText, details), nil
}

// saveFullOutput writes the untruncated command output to a temp file so a
// truncated response can still point back at the complete record.
func saveFullOutput(output string) (string, error) {
	f, err := os.CreateTemp("", "pi-bash-output-*.txt")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(output); err != nil {
		return "", err
	}
	return f.Name(), nil
}
