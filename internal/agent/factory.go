package agent

import (
	"context"
	"fmt"

	"charm.land/fantasy"

	"github.com/pi-run/pi/internal/config"
	"github.com/pi-run/pi/internal/models"
	"github.com/pi-run/pi/internal/tools"
)

// ToolWrapperFunc wraps the agent's resolved tool set before it is handed to
// the model, e.g. to intercept calls for extension hooks.
type ToolWrapperFunc func([]fantasy.AgentTool) []fantasy.AgentTool

// SpinnerFunc is a function type for showing spinners during agent creation.
// It executes the provided function while displaying an animated spinner.
type SpinnerFunc func(fn func() error) error

// AgentCreationOptions contains options for creating an agent.
// It extends AgentConfig with UI-related options for showing progress during creation.
type AgentCreationOptions struct {
	// ModelConfig specifies the LLM provider and model to use
	ModelConfig *models.ProviderConfig
	// MCPConfig contains MCP server configurations
	MCPConfig *config.Config
	// SystemPrompt is the initial system message for the agent
	SystemPrompt string
	// MaxSteps limits the number of tool calls (0 or less uses the default of 25)
	MaxSteps int
	// StreamingEnabled controls whether responses are streamed
	StreamingEnabled bool
	// ShowSpinner indicates whether to show a spinner for Ollama models during loading
	ShowSpinner bool // For Ollama models
	// Quiet suppresses the spinner even if ShowSpinner is true
	Quiet bool // Skip spinner if quiet
	// SpinnerFunc is the function to show spinner, provided by the caller
	SpinnerFunc SpinnerFunc // Function to show spinner (provided by caller)
	// DebugLogger is an optional logger for debugging MCP communications
	DebugLogger tools.DebugLogger // Optional debug logger
	// ToolWrapper, when set, wraps the combined MCP+builtin tool set before
	// it is exposed to the model (used to splice in extension tool-call hooks).
	ToolWrapper ToolWrapperFunc
	// ExtraTools are appended to the tool set after ToolWrapper runs, e.g.
	// tools registered by loaded extensions.
	ExtraTools []fantasy.AgentTool
}

// CreateAgent creates an agent with optional spinner for Ollama models.
// It shows a loading spinner for Ollama models if ShowSpinner is true and not in quiet mode.
// Returns the created agent or an error if creation fails.
func CreateAgent(ctx context.Context, opts *AgentCreationOptions) (*Agent, error) {
	agentConfig := &AgentConfig{
		ModelConfig:      opts.ModelConfig,
		MCPConfig:        opts.MCPConfig,
		SystemPrompt:     opts.SystemPrompt,
		MaxSteps:         opts.MaxSteps,
		StreamingEnabled: opts.StreamingEnabled,
		DebugLogger:      opts.DebugLogger,
		ToolWrapper:      opts.ToolWrapper,
		ExtraTools:       opts.ExtraTools,
	}

	var agent *Agent
	var err error

	// Show spinner for Ollama models if requested and not quiet
	parsedProvider, _, _ := models.ParseModelString(opts.ModelConfig.ModelString)
	if opts.ShowSpinner && parsedProvider == "ollama" && !opts.Quiet && opts.SpinnerFunc != nil {
		err = opts.SpinnerFunc(func() error {
			agent, err = NewAgent(ctx, agentConfig)
			return err
		})
	} else {
		agent, err = NewAgent(ctx, agentConfig)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %v", err)
	}

	return agent, nil
}

// ParseModelName extracts provider and model name from a model string.
// Model strings are formatted as "provider/model" (e.g., "anthropic/claude-sonnet-4-5-20250929").
// The legacy "provider:model" format is also accepted for backward compatibility.
// If the string cannot be parsed, returns "unknown" for both provider and model.
func ParseModelName(modelString string) (provider, model string) {
	p, m, err := models.ParseModelString(modelString)
	if err != nil {
		return "unknown", "unknown"
	}
	return p, m
}
