package agent

import (
	"context"
	"fmt"
	"io"
	"math"

	"charm.land/fantasy"

	"github.com/pi-run/pi/internal/config"
	"github.com/pi-run/pi/internal/models"
	"github.com/pi-run/pi/internal/tools"
)

// AgentConfig is the low-level configuration consumed by NewAgent. Callers
// that need the spinner/quiet UX on top of this should go through
// CreateAgent and AgentCreationOptions instead.
type AgentConfig struct {
	// ModelConfig specifies the LLM provider and model to use.
	ModelConfig *models.ProviderConfig
	// MCPConfig contains MCP server configurations.
	MCPConfig *config.Config
	// SystemPrompt is the initial system message for the agent.
	SystemPrompt string
	// MaxSteps limits the number of tool-calling rounds per turn (0 = default).
	MaxSteps int
	// StreamingEnabled controls whether responses are streamed.
	StreamingEnabled bool
	// DebugLogger is an optional logger for debugging MCP communications.
	DebugLogger tools.DebugLogger
	// ToolWrapper, when set, wraps the combined MCP+builtin tool set before
	// it is exposed to the model.
	ToolWrapper ToolWrapperFunc
	// ExtraTools are appended to the tool set after ToolWrapper runs.
	ExtraTools []fantasy.AgentTool
}

// ToolCallHandler is invoked as soon as the model emits a tool call, before
// the tool runs.
type ToolCallHandler func(toolName, toolArgs string)

// ToolExecutionHandler fires once when a tool starts executing (isStarting
// true) and again when it finishes (isStarting false).
type ToolExecutionHandler func(toolName string, isStarting bool)

// ToolResultHandler is invoked after a tool call completes with its result
// text and whether it represents an error.
type ToolResultHandler func(toolName, toolArgs, resultText string, isError bool)

// ResponseHandler receives the final assistant text for a turn.
type ResponseHandler func(content string)

// ToolCallContentHandler receives any prose the model produced alongside a
// round of tool calls (e.g. "Let me check that for you...").
type ToolCallContentHandler func(content string)

// StreamingResponseHandler receives incremental chunks of the final
// response as they become available.
type StreamingResponseHandler func(chunk string)

// GenerateWithLoopResult bundles the outcome of a full tool-calling turn.
type GenerateWithLoopResult struct {
	// FinalResponse is the last model response in the turn (the one with no
	// further tool calls, or the one at which MaxSteps was reached).
	FinalResponse *fantasy.Response
	// ConversationMessages is the full message list after the turn,
	// including every assistant/tool round this turn appended.
	ConversationMessages []fantasy.Message
	// TotalUsage aggregates token usage across every step of the turn.
	TotalUsage fantasy.Usage
}

// Agent wraps a fantasy.LanguageModel, its resolved tool set, and the
// tool-calling loop that drives a single turn of conversation.
type Agent struct {
	model        fantasy.LanguageModel
	loadingMsg   string
	systemPrompt string
	maxSteps     int
	streaming    bool
	mcpManager   *tools.MCPToolManager
	allTools     []fantasy.AgentTool
	extraCount   int
	closer       io.Closer
}

// defaultMaxSteps bounds the tool-calling loop when the caller does not set
// MaxSteps, preventing a misbehaving model from looping forever.
const defaultMaxSteps = 25

// NewAgent resolves the model provider, loads MCP (and any builtin) tools,
// splices in extension tools via cfg.ToolWrapper/ExtraTools, and returns a
// ready-to-use Agent.
func NewAgent(ctx context.Context, cfg *AgentConfig) (*Agent, error) {
	providerResult, err := models.CreateProvider(ctx, cfg.ModelConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create model provider: %w", err)
	}

	mcpManager := tools.NewMCPToolManager()
	mcpManager.SetModel(providerResult.Model)
	if cfg.DebugLogger != nil {
		mcpManager.SetDebugLogger(cfg.DebugLogger)
	}
	if cfg.MCPConfig != nil {
		if err := mcpManager.LoadTools(ctx, cfg.MCPConfig); err != nil {
			return nil, fmt.Errorf("failed to load MCP tools: %w", err)
		}
	}

	combined := append([]fantasy.AgentTool{}, mcpManager.GetTools()...)
	if cfg.ToolWrapper != nil {
		combined = cfg.ToolWrapper(combined)
	}
	extraCount := len(cfg.ExtraTools)
	combined = append(combined, cfg.ExtraTools...)

	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	return &Agent{
		model:        providerResult.Model,
		loadingMsg:   providerResult.Message,
		systemPrompt: cfg.SystemPrompt,
		maxSteps:     maxSteps,
		streaming:    cfg.StreamingEnabled,
		mcpManager:   mcpManager,
		allTools:     combined,
		extraCount:   extraCount,
		closer:       providerResult.Closer,
	}, nil
}

// GetModel returns the resolved model's identifier string.
func (a *Agent) GetModel() string { return a.model.Model() }

// GetTools returns the full resolved tool set (MCP + builtin + extension).
func (a *Agent) GetTools() []fantasy.AgentTool { return a.allTools }

// GetLoadingMessage returns any informational message surfaced during model
// or tool loading (e.g. Ollama GPU placement notes).
func (a *Agent) GetLoadingMessage() string { return a.loadingMsg }

// GetLoadedServerNames returns the names of MCP servers that connected
// successfully.
func (a *Agent) GetLoadedServerNames() []string { return a.mcpManager.GetLoadedServerNames() }

// GetMCPToolCount returns how many tools came from external MCP servers.
func (a *Agent) GetMCPToolCount() int { return len(a.mcpManager.GetTools()) }

// GetExtensionToolCount returns how many tools were registered by loaded
// extensions.
func (a *Agent) GetExtensionToolCount() int { return a.extraCount }

// Close releases MCP connections and any provider-held resources (e.g. a
// locally loaded Ollama model).
func (a *Agent) Close() error {
	var firstErr error
	if err := a.mcpManager.Close(); err != nil {
		firstErr = err
	}
	if a.closer != nil {
		if err := a.closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *Agent) toolByName(name string) fantasy.AgentTool {
	for _, t := range a.allTools {
		if t.Info().Name == name {
			return t
		}
	}
	return nil
}

// GenerateWithLoopAndStreaming drives one full turn: it calls the model,
// executes any tool calls the model emits, feeds the results back, and
// repeats until the model stops calling tools or maxSteps is reached. Each
// handler is optional; nil handlers are simply skipped.
func (a *Agent) GenerateWithLoopAndStreaming(
	ctx context.Context,
	messages []fantasy.Message,
	onToolCall ToolCallHandler,
	onToolExecution ToolExecutionHandler,
	onToolResult ToolResultHandler,
	onResponse ResponseHandler,
	onToolCallContent ToolCallContentHandler,
	onStreamingResponse StreamingResponseHandler,
) (*GenerateWithLoopResult, error) {
	conversation := append([]fantasy.Message{}, messages...)

	hasSystem := false
	for _, m := range conversation {
		if m.Role == fantasy.MessageRoleSystem {
			hasSystem = true
			break
		}
	}
	if a.systemPrompt != "" && !hasSystem {
		conversation = append([]fantasy.Message{fantasy.NewSystemMessage(a.systemPrompt)}, conversation...)
	}

	var totalUsage fantasy.Usage
	var finalResponse *fantasy.Response

	for step := 0; step < a.maxSteps; step++ {
		response, err := a.model.Generate(ctx, fantasy.Call{
			Prompt: fantasy.Prompt(conversation),
			Tools:  a.allTools,
		})
		if err != nil {
			return nil, fmt.Errorf("model generation failed: %w", err)
		}
		respCopy := response
		finalResponse = &respCopy
		totalUsage = sumUsage(totalUsage, response.Usage)

		conversation = append(conversation, fantasy.Message{
			Role:    fantasy.MessageRoleAssistant,
			Content: response.Content,
		})

		toolCalls := response.Content.ToolCalls()
		if len(toolCalls) == 0 {
			text := response.Content.Text()
			if onResponse != nil {
				onResponse(text)
			}
			if onStreamingResponse != nil {
				onStreamingResponse(text)
			}
			break
		}

		if prose := response.Content.Text(); prose != "" && onToolCallContent != nil {
			onToolCallContent(prose)
		}

		var resultParts []fantasy.MessagePart
		for _, tc := range toolCalls {
			if onToolCall != nil {
				onToolCall(tc.ToolName, tc.Input)
			}
			if onToolExecution != nil {
				onToolExecution(tc.ToolName, true)
			}

			resultText, isError := a.runTool(ctx, tc)

			if onToolExecution != nil {
				onToolExecution(tc.ToolName, false)
			}
			if onToolResult != nil {
				onToolResult(tc.ToolName, tc.Input, resultText, isError)
			}

			var output fantasy.ToolResultOutputContent
			if isError {
				output = fantasy.ToolResultOutputContentError{Error: fmt.Errorf("%s", resultText)}
			} else {
				output = fantasy.ToolResultOutputContentText{Text: resultText}
			}
			resultParts = append(resultParts, fantasy.ToolResultPart{
				ToolCallID: tc.ToolCallID,
				Output:     output,
			})
		}

		conversation = append(conversation, fantasy.Message{
			Role:    fantasy.MessageRoleTool,
			Content: resultParts,
		})
	}

	return &GenerateWithLoopResult{
		FinalResponse:        finalResponse,
		ConversationMessages: conversation,
		TotalUsage:           totalUsage,
	}, nil
}

func (a *Agent) runTool(ctx context.Context, tc fantasy.ToolCallPart) (text string, isError bool) {
	tool := a.toolByName(tc.ToolName)
	if tool == nil {
		return fmt.Sprintf("unknown tool: %s", tc.ToolName), true
	}
	resp, err := tool.Run(ctx, fantasy.ToolCall{
		ID:       tc.ToolCallID,
		ToolName: tc.ToolName,
		Input:    tc.Input,
	})
	if err != nil {
		return err.Error(), true
	}
	return resp.Content, resp.IsError
}

// sumUsage adds b into a field by field. Token counters saturate at
// math.MaxInt64 instead of wrapping on overflow.
func sumUsage(a, b fantasy.Usage) fantasy.Usage {
	a.InputTokens = saturatingAdd(a.InputTokens, b.InputTokens)
	a.OutputTokens = saturatingAdd(a.OutputTokens, b.OutputTokens)
	a.CacheReadTokens = saturatingAdd(a.CacheReadTokens, b.CacheReadTokens)
	a.CacheWriteTokens = saturatingAdd(a.CacheWriteTokens, b.CacheWriteTokens)
	return a
}

// saturatingAdd returns x+y clamped to math.MaxInt64 on overflow. Both
// operands are expected non-negative (token counts), so the only overflow
// direction that matters is the positive one.
func saturatingAdd(x, y int64) int64 {
	sum := x + y
	if sum < x || sum < y {
		return math.MaxInt64
	}
	return sum
}
