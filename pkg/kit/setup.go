package kit

import (
	"context"
	"fmt"

	"charm.land/fantasy"

	"github.com/pi-run/pi/internal/agent"
	"github.com/pi-run/pi/internal/config"
	"github.com/pi-run/pi/internal/extensions"
	"github.com/pi-run/pi/internal/models"
	"github.com/pi-run/pi/internal/skills"
	"github.com/pi-run/pi/internal/tools"
	"github.com/spf13/viper"
)

// AgentSetupOptions configures agent creation.
type AgentSetupOptions struct {
	// MCPConfig is the MCP server configuration. Required.
	MCPConfig *config.Config
	// ShowSpinner shows a loading spinner for Ollama models.
	ShowSpinner bool
	// SpinnerFunc provides the spinner implementation (nil = no spinner).
	SpinnerFunc agent.SpinnerFunc
	// UseBufferedLogger captures debug messages for later display (root
	// non-interactive path). When false a simple logger is used instead.
	UseBufferedLogger bool
	// Quiet suppresses output. Replaces the cmd package's quietFlag variable.
	Quiet bool
	// CoreTools, when non-empty, is merged into the tool set alongside the
	// default MCP+builtin tools (Options.Tools in the SDK surface).
	CoreTools []fantasy.AgentTool
	// ExtraTools are appended alongside the core/MCP/extension tool set
	// (Options.ExtraTools in the SDK surface).
	ExtraTools []fantasy.AgentTool
	// ToolWrapper wraps the tool set before extension registration merges
	// in, e.g. to splice in the SDK's before/after-tool-call hooks.
	ToolWrapper func([]fantasy.AgentTool) []fantasy.AgentTool
	// ExtensionsPreloaded, when true, tells SetupAgent to use
	// PreloadedExtManager/PreloadedExtOpts as-is (even if both are nil,
	// meaning no extensions were configured) instead of loading extensions
	// itself. Set by callers that load extensions ahead of SetupAgent, e.g.
	// to fold extension-authored skills into the system prompt before the
	// agent is created.
	ExtensionsPreloaded bool
	PreloadedExtManager *extensions.Manager
	PreloadedExtOpts    *extensionCreationOpts
}

// AgentSetupResult bundles the created agent and any debug logger so the caller
// can flush buffered messages when appropriate.
type AgentSetupResult struct {
	Agent          *agent.Agent
	BufferedLogger *tools.BufferedDebugLogger
	// ExtRunner is the extension manager (nil when --no-extensions or no
	// extensions were discovered).
	ExtRunner *extensions.Manager
}

// BuildProviderConfig creates a *models.ProviderConfig from the current viper
// state. All entry points (root, script, SDK) converge through this function.
func BuildProviderConfig() (*models.ProviderConfig, string, error) {
	systemPrompt, err := config.LoadSystemPrompt(viper.GetString("system-prompt"))
	if err != nil {
		return nil, "", fmt.Errorf("failed to load system prompt: %w", err)
	}

	temperature := float32(viper.GetFloat64("temperature"))
	topP := float32(viper.GetFloat64("top-p"))
	topK := int32(viper.GetInt("top-k"))
	numGPU := int32(viper.GetInt("num-gpu-layers"))
	mainGPU := int32(viper.GetInt("main-gpu"))

	cfg := &models.ProviderConfig{
		ModelString:    viper.GetString("model"),
		SystemPrompt:   systemPrompt,
		ProviderAPIKey: viper.GetString("provider-api-key"),
		ProviderURL:    viper.GetString("provider-url"),
		MaxTokens:      viper.GetInt("max-tokens"),
		Temperature:    &temperature,
		TopP:           &topP,
		TopK:           &topK,
		StopSequences:  viper.GetStringSlice("stop-sequences"),
		NumGPU:         &numGPU,
		MainGPU:        &mainGPU,
		TLSSkipVerify:  viper.GetBool("tls-skip-verify"),
	}

	return cfg, systemPrompt, nil
}

// SetupAgent creates an agent from the current viper state + the provided
// options. It wraps BuildProviderConfig and agent.CreateAgent.
func SetupAgent(ctx context.Context, opts AgentSetupOptions) (*AgentSetupResult, error) {
	modelConfig, systemPrompt, err := BuildProviderConfig()
	if err != nil {
		return nil, err
	}

	// Create the appropriate debug logger.
	var debugLogger tools.DebugLogger
	var bufferedLogger *tools.BufferedDebugLogger
	if viper.GetBool("debug") {
		if opts.UseBufferedLogger {
			bufferedLogger = tools.NewBufferedDebugLogger(true)
			debugLogger = bufferedLogger
		} else {
			debugLogger = tools.NewSimpleDebugLogger(true)
		}
	}

	// Load extensions unless --no-extensions is set, or reuse an already
	// loaded manager (see AgentSetupOptions.PreloadedExtManager).
	var extManager *extensions.Manager
	var extCreationOpts extensionCreationOpts
	switch {
	case opts.ExtensionsPreloaded:
		extManager = opts.PreloadedExtManager
		if opts.PreloadedExtOpts != nil {
			extCreationOpts = *opts.PreloadedExtOpts
		}
	case !viper.GetBool("no-extensions"):
		var extErr error
		extManager, extCreationOpts, extErr = loadExtensions()
		if extErr != nil {
			fmt.Printf("Warning: Failed to load extensions: %v\n", extErr)
		}
	}

	// Compose the caller-supplied tool wrapper (e.g. SDK hooks) with the
	// extension tool-call wrapper: hooks observe first, extensions second.
	toolWrapper := extCreationOpts.toolWrapper
	if opts.ToolWrapper != nil {
		inner := toolWrapper
		outer := opts.ToolWrapper
		toolWrapper = func(tools []fantasy.AgentTool) []fantasy.AgentTool {
			if inner != nil {
				tools = inner(tools)
			}
			return outer(tools)
		}
	}
	extraTools := append([]fantasy.AgentTool{}, opts.CoreTools...)
	extraTools = append(extraTools, opts.ExtraTools...)
	extraTools = append(extraTools, extCreationOpts.extraTools...)

	a, err := agent.CreateAgent(ctx, &agent.AgentCreationOptions{
		ModelConfig:      modelConfig,
		MCPConfig:        opts.MCPConfig,
		SystemPrompt:     systemPrompt,
		MaxSteps:         viper.GetInt("max-steps"),
		StreamingEnabled: viper.GetBool("stream"),
		ShowSpinner:      opts.ShowSpinner,
		Quiet:            opts.Quiet,
		SpinnerFunc:      opts.SpinnerFunc,
		DebugLogger:      debugLogger,
		ToolWrapper:      toolWrapper,
		ExtraTools:       extraTools,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	return &AgentSetupResult{
		Agent:          a,
		ExtRunner:      extManager,
		BufferedLogger: bufferedLogger,
	}, nil
}

// extensionCreationOpts holds the tool wrapper, extra tools, and
// extension-authored skills extracted from loaded extensions for passing
// into agent creation and system-prompt composition.
type extensionCreationOpts struct {
	toolWrapper func([]fantasy.AgentTool) []fantasy.AgentTool
	extraTools  []fantasy.AgentTool
	skills      []*skills.Skill
}

// loadExtensions discovers each configured extension root's entrypoint via
// the source classifier (C), loads it into a shared sandbox runtime (R),
// and merges registrations into one Manager (M). A root that fails to
// classify or load is reported and skipped; the remaining extensions still
// load (spec §4.5: load errors surface as composite errors, the manager
// remains usable). Each successfully loaded extension's skills/ directory
// (sibling to its entry point) is also discovered and tagged with its
// extension id, for folding into the system prompt alongside host skills.
func loadExtensions() (*extensions.Manager, extensionCreationOpts, error) {
	extraPaths := viper.GetStringSlice("extension")
	if len(extraPaths) == 0 {
		return nil, extensionCreationOpts{}, nil
	}

	runtime := extensions.NewRuntime()
	manager := extensions.NewManager(runtime)

	var loadErrs []error
	var extSkills []*skills.Skill
	for _, root := range extraPaths {
		entry, _, err := extensions.DetectEntrypoint(root, "", extensions.ClassifierConfig{})
		if err != nil {
			loadErrs = append(loadErrs, fmt.Errorf("%s: %w", root, err))
			continue
		}
		if entry == "" {
			loadErrs = append(loadErrs, fmt.Errorf("%s: no extension entrypoint found", root))
			continue
		}

		spec := extensions.NewLoadSpec(root, entry)
		payload, err := runtime.LoadExtension(context.Background(), spec)
		if err != nil {
			loadErrs = append(loadErrs, fmt.Errorf("%s: %w", root, err))
			continue
		}
		manager.Register(payload)

		if found, err := skills.LoadSkillsForExtension(spec); err == nil {
			extSkills = append(extSkills, found...)
		}
	}

	var compositeErr error
	if len(loadErrs) > 0 {
		msgs := make([]string, len(loadErrs))
		for i, e := range loadErrs {
			msgs[i] = e.Error()
		}
		compositeErr = fmt.Errorf("%d extension(s) failed to load: %v", len(loadErrs), msgs)
	}

	wrapper := func(tools []fantasy.AgentTool) []fantasy.AgentTool {
		return extensions.WrapToolsWithExtensions(tools, manager)
	}
	extTools := extensions.ExtensionToolsAsFantasy(manager.RegisteredTools())

	return manager, extensionCreationOpts{
		toolWrapper: wrapper,
		extraTools:  extTools,
		skills:      extSkills,
	}, compositeErr
}
