package extensions

// ---------------------------------------------------------------------------
// Internal types (used by the manager and runtime, never exposed directly
// across the sandbox boundary as Go interfaces)
// ---------------------------------------------------------------------------

// Event is the interface satisfied by all event types internally.
type Event interface {
	Type() EventType
}

// Result is the interface satisfied by all result types internally.
type Result interface {
	isResult()
}

// HandlerFunc is the internal handler signature used by the manager and the
// sandbox runtime's host object shims.
type HandlerFunc func(event Event, ctx Context) Result

// Context provides runtime information to handlers about the current session.
// Print routes text back to the host; extensions never get direct stdout
// access inside the sandbox.
type Context struct {
	SessionID   string
	CWD         string
	Model       string
	Interactive bool

	// Print outputs plain text to the user via the host.
	Print func(string)

	// PrintInfo outputs text as an informational notice.
	PrintInfo func(string)

	// PrintError outputs text as an error notice.
	PrintError func(string)

	// SendMessage injects a message into the conversation and triggers a new
	// agent turn. Safe to call from a goroutine backing an async handler.
	SendMessage func(string)
}

// ---------------------------------------------------------------------------
// ToolDef / CommandDef / ShortcutDef / FlagDef / ProviderDef / ModelDef
//
// These mirror RegistrationPayload's fields (spec §3): each is produced by
// the sandbox runtime while executing an extension's initializer and merged
// into the Manager's ExtensionRegistry by register().
// ---------------------------------------------------------------------------

// ToolDef describes a custom tool registered by an extension via
// pi.registerTool. Parameters is the tool's JSON Schema (as a decoded map,
// so the Manager can validate it against getkin/kin-openapi's openapi3.Schema
// at registration time without a second parse).
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
	// Execute invokes the extension's execute(args, ctx) handler. Routed
	// through the sandbox runtime (R); input/output are JSON text.
	Execute func(input string) (string, error)
}

// CommandDef describes a slash command registered via pi.registerCommand.
type CommandDef struct {
	Name        string
	Description string
	Execute     func(args string, ctx Context) (string, error)
}

// ShortcutDef describes a keyboard shortcut registered via
// pi.registerShortcut.
type ShortcutDef struct {
	Chord       string
	Description string
	Execute     func(ctx Context) (string, error)
}

// FlagDef describes a CLI/config flag registered via pi.registerFlag.
type FlagDef struct {
	Name        string
	Type        string // "boolean" | "string" | "number"
	Description string
	Default     any
}

// ProviderDef describes a model provider registered via
// pi.registerProvider.
type ProviderDef struct {
	ID            string
	BaseURL       string
	APIKey        string
	API           string
	Models        []ModelDef
	CredentialRef string
}

// ModelDef describes one model offered by a registered provider.
type ModelDef struct {
	ID          string
	DisplayName string
}

// ---------------------------------------------------------------------------
// Typed events (concrete structs; all cross the sandbox boundary as plain
// data, never as Go interfaces)
// ---------------------------------------------------------------------------

// ToolCallEvent fires before a tool executes.
type ToolCallEvent struct {
	ToolName   string
	ToolCallID string
	Input      string // JSON-encoded tool parameters
}

func (e ToolCallEvent) Type() EventType { return ToolCall }

// ToolCallResult controls whether the tool call proceeds.
type ToolCallResult struct {
	Block  bool
	Reason string
}

func (ToolCallResult) isResult() {}

// ToolExecutionStartEvent fires when a tool begins executing.
type ToolExecutionStartEvent struct {
	ToolName string
}

func (e ToolExecutionStartEvent) Type() EventType { return ToolExecutionStart }

// ToolExecutionEndEvent fires when a tool finishes executing.
type ToolExecutionEndEvent struct {
	ToolName string
}

func (e ToolExecutionEndEvent) Type() EventType { return ToolExecutionEnd }

// ToolResultEvent fires after tool execution with the output.
type ToolResultEvent struct {
	ToolName string
	Input    string
	Content  string
	IsError  bool
}

func (e ToolResultEvent) Type() EventType { return ToolResult }

// ToolResultResult can modify the tool's output before it reaches the LLM.
type ToolResultResult struct {
	Content *string // nil = unchanged
	IsError *bool   // nil = unchanged
}

func (ToolResultResult) isResult() {}

// InputEvent fires when user input is received.
type InputEvent struct {
	Text   string
	Source string // "interactive", "cli", "script", "queue"
}

func (e InputEvent) Type() EventType { return Input }

// InputResult controls what happens with user input.
//
//	Action: "continue" (default), "transform", "handled"
type InputResult struct {
	Action string
	Text   string // replacement text when Action="transform"
}

func (InputResult) isResult() {}

// BeforeAgentStartEvent fires before the agent loop begins.
type BeforeAgentStartEvent struct {
	Prompt string
}

func (e BeforeAgentStartEvent) Type() EventType { return BeforeAgentStart }

// BeforeAgentStartResult can inject context before the agent runs.
type BeforeAgentStartResult struct {
	InjectText   *string
	SystemPrompt *string
}

func (BeforeAgentStartResult) isResult() {}

// TurnStartEvent fires once per user turn, before streaming begins.
type TurnStartEvent struct {
	Prompt string
}

func (e TurnStartEvent) Type() EventType { return TurnStart }

// AgentStartEvent fires when the agent loop begins.
type AgentStartEvent struct {
	Prompt string
}

func (e AgentStartEvent) Type() EventType { return AgentStart }

// AgentEndEvent fires when the agent finishes responding.
type AgentEndEvent struct {
	Response   string
	StopReason string // "completed", "cancelled", "error"
}

func (e AgentEndEvent) Type() EventType { return AgentEnd }

// MessageStartEvent fires when a new assistant message begins.
type MessageStartEvent struct{}

func (e MessageStartEvent) Type() EventType { return MessageStart }

// MessageUpdateEvent fires for each streaming text chunk.
type MessageUpdateEvent struct {
	Chunk string
}

func (e MessageUpdateEvent) Type() EventType { return MessageUpdate }

// MessageEndEvent fires when the assistant message is complete.
type MessageEndEvent struct {
	Content string
}

func (e MessageEndEvent) Type() EventType { return MessageEnd }

// SessionStartEvent fires when a session is loaded or created.
type SessionStartEvent struct {
	SessionID string
}

func (e SessionStartEvent) Type() EventType { return SessionStart }

// SessionShutdownEvent fires when the application is closing.
type SessionShutdownEvent struct{}

func (e SessionShutdownEvent) Type() EventType { return SessionShutdown }
